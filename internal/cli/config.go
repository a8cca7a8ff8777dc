package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blagoySimandov/certmapper/internal/config"
)

// ConfigCmd returns the config command
func ConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the detected environment and missing variables",
		Long: `Print how the environment was detected and which variables the selected agent
backend needs. Secrets are truncated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printConfig(cmd.OutOrStdout(), config.Load())
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config) error {
	ok := color.New(color.FgGreen).Sprint("OK     ")
	missing := color.New(color.FgRed).Sprint("MISSING")

	fmt.Fprintf(out, "Environment: %s (production: %t)\n", cfg.Environment, cfg.IsProduction())
	fmt.Fprintf(out, "Debug: %t  Log level: %s\n", cfg.Debug, cfg.LogLevel)
	fmt.Fprintf(out, "Agent backend: %s\n", cfg.AgentBackend)
	fmt.Fprintf(out, "Workers: %d  Row timeout: %s\n", cfg.MaxWorkers, cfg.RowTimeout)
	fmt.Fprintln(out)

	values := map[string]string{
		"PROJECT_ENDPOINT":     preview(cfg.ProjectEndpoint, 50),
		"MODEL_DEPLOYMENT":     cfg.ModelDeployment,
		"SUBSCRIPTION_KEY":     preview(cfg.SubscriptionKey, 8),
		"BING_CONNECTION_NAME": preview(cfg.BingConnectionName, 60),
		"GEMINI_API_KEY":       preview(cfg.GeminiAPIKey, 8),
	}
	for _, name := range cfg.RequiredVars() {
		if values[name] == "" {
			fmt.Fprintf(out, "  %s %s\n", missing, name)
			continue
		}
		fmt.Fprintf(out, "  %s %s = %s\n", ok, name, values[name])
	}

	if cfg.AgentBackend == config.BackendAzure {
		if cfg.MissingServicePrincipal() {
			fmt.Fprintf(out, "  %s AZURE_CLIENT_ID/AZURE_CLIENT_SECRET/AZURE_TENANT_ID (using SUBSCRIPTION_KEY)\n",
				color.New(color.FgYellow).Sprint("UNSET  "))
		} else {
			fmt.Fprintf(out, "  %s service principal %s\n", ok, preview(cfg.AzureClientID, 8))
		}
	}
	fmt.Fprintln(out)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "%s %v\n", color.New(color.FgRed).Sprint("Configuration error:"), err)
		switch {
		case cfg.IsLocal():
			fmt.Fprintln(out, "Set the variables in your shell or a .env file loaded before running.")
		case cfg.IsCodespaces():
			fmt.Fprintln(out, "Add the variables under Settings > Secrets and variables > Codespaces.")
		default:
			fmt.Fprintln(out, "Set the variables in your deployment platform.")
		}
		return err
	}
	fmt.Fprintln(out, color.New(color.FgGreen).Sprint("All required environment variables are present."))
	return nil
}

func preview(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[:n] + "..."
}
