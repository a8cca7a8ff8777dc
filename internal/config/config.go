package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendAzure  = "azure"
	BackendGemini = "gemini"
)

type Config struct {
	Environment string
	Debug       bool
	LogLevel    string

	AgentBackend          string
	ProjectEndpoint       string
	ModelDeployment       string
	SubscriptionKey       string
	BingConnectionName    string
	AzureClientID         string
	AzureClientSecret     string
	AzureTenantID         string
	AzureAPIVersion       string
	GeminiAPIKey          string
	GeminiModel           string
	AgentInstructionsFile string

	MaxWorkers      int
	RowTimeout      time.Duration
	RunPollInterval time.Duration

	DatabaseURL string
	StorageURI  string
	ServerAddr  string
	CORSOrigin  string
	JWKSURL     string
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "local"),
		Debug:       getEnvBool("DEBUG", false),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		AgentBackend:          strings.ToLower(getEnv("AGENT_BACKEND", BackendAzure)),
		ProjectEndpoint:       getEnv("PROJECT_ENDPOINT", ""),
		ModelDeployment:       getEnv("MODEL_DEPLOYMENT", ""),
		SubscriptionKey:       getEnv("SUBSCRIPTION_KEY", ""),
		BingConnectionName:    getEnv("BING_CONNECTION_NAME", ""),
		AzureClientID:         getEnv("AZURE_CLIENT_ID", ""),
		AzureClientSecret:     getEnv("AZURE_CLIENT_SECRET", ""),
		AzureTenantID:         getEnv("AZURE_TENANT_ID", ""),
		AzureAPIVersion:       getEnv("AZURE_API_VERSION", "v1"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AgentInstructionsFile: getEnv("AGENT_INSTRUCTIONS_FILE", "agent_instruction.md"),

		MaxWorkers:      getEnvInt("MAX_WORKERS", 4),
		RowTimeout:      getEnvDuration("ROW_TIMEOUT", 5*time.Minute),
		RunPollInterval: getEnvDuration("RUN_POLL_INTERVAL", time.Second),

		DatabaseURL: getEnv("DATABASE_URL", "file:certmapper.db?cache=shared&_fk=1"),
		StorageURI:  getEnv("STORAGE_URI", "./data"),
		ServerAddr:  getEnv("SERVER_ADDR", ":8080"),
		CORSOrigin:  getEnv("CORS_ORIGIN", "http://localhost:5173"),
		JWKSURL:     getEnv("JWKS_URL", ""),
	}
}

func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

func (c *Config) IsCodespaces() bool {
	return getEnvBool("CODESPACES", false)
}

func (c *Config) IsProduction() bool {
	return !c.IsLocal() && !c.IsCodespaces()
}

// RequiredVars lists the variables the selected agent backend cannot run without.
func (c *Config) RequiredVars() []string {
	if c.AgentBackend == BackendGemini {
		return []string{"GEMINI_API_KEY"}
	}
	return []string{"PROJECT_ENDPOINT", "MODEL_DEPLOYMENT", "SUBSCRIPTION_KEY", "BING_CONNECTION_NAME"}
}

func (c *Config) Missing() []string {
	values := map[string]string{
		"PROJECT_ENDPOINT":     c.ProjectEndpoint,
		"MODEL_DEPLOYMENT":     c.ModelDeployment,
		"SUBSCRIPTION_KEY":     c.SubscriptionKey,
		"BING_CONNECTION_NAME": c.BingConnectionName,
		"GEMINI_API_KEY":       c.GeminiAPIKey,
	}
	var missing []string
	for _, name := range c.RequiredVars() {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// MissingServicePrincipal reports whether the Azure client-secret credentials are incomplete.
// Without them the Azure backend falls back to the subscription key.
func (c *Config) MissingServicePrincipal() bool {
	return c.AzureClientID == "" || c.AzureClientSecret == "" || c.AzureTenantID == ""
}

func (c *Config) Validate() error {
	switch c.AgentBackend {
	case BackendAzure, BackendGemini:
	default:
		return fmt.Errorf("unknown AGENT_BACKEND %q (want %s or %s)", c.AgentBackend, BackendAzure, BackendGemini)
	}
	if c.MaxWorkers < 1 {
		return errors.New("MAX_WORKERS must be at least 1")
	}
	if missing := c.Missing(); len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s (environment: %s)", strings.Join(missing, ", "), c.Environment)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

var config *Config

func GetConfig() *Config {
	if config == nil {
		config = Load()
	}
	return config
}
