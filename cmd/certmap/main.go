package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blagoySimandov/certmapper/internal/cli"
	"github.com/blagoySimandov/certmapper/internal/logger"
)

func main() {
	logger.SetOutput(os.Stderr)

	rootCmd := &cobra.Command{
		Use:   "certmap",
		Short: "certmap - map product certificates with a hosted agent",
		Long: `certmap sends selected spreadsheet rows to a conversational agent, one conversation
per row, and writes the mapped certificate name and a remark back into the workbook.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.HeadersCmd())
	rootCmd.AddCommand(cli.ConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
