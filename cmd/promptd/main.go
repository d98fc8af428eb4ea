package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "promptd",
	Short: "Local prompt enhancement service",
	Long: `promptd rewrites rough prompts into clear, effective ones.

It runs a local HTTP server with enhancement, chat, and profile routes,
plus an MCP server over stdio, and personalizes enhancements per user
based on interaction history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the promptd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("promptd version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(
		startCmd,
		stopCmd,
		statusCmd,
		versionCmd,
		enhanceCmd,
		profileCmd,
		interactionsCmd,
		configCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
