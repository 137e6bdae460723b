// Package main provides the CLI entry point for the voyage travel
// assistant.
//
// Start the agent API:
//
//	voyage serve --config voyage.yaml
//
// Start the travel tool server:
//
//	voyage toolserver
//
// Chat interactively:
//
//	voyage chat
//
// Inspect or clean up stored conversations:
//
//	voyage sessions
//	voyage stats
//	voyage purge --older-than 720h
//
// Configuration can also come from environment variables:
//
//   - VOYAGE_CONFIG: path to the configuration file (default: voyage.yaml)
//   - OPENAI_API_KEY / ANTHROPIC_API_KEY: chat model credentials
//   - OPENWEATHER_API_KEY, OPENROUTE_API_KEY: weather and routing data
//   - AMADEUS_API_KEY, AMADEUS_API_SECRET: flight search credentials
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "voyage",
		Short: "Conversational travel assistant with weather, routing, and flight tools",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (or set VOYAGE_CONFIG)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newToolserverCmd(&configPath),
		newChatCmd(&configPath),
		newSessionsCmd(&configPath),
		newStatsCmd(&configPath),
		newPurgeCmd(&configPath),
	)
	return rootCmd
}
