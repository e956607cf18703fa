// Package cmd wires the cormorant CLI: serve, migrate and version.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cormorant",
	Short: "Streaming answer engine with live web search",
	Long: `Cormorant serves a conversational answer API over Server-Sent Events.
The agent answers with live web search when the question calls for it and
keeps conversation history per session.

Run "cormorant serve" to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
