package main

import (
	"os"

	"github.com/spf13/cobra"
)

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "vono",
	Short: "Local voice-note daemon: recordings in, structured items out",
	Long: `vono turns voice recordings into structured, searchable notes.

Audio is transcribed through an OpenAI-compatible provider, classified
by intent (todo list, research question, draft, plain note), and stored
locally. Recordings that fail to process are kept in an encrypted queue
for later retry. Nothing except the provider calls leaves this machine.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(failedCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(configCmd)
}
