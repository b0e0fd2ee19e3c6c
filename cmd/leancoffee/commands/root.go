package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "leancoffee",
	Short: "Lean Coffee - real-time collaborative board server",
	Long: `Lean Coffee runs a collaborative board server: participants add
discussion topics, vote, move through facilitation stages and share a
countdown timer, with every connected client kept in sync over a
room-scoped WebSocket broadcast.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}
