// Package commands implements the zaphbot CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zaphbot",
		Short: "Zaphbot - conversational WhatsApp assistant with reminders",
		Long: `Zaphbot is a WhatsApp assistant: it replies in chats and groups,
remembers who it talks to, answers as voice notes or images on request,
and schedules reminders for later delivery.

Examples:
  zaphbot serve
  zaphbot schedule list
  zaphbot schedule remove <id>`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newScheduleCmd(),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
