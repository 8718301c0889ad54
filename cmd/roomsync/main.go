// Package main is the entry point for the roomsync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "roomsync:", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root roomsync command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "roomsync",
		Short:         "Real-time sync core for the classroom overlay",
		Long:          "roomsync keeps one participant's overlay in sync with the session relay:\npresence, reactions, pause announcements and problem reports.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("roomsync {{.Version}}\n")

	cmd.AddCommand(
		newRunCmd(),
		newFingerprintCmd(),
		newVersionCmd(),
	)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the roomsync version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "roomsync %s\n", version)
			return nil
		},
	}
}
