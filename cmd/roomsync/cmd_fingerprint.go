package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"roomsync/internal/identity"
)

// newFingerprintCmd prints the session fingerprint the relay groups a room by,
// which helps when two participants end up in different rooms.
func newFingerprintCmd() *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "fingerprint <presentation title>",
		Short: "Print the session fingerprint for a presentation title",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, identity.Fingerprint(strings.Join(args, " ")))

			if label != "" {
				name, ok := identity.ParseSelfLabel(label)
				if !ok {
					return fmt.Errorf("no display name in label %q", label)
				}
				fmt.Fprintf(out, "%s (%s, %s)\n", name, identity.Initials(name), identity.Color(name))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "self tile label to parse a display name from, e.g. \"Alice Webcam Vous\"")
	return cmd
}
