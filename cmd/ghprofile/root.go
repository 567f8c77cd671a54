package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for ghprofile.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ghprofile",
		Short: "Update a GitHub profile bio and README, optionally over Tor",
		Long: `ghprofile updates the bio and the profile README of a GitHub account.

Every request can be routed through a Tor SOCKS5 proxy (--tor) or a private
embedded Tor daemon (--embedded-tor). When Tor is used, ghprofile asks Tor
for a new identity at the end of the run.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewUpdateCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// The report already explains a failed run.
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
