package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"indyforge.dev/forge/did"
)

func didCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "did",
		Short: "Work with DIDs",
	}
	cmd.AddCommand(didCreateCmd(e))
	return cmd
}

// did create [--seed S] [--did-version N]: derive and print a DID.
func didCreateCmd(e *env) *cobra.Command {
	var (
		seed    string
		version int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a DID from a seed, or a random one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := e.cfg.Version()
			if version != 0 {
				var err error
				if v, err = did.ParseVersion(version); err != nil {
					return err
				}
			}
			id, err := e.app.Session.CreateIdentity(seed, v)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "DID:     %s\n", id.DID())
			fmt.Fprintf(out, "Verkey:  %s\n", id.Verkey())
			fmt.Fprintf(out, "Version: %d\n", int(id.Version()))
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "32-character seed (random when empty)")
	cmd.Flags().IntVar(&version, "did-version", 0, "DID derivation version, 1 or 2 (default from config)")
	return cmd
}
