package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"indyforge.dev/forge/ledger"
)

func ledgerCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger connection commands",
	}
	cmd.AddCommand(ledgerCheckCmd(e))
	return cmd
}

// ledger check: connect with the configured genesis and run one health check.
func ledgerCheckCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect to the ledger and confirm it answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.app.Session
			if err := s.Connect(cmd.Context()); err != nil {
				return err
			}
			ok, err := s.CheckConnection(cmd.Context())
			printStatus(cmd.OutOrStdout(), s.Status(cmd.Context()))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("ledger did not answer the health check")
			}
			return nil
		},
	}
}

func printStatus(w io.Writer, st ledger.Status) {
	fmt.Fprintf(w, "State:   %s\n", st.State)
	if !st.Source.IsZero() {
		fmt.Fprintf(w, "Genesis: %s (%s)\n", st.Source.Location, st.Source.Kind)
	}
	if !st.ConnectedAt.IsZero() {
		fmt.Fprintf(w, "Since:   %s\n", st.ConnectedAt.Format("2006-01-02 15:04:05"))
	}
	if st.Err != nil {
		fmt.Fprintf(w, "Error:   %v\n", st.Err)
	}
}
