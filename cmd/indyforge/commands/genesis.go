package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"indyforge.dev/forge/genesis"
)

func genesisCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Inspect genesis transactions",
	}
	cmd.AddCommand(genesisShowCmd(e), genesisNodesCmd(e))
	return cmd
}

// sourceArg returns the source given on the command line, falling back to
// the configured one.
func sourceArg(e *env, args []string) (genesis.Source, error) {
	if len(args) == 1 {
		return genesis.Resolve(args[0])
	}
	src := e.app.Session.Source()
	if src.IsZero() {
		return genesis.Source{}, fmt.Errorf("no genesis source: pass one or use --genesis")
	}
	return src, nil
}

func genesisShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show [source]",
		Short: "Print the raw genesis file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := sourceArg(e, args)
			if err != nil {
				return err
			}
			content, err := e.app.Loader.Content(cmd.Context(), src)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), content)
			if !strings.HasSuffix(content, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
}

func genesisNodesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes [source]",
		Short: "List the nodes a genesis file describes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := sourceArg(e, args)
			if err != nil {
				return err
			}
			txns, err := e.app.Loader.LoadTransactions(cmd.Context(), src)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tALIAS\tCLIENT\tNODE\tVALIDATOR")
			for _, t := range txns {
				n := t.Node
				fmt.Fprintf(tw, "%d\t%s\t%s:%d\t%s:%d\t%t\n",
					t.SeqNo, n.Alias, n.ClientIP, n.ClientPort, n.NodeIP, n.NodePort, n.IsValidator())
			}
			return tw.Flush()
		},
	}
}
