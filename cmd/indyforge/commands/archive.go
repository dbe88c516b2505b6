package commands

import (
	"github.com/spf13/cobra"
)

func archiveCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Read archived transactions",
	}
	cmd.AddCommand(archiveShowCmd(e))
	return cmd
}

// archive show <cid>: print a transaction body from the archive directory.
func archiveShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <cid>",
		Short: "Print an archived transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := e.app.Session.Archived(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(body, '\n'))
			return err
		},
	}
}
