package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"indyforge.dev/forge/session"
	"indyforge.dev/forge/submit"
	"indyforge.dev/forge/txn"
)

// optionFlags maps --sign and --send onto submit.Options.
type optionFlags struct {
	sign bool
	send bool
}

func (f *optionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.sign, "sign", true, "sign the request")
	cmd.Flags().BoolVar(&f.send, "send", true, "send the request to the ledger")
}

func (f optionFlags) options() submit.Options {
	return submit.Options{Sign: f.sign, Send: f.send}
}

// connectIfSending connects only when the request will reach the ledger.
func connectIfSending(cmd *cobra.Command, e *env, opts submit.Options) error {
	if !opts.Send {
		return nil
	}
	return e.app.Session.Connect(cmd.Context())
}

func printOutcome(w io.Writer, out submit.Outcome) {
	switch out.Kind {
	case submit.Submitted:
		fmt.Fprintln(w, "Transaction submitted. Ledger reply:")
	case submit.SignedOnly:
		fmt.Fprintln(w, "Signed transaction:")
	default:
		fmt.Fprintln(w, "Prepared transaction:")
	}
	fmt.Fprintln(w, out.Body)
	if out.Archived.Defined() {
		fmt.Fprintf(w, "Archived as %s\n", out.Archived)
	}
}

func nymCmd(e *env) *cobra.Command {
	var (
		id   identityFlags
		opts optionFlags
		n    session.Nym
		role string
	)
	cmd := &cobra.Command{
		Use:   "nym",
		Short: "Register a DID on the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := txn.ParseRole(role)
			if err != nil {
				return err
			}
			n.Role = r
			if _, err := id.load(e); err != nil {
				return err
			}
			if err := connectIfSending(cmd, e, opts.options()); err != nil {
				return err
			}
			out, err := e.app.Session.PublishNym(cmd.Context(), n, opts.options())
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}
	id.register(cmd)
	opts.register(cmd)
	cmd.Flags().StringVar(&n.DID, "did", "", "DID to register")
	cmd.Flags().StringVar(&n.Verkey, "verkey", "", "verkey of the DID")
	cmd.Flags().StringVar(&n.Alias, "alias", "", "optional alias")
	cmd.Flags().StringVar(&role, "role", "author", "author, endorser, network-monitor, steward or trustee")
	_ = cmd.MarkFlagRequired("did")
	_ = cmd.MarkFlagRequired("verkey")
	return cmd
}

func schemaCmd(e *env) *cobra.Command {
	var (
		id   identityFlags
		opts optionFlags
		sc   session.Schema
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Publish a credential schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := id.load(e); err != nil {
				return err
			}
			if err := connectIfSending(cmd, e, opts.options()); err != nil {
				return err
			}
			out, schema, err := e.app.Session.PublishSchema(cmd.Context(), sc, opts.options())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema ID: %s\n", schema.ID)
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}
	id.register(cmd)
	opts.register(cmd)
	cmd.Flags().StringVar(&sc.Name, "name", "", "schema name")
	cmd.Flags().StringVar(&sc.Version, "version", "", "schema version, major.minor.patch")
	cmd.Flags().StringSliceVar(&sc.Attributes, "attr", nil, "attribute name (repeatable or comma separated)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

// readTxn reads a transaction from path, or stdin when path is "-".
func readTxn(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// sign <file|->: endorse a transaction prepared by someone else.
func signCmd(e *env) *cobra.Command {
	var id identityFlags
	cmd := &cobra.Command{
		Use:   "sign <file|->",
		Short: "Sign a transaction prepared elsewhere",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readTxn(cmd, args[0])
			if err != nil {
				return err
			}
			if _, err := id.load(e); err != nil {
				return err
			}
			signed, err := e.app.Session.SignTransaction(raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	id.register(cmd)
	return cmd
}

// submit <file|->: send a transaction; unsigned ones are signed first.
func submitCmd(e *env) *cobra.Command {
	var id identityFlags
	cmd := &cobra.Command{
		Use:   "submit <file|->",
		Short: "Submit a transaction, signing it first when unsigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readTxn(cmd, args[0])
			if err != nil {
				return err
			}
			if id.seed != "" || os.Getenv("FORGE_SEED") != "" {
				if _, err := id.load(e); err != nil {
					return err
				}
			}
			if err := e.app.Session.Connect(cmd.Context()); err != nil {
				return err
			}
			out, err := e.app.Session.SubmitTransaction(cmd.Context(), raw)
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}
	id.register(cmd)
	return cmd
}
