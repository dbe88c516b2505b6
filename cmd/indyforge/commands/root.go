// Package commands implements the indyforge command line.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"indyforge.dev/forge/config"
	"indyforge.dev/forge/did"
	"indyforge.dev/forge/internal/app"
	"indyforge.dev/forge/pool"
)

// env holds what the root command builds before a subcommand runs.
type env struct {
	configPath string
	logLevel   string
	genesis    string

	// pool replaces the configured backend; tests set it.
	pool pool.Builder

	cfg config.Config
	app *app.App
}

func Execute() error {
	return NewRoot().Execute()
}

func NewRoot() *cobra.Command {
	return newRoot(&env{})
}

func newRoot(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:          "indyforge",
		Short:        "Manage DIDs and publish transactions to an Indy ledger",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(e.configPath)
			if err != nil {
				return err
			}
			if e.logLevel != "" {
				cfg.Log.Level = e.logLevel
			}
			if e.genesis != "" {
				cfg.Genesis = e.genesis
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			e.cfg = cfg
			a, err := app.New(cfg, app.Options{LogOutput: cmd.ErrOrStderr(), Pool: e.pool})
			if err != nil {
				return err
			}
			e.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.app == nil {
				return nil
			}
			return e.app.Close()
		},
	}

	root.PersistentFlags().StringVar(&e.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	root.PersistentFlags().StringVar(&e.genesis, "genesis", "", "genesis file path or URL (overrides config)")

	root.AddCommand(
		didCmd(e),
		genesisCmd(e),
		ledgerCmd(e),
		nymCmd(e),
		schemaCmd(e),
		signCmd(e),
		submitCmd(e),
		archiveCmd(e),
		serveCmd(e),
	)
	return root
}

// identityFlags are shared by every command that signs.
type identityFlags struct {
	seed    string
	version int
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.seed, "seed", "", "32-character seed (default $FORGE_SEED)")
	cmd.Flags().IntVar(&f.version, "did-version", 0, "DID derivation version, 1 or 2 (default from config)")
}

// load creates the session identity from the flags.
func (f *identityFlags) load(e *env) (*did.Identity, error) {
	seed := f.seed
	if seed == "" {
		seed = os.Getenv("FORGE_SEED")
	}
	if seed == "" {
		return nil, fmt.Errorf("a seed is required to sign (--seed or FORGE_SEED)")
	}
	version := e.cfg.Version()
	if f.version != 0 {
		v, err := did.ParseVersion(f.version)
		if err != nil {
			return nil, err
		}
		version = v
	}
	return e.app.Session.CreateIdentity(strings.TrimRight(seed, "\r\n"), version)
}
