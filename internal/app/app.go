// Package app wires configuration into a running session for the CLI.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"indyforge.dev/forge/archive"
	"indyforge.dev/forge/config"
	"indyforge.dev/forge/genesis"
	"indyforge.dev/forge/httpapi"
	"indyforge.dev/forge/logging"
	"indyforge.dev/forge/metrics"
	"indyforge.dev/forge/pool"
	"indyforge.dev/forge/pool/grpcpool"
	"indyforge.dev/forge/session"
)

// App bundles everything built from one Config.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Loader   *genesis.Loader
	Archive  archive.Store
	Session  *session.Session
}

// Options lets tests replace the pool backend.
type Options struct {
	LogOutput io.Writer
	Pool      pool.Builder
}

// New constructs the dependency graph from cfg. When cfg.Genesis is set it
// becomes the session's genesis source.
func New(cfg config.Config, opts Options) (*App, error) {
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	logger, err := logging.New(opts.LogOutput, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var store archive.Store = archive.NewMemory()
	if cfg.Archive.Dir != "" {
		d, err := archive.NewDir(cfg.Archive.Dir)
		if err != nil {
			return nil, err
		}
		store = d
	}

	builder := opts.Pool
	if builder == nil {
		builder = grpcpool.NewBuilder(cfg.Pool.Target, grpcpool.DialOptions{
			Timeout:     cfg.Pool.DialTimeout.D(),
			RPCTimeout:  cfg.Pool.RPCTimeout.D(),
			MaxMsgBytes: cfg.Pool.MaxMsgBytes,
		})
	}

	loader := genesis.NewLoader(genesis.Options{
		ClientTimeout: cfg.GenesisFetch.ClientTimeout.D(),
		FetchTimeout:  cfg.GenesisFetch.FetchTimeout.D(),
		BodyTimeout:   cfg.GenesisFetch.BodyTimeout.D(),
		Logger:        logger,
		Metrics:       m,
	})

	s := session.New(session.Deps{
		Pool:           builder,
		Loader:         loader,
		ConnectTimeout: cfg.Ledger.ConnectTimeout.D(),
		CheckInterval:  cfg.Ledger.CheckInterval.D(),
		Archive:        store,
		Logger:         logger,
		Metrics:        m,
	})
	if cfg.Genesis != "" {
		if _, err := s.SetGenesis(cfg.Genesis); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  m,
		Loader:   loader,
		Archive:  store,
		Session:  s,
	}, nil
}

func (a *App) Close() error { return a.Session.Close() }

// Handler returns the HTTP API for the app's session.
func (a *App) Handler() http.Handler {
	return httpapi.New(a.Session, a.Logger, a.Registry).Routes()
}

// Serve runs the HTTP API on lis until ctx is cancelled, then shuts down.
func (a *App) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("http api listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
