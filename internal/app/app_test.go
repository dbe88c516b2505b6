package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indyforge.dev/forge/archive"
	"indyforge.dev/forge/config"
	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/genesis"
	"indyforge.dev/forge/pool/pooltest"
)

func genesisFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool_transactions_genesis")
	require.NoError(t, os.WriteFile(path, []byte(pooltest.Genesis), 0o600))
	return path
}

func TestNew_SelectsGenesisAndArchive(t *testing.T) {
	cfg := config.Default()
	cfg.Genesis = genesisFile(t)
	cfg.Archive.Dir = t.TempDir()

	a, err := New(cfg, Options{Pool: pooltest.New()})
	require.NoError(t, err)
	defer a.Close()

	st := a.Session.Status(context.Background())
	assert.Equal(t, genesis.LocalFile, st.Source.Kind)
	assert.IsType(t, &archive.Dir{}, a.Archive)
	require.NoError(t, a.Session.Connect(context.Background()))
}

func TestNew_DefaultsToMemoryArchive(t *testing.T) {
	a, err := New(config.Default(), Options{})
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &archive.Memory{}, a.Archive)
}

func TestNew_BadGenesis(t *testing.T) {
	cfg := config.Default()
	cfg.Genesis = filepath.Join(t.TempDir(), "missing")
	_, err := New(cfg, Options{Pool: pooltest.New()})
	assert.True(t, forgeerr.HasCode(err, forgeerr.InvalidSource))
}

func TestServe_StopsOnCancel(t *testing.T) {
	a, err := New(config.Default(), Options{Pool: pooltest.New()})
	require.NoError(t, err)
	defer a.Close()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, lis) }()

	resp, err := http.Get("http://" + lis.Addr().String() + "/v1/ledger/status")
	require.NoError(t, err)
	var st map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, "disconnected", st["state"])

	cancel()
	assert.NoError(t, <-done)
}
