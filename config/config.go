// Package config loads indyforge settings from YAML and the environment.
//
// Example:
//
//	did_version: 2
//	genesis: https://raw.githubusercontent.com/sovrin-foundation/sovrin/master/sovrin/pool_transactions_sandbox_genesis
//	genesis_fetch:
//	  client_timeout: 10s
//	  fetch_timeout: 15s
//	  body_timeout: 5s
//	ledger:
//	  connect_timeout: 20s
//	  check_interval: 30s
//	pool:
//	  backend: grpc
//	  target: localhost:9700
//	archive:
//	  dir: /var/lib/indyforge/archive
//	http:
//	  addr: 127.0.0.1:8700
//	log:
//	  level: info
//	  format: text
//
// Environment variables FORGE_GENESIS, FORGE_POOL_TARGET, FORGE_LOG_LEVEL
// and FORGE_HTTP_ADDR override the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"indyforge.dev/forge/did"
	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/genesis"
	"indyforge.dev/forge/ledger"
)

// Duration is a time.Duration written as a Go duration string ("15s").
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	DIDVersion   int          `yaml:"did_version"`
	Genesis      string       `yaml:"genesis,omitempty"`
	GenesisFetch GenesisFetch `yaml:"genesis_fetch"`
	Ledger       Ledger       `yaml:"ledger"`
	Pool         Pool         `yaml:"pool"`
	Archive      Archive      `yaml:"archive"`
	HTTP         HTTP         `yaml:"http"`
	Log          Log          `yaml:"log"`
}

type GenesisFetch struct {
	ClientTimeout Duration `yaml:"client_timeout"`
	FetchTimeout  Duration `yaml:"fetch_timeout"`
	BodyTimeout   Duration `yaml:"body_timeout"`
}

type Ledger struct {
	ConnectTimeout Duration `yaml:"connect_timeout"`
	CheckInterval  Duration `yaml:"check_interval"`
}

// Pool selects the backend that talks to validator nodes.
type Pool struct {
	Backend     string   `yaml:"backend"`
	Target      string   `yaml:"target"`
	DialTimeout Duration `yaml:"dial_timeout"`
	RPCTimeout  Duration `yaml:"rpc_timeout"`
	MaxMsgBytes int      `yaml:"max_msg_bytes"`
}

type Archive struct {
	// Dir enables the filesystem archive. Empty keeps transactions in memory.
	Dir string `yaml:"dir,omitempty"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const BackendGRPC = "grpc"

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DIDVersion: int(did.DefaultVersion),
		GenesisFetch: GenesisFetch{
			ClientTimeout: Duration(genesis.DefaultClientTimeout),
			FetchTimeout:  Duration(genesis.DefaultFetchTimeout),
			BodyTimeout:   Duration(genesis.DefaultBodyTimeout),
		},
		Ledger: Ledger{
			ConnectTimeout: Duration(ledger.DefaultConnectTimeout),
			CheckInterval:  Duration(ledger.DefaultCheckInterval),
		},
		Pool: Pool{
			Backend:     BackendGRPC,
			Target:      "localhost:9700",
			DialTimeout: Duration(10 * time.Second),
			RPCTimeout:  Duration(30 * time.Second),
			MaxMsgBytes: 32 << 20,
		},
		HTTP: HTTP{Addr: "127.0.0.1:8700"},
		Log:  Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, forgeerr.Wrap(forgeerr.KindConfig, forgeerr.FileRead, "failed to read config file", err)
		}
		if err := Decode(b, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

// Decode parses YAML into cfg, keeping values the document does not set.
// Unknown keys are rejected.
func Decode(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return forgeerr.Wrap(forgeerr.KindConfig, forgeerr.ParseError, "failed to parse config file", err)
	}
	return nil
}

// ApplyEnv overrides cfg from getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("FORGE_GENESIS")); v != "" {
		c.Genesis = v
	}
	if v := strings.TrimSpace(getenv("FORGE_POOL_TARGET")); v != "" {
		c.Pool.Target = v
	}
	if v := strings.TrimSpace(getenv("FORGE_LOG_LEVEL")); v != "" {
		c.Log.Level = v
	}
	if v := strings.TrimSpace(getenv("FORGE_HTTP_ADDR")); v != "" {
		c.HTTP.Addr = v
	}
}

func (c Config) Validate() error {
	if _, err := did.ParseVersion(c.DIDVersion); err != nil {
		return invalid("did_version: %v", err)
	}
	for _, f := range []struct {
		name string
		d    Duration
	}{
		{"genesis_fetch.client_timeout", c.GenesisFetch.ClientTimeout},
		{"genesis_fetch.fetch_timeout", c.GenesisFetch.FetchTimeout},
		{"genesis_fetch.body_timeout", c.GenesisFetch.BodyTimeout},
		{"ledger.connect_timeout", c.Ledger.ConnectTimeout},
		{"ledger.check_interval", c.Ledger.CheckInterval},
		{"pool.dial_timeout", c.Pool.DialTimeout},
		{"pool.rpc_timeout", c.Pool.RPCTimeout},
	} {
		if f.d <= 0 {
			return invalid("%s must be positive", f.name)
		}
	}
	if c.Pool.Backend != BackendGRPC {
		return invalid("pool.backend: unsupported backend %q", c.Pool.Backend)
	}
	if strings.TrimSpace(c.Pool.Target) == "" {
		return invalid("pool.target is required")
	}
	if c.Pool.MaxMsgBytes < 0 {
		return invalid("pool.max_msg_bytes must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level: unknown level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return invalid("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// Version returns the configured DID version. Call after Validate.
func (c Config) Version() did.Version {
	v, err := did.ParseVersion(c.DIDVersion)
	if err != nil {
		return did.DefaultVersion
	}
	return v
}

func invalid(format string, args ...any) error {
	return forgeerr.New(forgeerr.KindConfig, forgeerr.InvalidConfig, "config: "+fmt.Sprintf(format, args...))
}
