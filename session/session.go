// Package session ties one identity, one genesis source and one ledger
// connection together for a front end.
//
// A Session owns its identity. Creating a new identity destroys the old
// one, and Close destroys the current one and drops the connection.
package session

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"indyforge.dev/forge/archive"
	"indyforge.dev/forge/did"
	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/genesis"
	"indyforge.dev/forge/ledger"
	"indyforge.dev/forge/metrics"
	"indyforge.dev/forge/pool"
	"indyforge.dev/forge/submit"
	"indyforge.dev/forge/txn"
)

type Deps struct {
	// Pool builds pool handles from genesis transactions. Required.
	Pool pool.Builder
	// Loader defaults to a genesis.Loader with default timeouts.
	Loader *genesis.Loader

	ConnectTimeout time.Duration
	CheckInterval  time.Duration

	Archive archive.Store
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Session struct {
	id       string
	loader   *genesis.Loader
	conn     *ledger.Connection
	requests *txn.Builder
	proto    *submit.Protocol
	archive  archive.Store
	log      *slog.Logger

	mu       sync.Mutex
	identity *did.Identity
}

func New(d Deps) *Session {
	id := uuid.NewString()
	log := d.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With("session", id)
	if d.Loader == nil {
		d.Loader = genesis.NewLoader(genesis.Options{Logger: log, Metrics: d.Metrics})
	}
	conn := ledger.New(ledger.Options{
		Loader:         d.Loader,
		Builder:        d.Pool,
		ConnectTimeout: d.ConnectTimeout,
		CheckInterval:  d.CheckInterval,
		Logger:         log,
		Metrics:        d.Metrics,
		Now:            d.Now,
	})
	return &Session{
		id:       id,
		loader:   d.Loader,
		conn:     conn,
		requests: txn.NewBuilder(),
		proto:    &submit.Protocol{Sender: conn, Archive: d.Archive, Logger: log, Metrics: d.Metrics},
		archive:  d.Archive,
		log:      log,
	}
}

func (s *Session) ID() string { return s.id }

// CreateIdentity derives an identity from seed, or from fresh randomness
// when seed is empty, and makes it the session identity.
func (s *Session) CreateIdentity(seed string, version did.Version) (*did.Identity, error) {
	var b []byte
	if seed != "" {
		b = []byte(seed)
	}
	id, err := did.Create(b, version)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	old := s.identity
	s.identity = id
	s.mu.Unlock()

	if old != nil {
		old.Destroy()
	}
	s.log.Info("identity created", "identity", id, "version", int(version), "seeded", seed != "")
	return id, nil
}

// Identity returns the current identity, or nil.
func (s *Session) Identity() *did.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetGenesis resolves source and makes it the connection's genesis source.
func (s *Session) SetGenesis(source string) (genesis.Source, error) {
	src, err := genesis.Resolve(source)
	if err != nil {
		return genesis.Source{}, err
	}
	s.conn.SetSource(src)
	return src, nil
}

// GenesisContent returns the raw genesis text for display.
func (s *Session) GenesisContent(ctx context.Context) (string, error) {
	src := s.conn.Source()
	if src.IsZero() {
		return "", forgeerr.New(forgeerr.KindState, forgeerr.NoGenesisSource, "no genesis source selected")
	}
	return s.loader.Content(ctx, src)
}

func (s *Session) Source() genesis.Source { return s.conn.Source() }

func (s *Session) Connect(ctx context.Context) error { return s.conn.Connect(ctx) }

func (s *Session) CheckConnection(ctx context.Context) (bool, error) {
	return s.conn.CheckConnection(ctx)
}

func (s *Session) Retry() error { return s.conn.Retry() }

// Status runs the periodic health check when it is due and then reports
// the connection. A failed check is visible in the returned Status.
func (s *Session) Status(ctx context.Context) ledger.Status {
	if err := s.conn.MaybeCheck(ctx); err != nil {
		s.log.Debug("health check on status read failed", "error", err)
	}
	return s.conn.Status()
}

// Nym describes a NYM request. The submitter is the session identity.
type Nym struct {
	DID    string
	Verkey string
	Alias  string
	Role   txn.Role
}

// PublishNym builds a NYM for n and applies opts to it.
func (s *Session) PublishNym(ctx context.Context, n Nym, opts submit.Options) (submit.Outcome, error) {
	if err := s.beforeLedger(ctx, opts.Send); err != nil {
		return submit.Outcome{}, err
	}
	id, err := s.submitter()
	if err != nil {
		return submit.Outcome{}, err
	}
	req, err := s.requests.BuildNym(id.DID(), strings.TrimSpace(n.DID), strings.TrimSpace(n.Verkey), n.Alias, n.Role)
	if err != nil {
		return submit.Outcome{}, err
	}
	return s.proto.Apply(ctx, req, id, opts)
}

// Schema describes a SCHEMA request. The submitter is the session identity.
type Schema struct {
	Name       string
	Version    string
	Attributes []string
}

// PublishSchema builds a SCHEMA for sc and applies opts to it.
func (s *Session) PublishSchema(ctx context.Context, sc Schema, opts submit.Options) (submit.Outcome, txn.Schema, error) {
	if err := s.beforeLedger(ctx, opts.Send); err != nil {
		return submit.Outcome{}, txn.Schema{}, err
	}
	id, err := s.submitter()
	if err != nil {
		return submit.Outcome{}, txn.Schema{}, err
	}
	req, schema, err := s.requests.BuildSchema(id.DID(), sc.Name, sc.Version, sc.Attributes)
	if err != nil {
		return submit.Outcome{}, txn.Schema{}, err
	}
	out, err := s.proto.Apply(ctx, req, id, opts)
	if err != nil {
		return submit.Outcome{}, txn.Schema{}, err
	}
	return out, schema, nil
}

// SignTransaction signs a transaction prepared elsewhere with the session
// identity and returns it without sending it.
func (s *Session) SignTransaction(raw []byte) (string, error) {
	id, err := s.submitter()
	if err != nil {
		return "", err
	}
	return s.proto.SignJSON(raw, id)
}

// SubmitTransaction sends a transaction prepared elsewhere. Unsigned
// transactions are signed with the session identity first.
func (s *Session) SubmitTransaction(ctx context.Context, raw []byte) (submit.Outcome, error) {
	if err := s.beforeLedger(ctx, true); err != nil {
		return submit.Outcome{}, err
	}
	var signer submit.Signer
	if id := s.Identity(); id != nil {
		signer = id
	}
	return s.proto.Forward(ctx, raw, signer)
}

// Archived returns the transaction body archived under ref, a CID string.
func (s *Session) Archived(ref string) ([]byte, error) {
	id, err := s.archiveID(ref)
	if err != nil {
		return nil, err
	}
	body, err := s.archive.Get(id)
	switch {
	case archive.IsNotFound(err):
		return nil, forgeerr.New(forgeerr.KindInput, forgeerr.NotArchived, "no archived transaction "+ref)
	case err != nil:
		return nil, forgeerr.Wrap(forgeerr.KindConfig, forgeerr.FileRead, "archived transaction unreadable", err)
	}
	return body, nil
}

// IsArchived reports whether ref names an archived transaction.
func (s *Session) IsArchived(ref string) (bool, error) {
	id, err := s.archiveID(ref)
	if err != nil {
		return false, err
	}
	return s.archive.Has(id), nil
}

func (s *Session) archiveID(ref string) (cid.Cid, error) {
	if s.archive == nil {
		return cid.Undef, forgeerr.New(forgeerr.KindConfig, forgeerr.NotArchived, "no transaction archive configured")
	}
	id, err := archive.Parse(strings.TrimSpace(ref))
	if err != nil {
		return cid.Undef, forgeerr.Wrap(forgeerr.KindInput, forgeerr.InvalidCID, "invalid archive id "+ref, err)
	}
	return id, nil
}

// Close destroys the identity and drops the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	id := s.identity
	s.identity = nil
	s.mu.Unlock()
	if id != nil {
		id.Destroy()
	}
	return s.conn.Close()
}

func (s *Session) submitter() (*did.Identity, error) {
	id := s.Identity()
	if id == nil || id.Destroyed() {
		return nil, forgeerr.New(forgeerr.KindState, forgeerr.NoIdentity, "create an identity first")
	}
	return id, nil
}

func (s *Session) beforeLedger(ctx context.Context, sending bool) error {
	if !sending {
		return nil
	}
	return s.conn.MaybeCheck(ctx)
}
