// Package ledger owns the validator-pool connection and its state machine:
//
//	Disconnected -> Connecting -> Connected | Failed
//	Connected    -> Disconnected   (failed health check, source change, Close)
//	Connecting   -> Disconnected   (source change, Close)
//	Failed       -> Disconnected   (Retry, source change, Close)
//
// Transitions are serialized by the Connection. At most one ledger I/O
// (connect, health check or submission) is in flight at a time.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/genesis"
	"indyforge.dev/forge/metrics"
	"indyforge.dev/forge/pool"
	"indyforge.dev/forge/txn"
)

const (
	DefaultConnectTimeout = 20 * time.Second
	DefaultCheckInterval  = 30 * time.Second
)

var tracer = otel.Tracer("indyforge.dev/forge/ledger")

// TransactionLoader loads bootstrap transactions; *genesis.Loader
// implements it.
type TransactionLoader interface {
	LoadTransactions(ctx context.Context, src genesis.Source) (genesis.Transactions, error)
}

type Options struct {
	Loader  TransactionLoader
	Builder pool.Builder

	ConnectTimeout time.Duration
	CheckInterval  time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Now overrides the wall clock.
	Now func() time.Time
}

// Connection is the single owner of a pool handle.
type Connection struct {
	loader         TransactionLoader
	builder        pool.Builder
	requests       *txn.Builder
	connectTimeout time.Duration
	checkInterval  time.Duration
	log            *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time

	io *semaphore.Weighted

	mu          sync.Mutex
	source      genesis.Source
	state       State
	startedAt   time.Time
	connectedAt time.Time
	lastCheck   time.Time
	err         error
	pool        pool.Pool
	// gen changes whenever the source changes or the connection is closed
	// so that a connect attempt started before cannot install its result.
	gen uint64
}

func New(opts Options) *Connection {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Loader == nil {
		opts.Loader = genesis.NewLoader(genesis.Options{Logger: opts.Logger, Metrics: opts.Metrics})
	}
	c := &Connection{
		loader:         opts.Loader,
		builder:        opts.Builder,
		requests:       txn.NewBuilder(),
		connectTimeout: opts.ConnectTimeout,
		checkInterval:  opts.CheckInterval,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		now:            opts.Now,
		io:             semaphore.NewWeighted(1),
	}
	c.metrics.SetConnectionState(int(Disconnected))
	return c
}

// SetSource selects the genesis source. A different source drops any
// existing connection or failure and returns to Disconnected.
func (c *Connection) SetSource(src genesis.Source) {
	c.mu.Lock()
	if src == c.source {
		c.mu.Unlock()
		return
	}
	old := c.pool
	c.source = src
	c.gen++
	c.pool = nil
	c.err = nil
	c.setState(Disconnected)
	c.mu.Unlock()

	c.log.Info("genesis source changed", "source", src.Location, "kind", src.Kind.String())
	c.closePool(old)
}

func (c *Connection) Source() genesis.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, Source: c.source, Err: c.err}
	switch c.state {
	case Connecting:
		st.StartedAt = c.startedAt
	case Connected:
		st.ConnectedAt = c.connectedAt
		st.LastCheck = c.lastCheck
	}
	return st
}

// Connect loads the genesis transactions, builds the pool and verifies it
// with one health check, all within the connect timeout.
//
// Connect is a no-op while Connected. It fails with AlreadyConnecting while
// another attempt is running and with RetryRequired after a failure until
// Retry is called.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Connected:
		c.mu.Unlock()
		return nil
	case Connecting:
		c.mu.Unlock()
		return forgeerr.New(forgeerr.KindState, forgeerr.AlreadyConnecting, "a connection attempt is already in progress")
	case Failed:
		c.mu.Unlock()
		return forgeerr.New(forgeerr.KindState, forgeerr.RetryRequired, "previous connection attempt failed; retry first")
	}
	if c.source.IsZero() {
		c.mu.Unlock()
		return forgeerr.New(forgeerr.KindState, forgeerr.NoGenesisSource, "no genesis source selected")
	}
	src, gen := c.source, c.gen
	c.startedAt = c.now()
	c.err = nil
	c.setState(Connecting)
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "ledger.Connect")
	defer span.End()
	span.SetAttributes(attribute.String("genesis.source", src.Location))

	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	c.log.Info("connecting to ledger", "source", src.Location)
	p, err := c.open(ctx, src)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !forgeerr.HasCode(err, forgeerr.Timeout) {
		err = forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Timeout,
			fmt.Sprintf("Connection timed out after %s", c.connectTimeout), err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.closePool(p)
		c.log.Info("discarding stale connect result", "source", src.Location)
		return forgeerr.New(forgeerr.KindState, forgeerr.NotConnected, "connection was reset while connecting")
	}
	if err != nil {
		c.err = err
		c.pool = nil
		c.setState(Failed)
	} else {
		c.pool = p
		c.connectedAt = c.now()
		c.lastCheck = c.connectedAt
		c.setState(Connected)
	}
	c.mu.Unlock()

	if err != nil {
		c.metrics.IncrementConnect(connectResult(err))
		c.log.Warn("ledger connect failed", "source", src.Location, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		return err
	}
	c.metrics.IncrementConnect("connected")
	c.log.Info("connected to ledger", "source", src.Location)
	return nil
}

func (c *Connection) open(ctx context.Context, src genesis.Source) (pool.Pool, error) {
	if c.builder == nil {
		return nil, forgeerr.New(forgeerr.KindConfig, forgeerr.PoolBuild, "no pool builder configured")
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.io.Release(1)

	txns, err := c.loader.LoadTransactions(ctx, src)
	if err != nil {
		return nil, err
	}
	p, err := c.builder.Build(ctx, txns)
	if err != nil {
		if forgeerr.KindOf(err) == "" {
			err = forgeerr.Wrap(forgeerr.KindConfig, forgeerr.PoolBuild, "Failed to create pool", err)
		}
		return nil, err
	}

	ok, err := c.check(ctx, p)
	if err != nil {
		c.closePool(p)
		return nil, err
	}
	if !ok {
		c.closePool(p)
		return nil, forgeerr.New(forgeerr.KindConfig, forgeerr.PoolBuild,
			"Connected to nodes but ledger is not responding correctly")
	}
	return p, nil
}

// CheckConnection sends a fixed read (GET_TXN for domain ledger seqNo 1) to
// the pool. It returns true when the pool replied, false when the pool
// refused without a transport error, and an error for transport failures.
// Anything but true drops the connection to Disconnected.
func (c *Connection) CheckConnection(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return false, forgeerr.New(forgeerr.KindState, forgeerr.NotConnected, "not connected to a ledger")
	}
	p, gen := c.pool, c.gen
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "ledger.CheckConnection")
	defer span.End()

	if err := c.acquire(ctx); err != nil {
		return false, err
	}
	ok, err := c.check(ctx, p)
	c.io.Release(1)

	var lost pool.Pool
	c.mu.Lock()
	if c.gen == gen && c.state == Connected && c.pool == p {
		c.lastCheck = c.now()
		if err != nil || !ok {
			lost = c.pool
			c.pool = nil
			c.err = forgeerr.Wrap(forgeerr.KindTransport, forgeerr.ConnectionLost, "Connection lost to ledger. Retry?", err)
			c.setState(Disconnected)
		}
	}
	c.mu.Unlock()

	if lost != nil {
		c.log.Warn("ledger connection lost", "error", err, "replied", ok)
		span.SetStatus(codes.Error, "connection lost")
		c.closePool(lost)
	}
	return ok, err
}

// MaybeCheck runs CheckConnection when Connected and the check interval has
// elapsed since the last check. It returns the loss error when the check
// drops the connection.
func (c *Connection) MaybeCheck(ctx context.Context) error {
	c.mu.Lock()
	due := c.state == Connected && c.now().Sub(c.lastCheck) >= c.checkInterval
	c.mu.Unlock()
	if !due {
		return nil
	}

	ok, err := c.CheckConnection(ctx)
	if ok && err == nil {
		return nil
	}
	st := c.Status()
	if st.State == Disconnected && st.Err != nil {
		return st.Err
	}
	return err
}

// Retry clears a failure (or a lost connection) so Connect may run again.
func (c *Connection) Retry() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Connecting:
		return forgeerr.New(forgeerr.KindState, forgeerr.AlreadyConnecting, "a connection attempt is in progress")
	case Connected:
		return nil
	}
	c.err = nil
	c.setState(Disconnected)
	return nil
}

// Submit sends body to the connected pool.
func (c *Connection) Submit(ctx context.Context, body []byte) (pool.Result, error) {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return pool.Result{}, forgeerr.New(forgeerr.KindState, forgeerr.NotConnected, "not connected to a ledger")
	}
	p := c.pool
	c.mu.Unlock()

	if err := c.acquire(ctx); err != nil {
		return pool.Result{}, err
	}
	defer c.io.Release(1)
	return p.Submit(ctx, body)
}

// Close drops the connection. An attempt still in flight is discarded when
// it completes.
func (c *Connection) Close() error {
	c.mu.Lock()
	p := c.pool
	c.pool = nil
	c.gen++
	c.err = nil
	c.setState(Disconnected)
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Close()
}

func (c *Connection) check(ctx context.Context, p pool.Pool) (bool, error) {
	body, err := c.requests.BuildGetTxn(txn.DomainLedger, 1).JSON()
	if err != nil {
		return false, err
	}
	res, err := p.Submit(ctx, body)
	switch {
	case err != nil:
		c.metrics.IncrementHealthCheck("error")
		return false, err
	case res.Failed():
		c.metrics.IncrementHealthCheck("negative")
		c.log.Debug("health check refused", "reason", res.Failure)
		return false, nil
	default:
		c.metrics.IncrementHealthCheck("ok")
		return true, nil
	}
}

func (c *Connection) acquire(ctx context.Context) error {
	if err := c.io.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Timeout, "timed out waiting for ledger", err)
		}
		return err
	}
	return nil
}

// setState must be called with c.mu held.
func (c *Connection) setState(s State) {
	c.state = s
	c.metrics.SetConnectionState(int(s))
}

func (c *Connection) closePool(p pool.Pool) {
	if p == nil {
		return
	}
	if err := p.Close(); err != nil {
		c.log.Warn("pool close failed", "error", err)
	}
}

func connectResult(err error) string {
	if forgeerr.CodeOf(err) == forgeerr.Timeout {
		return "timeout"
	}
	return "failed"
}
