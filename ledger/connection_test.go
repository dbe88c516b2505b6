package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/genesis"
	"indyforge.dev/forge/metrics"
	"indyforge.dev/forge/pool/pooltest"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func genesisFile(t *testing.T) genesis.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool_transactions_genesis")
	require.NoError(t, os.WriteFile(path, []byte(pooltest.Genesis), 0o600))
	src, err := genesis.Resolve(path)
	require.NoError(t, err)
	return src
}

type fixture struct {
	conn    *Connection
	ledger  *pooltest.Ledger
	clock   *clock
	metrics *metrics.Metrics
	source  genesis.Source
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		ledger:  pooltest.New(),
		clock:   &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	opts := Options{Builder: f.ledger, Now: f.clock.Now, Metrics: f.metrics}
	for _, m := range mutate {
		m(&opts)
	}
	f.conn = New(opts)
	f.source = genesisFile(t)
	f.conn.SetSource(f.source)
	t.Cleanup(func() { _ = f.conn.Close() })
	return f
}

func TestConnect_Succeeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Equal(t, Disconnected, f.conn.Status().State)
	require.NoError(t, f.conn.Connect(ctx))

	st := f.conn.Status()
	assert.Equal(t, Connected, st.State)
	assert.Equal(t, f.source, st.Source)
	assert.NoError(t, st.Err)
	assert.Equal(t, f.clock.Now(), st.ConnectedAt)
	assert.Equal(t, 1, f.ledger.Builds())
	assert.Len(t, f.ledger.Submissions(), 1, "connect verifies the pool with one read")

	require.NoError(t, f.conn.Connect(ctx), "connect while connected is a no-op")
	assert.Equal(t, 1, f.ledger.Builds())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConnectAttempts.WithLabelValues("connected")))
	assert.Equal(t, float64(Connected), testutil.ToFloat64(f.metrics.ConnectionState))
}

func TestConnect_WithoutSource(t *testing.T) {
	c := New(Options{Builder: pooltest.New()})
	err := c.Connect(context.Background())
	assert.True(t, forgeerr.HasCode(err, forgeerr.NoGenesisSource))
	assert.Equal(t, Disconnected, c.Status().State)
}

func TestConnect_FailureRequiresRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.SetBuildError(errors.New("validators unreachable"))

	err := f.conn.Connect(ctx)
	require.Error(t, err)
	assert.True(t, forgeerr.HasCode(err, forgeerr.PoolBuild))
	st := f.conn.Status()
	assert.Equal(t, Failed, st.State)
	assert.Equal(t, err, st.Err)

	err = f.conn.Connect(ctx)
	assert.True(t, forgeerr.HasCode(err, forgeerr.RetryRequired))

	f.ledger.SetBuildError(nil)
	require.NoError(t, f.conn.Retry())
	st = f.conn.Status()
	assert.Equal(t, Disconnected, st.State)
	assert.NoError(t, st.Err)

	require.NoError(t, f.conn.Connect(ctx))
	assert.Equal(t, Connected, f.conn.Status().State)
}

func TestConnect_NegativeInitialCheckFails(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetReject("ledger not ready")

	err := f.conn.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger is not responding correctly")
	assert.Equal(t, Failed, f.conn.Status().State)
}

func TestConnect_TimesOutIntoFailed(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ConnectTimeout = 30 * time.Millisecond })
	f.ledger.SetBuildDelay(5 * time.Second)

	start := time.Now()
	err := f.conn.Connect(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, forgeerr.HasCode(err, forgeerr.Timeout))
	assert.Equal(t, Failed, f.conn.Status().State)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConnectAttempts.WithLabelValues("timeout")))
}

func TestConnect_SecondAttemptWhileConnecting(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetBuildDelay(200 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- f.conn.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return f.conn.Status().State == Connecting }, time.Second, time.Millisecond)
	assert.False(t, f.conn.Status().StartedAt.IsZero())

	err := f.conn.Connect(context.Background())
	assert.True(t, forgeerr.HasCode(err, forgeerr.AlreadyConnecting))
	assert.True(t, forgeerr.IsKind(err, forgeerr.KindState))
	assert.True(t, forgeerr.HasCode(f.conn.Retry(), forgeerr.AlreadyConnecting))

	require.NoError(t, <-done)
	assert.Equal(t, Connected, f.conn.Status().State)
}

func TestSetSource_DuringConnectDiscardsResult(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetBuildDelay(100 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- f.conn.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return f.conn.Status().State == Connecting }, time.Second, time.Millisecond)

	other := genesisFile(t)
	f.conn.SetSource(other)
	assert.Equal(t, Disconnected, f.conn.Status().State)

	err := <-done
	assert.True(t, forgeerr.HasCode(err, forgeerr.NotConnected))
	st := f.conn.Status()
	assert.Equal(t, Disconnected, st.State)
	assert.Equal(t, other, st.Source)
}

func TestClose_DuringConnectDiscardsResult(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetBuildDelay(100 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- f.conn.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return f.conn.Status().State == Connecting }, time.Second, time.Millisecond)

	require.NoError(t, f.conn.Close())
	assert.Equal(t, Disconnected, f.conn.Status().State)

	err := <-done
	assert.True(t, forgeerr.HasCode(err, forgeerr.NotConnected))
	st := f.conn.Status()
	assert.Equal(t, Disconnected, st.State)
	assert.NoError(t, st.Err)
	_, err = f.conn.Submit(context.Background(), []byte(`{}`))
	assert.True(t, forgeerr.HasCode(err, forgeerr.NotConnected))
	assert.Equal(t, float64(Disconnected), testutil.ToFloat64(f.metrics.ConnectionState))
}

func TestConnect_CallerCancelIsNotATimeout(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetBuildDelay(5 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.conn.Connect(ctx) }()
	require.Eventually(t, func() bool { return f.conn.Status().State == Connecting }, time.Second, time.Millisecond)
	cancel()

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, forgeerr.HasCode(err, forgeerr.Timeout))
	assert.NotContains(t, err.Error(), "timed out")
	assert.Equal(t, Failed, f.conn.Status().State)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConnectAttempts.WithLabelValues("failed")))
}

func TestSetSource_ResetsConnectionAndErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.conn.Connect(ctx))

	f.conn.SetSource(f.source)
	assert.Equal(t, Connected, f.conn.Status().State, "same source keeps the connection")

	f.conn.SetSource(genesisFile(t))
	assert.Equal(t, Disconnected, f.conn.Status().State)
	_, err := f.conn.Submit(ctx, []byte(`{}`))
	assert.True(t, forgeerr.HasCode(err, forgeerr.NotConnected))

	f.ledger.SetBuildError(errors.New("nope"))
	require.Error(t, f.conn.Connect(ctx))
	require.Equal(t, Failed, f.conn.Status().State)
	f.conn.SetSource(f.source)
	st := f.conn.Status()
	assert.Equal(t, Disconnected, st.State)
	assert.NoError(t, st.Err)
}

func TestCheckConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.conn.CheckConnection(ctx)
	assert.True(t, forgeerr.HasCode(err, forgeerr.NotConnected))

	require.NoError(t, f.conn.Connect(ctx))
	ok, err := f.conn.CheckConnection(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	f.ledger.SetReject("pool reported failure")
	ok, err = f.conn.CheckConnection(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	st := f.conn.Status()
	assert.Equal(t, Disconnected, st.State)
	assert.True(t, forgeerr.HasCode(st.Err, forgeerr.ConnectionLost))
	assert.True(t, forgeerr.Retryable(st.Err))
	assert.Contains(t, st.Err.Error(), "Connection lost to ledger")
}

func TestCheckConnection_TransportErrorDisconnects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.conn.Connect(ctx))

	f.ledger.SetUnreachable(true)
	ok, err := f.conn.CheckConnection(ctx)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, Disconnected, f.conn.Status().State)

	f.ledger.SetUnreachable(false)
	require.NoError(t, f.conn.Connect(ctx), "a lost connection reconnects without Retry")
}

func TestMaybeCheck_RunsOnlyAfterInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.conn.Connect(ctx))
	base := len(f.ledger.Submissions())

	require.NoError(t, f.conn.MaybeCheck(ctx))
	f.clock.Advance(29 * time.Second)
	require.NoError(t, f.conn.MaybeCheck(ctx))
	assert.Len(t, f.ledger.Submissions(), base, "no check before the interval")

	f.clock.Advance(time.Second)
	require.NoError(t, f.conn.MaybeCheck(ctx))
	assert.Len(t, f.ledger.Submissions(), base+1)
	assert.Equal(t, f.clock.Now(), f.conn.Status().LastCheck)

	require.NoError(t, f.conn.MaybeCheck(ctx))
	assert.Len(t, f.ledger.Submissions(), base+1)

	f.clock.Advance(DefaultCheckInterval)
	f.ledger.SetReject("gone")
	err := f.conn.MaybeCheck(ctx)
	assert.True(t, forgeerr.HasCode(err, forgeerr.ConnectionLost))
	assert.Equal(t, Disconnected, f.conn.Status().State)

	assert.NoError(t, f.conn.MaybeCheck(ctx), "no check while disconnected")
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.conn.Connect(ctx))

	res, err := f.conn.Submit(ctx, []byte(`{"operation":{"type":"3","ledgerId":1,"data":1},"reqId":7}`))
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Contains(t, res.Reply, `"op":"REPLY"`)

	require.NoError(t, f.conn.Close())
	assert.Equal(t, Disconnected, f.conn.Status().State)
}
