package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indyforge.dev/forge/archive"
	"indyforge.dev/forge/did"
	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/ledger"
	"indyforge.dev/forge/metrics"
	"indyforge.dev/forge/pool/pooltest"
	"indyforge.dev/forge/session"
)

const trusteeSeed = "000000000000000000000000Trustee1"

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

type fixture struct {
	srv     *httptest.Server
	ledger  *pooltest.Ledger
	clock   *clock
	genesis string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pool_transactions_genesis")
	require.NoError(t, os.WriteFile(path, []byte(pooltest.Genesis), 0o600))

	reg := prometheus.NewRegistry()
	l := pooltest.New()
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := session.New(session.Deps{Pool: l, Archive: archive.NewMemory(), Metrics: metrics.New(reg), Now: c.Now})
	srv := httptest.NewServer(New(s, nil, reg).Routes())
	t.Cleanup(func() {
		srv.Close()
		_ = s.Close()
	})
	return &fixture{srv: srv, ledger: l, clock: c, genesis: path}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

// ready creates the trustee identity, registers it with the fake ledger and
// connects.
func (f *fixture) ready(t *testing.T) identityResponse {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/v1/identity", identityRequest{Seed: trusteeSeed, Version: 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	id := decode[identityResponse](t, body)
	f.ledger.Register(id.DID, id.Verkey)

	resp, body = f.do(t, http.MethodPut, "/v1/genesis", genesisRequest{Source: f.genesis})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	resp, body = f.do(t, http.MethodPost, "/v1/ledger/connect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	return id
}

func TestIdentity(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/v1/identity", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(forgeerr.NoIdentity), decode[errorBody](t, body).Code)

	resp, body = f.do(t, http.MethodPost, "/v1/identity", identityRequest{Seed: trusteeSeed})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode[identityResponse](t, body)
	assert.Equal(t, "GAAguaTbEHjvxL6i64YmAo", id.DID)
	assert.Equal(t, "GJ1SzoWzavQYfNL9XkaJdrQejfztN4XqdsiV4ct3LXKL", id.Verkey)
	assert.Equal(t, 2, id.Version)

	resp, body = f.do(t, http.MethodGet, "/v1/identity", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, decode[identityResponse](t, body))

	resp, body = f.do(t, http.MethodPost, "/v1/identity", identityRequest{Seed: "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(forgeerr.InvalidSeedLength), decode[errorBody](t, body).Code)

	resp, _ = f.do(t, http.MethodPost, "/v1/identity", identityRequest{Version: 7})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/v1/identity", `{"seed":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// An empty body asks for a random identity.
	resp, body = f.do(t, http.MethodPost, "/v1/identity", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.NotEqual(t, id.DID, decode[identityResponse](t, body).DID)
}

func TestGenesis(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/v1/genesis/content", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := f.do(t, http.MethodPut, "/v1/genesis", genesisRequest{Source: "no/such/file"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(forgeerr.InvalidSource), decode[errorBody](t, body).Code)

	resp, body = f.do(t, http.MethodPut, "/v1/genesis", genesisRequest{Source: f.genesis})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, genesisResponse{Kind: "file", Location: f.genesis}, decode[genesisResponse](t, body))

	resp, body = f.do(t, http.MethodGet, "/v1/genesis/content", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, string(body), "Node1")
}

func TestLedgerLifecycle(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/v1/ledger/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "disconnected", decode[statusResponse](t, body).State)

	resp, body = f.do(t, http.MethodPost, "/v1/ledger/connect", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(forgeerr.NoGenesisSource), decode[errorBody](t, body).Code)

	f.do(t, http.MethodPut, "/v1/genesis", genesisRequest{Source: f.genesis})
	f.ledger.SetUnreachable(true)
	resp, body = f.do(t, http.MethodPost, "/v1/ledger/connect", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode, string(body))

	resp, body = f.do(t, http.MethodGet, "/v1/ledger/status", nil)
	st := decode[statusResponse](t, body)
	assert.Equal(t, "failed", st.State)
	require.NotNil(t, st.Error)
	assert.Equal(t, "Transport", st.Error.Kind)

	f.ledger.SetUnreachable(false)
	resp, _ = f.do(t, http.MethodPost, "/v1/ledger/retry", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/v1/ledger/connect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	st = decode[statusResponse](t, body)
	assert.Equal(t, "connected", st.State)
	assert.Equal(t, "file", st.SourceKind)
	assert.NotNil(t, st.ConnectedAt)

	resp, body = f.do(t, http.MethodPost, "/v1/ledger/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[checkResponse](t, body).Replied)
}

func TestLedgerStatus_PollRunsHealthCheck(t *testing.T) {
	f := newFixture(t)
	f.ready(t)

	resp, body := f.do(t, http.MethodGet, "/v1/ledger/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "connected", decode[statusResponse](t, body).State)

	f.ledger.SetUnreachable(true)
	f.clock.Advance(ledger.DefaultCheckInterval)

	resp, body = f.do(t, http.MethodGet, "/v1/ledger/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[statusResponse](t, body)
	assert.Equal(t, "disconnected", st.State)
	require.NotNil(t, st.Error)
	assert.Equal(t, string(forgeerr.ConnectionLost), st.Error.Code)
}

func TestNym(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	target, err := did.Create(nil, did.V2)
	require.NoError(t, err)

	no := false
	resp, body := f.do(t, http.MethodPost, "/v1/transactions/nym", nymRequest{
		optionsRequest: optionsRequest{Sign: &no, Send: &no},
		DID:            target.DID(),
		Verkey:         target.Verkey(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode[outcomeResponse](t, body)
	assert.Equal(t, "prepared", out.Outcome)
	assert.NotContains(t, string(out.Body), "signatures")
	assert.NotEmpty(t, out.Archived)

	resp, body = f.do(t, http.MethodPost, "/v1/transactions/nym", nymRequest{
		DID: target.DID(), Verkey: target.Verkey(), Role: "endorser",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out = decode[outcomeResponse](t, body)
	assert.Equal(t, "submitted", out.Outcome)
	assert.Equal(t, "REPLY", decode[map[string]any](t, out.Body)["op"])

	resp, body = f.do(t, http.MethodPost, "/v1/transactions/nym", nymRequest{DID: target.DID(), Verkey: target.Verkey(), Role: "king"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(forgeerr.InvalidRole), decode[errorBody](t, body).Code)

	f.ledger.SetReject("UnauthorizedClientRequest")
	resp, body = f.do(t, http.MethodPost, "/v1/transactions/nym", nymRequest{DID: target.DID(), Verkey: target.Verkey()})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Submission", decode[errorBody](t, body).Kind)
}

func TestSchema(t *testing.T) {
	f := newFixture(t)
	id := f.ready(t)

	resp, body := f.do(t, http.MethodPost, "/v1/transactions/schema", schemaRequest{
		Name: "degree", Version: "1.0.0", Attributes: []string{"name", "age"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode[outcomeResponse](t, body)
	assert.Equal(t, id.DID+":2:degree:1.0.0", out.SchemaID)

	resp, body = f.do(t, http.MethodPost, "/v1/transactions/schema", schemaRequest{
		Name: "degree", Version: "1.2", Attributes: []string{"name"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(forgeerr.InvalidSchemaVersion), decode[errorBody](t, body).Code)
}

func TestSignThenSubmit(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	target, err := did.Create(nil, did.V2)
	require.NoError(t, err)

	no := false
	_, body := f.do(t, http.MethodPost, "/v1/transactions/nym", nymRequest{
		optionsRequest: optionsRequest{Sign: &no, Send: &no},
		DID:            target.DID(),
		Verkey:         target.Verkey(),
	})
	prepared := decode[outcomeResponse](t, body).Body

	resp, body := f.do(t, http.MethodPost, "/v1/transactions/sign", string(prepared))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	signed := decode[outcomeResponse](t, body).Body
	assert.Contains(t, string(signed), "signatures")

	resp, body = f.do(t, http.MethodPost, "/v1/transactions/sign", string(signed))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(forgeerr.AlreadySigned), decode[errorBody](t, body).Code)

	resp, body = f.do(t, http.MethodPost, "/v1/transactions/submit", string(signed))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "submitted", decode[outcomeResponse](t, body).Outcome)

	legacy := `{"identifier":"V4SGRU86Z58d6TV7PBUe6f","operation":{"type":"1","dest":"V4SGRU86Z58d6TV7PBUe6f"},"reqId":1,"protocolVersion":2,"signature":"abc"}`
	resp, body = f.do(t, http.MethodPost, "/v1/transactions/submit", legacy)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(forgeerr.LegacySignatureFormat), decode[errorBody](t, body).Code)

	resp, _ = f.do(t, http.MethodPost, "/v1/transactions/submit", "[]")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestArchive(t *testing.T) {
	f := newFixture(t)
	f.ready(t)
	target, err := did.Create(nil, did.V2)
	require.NoError(t, err)

	no := false
	resp, body := f.do(t, http.MethodPost, "/v1/transactions/nym", nymRequest{
		optionsRequest: optionsRequest{Send: &no},
		DID:            target.DID(),
		Verkey:         target.Verkey(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	out := decode[outcomeResponse](t, body)
	require.NotEmpty(t, out.Archived)

	resp, body = f.do(t, http.MethodGet, "/v1/archive/"+out.Archived, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, string(out.Body), string(body))

	resp, _ = f.do(t, http.MethodHead, "/v1/archive/"+out.Archived, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	missing, err := archive.CID([]byte("never archived"))
	require.NoError(t, err)
	resp, body = f.do(t, http.MethodGet, "/v1/archive/"+missing.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(forgeerr.NotArchived), decode[errorBody](t, body).Code)
	resp, _ = f.do(t, http.MethodHead, "/v1/archive/"+missing.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/v1/archive/not-a-cid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(forgeerr.InvalidCID), decode[errorBody](t, body).Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.ready(t)

	resp, body := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "indyforge_ledger_connect_attempts_total")
}

func TestStatusFor(t *testing.T) {
	cases := map[forgeerr.Kind]int{
		forgeerr.KindInput:      http.StatusBadRequest,
		forgeerr.KindDerivation: http.StatusUnprocessableEntity,
		forgeerr.KindConfig:     http.StatusUnprocessableEntity,
		forgeerr.KindTransport:  http.StatusBadGateway,
		forgeerr.KindSubmission: http.StatusConflict,
		forgeerr.KindState:      http.StatusConflict,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(forgeerr.New(kind, "X", "x")), kind)
	}
	assert.Equal(t, http.StatusInternalServerError, StatusFor(io.EOF))
}
