// Package httpapi exposes a Session over JSON HTTP for front ends.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"indyforge.dev/forge/did"
	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/ledger"
	"indyforge.dev/forge/session"
	"indyforge.dev/forge/submit"
	"indyforge.dev/forge/txn"
)

const maxBodyBytes = 1 << 20

// Ledger calls may take the full connect timeout plus a genesis fetch.
const requestTimeout = 60 * time.Second

type Handler struct {
	session  *session.Session
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// New returns a handler for s. A nil gatherer serves the default registry.
func New(s *session.Session, logger *slog.Logger, gatherer prometheus.Gatherer) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{session: s, logger: logger, gatherer: gatherer}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/identity", h.createIdentity)
		r.Get("/identity", h.getIdentity)

		r.Put("/genesis", h.setGenesis)
		r.Get("/genesis/content", h.genesisContent)

		r.Post("/ledger/connect", h.connect)
		r.Post("/ledger/check", h.check)
		r.Post("/ledger/retry", h.retry)
		r.Get("/ledger/status", h.status)

		r.Post("/transactions/nym", h.nym)
		r.Post("/transactions/schema", h.schema)
		r.Post("/transactions/sign", h.sign)
		r.Post("/transactions/submit", h.submit)

		r.Get("/archive/{cid}", h.archived)
		r.Head("/archive/{cid}", h.archivedExists)
	})
	return r
}

type identityRequest struct {
	Seed    string `json:"seed,omitempty"`
	Version int    `json:"version,omitempty"`
}

type identityResponse struct {
	DID     string `json:"did"`
	Verkey  string `json:"verkey"`
	Version int    `json:"version"`
}

func (h *Handler) createIdentity(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if !h.decode(w, r, &req) {
		return
	}
	version := did.DefaultVersion
	if req.Version != 0 {
		v, err := did.ParseVersion(req.Version)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		version = v
	}
	id, err := h.session.CreateIdentity(req.Seed, version)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIdentity(id))
}

func (h *Handler) getIdentity(w http.ResponseWriter, r *http.Request) {
	id := h.session.Identity()
	if id == nil {
		h.writeError(w, r, forgeerr.New(forgeerr.KindState, forgeerr.NoIdentity, "no identity created"))
		return
	}
	writeJSON(w, http.StatusOK, toIdentity(id))
}

func toIdentity(id *did.Identity) identityResponse {
	return identityResponse{DID: id.DID(), Verkey: id.Verkey(), Version: int(id.Version())}
}

type genesisRequest struct {
	Source string `json:"source"`
}

type genesisResponse struct {
	Kind     string `json:"kind"`
	Location string `json:"location"`
}

func (h *Handler) setGenesis(w http.ResponseWriter, r *http.Request) {
	var req genesisRequest
	if !h.decode(w, r, &req) {
		return
	}
	src, err := h.session.SetGenesis(req.Source)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, genesisResponse{Kind: src.Kind.String(), Location: src.Location})
}

func (h *Handler) archived(w http.ResponseWriter, r *http.Request) {
	body, err := h.session.Archived(chi.URLParam(r, "cid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) archivedExists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.session.IsArchived(chi.URLParam(r, "cid"))
	switch {
	case err != nil:
		w.WriteHeader(StatusFor(err))
	case ok:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) genesisContent(w http.ResponseWriter, r *http.Request) {
	content, err := h.session.GenesisContent(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, content)
}

type statusResponse struct {
	State       string     `json:"state"`
	Source      string     `json:"source,omitempty"`
	SourceKind  string     `json:"source_kind,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	LastCheck   *time.Time `json:"last_check,omitempty"`
	Error       *errorBody `json:"error,omitempty"`
}

func toStatus(st ledger.Status) statusResponse {
	out := statusResponse{State: st.State.String()}
	if !st.Source.IsZero() {
		out.Source = st.Source.Location
		out.SourceKind = st.Source.Kind.String()
	}
	out.StartedAt = timePtr(st.StartedAt)
	out.ConnectedAt = timePtr(st.ConnectedAt)
	out.LastCheck = timePtr(st.LastCheck)
	if st.Err != nil {
		b := toErrorBody(st.Err)
		out.Error = &b
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Connect(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(h.session.Status(r.Context())))
}

type checkResponse struct {
	Replied bool           `json:"replied"`
	Status  statusResponse `json:"status"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	ok, err := h.session.CheckConnection(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Replied: ok, Status: toStatus(h.session.Status(r.Context()))})
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Retry(); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(h.session.Status(r.Context())))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStatus(h.session.Status(r.Context())))
}

// optionsRequest leaves sign and send on unless the caller turns them off.
type optionsRequest struct {
	Sign *bool `json:"sign,omitempty"`
	Send *bool `json:"send,omitempty"`
}

func (o optionsRequest) options() submit.Options {
	opts := submit.DefaultOptions()
	if o.Sign != nil {
		opts.Sign = *o.Sign
	}
	if o.Send != nil {
		opts.Send = *o.Send
	}
	return opts
}

type outcomeResponse struct {
	Outcome  string          `json:"outcome"`
	Body     json.RawMessage `json:"body"`
	Archived string          `json:"archived,omitempty"`
	SchemaID string          `json:"schema_id,omitempty"`
}

func toOutcome(out submit.Outcome) outcomeResponse {
	resp := outcomeResponse{Outcome: out.Kind.String(), Body: rawOrString(out.Body)}
	if out.Archived.Defined() {
		resp.Archived = out.Archived.String()
	}
	return resp
}

// rawOrString embeds body as JSON when it is JSON and as a string otherwise.
func rawOrString(body string) json.RawMessage {
	if json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	b, _ := json.Marshal(body)
	return b
}

type nymRequest struct {
	optionsRequest
	DID    string `json:"did"`
	Verkey string `json:"verkey"`
	Alias  string `json:"alias,omitempty"`
	Role   string `json:"role,omitempty"`
}

func (h *Handler) nym(w http.ResponseWriter, r *http.Request) {
	var req nymRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := txn.ParseRole(req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.session.PublishNym(r.Context(), session.Nym{
		DID: req.DID, Verkey: req.Verkey, Alias: req.Alias, Role: role,
	}, req.options())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcome(out))
}

type schemaRequest struct {
	optionsRequest
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Attributes []string `json:"attributes"`
}

func (h *Handler) schema(w http.ResponseWriter, r *http.Request) {
	var req schemaRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, sc, err := h.session.PublishSchema(r.Context(), session.Schema{
		Name: req.Name, Version: req.Version, Attributes: req.Attributes,
	}, req.options())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := toOutcome(out)
	resp.SchemaID = sc.ID
	writeJSON(w, http.StatusOK, resp)
}

// sign and submit take the transaction itself as the request body.
func (h *Handler) sign(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}
	signed, err := h.session.SignTransaction(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Outcome: submit.SignedOnly.String(), Body: rawOrString(signed)})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.readBody(w, r)
	if !ok {
		return
	}
	out, err := h.session.SubmitTransaction(r.Context(), raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcome(out))
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, forgeerr.Wrap(forgeerr.KindInput, forgeerr.MalformedRequest, "cannot read request body", err))
		return nil, false
	}
	return raw, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, forgeerr.Wrap(forgeerr.KindInput, forgeerr.MalformedRequest, "invalid JSON body", err))
		return false
	}
	return true
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.InfoContext(r.Context(), "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
