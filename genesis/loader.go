package genesis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/metrics"
)

const (
	DefaultClientTimeout = 10 * time.Second
	DefaultFetchTimeout  = 15 * time.Second
	DefaultBodyTimeout   = 5 * time.Second

	maxGenesisBytes = 32 << 20
)

var tracer = otel.Tracer("indyforge.dev/forge/genesis")

// HTTPStatusError is the cause attached to HTTPStatus failures.
type HTTPStatusError struct {
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d - %s", e.Status, e.reason())
}

// NotFound reports whether the server answered 404.
func (e *HTTPStatusError) NotFound() bool { return e.Status == http.StatusNotFound }

func (e *HTTPStatusError) reason() string {
	if e.NotFound() {
		return "File not found"
	}
	return "Server error"
}

// Options configures a Loader. Zero durations select the defaults.
type Options struct {
	ClientTimeout time.Duration
	FetchTimeout  time.Duration
	BodyTimeout   time.Duration

	// MaxBytes caps a fetched genesis body. Zero means 32 MiB.
	MaxBytes int64

	// HTTP overrides the client built from ClientTimeout.
	HTTP    *http.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Loader reads genesis transactions from local files and URLs.
type Loader struct {
	http        *http.Client
	fetchTO     time.Duration
	bodyTO      time.Duration
	maxBytes    int64
	log         *slog.Logger
	metrics     *metrics.Metrics
	contentOnce singleflight.Group
}

func NewLoader(opts Options) *Loader {
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = DefaultClientTimeout
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.BodyTimeout <= 0 {
		opts.BodyTimeout = DefaultBodyTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = maxGenesisBytes
	}
	client := opts.HTTP
	if client == nil {
		client = &http.Client{Timeout: opts.ClientTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{
		http:     client,
		fetchTO:  opts.FetchTimeout,
		bodyTO:   opts.BodyTimeout,
		maxBytes: opts.MaxBytes,
		log:      logger,
		metrics:  opts.Metrics,
	}
}

// LoadTransactions fetches and parses the bootstrap transactions for src.
//
// URL fetches are bounded three ways: the client timeout, an overall
// operation timeout and a separate body read timeout.
func (l *Loader) LoadTransactions(ctx context.Context, src Source) (Transactions, error) {
	ctx, span := tracer.Start(ctx, "genesis.LoadTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("genesis.kind", src.Kind.String()))

	start := time.Now()
	defer func() { l.metrics.ObserveGenesisFetch(src.Kind.String(), time.Since(start)) }()

	var (
		data []byte
		err  error
	)
	switch src.Kind {
	case LocalFile:
		l.log.Debug("loading genesis file", "path", src.Location)
		data, err = readFile(src.Location)
	case URL:
		l.log.Debug("fetching genesis", "url", src.Location)
		data, err = l.fetchStrict(ctx, src.Location)
	default:
		err = forgeerr.New(forgeerr.KindInput, forgeerr.InvalidSource, "no genesis source selected")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}

	txns, err := Parse(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, err
	}
	l.log.Debug("genesis loaded", "source", src.Location, "transactions", len(txns))
	return txns, nil
}

// Content returns the raw genesis text for display. Only the client timeout
// applies. Concurrent calls for the same source share one read.
func (l *Loader) Content(ctx context.Context, src Source) (string, error) {
	key := src.Kind.String() + "|" + src.Location
	ch := l.contentOnce.DoChan(key, func() (any, error) {
		switch src.Kind {
		case LocalFile:
			return readFile(src.Location)
		case URL:
			return l.fetchContent(context.WithoutCancel(ctx), src.Location)
		default:
			return nil, forgeerr.New(forgeerr.KindInput, forgeerr.InvalidSource, "no genesis source selected")
		}
	})
	select {
	case <-ctx.Done():
		return "", forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Timeout, "genesis read cancelled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return string(res.Val.([]byte)), nil
	}
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.KindConfig, forgeerr.FileRead,
			fmt.Sprintf("Failed to load genesis file from path: %s", path), err)
	}
	return b, nil
}

func (l *Loader) fetchStrict(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.fetchTO)
	defer cancel()

	resp, err := l.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	l.log.Debug("genesis response", "status", resp.StatusCode)

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	bodyCtx, cancelBody := context.WithTimeout(ctx, l.bodyTO)
	defer cancelBody()
	stop := context.AfterFunc(bodyCtx, func() { _ = resp.Body.Close() })
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	stopped := stop()
	if err != nil {
		if !stopped || bodyCtx.Err() != nil {
			return nil, forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Timeout,
				"Timeout while reading response content", err)
		}
		return nil, forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Unreachable,
			"Failed to read response content", err)
	}
	if err := l.checkSize(data); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, forgeerr.New(forgeerr.KindConfig, forgeerr.EmptyContent, "Genesis file is empty")
	}
	l.log.Debug("genesis content received", "bytes", len(data))
	return data, nil
}

func (l *Loader) fetchContent(ctx context.Context, url string) ([]byte, error) {
	resp, err := l.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Unreachable, "Failed to read response content", err)
	}
	if err := l.checkSize(data); err != nil {
		return nil, err
	}
	return data, nil
}

// checkSize rejects a body read with one byte of headroom past the cap.
func (l *Loader) checkSize(data []byte) error {
	if int64(len(data)) > l.maxBytes {
		return forgeerr.New(forgeerr.KindConfig, forgeerr.TooLarge,
			fmt.Sprintf("Genesis file exceeds %d bytes", l.maxBytes))
	}
	return nil
}

func (l *Loader) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, forgeerr.Wrap(forgeerr.KindInput, forgeerr.InvalidSource, "invalid genesis URL", err)
	}
	resp, err := l.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Timeout, "Connection timed out", err)
		}
		return nil, forgeerr.Wrap(forgeerr.KindTransport, forgeerr.Unreachable,
			fmt.Sprintf("Failed to fetch genesis file from URL: %s", url), err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	cause := &HTTPStatusError{Status: resp.StatusCode}
	return forgeerr.Wrap(forgeerr.KindTransport, forgeerr.HTTPStatus, "Failed to fetch genesis file", cause)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
