// Package submit applies the sign/send policy to ledger requests and maps
// pool answers onto results.
//
// Signatures are only ever produced in the multi-signature form
// ("signatures": {did: sig}). A request that already carries signatures is
// never signed again, and the legacy single "signature" field is refused
// whenever the request would be signed or sent.
package submit

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ipfs/go-cid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"indyforge.dev/forge/archive"
	"indyforge.dev/forge/forgeerr"
	"indyforge.dev/forge/metrics"
	"indyforge.dev/forge/pool"
	"indyforge.dev/forge/txn"
)

var tracer = otel.Tracer("indyforge.dev/forge/submit")

// Options selects what Apply does with a request.
type Options struct {
	Sign bool
	Send bool
}

func DefaultOptions() Options { return Options{Sign: true, Send: true} }

// OutcomeKind says how far a request got.
type OutcomeKind int

const (
	PreparedOnly OutcomeKind = iota + 1
	SignedOnly
	Submitted
)

func (k OutcomeKind) String() string {
	switch k {
	case PreparedOnly:
		return "prepared"
	case SignedOnly:
		return "signed"
	case Submitted:
		return "submitted"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of Apply.
type Outcome struct {
	Kind OutcomeKind
	// Body is the pretty-printed request for PreparedOnly and SignedOnly,
	// and the ledger reply for Submitted.
	Body string
	// Request is the request as prepared, signed or sent.
	Request *txn.Request

	// Archived is the CID of the archived request when an archive is
	// configured and the write succeeded.
	Archived   cid.Cid
	ArchiveErr error
}

// Signer signs on behalf of one DID. *did.Identity implements it.
type Signer interface {
	DID() string
	Sign(msg []byte) []byte
}

// Sender delivers a request body to a pool. *ledger.Connection implements it.
type Sender interface {
	Submit(ctx context.Context, body []byte) (pool.Result, error)
}

// Protocol carries the collaborators Apply needs. Sender is required for any
// option set that sends; Archive, Logger and Metrics are optional.
type Protocol struct {
	Sender  Sender
	Archive archive.Store
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Sign attaches signer's multi-signature to req in place.
//
// It refuses requests that already carry signatures of either form.
func Sign(req *txn.Request, signer Signer) error {
	if req.HasLegacySignature() {
		return errLegacy()
	}
	if req.HasSignatures() {
		return forgeerr.New(forgeerr.KindState, forgeerr.AlreadySigned,
			fmt.Sprintf("Transaction is already signed by %v", req.Signers()))
	}
	if signer == nil {
		return forgeerr.New(forgeerr.KindState, forgeerr.NoIdentity, "no identity available to sign with")
	}
	sig := signer.Sign(req.SignatureInput())
	if sig == nil {
		return forgeerr.New(forgeerr.KindState, forgeerr.NoIdentity, "signing identity has been destroyed")
	}
	req.SetMultiSignature(signer.DID(), sig)
	return nil
}

func errLegacy() error {
	return forgeerr.New(forgeerr.KindState, forgeerr.LegacySignatureFormat,
		"Transaction uses legacy single signature format. Please use multi-signature format.")
}

// Apply runs the sign/send policy on a copy of req:
//
//	sign=false send=false  PreparedOnly: unsigned pretty JSON
//	sign=true  send=false  SignedOnly:   signed pretty JSON
//	send=true              Submitted:    signed first when sign=true, then sent
func (p *Protocol) Apply(ctx context.Context, req *txn.Request, signer Signer, opts Options) (Outcome, error) {
	if req == nil {
		return Outcome{}, forgeerr.New(forgeerr.KindInput, forgeerr.MalformedRequest, "no request")
	}
	work := req.Clone()
	if (opts.Sign || opts.Send) && work.HasLegacySignature() {
		return Outcome{}, errLegacy()
	}

	var out Outcome
	switch {
	case !opts.Sign && !opts.Send:
		work = work.Unsigned()
		body, err := work.PrettyJSON()
		if err != nil {
			return Outcome{}, forgeerr.Wrap(forgeerr.KindInput, forgeerr.MalformedRequest, "cannot encode request", err)
		}
		out = Outcome{Kind: PreparedOnly, Body: body, Request: work}

	case !opts.Send:
		if err := Sign(work, signer); err != nil {
			return Outcome{}, err
		}
		body, err := work.PrettyJSON()
		if err != nil {
			return Outcome{}, forgeerr.Wrap(forgeerr.KindInput, forgeerr.MalformedRequest, "cannot encode request", err)
		}
		out = Outcome{Kind: SignedOnly, Body: body, Request: work}

	default:
		if opts.Sign {
			if err := Sign(work, signer); err != nil {
				return Outcome{}, err
			}
		}
		reply, err := p.Submit(ctx, work)
		if err != nil {
			return Outcome{}, err
		}
		out = Outcome{Kind: Submitted, Body: reply, Request: work}
	}

	p.archive(&out)
	p.Metrics.IncrementTransaction(txn.TypeName(work.Type()), out.Kind.String())
	p.logger().Info("transaction applied",
		"type", txn.TypeName(work.Type()), "outcome", out.Kind.String(), "req_id", work.ReqID())
	return out, nil
}

// Submit sends req as-is. A ledger refusal becomes a LedgerRejected
// submission error; transport errors are returned unchanged.
func (p *Protocol) Submit(ctx context.Context, req *txn.Request) (string, error) {
	ctx, span := tracer.Start(ctx, "submit.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("txn.type", req.Type()))

	if p.Sender == nil {
		return "", forgeerr.New(forgeerr.KindState, forgeerr.NotConnected, "not connected to a ledger")
	}
	body, err := req.JSON()
	if err != nil {
		return "", forgeerr.Wrap(forgeerr.KindInput, forgeerr.MalformedRequest, "cannot encode request", err)
	}
	res, err := p.Sender.Submit(ctx, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return "", err
	}
	if res.Failed() {
		p.Metrics.IncrementTransaction(txn.TypeName(req.Type()), "rejected")
		span.SetStatus(codes.Error, "ledger rejected")
		return "", forgeerr.New(forgeerr.KindSubmission, forgeerr.LedgerRejected, "Transaction failed: "+res.Failure)
	}
	return res.Reply, nil
}

// SignJSON signs a pasted transaction for someone else to submit and
// returns it pretty-printed.
func (p *Protocol) SignJSON(raw []byte, signer Signer) (string, error) {
	req, err := txn.ParseRequest(raw)
	if err != nil {
		return "", err
	}
	out, err := p.Apply(context.Background(), req, signer, Options{Sign: true})
	if err != nil {
		return "", err
	}
	return out.Body, nil
}

// Forward submits a pasted transaction. One that already carries
// multi-signatures is sent as-is; an unsigned one is signed by signer first.
func (p *Protocol) Forward(ctx context.Context, raw []byte, signer Signer) (Outcome, error) {
	req, err := txn.ParseRequest(raw)
	if err != nil {
		return Outcome{}, err
	}
	opts := DefaultOptions()
	if req.HasSignatures() {
		opts.Sign = false
	}
	return p.Apply(ctx, req, signer, opts)
}

func (p *Protocol) archive(out *Outcome) {
	if p.Archive == nil {
		return
	}
	body, err := out.Request.JSON()
	if err == nil {
		out.Archived, err = p.Archive.Put(body)
	}
	if err != nil {
		out.ArchiveErr = err
		p.logger().Warn("transaction archive failed", "error", err)
	}
}

func (p *Protocol) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}
