package txn

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"indyforge.dev/forge/did"
	"indyforge.dev/forge/forgeerr"
)

// Builder constructs unsigned ledger requests. It is safe for concurrent use.
type Builder struct {
	now  func() time.Time
	last atomic.Int64
}

func NewBuilder() *Builder { return &Builder{now: time.Now} }

// nextReqID returns a nanosecond timestamp strictly greater than any id this
// builder handed out before.
func (b *Builder) nextReqID() int64 {
	now := time.Now
	if b.now != nil {
		now = b.now
	}
	id := now().UnixNano()
	for {
		last := b.last.Load()
		if id <= last {
			id = last + 1
		}
		if b.last.CompareAndSwap(last, id) {
			return id
		}
	}
}

func (b *Builder) request(identifier string, op map[string]any) *Request {
	return &Request{body: map[string]any{
		fieldIdentifier:      identifier,
		fieldOperation:       op,
		fieldReqID:           json.Number(strconv.FormatInt(b.nextReqID(), 10)),
		fieldProtocolVersion: json.Number(strconv.Itoa(ProtocolVersion)),
	}}
}

// BuildNym builds a NYM request registering target with verkey, an optional
// alias, and a role update.
func (b *Builder) BuildNym(submitter, target, verkey, alias string, role Role) (*Request, error) {
	if err := did.Validate(submitter); err != nil {
		return nil, err
	}
	if err := did.Validate(target); err != nil {
		return nil, err
	}
	if err := did.ValidateVerkey(verkey); err != nil {
		return nil, err
	}
	if !role.valid() {
		return nil, forgeerr.New(forgeerr.KindInput, forgeerr.InvalidRole, "unknown role "+role.String())
	}

	op := map[string]any{
		fieldType: TypeNym,
		"dest":    target,
		"verkey":  verkey,
		"role":    role.Update().value(),
	}
	if a := strings.TrimSpace(alias); a != "" {
		op["alias"] = a
	}
	return b.request(submitter, op), nil
}

// BuildSchema builds a SCHEMA request. The schema is validated in full before
// the request is assembled and is returned alongside it.
func (b *Builder) BuildSchema(submitter, name, version string, attrNames []string) (*Request, Schema, error) {
	if err := did.Validate(submitter); err != nil {
		return nil, Schema{}, err
	}
	if err := ValidateSchemaVersion(version); err != nil {
		return nil, Schema{}, err
	}
	if len(attrNames) == 0 {
		return nil, Schema{}, forgeerr.New(forgeerr.KindInput, forgeerr.EmptyAttributes,
			"At least one attribute is required")
	}

	s := Schema{
		ID:        SchemaID(submitter, name, version),
		Name:      name,
		Version:   version,
		AttrNames: append([]string(nil), attrNames...),
	}
	if err := s.Validate(); err != nil {
		return nil, Schema{}, err
	}

	attrs := make([]any, len(s.AttrNames))
	for i, a := range s.AttrNames {
		attrs[i] = a
	}
	op := map[string]any{
		fieldType: TypeSchema,
		"data": map[string]any{
			"name":       s.Name,
			"version":    s.Version,
			"attr_names": attrs,
		},
	}
	return b.request(submitter, op), s, nil
}

// BuildGetTxn builds an unauthenticated read of one transaction.
func (b *Builder) BuildGetTxn(ledgerID, seqNo int) *Request {
	op := map[string]any{
		fieldType:  TypeGetTxn,
		"ledgerId": json.Number(strconv.Itoa(ledgerID)),
		"data":     json.Number(strconv.Itoa(seqNo)),
	}
	return b.request(LibindyDID, op)
}
