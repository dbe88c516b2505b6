package txn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"sort"

	"github.com/mr-tron/base58"

	"indyforge.dev/forge/forgeerr"
)

// Request is a ledger request held as a generic JSON object so that fields
// this package does not model survive signing untouched. Numbers keep their
// exact text.
type Request struct {
	body map[string]any
}

// ParseRequest decodes and validates a JSON request object.
func ParseRequest(data []byte) (*Request, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, forgeerr.Wrap(forgeerr.KindInput, forgeerr.MalformedRequest, "Invalid transaction JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, forgeerr.New(forgeerr.KindInput, forgeerr.MalformedRequest, "Invalid transaction JSON: trailing data")
	}
	if body == nil {
		return nil, forgeerr.New(forgeerr.KindInput, forgeerr.MalformedRequest, "Invalid transaction JSON: expected an object")
	}
	r := &Request{body: body}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the minimal request shape: an operation object with a
// string type, and a string identifier when one is present.
func (r *Request) Validate() error {
	op, ok := r.body[fieldOperation].(map[string]any)
	if !ok {
		return forgeerr.New(forgeerr.KindInput, forgeerr.MalformedRequest, "request has no operation object")
	}
	if t, ok := op[fieldType].(string); !ok || t == "" {
		return forgeerr.New(forgeerr.KindInput, forgeerr.MalformedRequest, "operation.type must be a non-empty string")
	}
	if v, present := r.body[fieldIdentifier]; present {
		if _, ok := v.(string); !ok {
			return forgeerr.New(forgeerr.KindInput, forgeerr.MalformedRequest, "identifier must be a string")
		}
	}
	if v, present := r.body[fieldSignatures]; present && v != nil {
		sigs, ok := v.(map[string]any)
		if !ok {
			return forgeerr.New(forgeerr.KindInput, forgeerr.MalformedRequest, "signatures must be an object")
		}
		for k, s := range sigs {
			if _, ok := s.(string); !ok {
				return forgeerr.New(forgeerr.KindInput, forgeerr.MalformedRequest,
					fmt.Sprintf("signature for %q must be a string", k))
			}
		}
	}
	return nil
}

// JSON returns the compact encoding. Object keys are sorted.
func (r *Request) JSON() ([]byte, error) {
	return json.Marshal(r.body)
}

// PrettyJSON returns the request indented by two spaces.
func (r *Request) PrettyJSON() (string, error) {
	b, err := json.MarshalIndent(r.body, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Request) Type() string { return operationType(r.body) }

func (r *Request) Identifier() string {
	s, _ := r.body[fieldIdentifier].(string)
	return s
}

// ReqID returns the request id as written, or "".
func (r *Request) ReqID() string {
	switch v := r.body[fieldReqID].(type) {
	case json.Number:
		return v.String()
	case string:
		return v
	default:
		return ""
	}
}

// HasSignatures reports whether the multi-signature map is present.
func (r *Request) HasSignatures() bool {
	v, ok := r.body[fieldSignatures]
	return ok && v != nil
}

// HasLegacySignature reports whether the single "signature" field is present.
func (r *Request) HasLegacySignature() bool {
	v, ok := r.body[fieldSignature]
	return ok && v != nil
}

// Signatures returns a copy of the multi-signature map.
func (r *Request) Signatures() map[string]string {
	sigs, _ := r.body[fieldSignatures].(map[string]any)
	out := make(map[string]string, len(sigs))
	for k, v := range sigs {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// Signers returns the DIDs in the multi-signature map, sorted.
func (r *Request) Signers() []string {
	sigs := r.Signatures()
	out := make([]string, 0, len(sigs))
	for k := range sigs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SignatureInput returns the bytes a signer signs.
func (r *Request) SignatureInput() []byte {
	return []byte(serializeForSignature(r.body))
}

// SetMultiSignature records sig under did in the multi-signature map,
// creating the map when absent.
func (r *Request) SetMultiSignature(did string, sig []byte) {
	sigs, ok := r.body[fieldSignatures].(map[string]any)
	if !ok {
		sigs = map[string]any{}
		r.body[fieldSignatures] = sigs
	}
	sigs[did] = base58.Encode(sig)
}

// Unsigned returns a copy with every signature field removed.
func (r *Request) Unsigned() *Request {
	c := r.Clone()
	delete(c.body, fieldSignature)
	delete(c.body, fieldSignatures)
	return c
}

func (r *Request) Clone() *Request {
	return &Request{body: cloneValue(r.body).(map[string]any)}
}

// Field returns a top-level field.
func (r *Request) Field(name string) (any, bool) {
	v, ok := r.body[name]
	return v, ok
}

// Operation returns a copy of the operation object.
func (r *Request) Operation() map[string]any {
	op, _ := r.body[fieldOperation].(map[string]any)
	if op == nil {
		return nil
	}
	return cloneValue(op).(map[string]any)
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := maps.Clone(x)
		for k, e := range out {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
