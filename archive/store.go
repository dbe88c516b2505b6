// Package archive keeps an immutable, content-addressed record of the
// transaction bodies the tool prepares, signs and submits.
//
// Bodies are keyed by CIDv1 (raw codec, sha2-256 multihash), so an archived
// transaction can be referenced and re-verified by its identifier alone.
package archive

import (
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrNotFound    = errors.New("archive: not found")
	ErrInvalidCID  = errors.New("archive: invalid cid")
	ErrCIDMismatch = errors.New("archive: cid mismatch")
	ErrImmutable   = errors.New("archive: immutable object mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Store is a content-addressed transaction archive.
//
// Put is idempotent and stored bodies never change. Get returns ErrNotFound
// for an absent CID.
type Store interface {
	Put(body []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// CID returns the CIDv1 (raw + sha2-256) of body.
func CID(body []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(body, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Parse decodes a CID string, rejecting undefined CIDs.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, ErrInvalidCID
	}
	return id, nil
}

// verify checks that body hashes to id.
func verify(id cid.Cid, body []byte) error {
	got, err := CID(body)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrCIDMismatch
	}
	return nil
}
