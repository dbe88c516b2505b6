// Package archivetest holds the behaviour every archive.Store must share.
package archivetest

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"

	"indyforge.dev/forge/archive"
)

// NewStore constructs a fresh, empty store isolated from other tests.
type NewStore func(t *testing.T) archive.Store

func RunConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := []byte(`{"identifier":"V4SGRU86Z58d6TV7PBUe6f","operation":{"type":"1"}}`)

		id, err := s.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := archive.CID(want)
		if err != nil {
			t.Fatalf("CID failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		b := []byte("same body")

		id1, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		b := []byte("missing")
		id, err := archive.CID(b)
		if err != nil {
			t.Fatalf("CID failed: %v", err)
		}

		if s.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := s.Get(id); !archive.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := s.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !s.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("CallerCannotMutateStoredBody", func(t *testing.T) {
		s := newStore(t)
		b := []byte("original")
		id, err := s.Put(b)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		b[0] = 'X'
		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		got[1] = 'Y'
		again, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get(2) failed: %v", err)
		}
		if string(again) != "original" {
			t.Fatalf("stored body changed: %q", again)
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		s := newStore(t)
		var undef cid.Cid
		if s.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := s.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}
