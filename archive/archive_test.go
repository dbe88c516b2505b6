package archive_test

import (
	"os"
	"path/filepath"
	"testing"

	"indyforge.dev/forge/archive"
	"indyforge.dev/forge/archive/archivetest"
)

func TestDir_Conformance(t *testing.T) {
	archivetest.RunConformance(t, func(t *testing.T) archive.Store {
		d, err := archive.NewDir(t.TempDir())
		if err != nil {
			t.Fatalf("NewDir: %v", err)
		}
		return d
	})
}

func TestMemory_Conformance(t *testing.T) {
	archivetest.RunConformance(t, func(t *testing.T) archive.Store {
		return archive.NewMemory()
	})
}

func TestDir_DetectsTampering(t *testing.T) {
	root := t.TempDir()
	d, err := archive.NewDir(root)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	id, err := d.Put([]byte("signed body"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	s := id.String()
	path := filepath.Join(root, s[:2], s)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	if err := os.WriteFile(path, []byte("forged body"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := d.Get(id); err != archive.ErrCIDMismatch {
		t.Fatalf("Get tampered: got %v want ErrCIDMismatch", err)
	}
	if _, err := d.Put([]byte("signed body")); err != archive.ErrImmutable {
		t.Fatalf("Put over tampered: got %v want ErrImmutable", err)
	}
}

func TestNewDir_RequiresRoot(t *testing.T) {
	if _, err := archive.NewDir(""); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestParse(t *testing.T) {
	id, err := archive.CID([]byte("x"))
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	got, err := archive.Parse(id.String())
	if err != nil || got != id {
		t.Fatalf("Parse(%s) = %s, %v", id, got, err)
	}
	if _, err := archive.Parse("not-a-cid"); err != archive.ErrInvalidCID {
		t.Fatalf("Parse garbage: got %v", err)
	}
}
