package bbackend

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/dTree/lib/backend"
	betesting "github.com/ValentinKolb/dTree/lib/backend/testing"
)

func TestBoltBackend(t *testing.T) {
	dir := t.TempDir()
	n := 0
	betesting.RunBackendTests(t, "BoltBackend", func() (backend.IBackend, error) {
		n++
		return Open(filepath.Join(dir, fmt.Sprintf("tree-%d.db", n)), Options{NoSync: true})
	})
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "tree.db")

	b, err := Open(file, Options{NoSync: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := b.Set(ctx, "", []byte("root")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := b.Set(ctx, "users/ann", []byte("ann")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err = Open(file, Options{NoSync: true})
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer b.Close()

	if data, ok, _ := b.Get(ctx, ""); !ok || string(data) != "root" {
		t.Errorf("Expected root record to survive reopen, got %s %v", data, ok)
	}
	if data, ok, _ := b.Get(ctx, "users/ann"); !ok || string(data) != "ann" {
		t.Errorf("Expected users/ann to survive reopen, got %s %v", data, ok)
	}
}

func TestPrefixScanBoundaries(t *testing.T) {
	ctx := context.Background()
	b, err := Open(filepath.Join(t.TempDir(), "tree.db"), Options{NoSync: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer b.Close()

	for _, p := range []string{"a", "a/b", "a[0]", "a0", "a.b", "ab/c"} {
		_ = b.Set(ctx, p, []byte(p))
	}

	children, _ := b.ChildrenOf(ctx, "a")
	if len(children) != 2 {
		t.Errorf("Expected 2 children of a, got %v", children)
	}
	descendants, _ := b.DescendantsOf(ctx, "a")
	if len(descendants) != 2 {
		t.Errorf("Expected 2 descendants of a, got %v", descendants)
	}
}
