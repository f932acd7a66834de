package testing

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/ValentinKolb/dTree/lib/backend"
)

// RunBackendTests runs the conformance test suite for a backend implementation.
// Every subtest gets a fresh backend from the factory.
func RunBackendTests(t *testing.T, name string, factory backend.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, create(t, factory))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, create(t, factory))
		})

		t.Run("ChildrenOf", func(t *testing.T) {
			testChildrenOf(t, create(t, factory))
		})

		t.Run("DescendantsOf", func(t *testing.T) {
			testDescendantsOf(t, create(t, factory))
		})

		t.Run("GetMultiple", func(t *testing.T) {
			testGetMultiple(t, create(t, factory))
		})

		t.Run("RemoveMultiple", func(t *testing.T) {
			testRemoveMultiple(t, create(t, factory))
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, create(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func create(t *testing.T, factory backend.Factory) backend.IBackend {
	t.Helper()
	b, err := factory()
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Errorf("failed to close backend: %v", err)
		}
	})
	return b
}

func mustSet(t *testing.T, b backend.IBackend, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := b.Set(context.Background(), p, []byte("value of "+p)); err != nil {
			t.Fatalf("Set(%q) failed: %v", p, err)
		}
	}
}

func sorted(paths []string) []string {
	out := slices.Clone(paths)
	slices.Sort(out)
	return out
}

// treePaths is a small record tree used by the directory tests
var treePaths = []string{
	"",
	"users",
	"users/ann",
	"users/ann/address",
	"users/ann/tags",
	"users/ann/tags[0]",
	"users/ann/tags[1]",
	"users/bob",
	"usersettings",
	"list",
	"list[0]",
	"list[0]/name",
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, b backend.IBackend) {
	ctx := context.Background()

	if err := b.Set(ctx, "users/ann", []byte("v1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	data, ok, err := b.Get(ctx, "users/ann")
	if err != nil || !ok {
		t.Fatalf("Get after Set: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(data, []byte("v1")) {
		t.Errorf("Expected value v1, got %s", data)
	}

	if err := b.Set(ctx, "users/ann", []byte("v2")); err != nil {
		t.Fatalf("Set (overwrite) failed: %v", err)
	}
	data, _, _ = b.Get(ctx, "users/ann")
	if !bytes.Equal(data, []byte("v2")) {
		t.Errorf("Expected overwritten value v2, got %s", data)
	}

	// the root path is a valid key
	if err := b.Set(ctx, "", []byte("root")); err != nil {
		t.Fatalf("Set(root) failed: %v", err)
	}
	if data, ok, _ := b.Get(ctx, ""); !ok || string(data) != "root" {
		t.Errorf("Get(root) = %s, %v", data, ok)
	}

	if _, ok, err := b.Get(ctx, "users/bob"); ok || err != nil {
		t.Errorf("Expected missing path to return ok=false, got ok=%v err=%v", ok, err)
	}

	// the returned value must be a copy
	data, _, _ = b.Get(ctx, "users/ann")
	data[0] = 'X'
	again, _, _ := b.Get(ctx, "users/ann")
	if bytes.Equal(data, again) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testRemove(t *testing.T, b backend.IBackend) {
	ctx := context.Background()
	mustSet(t, b, "a", "a/b")

	if err := b.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "a"); ok {
		t.Errorf("Expected a to be removed")
	}
	if _, ok, _ := b.Get(ctx, "a/b"); !ok {
		t.Errorf("Remove must not remove descendants")
	}
	if err := b.Remove(ctx, "does/not/exist"); err != nil {
		t.Errorf("Removing a missing path should be a no-op, got %v", err)
	}
}

func testChildrenOf(t *testing.T, b backend.IBackend) {
	ctx := context.Background()
	mustSet(t, b, treePaths...)

	tests := []struct {
		path     string
		expected []string
	}{
		{"", []string{"list", "users", "usersettings"}},
		{"users", []string{"users/ann", "users/bob"}},
		{"users/ann", []string{"users/ann/address", "users/ann/tags"}},
		{"users/ann/tags", []string{"users/ann/tags[0]", "users/ann/tags[1]"}},
		{"list", []string{"list[0]"}},
		{"users/bob", nil},
		{"missing", nil},
	}
	for _, tt := range tests {
		children, err := b.ChildrenOf(ctx, tt.path)
		if err != nil {
			t.Fatalf("ChildrenOf(%q) failed: %v", tt.path, err)
		}
		if !slices.Equal(sorted(children), tt.expected) {
			t.Errorf("ChildrenOf(%q) = %v, want %v", tt.path, sorted(children), tt.expected)
		}
	}
}

func testDescendantsOf(t *testing.T, b backend.IBackend) {
	ctx := context.Background()
	mustSet(t, b, treePaths...)

	descendants, err := b.DescendantsOf(ctx, "users")
	if err != nil {
		t.Fatalf("DescendantsOf failed: %v", err)
	}
	expected := []string{"users/ann", "users/ann/address", "users/ann/tags", "users/ann/tags[0]", "users/ann/tags[1]", "users/bob"}
	if !slices.Equal(sorted(descendants), expected) {
		t.Errorf("DescendantsOf(users) = %v, want %v", sorted(descendants), expected)
	}

	all, err := b.DescendantsOf(ctx, "")
	if err != nil {
		t.Fatalf("DescendantsOf(root) failed: %v", err)
	}
	if len(all) != len(treePaths)-1 {
		t.Errorf("DescendantsOf(root) returned %d paths, want %d", len(all), len(treePaths)-1)
	}

	if leaf, _ := b.DescendantsOf(ctx, "list[0]/name"); len(leaf) != 0 {
		t.Errorf("Expected no descendants for a leaf, got %v", leaf)
	}
}

func testGetMultiple(t *testing.T, b backend.IBackend) {
	ctx := context.Background()
	mustSet(t, b, "a", "b", "c")

	records, err := backend.GetMultiple(ctx, b, []string{"a", "c", "missing"})
	if err != nil {
		t.Fatalf("GetMultiple failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
	if string(records["c"]) != "value of c" {
		t.Errorf("Unexpected record for c: %s", records["c"])
	}
	if _, ok := records["missing"]; ok {
		t.Errorf("Missing paths must not be part of the result")
	}
}

func testRemoveMultiple(t *testing.T, b backend.IBackend) {
	ctx := context.Background()
	mustSet(t, b, "a", "a/b", "a/c", "d")

	if err := backend.RemoveMultiple(ctx, b, []string{"a", "a/b", "a/c", "missing"}); err != nil {
		t.Fatalf("RemoveMultiple failed: %v", err)
	}
	for _, p := range []string{"a", "a/b", "a/c"} {
		if _, ok, _ := b.Get(ctx, p); ok {
			t.Errorf("Expected %s to be removed", p)
		}
	}
	if _, ok, _ := b.Get(ctx, "d"); !ok {
		t.Errorf("Expected d to survive")
	}
}

func testConcurrent(t *testing.T, b backend.IBackend) {
	ctx := context.Background()
	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				p := fmt.Sprintf("w%d/k%d", w, i)
				if err := b.Set(ctx, p, []byte(p)); err != nil {
					t.Errorf("Set(%q) failed: %v", p, err)
					return
				}
				if data, ok, err := b.Get(ctx, p); err != nil || !ok || string(data) != p {
					t.Errorf("Get(%q) = %s, %v, %v", p, data, ok, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		children, err := b.ChildrenOf(ctx, fmt.Sprintf("w%d", w))
		if err != nil {
			t.Fatalf("ChildrenOf failed: %v", err)
		}
		if len(children) != perWorker {
			t.Errorf("Expected %d children for worker %d, got %d", perWorker, w, len(children))
		}
	}
}
