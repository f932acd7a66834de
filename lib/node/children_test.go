package node

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestChildrenCancel(t *testing.T) {
	s, _ := newMemStorage(t)
	ctx := context.Background()
	mustSet(t, s, "doc", map[string]any{"a": 1, "b": 2, "c": 3, "d": huge("d")})

	it := s.GetChildren("doc", ChildrenOptions{})
	var visited []string
	canceled, err := it.Each(ctx, func(c ChildInfo) bool {
		visited = append(visited, c.Key)
		return len(visited) < 2
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	if !canceled {
		t.Errorf("Expected the enumeration to be canceled")
	}
	if !reflect.DeepEqual(visited, []string{"a", "b"}) {
		t.Errorf("Expected to visit [a b], got %v", visited)
	}

	if _, err := it.Each(ctx, func(ChildInfo) bool { return true }); !errors.Is(err, ErrIteratorUsed) {
		t.Errorf("Expected ErrIteratorUsed on second use, got %v", err)
	}
	if locks := s.Locks().Locks(); len(locks) != 0 {
		t.Errorf("Expected the lock to be released, got %+v", locks)
	}
}

func TestChildrenOrderAndFilter(t *testing.T) {
	s, _ := newMemStorage(t)
	ctx := context.Background()

	list := make([]any, 12)
	for i := range list {
		list[i] = float64(i)
	}
	list[3] = huge("x")
	list[10] = map[string]any{"k": "v"}
	mustSet(t, s, "list", list)

	var keys []string
	var inline []bool
	_, err := s.GetChildren("list", ChildrenOptions{}).Each(ctx, func(c ChildInfo) bool {
		if !c.IsIndex {
			t.Errorf("Expected index children, got %+v", c)
		}
		keys = append(keys, c.Key)
		inline = append(inline, c.Inline)
		return true
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	wantKeys := []string{"0", "1", "2", "4", "5", "6", "7", "8", "9", "11", "3", "10"}
	if !reflect.DeepEqual(keys, wantKeys) {
		t.Errorf("Expected order %v, got %v", wantKeys, keys)
	}
	for i, in := range inline {
		if in != (i < 10) {
			t.Errorf("Unexpected inline flag for %s: %v", keys[i], in)
		}
	}

	var filtered []string
	_, err = s.GetChildren("list", ChildrenOptions{KeyFilter: []string{"1", "10"}}).Each(ctx, func(c ChildInfo) bool {
		filtered = append(filtered, c.Key)
		return true
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	if !reflect.DeepEqual(filtered, []string{"1", "10"}) {
		t.Errorf("Expected [1 10], got %v", filtered)
	}
}

func TestChildrenNotFound(t *testing.T) {
	s, _ := newMemStorage(t)
	_, err := s.GetChildren("missing", ChildrenOptions{}).Each(context.Background(), func(ChildInfo) bool { return true })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestChildrenMetadata(t *testing.T) {
	s, _ := newMemStorage(t)
	mustSet(t, s, "doc", map[string]any{"big": huge("b")})
	info := mustInfo(t, s, "doc/big")

	var got ChildInfo
	_, err := s.GetChildren("doc", ChildrenOptions{}).Each(context.Background(), func(c ChildInfo) bool {
		got = c
		return false
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	if got.Path != "doc/big" || got.Inline || got.Type != TypeString || got.Value != nil {
		t.Errorf("Unexpected child: %+v", got)
	}
	if got.Revision != info.Revision || got.RevisionNr != info.RevisionNr {
		t.Errorf("Expected revision %s/%d, got %s/%d", info.Revision, info.RevisionNr, got.Revision, got.RevisionNr)
	}
}

func TestChildrenAfterArrayRemoval(t *testing.T) {
	s, _ := newMemStorage(t)
	ctx := context.Background()
	mustSet(t, s, "list", []any{"a", huge("b"), "c"})

	if err := s.RemoveNode(ctx, "list[1]", TxOptions{}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("Expected InvalidValue when removing a middle element, got %v", err)
	}
	if err := s.RemoveNode(ctx, "list[2]", TxOptions{}); err != nil {
		t.Fatalf("RemoveNode failed: %v", err)
	}

	var keys []string
	_, err := s.GetChildren("list", ChildrenOptions{}).Each(ctx, func(c ChildInfo) bool {
		keys = append(keys, c.Key)
		return true
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"0", "1"}) {
		t.Errorf("Expected children [0 1], got %v", keys)
	}
}

func TestChildrenReadMetadataOnly(t *testing.T) {
	s, b := newMemStorage(t)
	ctx := context.Background()
	mustSet(t, s, "doc", map[string]any{"big": map[string]any{"k": huge("k")}})

	// the body of the child can not be decoded, its metadata can
	raw := `{"type":1,"value":{"x":{"type":77,"value":1}},"revision":"r","revision_nr":7,"created":0,"modified":0}`
	if err := b.Set(ctx, "doc/big", []byte(raw)); err != nil {
		t.Fatalf("backend Set failed: %v", err)
	}
	if _, err := s.GetNode(ctx, "doc/big", GetOptions{}); !errors.Is(err, ErrDecode) {
		t.Fatalf("Expected DecodeError for the broken body, got %v", err)
	}

	var got []ChildInfo
	_, err := s.GetChildren("doc", ChildrenOptions{}).Each(ctx, func(c ChildInfo) bool {
		got = append(got, c)
		return true
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	if len(got) != 1 || got[0].Type != TypeObject || got[0].Revision != "r" || got[0].RevisionNr != 7 {
		t.Errorf("Unexpected children: %+v", got)
	}
}
