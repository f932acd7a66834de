package rbackend

import (
	"bytes"
	"slices"
	"testing"

	"github.com/ValentinKolb/dTree/lib/backend"
	"github.com/ValentinKolb/dTree/lib/backend/rbackend/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func newTestStateMachine() *TreeStateMachine {
	return CreateStateMachineFactory()(1, 1).(*TreeStateMachine)
}

func entry(index uint64, cmd internal.Command) sm.Entry {
	return sm.Entry{Index: index, Cmd: cmd.Serialize()}
}

func TestUpdateAndLookup(t *testing.T) {
	fsm := newTestStateMachine()

	entries, err := fsm.Update([]sm.Entry{
		entry(1, internal.Command{Type: internal.CommandTSet, Paths: []string{""}, Value: []byte("root")}),
		entry(2, internal.Command{Type: internal.CommandTSet, Paths: []string{"users"}, Value: []byte("u")}),
		entry(3, internal.Command{Type: internal.CommandTSet, Paths: []string{"users/ann"}, Value: []byte("ann")}),
		entry(4, internal.Command{Type: internal.CommandTSet, Paths: []string{"users/bob"}, Value: []byte("bob")}),
		entry(5, internal.Command{Type: internal.CommandTRemove, Paths: []string{"users/bob"}}),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	for i, e := range entries {
		if e.Result.Value != uint64(backend.RetCSuccess) {
			t.Errorf("entry %d failed: %s", i, e.Result.Data)
		}
	}

	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTGet, Path: "users/ann"})
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if qr := res.(internal.QueryResult); !qr.Ok || string(qr.Value) != "ann" {
		t.Errorf("unexpected result %+v", qr)
	}

	res, _ = fsm.Lookup(internal.Query{Type: internal.QueryTGet, Path: "users/bob"})
	if res.(internal.QueryResult).Ok {
		t.Errorf("users/bob should be removed")
	}

	res, _ = fsm.Lookup(internal.Query{Type: internal.QueryTChildrenOf, Path: ""})
	if children := res.([]string); !slices.Equal(children, []string{"users"}) {
		t.Errorf("unexpected children of root: %v", children)
	}

	res, _ = fsm.Lookup(internal.Query{Type: internal.QueryTDescendantsOf, Path: ""})
	if descendants := res.([]string); len(descendants) != 2 {
		t.Errorf("unexpected descendants of root: %v", descendants)
	}

	res, _ = fsm.Lookup(internal.Query{Type: internal.QueryTGetMultiple, Paths: []string{"", "users", "nope"}})
	if records := res.(map[string][]byte); len(records) != 2 {
		t.Errorf("unexpected records: %v", records)
	}
}

func TestUpdateInvalidEntries(t *testing.T) {
	fsm := newTestStateMachine()

	entries, err := fsm.Update([]sm.Entry{
		{Index: 1, Cmd: nil},
		{Index: 2, Cmd: []byte{1, 2}},
		entry(3, internal.Command{Type: internal.CommandType(42), Paths: []string{"a"}}),
		entry(4, internal.Command{Type: internal.CommandTSet, Paths: []string{"a", "b"}}),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	expected := []backend.RetCode{
		backend.RetCInvalidOperation,
		backend.RetCInternalError,
		backend.RetCInvalidOperation,
		backend.RetCInvalidOperation,
	}
	for i, e := range entries {
		if e.Result.Value != uint64(expected[i]) {
			t.Errorf("entry %d: result code %d, want %d", i, e.Result.Value, expected[i])
		}
	}

	if _, err := fsm.Lookup("no query"); err == nil {
		t.Errorf("expected error for invalid query type")
	}
}

func TestRemoveMultipleCommand(t *testing.T) {
	fsm := newTestStateMachine()
	_, _ = fsm.Update([]sm.Entry{
		entry(1, internal.Command{Type: internal.CommandTSet, Paths: []string{"a"}, Value: []byte("1")}),
		entry(2, internal.Command{Type: internal.CommandTSet, Paths: []string{"a/b"}, Value: []byte("2")}),
		entry(3, internal.Command{Type: internal.CommandTSet, Paths: []string{"c"}, Value: []byte("3")}),
		entry(4, internal.Command{Type: internal.CommandTRemoveMultiple, Paths: []string{"a", "a/b"}}),
	})

	res, _ := fsm.Lookup(internal.Query{Type: internal.QueryTDescendantsOf, Path: ""})
	if descendants := res.([]string); !slices.Equal(descendants, []string{"c"}) {
		t.Errorf("unexpected records after RemoveMultiple: %v", descendants)
	}
}

func TestSnapshot(t *testing.T) {
	src := newTestStateMachine()
	_, _ = src.Update([]sm.Entry{
		entry(1, internal.Command{Type: internal.CommandTSet, Paths: []string{"a"}, Value: []byte("1")}),
		entry(2, internal.Command{Type: internal.CommandTSet, Paths: []string{"b[0]"}, Value: []byte("2")}),
	})

	var buf bytes.Buffer
	ctx, err := src.PrepareSnapshot()
	if err != nil {
		t.Fatalf("PrepareSnapshot failed: %v", err)
	}
	if err := src.SaveSnapshot(ctx, &buf, nil, nil); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	dst := newTestStateMachine()
	if err := dst.RecoverFromSnapshot(&buf, nil, nil); err != nil {
		t.Fatalf("RecoverFromSnapshot failed: %v", err)
	}
	res, _ := dst.Lookup(internal.Query{Type: internal.QueryTGet, Path: "b[0]"})
	if qr := res.(internal.QueryResult); !qr.Ok || string(qr.Value) != "2" {
		t.Errorf("unexpected record after recovery: %+v", qr)
	}
}
