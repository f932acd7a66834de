package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/ValentinKolb/dTree/api/common"
	"github.com/ValentinKolb/dTree/api/server"
	"github.com/ValentinKolb/dTree/lib/backend/mbackend"
	"github.com/ValentinKolb/dTree/lib/node"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	storage, err := node.Open(context.Background(), mbackend.NewMemoryBackend(), node.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	srv := httptest.NewServer(server.NewServer(storage, common.ServerConfig{}).Handler())
	c, err := New(Config{Endpoints: []string{srv.URL}, TimeoutSecond: 5, RetryCount: 2})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		srv.Close()
		_ = storage.Close()
	})
	return c
}

func TestClientRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	value := map[string]any{"name": "Ann", "tags": []any{"a", "b"}}
	if err := c.SetNode(ctx, "users/ann", value, node.SetOptions{}); err != nil {
		t.Fatalf("SetNode failed: %v", err)
	}
	n, err := c.GetNode(ctx, "users/ann", node.GetOptions{})
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if !reflect.DeepEqual(n.Value, value) {
		t.Errorf("Expected %v, got %v", value, n.Value)
	}

	if err := c.UpdateNode(ctx, "users/ann", map[string]any{"tags": nil}, node.TxOptions{}); err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}
	n, err = c.GetNode(ctx, "users/ann", node.GetOptions{})
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if !reflect.DeepEqual(n.Value, map[string]any{"name": "Ann"}) {
		t.Errorf("Unexpected value after update: %v", n.Value)
	}

	info, err := c.GetNodeInfo(ctx, "users/ann/name", node.TxOptions{})
	if err != nil {
		t.Fatalf("GetNodeInfo failed: %v", err)
	}
	if !info.Exists || !info.Inline || info.Address != "users/ann" {
		t.Errorf("Unexpected info: %+v", info)
	}

	children, err := c.GetChildren(ctx, "users", node.ChildrenOptions{}, -1)
	if err != nil {
		t.Fatalf("GetChildren failed: %v", err)
	}
	if len(children) != 1 || children[0].Key != "ann" {
		t.Errorf("Unexpected children: %+v", children)
	}

	root, err := c.GetNode(ctx, "", node.GetOptions{NoChildObjects: true})
	if err != nil {
		t.Fatalf("GetNode of the root failed: %v", err)
	}
	if !reflect.DeepEqual(root.Value, map[string]any{}) {
		t.Errorf("Expected no scalar children of the root, got %v", root.Value)
	}
}

func TestClientErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.GetNode(ctx, "missing", node.GetOptions{}); !errors.Is(err, node.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := c.RemoveNode(ctx, "", node.TxOptions{}); !errors.Is(err, node.ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue, got %v", err)
	}
	if err := c.SetNode(ctx, "doc", map[string]any{"a": 1}, node.SetOptions{AssertRevision: "nope"}); !errors.Is(err, node.ErrRevisionMismatch) {
		t.Errorf("Expected ErrRevisionMismatch, got %v", err)
	}
}

func TestNewClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Errorf("Expected an error without endpoints")
	}
	c, err := New(Config{Endpoints: []string{"localhost:8080/"}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := c.serverURLs[0].String(); got != "http://localhost:8080" {
		t.Errorf("Unexpected endpoint %s", got)
	}
}
