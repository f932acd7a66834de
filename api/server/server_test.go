package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinKolb/dTree/api/common"
	"github.com/ValentinKolb/dTree/lib/backend/mbackend"
	"github.com/ValentinKolb/dTree/lib/node"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	storage, err := node.Open(context.Background(), mbackend.NewMemoryBackend(), node.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	srv := httptest.NewServer(NewServer(storage, common.ServerConfig{LogLevel: "debug"}).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = storage.Close()
	})
	return srv
}

func do(t *testing.T, method, url, body string, header map[string]string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, data
}

func TestNodeLifecycle(t *testing.T) {
	srv := newTestServer(t)

	if status, body := do(t, http.MethodPut, srv.URL+"/node/users", `{"ann":{"name":"Ann","age":31}}`, nil); status != http.StatusNoContent {
		t.Fatalf("PUT failed with %d: %s", status, body)
	}
	if status, body := do(t, http.MethodPatch, srv.URL+"/node/users/ann", `{"age":32,"name":null}`, nil); status != http.StatusNoContent {
		t.Fatalf("PATCH failed with %d: %s", status, body)
	}

	status, body := do(t, http.MethodGet, srv.URL+"/node/users", "", nil)
	if status != http.StatusOK {
		t.Fatalf("GET failed with %d: %s", status, body)
	}
	var n struct {
		Value map[string]any `json:"value"`
	}
	if err := json.Unmarshal(body, &n); err != nil {
		t.Fatalf("Invalid response: %v", err)
	}
	ann, _ := n.Value["ann"].(map[string]any)
	if ann["age"] != float64(32) || ann["name"] != nil {
		t.Errorf("Unexpected value: %s", body)
	}

	if status, body := do(t, http.MethodDelete, srv.URL+"/node/users/ann", "", nil); status != http.StatusNoContent {
		t.Fatalf("DELETE failed with %d: %s", status, body)
	}
	if status, _ := do(t, http.MethodGet, srv.URL+"/node/users/ann", "", nil); status != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", status)
	}
}

func TestErrorStatus(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		header map[string]string
		status int
		code   string
	}{
		{"RootNotObject", http.MethodPut, "/node/", `[1,2]`, nil, http.StatusBadRequest, "InvalidValue"},
		{"RemoveRoot", http.MethodDelete, "/node/", "", nil, http.StatusBadRequest, "InvalidValue"},
		{"InvalidJSON", http.MethodPut, "/node/a", `{`, nil, http.StatusBadRequest, "InvalidRequest"},
		{"UpdateNotObject", http.MethodPatch, "/node/a", `null`, nil, http.StatusBadRequest, "InvalidRequest"},
		{"Missing", http.MethodGet, "/node/missing", "", nil, http.StatusNotFound, "NotFound"},
		{"RevisionMismatch", http.MethodPut, "/node/a", `{"x":1}`, map[string]string{headerRevision: "nope"}, http.StatusConflict, "RevisionMismatch"},
		{"InvalidLimit", http.MethodGet, "/children/?limit=x", "", nil, http.StatusBadRequest, "InvalidRequest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, tt.method, srv.URL+tt.path, tt.body, tt.header)
			if status != tt.status {
				t.Fatalf("Expected status %d, got %d: %s", tt.status, status, body)
			}
			var e errorResponse
			if err := json.Unmarshal(body, &e); err != nil {
				t.Fatalf("Invalid error response: %v", err)
			}
			if e.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, e.Code)
			}
		})
	}
}

func TestInfoAndAssert(t *testing.T) {
	srv := newTestServer(t)
	do(t, http.MethodPut, srv.URL+"/node/doc", `{"text":"`+strings.Repeat("x", 100)+`"}`, nil)

	status, body := do(t, http.MethodGet, srv.URL+"/info/doc", "", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /info failed with %d: %s", status, body)
	}
	var info node.NodeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("Invalid response: %v", err)
	}
	if !info.Exists || info.Inline || info.Revision == "" {
		t.Fatalf("Unexpected info: %+v", info)
	}

	header := map[string]string{headerRevision: info.Revision}
	if status, body := do(t, http.MethodPut, srv.URL+"/node/doc", `{"text":"short"}`, header); status != http.StatusNoContent {
		t.Errorf("Assert with the current revision failed with %d: %s", status, body)
	}
}

func TestChildren(t *testing.T) {
	srv := newTestServer(t)
	do(t, http.MethodPut, srv.URL+"/node/doc", `{"a":1,"b":2,"c":3}`, nil)

	for query, want := range map[string]int{"": 3, "?limit=2": 2, "?limit=0": 0, "?key=b": 1} {
		status, body := do(t, http.MethodGet, srv.URL+"/children/doc"+query, "", nil)
		if status != http.StatusOK {
			t.Fatalf("GET /children%s failed with %d: %s", query, status, body)
		}
		var children []node.ChildInfo
		if err := json.Unmarshal(body, &children); err != nil {
			t.Fatalf("Invalid response: %v", err)
		}
		if len(children) != want {
			t.Errorf("%q: expected %d children, got %d", query, want, len(children))
		}
	}
}

func TestDebugEndpoints(t *testing.T) {
	srv := newTestServer(t)
	do(t, http.MethodGet, srv.URL+"/node/", "", nil)

	if status, body := do(t, http.MethodGet, srv.URL+"/metrics", "", nil); status != http.StatusOK || !strings.Contains(string(body), "dtree_node_ops_total") {
		t.Errorf("Unexpected metrics response %d: %s", status, body)
	}
	if status, body := do(t, http.MethodGet, srv.URL+"/debug/locks", "", nil); status != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("Unexpected locks response %d: %s", status, body)
	}

	status, body := do(t, http.MethodGet, srv.URL+"/debug/requests", "", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /debug/requests failed with %d", status)
	}
	var counts map[string]int64
	if err := json.Unmarshal(body, &counts); err != nil {
		t.Fatalf("Invalid response: %v", err)
	}
	if counts["GET /node/{path...}"] != 1 {
		t.Errorf("Expected one GET /node request, got %v", counts)
	}
}
