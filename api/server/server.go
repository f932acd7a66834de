package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ValentinKolb/dTree/api/common"
	"github.com/ValentinKolb/dTree/lib/node"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("api")

// headerRevision carries the revision a write of PUT /node asserts.
const headerRevision = "X-Assert-Revision"

// headerTid carries the transaction id of a request.
const headerTid = "X-Tid"

// Server exposes a node.Storage over HTTP.
type Server struct {
	storage *node.Storage
	config  common.ServerConfig

	// requests counts the handled requests per route
	requests *xsync.MapOf[string, *xsync.Counter]
}

// NewServer creates an HTTP server for the given storage.
func NewServer(storage *node.Storage, config common.ServerConfig) *Server {
	return &Server{
		storage:  storage,
		config:   config,
		requests: xsync.NewMapOf[string, *xsync.Counter](),
	}
}

// Handler returns the routing table of the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	routes := map[string]http.HandlerFunc{
		"GET /node/{path...}":     s.handleGet,
		"PUT /node/{path...}":     s.handleSet,
		"PATCH /node/{path...}":   s.handleUpdate,
		"DELETE /node/{path...}":  s.handleRemove,
		"GET /info/{path...}":     s.handleInfo,
		"GET /children/{path...}": s.handleChildren,
		"GET /metrics":            s.handleMetrics,
		"GET /debug/locks":        s.handleLocks,
		"GET /debug/requests":     s.handleRequests,
	}
	for pattern, h := range routes {
		h = s.countRequests(pattern, h)
		if common.DebugEnabled(s.config.LogLevel) {
			h = loggerMiddleware(h)
		}
		mux.HandleFunc(pattern, h)
	}
	return mux
}

// Listen serves the API on the configured endpoint until ctx is done.
func (s *Server) Listen(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.Endpoint,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting HTTP server on %s", s.config.Endpoint)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Infof("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

// --------------------------------------------------------------------------
// Node Handlers
// --------------------------------------------------------------------------

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := node.GetOptions{
		Include: q["include"],
		Exclude: q["exclude"],
		Tid:     r.Header.Get(headerTid),
	}
	if v := q.Get("no_child_objects"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid value for no_child_objects")
			return
		}
		opts.NoChildObjects = b
	}

	n, err := s.storage.GetNode(r.Context(), r.PathValue("path"), opts)
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	var value any
	if !readBody(w, r, &value) {
		return
	}
	p := r.PathValue("path")
	opts := node.SetOptions{
		AssertRevision: r.Header.Get(headerRevision),
		Tid:            r.Header.Get(headerTid),
	}
	if err := s.storage.SetNode(r.Context(), p, value, opts); err != nil {
		writeNodeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	if !readBody(w, r, &updates) {
		return
	}
	if updates == nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "request body must be a JSON object")
		return
	}
	opts := node.TxOptions{Tid: r.Header.Get(headerTid)}
	if err := s.storage.UpdateNode(r.Context(), r.PathValue("path"), updates, opts); err != nil {
		writeNodeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	opts := node.TxOptions{Tid: r.Header.Get(headerTid)}
	if err := s.storage.RemoveNode(r.Context(), r.PathValue("path"), opts); err != nil {
		writeNodeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.storage.GetNodeInfo(r.Context(), r.PathValue("path"), node.TxOptions{Tid: r.Header.Get(headerTid)})
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleChildren streams the children as a JSON array. The optional limit query
// parameter stops the enumeration early.
func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := -1
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid value for limit")
			return
		}
		limit = n
	}

	children := make([]node.ChildInfo, 0)
	it := s.storage.GetChildren(r.PathValue("path"), node.ChildrenOptions{
		KeyFilter: q["key"],
		Tid:       r.Header.Get(headerTid),
	})
	if limit != 0 {
		_, err := it.Each(r.Context(), func(c node.ChildInfo) bool {
			children = append(children, c)
			return limit < 0 || len(children) < limit
		})
		if err != nil {
			writeNodeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, children)
}

// --------------------------------------------------------------------------
// Debug Handlers
// --------------------------------------------------------------------------

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}

// handleLocks writes the held locks and the lock statistics.
func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stats") == "true" {
		w.Header().Set("Content-Type", "application/json")
		s.storage.Locks().WriteStats(w)
		return
	}
	writeJSON(w, http.StatusOK, s.storage.Locks().Locks())
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int64)
	s.requests.Range(func(route string, c *xsync.Counter) bool {
		counts[route] = c.Value()
		return true
	})
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) countRequests(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := s.requests.LoadOrCompute(route, xsync.NewCounter)
		c.Inc()
		next(w, r)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// errorResponse is the body of every failed request.
type errorResponse struct {
	Code  string `json:"code"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error"`
}

// statusOf maps a node error code to its HTTP status.
func statusOf(code node.RetCode) int {
	switch code {
	case node.RetCNotFound:
		return http.StatusNotFound
	case node.RetCInvalidValue:
		return http.StatusBadRequest
	case node.RetCRevisionMismatch:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeNodeError(w http.ResponseWriter, err error) {
	var nodeErr *node.Error
	switch {
	case errors.As(err, &nodeErr):
		status := statusOf(nodeErr.Code)
		if status == http.StatusInternalServerError {
			log.Errorf("request failed: %v", err)
		}
		msg := nodeErr.Msg
		if nodeErr.Err != nil {
			msg += ": " + nodeErr.Err.Error()
		}
		writeJSON(w, status, errorResponse{Code: nodeErr.Code.String(), Path: nodeErr.Path, Error: msg})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "Canceled", err.Error())
	default:
		log.Errorf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, node.RetCInternalError.String(), err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("failed to write response: %v", err)
	}
}

// readBody decodes the JSON request body into v. On failure the error response
// is written and false is returned.
func readBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "InvalidRequest", "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		log.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
