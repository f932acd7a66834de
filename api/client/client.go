package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTree/lib/node"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("api")

// Config configures a Client.
type Config struct {
	// Endpoints are the base urls of the dTree servers, requests are distributed round-robin
	Endpoints []string
	// TimeoutSecond is the timeout of a single request
	TimeoutSecond int
	// RetryCount is how many times a request is sent if the server can not be reached
	RetryCount int
}

// Client talks to the HTTP api of one or more dTree servers.
type Client struct {
	serverURLs []*url.URL
	client     *http.Client
	counter    uint32
	retryCount int
}

// New creates a client for the given endpoints.
func New(config Config) (*Client, error) {
	if len(config.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}
	parsedURLs := make([]*url.URL, len(config.Endpoints))
	for i, endpoint := range config.Endpoints {
		endpoint = strings.TrimSpace(endpoint)
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		parsedURLs[i] = u
	}
	retries := config.RetryCount
	if retries < 1 {
		retries = 1
	}
	return &Client{
		serverURLs: parsedURLs,
		client: &http.Client{
			Timeout: time.Duration(config.TimeoutSecond) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
		},
		retryCount: retries,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// --------------------------------------------------------------------------
// Node Operations
// --------------------------------------------------------------------------

func (c *Client) GetNode(ctx context.Context, p string, opts node.GetOptions) (*node.Node, error) {
	q := url.Values{}
	q["include"] = opts.Include
	q["exclude"] = opts.Exclude
	if opts.NoChildObjects {
		q.Set("no_child_objects", "true")
	}
	n := &node.Node{}
	err := c.do(ctx, http.MethodGet, "node", p, q, nil, header(opts.Tid, ""), n)
	return n, err
}

func (c *Client) SetNode(ctx context.Context, p string, value any, opts node.SetOptions) error {
	return c.do(ctx, http.MethodPut, "node", p, nil, value, header(opts.Tid, opts.AssertRevision), nil)
}

func (c *Client) UpdateNode(ctx context.Context, p string, updates map[string]any, opts node.TxOptions) error {
	return c.do(ctx, http.MethodPatch, "node", p, nil, updates, header(opts.Tid, ""), nil)
}

func (c *Client) RemoveNode(ctx context.Context, p string, opts node.TxOptions) error {
	return c.do(ctx, http.MethodDelete, "node", p, nil, nil, header(opts.Tid, ""), nil)
}

func (c *Client) GetNodeInfo(ctx context.Context, p string, opts node.TxOptions) (*node.NodeInfo, error) {
	info := &node.NodeInfo{}
	err := c.do(ctx, http.MethodGet, "info", p, nil, nil, header(opts.Tid, ""), info)
	return info, err
}

// GetChildren lists the children of p. A negative limit returns all children.
func (c *Client) GetChildren(ctx context.Context, p string, opts node.ChildrenOptions, limit int) ([]node.ChildInfo, error) {
	q := url.Values{}
	q["key"] = opts.KeyFilter
	if limit >= 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var children []node.ChildInfo
	err := c.do(ctx, http.MethodGet, "children", p, q, nil, header(opts.Tid, ""), &children)
	return children, err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func header(tid, revision string) http.Header {
	h := http.Header{}
	if tid != "" {
		h.Set("X-Tid", tid)
	}
	if revision != "" {
		h.Set("X-Assert-Revision", revision)
	}
	return h
}

// errorResponse mirrors the error body of the server.
type errorResponse struct {
	Code  string `json:"code"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

// retCodeOf maps the name of a return code back to the code.
func retCodeOf(name string) node.RetCode {
	for code := node.RetCSuccess; code <= node.RetCInternalError; code++ {
		if code.String() == name {
			return code
		}
	}
	return node.RetCInternalError
}

// do sends one request and decodes the JSON response into out (if not nil).
func (c *Client) do(ctx context.Context, method, route, p string, q url.Values, body any, h http.Header, out any) error {
	var payload []byte
	if body != nil || method == http.MethodPut {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	// Select the next server via round-robin
	idx := atomic.AddUint32(&c.counter, 1) % uint32(len(c.serverURLs))
	requestURL := c.serverURLs[idx].JoinPath(route, p)
	if !strings.HasSuffix(requestURL.Path, "/") && p == "" {
		requestURL.Path += "/"
	}
	requestURL.RawQuery = q.Encode()

	var resp *http.Response
	var err error
	for i := 0; i < c.retryCount; i++ {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, method, requestURL.String(), bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header = h.Clone()
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if resp, err = c.client.Do(req); err == nil {
			break
		}
		log.Debugf("request to %s failed (attempt %d): %v", requestURL.Host, i+1, err)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Errorf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e errorResponse
		if err := json.Unmarshal(data, &e); err != nil || e.Code == "" {
			return fmt.Errorf("http error: %s", resp.Status)
		}
		if e.Path == "" {
			e.Path = p
		}
		return &node.Error{Code: retCodeOf(e.Code), Path: e.Path, Msg: e.Error}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
