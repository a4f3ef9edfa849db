package cluster

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Internal API paths served by every node.
const (
	NodeSearchPath = "/internal/v1/node-search"
	TerminatePath  = "/internal/v1/terminate"
)

// NodeAPIKeyHeader carries the shared key on node-to-node requests.
const NodeAPIKeyHeader = "X-Node-Key"

// ResultFunc receives node results in the order the node sent them.
type ResultFunc func(NodeResult) error

// NodeClient reaches the search API of any node.
type NodeClient interface {
	Search(ctx context.Context, node Node, req NodeSearchRequest, fn ResultFunc) error
	Terminate(ctx context.Context, node Node, ancestorID string) (int, error)
}

// Executor runs node searches in-process.
type Executor interface {
	Execute(ctx context.Context, req NodeSearchRequest, send ResultFunc) error
	Terminate(ancestorID string) int
}

// HTTPClient talks to nodes over the internal HTTP API. Node results arrive as NDJSON.
type HTTPClient struct {
	http             *http.Client
	key              string
	terminateTimeout time.Duration
}

// NewHTTPClient creates a node client. key is sent in NodeAPIKeyHeader when non-empty.
// timeout bounds terminate calls only; searches live as long as their context.
func NewHTTPClient(key string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{http: &http.Client{}, key: key, terminateTimeout: timeout}
}

// Search streams the results of one node search into fn until the node completes.
func (c *HTTPClient) Search(ctx context.Context, node Node, req NodeSearchRequest, fn ResultFunc) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal node search: %w", err)
	}
	resp, err := c.post(ctx, node, NodeSearchPath, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	complete := false
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var res NodeResult
		if err := json.Unmarshal(line, &res); err != nil {
			return fmt.Errorf("decode result from %s: %w", node.Name, err)
		}
		if err := fn(res); err != nil {
			return err
		}
		if res.Complete {
			complete = true
			break
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read results from %s: %w", node.Name, err)
	}
	if !complete {
		return fmt.Errorf("node %s closed the stream before completing", node.Name)
	}
	return nil
}

// Terminate stops every task of ancestorID on node.
func (c *HTTPClient) Terminate(ctx context.Context, node Node, ancestorID string) (int, error) {
	if c.terminateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.terminateTimeout)
		defer cancel()
	}
	body, err := json.Marshal(TerminateRequest{AncestorID: ancestorID})
	if err != nil {
		return 0, fmt.Errorf("marshal terminate: %w", err)
	}
	resp, err := c.post(ctx, node, TerminatePath, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out TerminateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode terminate response from %s: %w", node.Name, err)
	}
	return out.Terminated, nil
}

func (c *HTTPClient) post(ctx context.Context, node Node, path string, body []byte) (*http.Response, error) {
	if node.URL == "" {
		return nil, fmt.Errorf("node %s has no url", node.Name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(node.URL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", node.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set(NodeAPIKeyHeader, c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", node.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Node: node.Name, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

// StatusError is a non-200 answer from a node.
type StatusError struct {
	Node string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("node %s answered %d: %s", e.Node, e.Code, e.Body)
}

// Router sends requests for the local node to an in-process Executor and the rest over HTTP.
type Router struct {
	local  string
	exec   Executor
	remote NodeClient
}

// NewRouter creates a Router.
func NewRouter(local string, exec Executor, remote NodeClient) *Router {
	return &Router{local: local, exec: exec, remote: remote}
}

// Search implements NodeClient.
func (r *Router) Search(ctx context.Context, node Node, req NodeSearchRequest, fn ResultFunc) error {
	if node.Name == r.local && r.exec != nil {
		return r.exec.Execute(ctx, req, fn)
	}
	if r.remote == nil {
		return errors.New("no remote node client configured")
	}
	return r.remote.Search(ctx, node, req, fn)
}

// Terminate implements NodeClient.
func (r *Router) Terminate(ctx context.Context, node Node, ancestorID string) (int, error) {
	if node.Name == r.local && r.exec != nil {
		return r.exec.Terminate(ancestorID), nil
	}
	if r.remote == nil {
		return 0, errors.New("no remote node client configured")
	}
	return r.remote.Terminate(ctx, node, ancestorID)
}
