package fedsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one fedsearch node. Any node can coordinate a search.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
	obs          *observer
}

// New creates a Client for the node at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("fedsearch: invalid base url %q", baseURL)
	}

	cfg := &clientConfig{httpClient: http.DefaultClient, pollInterval: defaultPollInterval}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       cfg.apiKey,
		http:         cfg.httpClient,
		pollInterval: cfg.pollInterval,
		obs:          obs,
	}, nil
}

// Submit starts a search and returns its key. Submitting a request whose key is
// still known to the node returns that key without starting a new search.
func (c *Client) Submit(ctx context.Context, req Request) (key Key, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search.submit", start, err, "key", key) }()

	var out struct {
		Key Key `json:"key"`
	}
	if err = c.do(ctx, http.MethodPost, "/api/v1/searches", req, &out, http.StatusAccepted); err != nil {
		return "", err
	}
	return out.Key, nil
}

// Poll returns the current state of a search.
func (c *Client) Poll(ctx context.Context, key Key) (resp Response, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search.poll", start, err, "key", key) }()

	err = c.do(ctx, http.MethodGet, "/api/v1/searches/"+url.PathEscape(string(key)), nil, &resp, http.StatusOK)
	return resp, err
}

// Cancel terminates a search on every node and forgets it.
func (c *Client) Cancel(ctx context.Context, key Key) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("search.cancel", start, err, "key", key) }()

	return c.do(ctx, http.MethodDelete, "/api/v1/searches/"+url.PathEscape(string(key)), nil, nil, http.StatusNoContent)
}

// Wait polls until the search completes or ctx is done.
func (c *Client) Wait(ctx context.Context, key Key) (Response, error) {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return Response{}, fmt.Errorf("fedsearch: wait for %s: %w", key, ctx.Err())
		case <-t.C:
		}
		resp, err := c.Poll(ctx, key)
		if err != nil {
			return Response{}, err
		}
		if resp.Complete {
			return resp, nil
		}
		t.Reset(c.pollInterval)
	}
}

// Search submits req and waits for the final response.
func (c *Client) Search(ctx context.Context, req Request) (Response, error) {
	key, err := c.Submit(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return c.Wait(ctx, key)
}

// Match evaluates an expression against each record and reports which ones match.
func (c *Client) Match(ctx context.Context, req MatchRequest) (matches []bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("match", start, err, "records", len(req.Records)) }()

	var out struct {
		Matches []bool `json:"matches"`
	}
	if err = c.do(ctx, http.MethodPost, "/api/v1/match", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

// Health reports the health of the node. An unhealthy node still returns its report.
func (c *Client) Health(ctx context.Context) (h HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	err = c.do(ctx, http.MethodGet, "/health", nil, &h, http.StatusOK, http.StatusServiceUnavailable)
	return h, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, want ...int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("fedsearch: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("fedsearch: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fedsearch: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	ok := false
	for _, s := range want {
		ok = ok || resp.StatusCode == s
	}
	if !ok {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fedsearch: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "unexpected_status"
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// IsNotFound reports whether err means the search key is unknown or expired.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
