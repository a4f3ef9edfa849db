package fedsearch

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	domsearch "github.com/kailas-cloud/fedsearch/internal/domain/search"
	chiTransport "github.com/kailas-cloud/fedsearch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

const (
	testAPIKey = "sdk-key"
	testKey    = Key("9c0e7a51-3f2d-4b8e-a6c1-0d4f2e8b7a93")
)

// --- search service fake ---

// fakeSearch completes a search after a fixed number of polls.
type fakeSearch struct {
	mu        sync.Mutex
	submitted []Request
	polls     int
	doneAfter int
	cancelled []Key
	matchFn   func(req searchuc.MatchRequest) ([]bool, error)
}

func (f *fakeSearch) Submit(_ context.Context, req domsearch.Request) (Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(req.Tables) == 0 {
		return "", domain.ErrInvalidRequest
	}
	f.submitted = append(f.submitted, req)
	return testKey, nil
}

func (f *fakeSearch) Poll(_ context.Context, key Key) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key != testKey {
		return Response{}, domain.ErrNotFound
	}
	f.polls++
	resp := Response{
		Key:        key,
		Highlights: []string{},
		Results:    []TableResult{{ComponentID: "users", Fields: []string{"UserId"}, TotalResults: f.polls}},
		Complete:   f.polls >= f.doneAfter,
	}
	return resp, nil
}

func (f *fakeSearch) Cancel(_ context.Context, key Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key != testKey {
		return domain.ErrNotFound
	}
	f.cancelled = append(f.cancelled, key)
	return nil
}

func (f *fakeSearch) Match(_ context.Context, req searchuc.MatchRequest) ([]bool, error) {
	return f.matchFn(req)
}

type nopExecutor struct{}

func (nopExecutor) Execute(context.Context, cluster.NodeSearchRequest, cluster.ResultFunc) error {
	return nil
}

func (nopExecutor) Terminate(string) int { return 0 }

type fakeHealth struct{ status healthuc.Status }

func (f fakeHealth) Check(context.Context) healthuc.Report {
	return healthuc.Report{Status: f.status, Node: "n1", Checks: map[string]healthuc.CheckResult{"redis": healthuc.CheckOK}}
}

// newTestNode serves the real HTTP API over the fakes.
func newTestNode(t *testing.T, search *fakeSearch, health healthuc.Status) *httptest.Server {
	t.Helper()
	server := chiTransport.NewServer(search, nopExecutor{}, fakeHealth{status: health}, zap.NewNop())
	r := chi.NewRouter()
	r.Use(chiTransport.BearerAuthMiddleware([]string{testAPIKey}))
	server.Routes(r, "")
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithAPIKey(testAPIKey), WithPollInterval(time.Millisecond)}, opts...)
	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}
