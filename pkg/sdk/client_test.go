package fedsearch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

func userRequest() Request {
	return Request{
		DataSource: DataSource("5f1c8a9e-0d2b-4c3a-8e7f-6b5a4c3d2e1f"),
		Expression: And(Term("UserId", Equals, "user5")),
		Tables: []Table{{
			ComponentID:   "users",
			Columns:       []Column{{Name: "user", Field: "UserId"}},
			ExtractValues: true,
			Pipeline:      Pipeline("7d0e2a61-9b3c-4f5e-8a1d-2c6b4e9f0a37"),
		}},
	}
}

func TestNew_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8080", "://x"} {
		if _, err := New(u); err == nil {
			t.Errorf("New(%q): expected error", u)
		}
	}
}

func TestSearch_SubmitAndWait(t *testing.T) {
	fake := &fakeSearch{doneAfter: 3}
	c := newTestClient(t, newTestNode(t, fake, healthuc.Healthy))

	resp, err := c.Search(context.Background(), userRequest())
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Complete || resp.Key != testKey {
		t.Fatalf("resp = %+v", resp)
	}
	users, ok := resp.Table("users")
	if !ok || users.TotalResults != 3 {
		t.Errorf("users = %+v", users)
	}
	if len(fake.submitted) != 1 {
		t.Fatalf("submitted %d", len(fake.submitted))
	}
	if got := fake.submitted[0].Expression.String(); got != userRequest().Expression.String() {
		t.Errorf("expression round trip = %s", got)
	}
}

func TestWait_ContextDone(t *testing.T) {
	fake := &fakeSearch{doneAfter: 1 << 30}
	c := newTestClient(t, newTestNode(t, fake, healthuc.Healthy))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Wait(ctx, testKey); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestErrors(t *testing.T) {
	fake := &fakeSearch{}
	c := newTestClient(t, newTestNode(t, fake, healthuc.Healthy))
	ctx := context.Background()

	_, err := c.Submit(ctx, Request{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 || !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("submit err = %v", err)
	}

	other := Key("00000000-0000-4000-8000-000000000000")
	if _, err := c.Poll(ctx, other); !IsNotFound(err) {
		t.Errorf("poll err = %v", err)
	}
	if err := c.Cancel(ctx, other); !IsNotFound(err) {
		t.Errorf("cancel err = %v", err)
	}

	unauth, err := New(c.baseURL)
	if err != nil {
		t.Fatal(err)
	}
	_, err = unauth.Poll(ctx, testKey)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Errorf("unauthenticated err = %v", err)
	}
}

func TestCancel(t *testing.T) {
	fake := &fakeSearch{}
	c := newTestClient(t, newTestNode(t, fake, healthuc.Healthy))
	if err := c.Cancel(context.Background(), testKey); err != nil {
		t.Fatal(err)
	}
	if len(fake.cancelled) != 1 {
		t.Errorf("cancelled = %v", fake.cancelled)
	}
}

func TestMatch(t *testing.T) {
	fake := &fakeSearch{matchFn: func(req searchuc.MatchRequest) ([]bool, error) {
		out := make([]bool, len(req.Records))
		for i, r := range req.Records {
			out[i] = r["UserId"] == "user5"
		}
		return out, nil
	}}
	c := newTestClient(t, newTestNode(t, fake, healthuc.Healthy))

	got, err := c.Match(context.Background(), MatchRequest{
		DataSource: DataSource("5f1c8a9e-0d2b-4c3a-8e7f-6b5a4c3d2e1f"),
		Expression: Term("UserId", Equals, "user5"),
		Records:    []map[string]any{{"UserId": "user5"}, {"UserId": "user6"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("matches = %v", got)
	}
}

func TestHealth(t *testing.T) {
	for _, status := range []healthuc.Status{healthuc.Healthy, healthuc.Unhealthy} {
		c := newTestClient(t, newTestNode(t, &fakeSearch{}, status))
		h, err := c.Health(context.Background())
		if err != nil {
			t.Fatalf("%s: %v", status, err)
		}
		if h.Status != string(status) || h.Node != "n1" || h.Checks["redis"] != "ok" {
			t.Errorf("health = %+v", h)
		}
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var obs *observer
	obs.observe("test", time.Now(), nil)
	obs.observe("test", time.Now(), errors.New("err"))
}

func TestObserver_WithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := &fakeSearch{doneAfter: 1}
	c := newTestClient(t, newTestNode(t, fake, healthuc.Healthy), WithPrometheus(reg), WithLogger(slog.Default()))

	if _, err := c.Search(context.Background(), userRequest()); err != nil {
		t.Fatal(err)
	}
	_, _ = c.Poll(context.Background(), "00000000-0000-4000-8000-000000000000")

	if n := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("search.submit", "ok")); n != 1 {
		t.Errorf("submit ok = %v", n)
	}
	if n := testutil.ToFloat64(c.obs.metrics.operations.WithLabelValues("search.poll", "error")); n != 1 {
		t.Errorf("poll error = %v", n)
	}

	// A second client on the same registry reuses the collectors.
	if _, err := New("http://localhost:1", WithPrometheus(reg)); err != nil {
		t.Fatalf("second client: %v", err)
	}
}
