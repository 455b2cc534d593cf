package paperbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/paperbridge/paperbridge/config"
	"github.com/paperbridge/paperbridge/schemas"
)

type nopLogger struct{}

func (nopLogger) Debug(string) {}
func (nopLogger) Info(string)  {}
func (nopLogger) Warn(string)  {}
func (nopLogger) Error(error)  {}

// newEchoEndpoint serves a model that answers every batched input with an
// element carrying its id, and single calls with a plain object.
func newEchoEndpoint(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		var elements []map[string]any
		for _, msg := range req.Messages {
			if msg.Role != "user" || !strings.HasPrefix(msg.Content, "ID:") {
				continue
			}
			id := msg.Content[len("ID:"):]
			if i := strings.IndexByte(id, '\n'); i >= 0 {
				id = id[:i]
			}
			elements = append(elements, map[string]any{
				"id":             id,
				"summary":        "batched summary",
				"key_points":     []string{"k1", "k2"},
				"recommendation": "read",
			})
		}

		var content string
		if len(elements) > 0 {
			b, _ := json.Marshal(elements)
			content = string(b)
		} else {
			content = `{"summary": "single summary", "key_points": [], "recommendation": "read"}`
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		MaxQueueSize:          100,
		WorkerCount:           1,
		BackpressureThreshold: 0.9,
		BatchSize:             4,
		BatchTimeout:          20 * time.Millisecond,
		MaxInflight:           2,
		CacheTTL:              time.Minute,
		CacheMaxEntries:       1000,
		StoreMaxEntries:       1000,
		Port:                  8000,
		LogLevel:              "info",
		LLM: config.LLMConfig{
			APIURL: apiURL,
			Model:  "test-model",
			APIKey: "test-key",
		},
	}
}

func newTestGateway(t *testing.T, cfg *config.Config) *Gateway {
	t.Helper()
	g, err := Init(cfg, nopLogger{})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	t.Cleanup(g.Shutdown)
	return g
}

func pollDone(t *testing.T, g *Gateway, id string) schemas.Record {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		rec, ok := g.Result(id)
		if ok && rec.Status.Terminal() {
			return rec
		}
		if time.Now().After(deadline) {
			t.Fatalf("request %s never reached a terminal state (status %v)", id, rec.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitPollThenCacheHit(t *testing.T) {
	srv := newEchoEndpoint(t)
	g := newTestGateway(t, testConfig(srv.URL))

	req := &schemas.AnalyzeRequest{
		Title:    "Attention Is All You Need",
		Abstract: "We propose a new architecture based solely on attention.",
	}

	first, err := g.Submit(req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if first.Status != schemas.StatusQueued || first.Cached {
		t.Fatalf("expected fresh queued submission, got %+v", first)
	}

	rec := pollDone(t, g, first.RequestID)
	if rec.Status != schemas.StatusDone {
		t.Fatalf("expected done, got %s (%s)", rec.Status, rec.Error)
	}
	if rec.Result["summary"] != "batched summary" {
		t.Fatalf("unexpected result: %v", rec.Result)
	}

	// An identical submission must resolve from cache under a fresh id.
	second, err := g.Submit(req)
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if !second.Cached || second.Status != schemas.StatusDone {
		t.Fatalf("expected cached done, got %+v", second)
	}
	if second.RequestID == first.RequestID {
		t.Fatal("cached submission must get its own request id")
	}

	cachedRec, ok := g.Result(second.RequestID)
	if !ok {
		t.Fatal("cached submission has no record")
	}
	if cachedRec.Result["summary"] != "batched summary" {
		t.Fatalf("cached record carries wrong result: %v", cachedRec.Result)
	}
	if cachedRec.FinishedAt == nil || !cachedRec.FinishedAt.Equal(cachedRec.QueuedAt) {
		t.Fatalf("cache hit must finish at admission time, got %v / %v", cachedRec.FinishedAt, cachedRec.QueuedAt)
	}

	if got := testutil.ToFloat64(g.Metrics().RequestsCacheHit); got != 1 {
		t.Fatalf("expected requests_cache_hit == 1, got %g", got)
	}
}

func TestSubmitEmptyInput(t *testing.T) {
	srv := newEchoEndpoint(t)
	g := newTestGateway(t, testConfig(srv.URL))

	_, err := g.Submit(&schemas.AnalyzeRequest{})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}

	_, err = g.Submit(&schemas.AnalyzeRequest{Text: "   \n  "})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput for whitespace, got %v", err)
	}
}

func TestSubmitBackpressure(t *testing.T) {
	srv := newEchoEndpoint(t)
	cfg := testConfig(srv.URL)
	cfg.WorkerCount = 0
	cfg.MaxQueueSize = 10
	cfg.BackpressureThreshold = 0.5
	g := newTestGateway(t, cfg)

	// With no workers draining, admissions pile up until the threshold of
	// five queued items rejects the sixth.
	for i := 0; i < 5; i++ {
		_, err := g.Submit(&schemas.AnalyzeRequest{Text: fmt.Sprintf("fragment %d", i)})
		if err != nil {
			t.Fatalf("submission %d rejected early: %v", i, err)
		}
	}
	_, err := g.Submit(&schemas.AnalyzeRequest{Text: "one too many"})
	if !errors.Is(err, ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded, got %v", err)
	}
}

func TestReadiness(t *testing.T) {
	srv := newEchoEndpoint(t)

	g := newTestGateway(t, testConfig(srv.URL))
	if ready := g.Ready(); !ready.Ready || ready.WorkersAlive != 1 {
		t.Fatalf("expected ready with one worker, got %+v", ready)
	}

	cfg := testConfig(srv.URL)
	cfg.WorkerCount = 0
	idle := newTestGateway(t, cfg)
	if ready := idle.Ready(); ready.Ready || ready.Reason != "no-workers" {
		t.Fatalf("expected not ready with reason no-workers, got %+v", ready)
	}
}

func TestHealthReportsQueueAndWorkers(t *testing.T) {
	srv := newEchoEndpoint(t)
	cfg := testConfig(srv.URL)
	cfg.WorkerCount = 0
	g := newTestGateway(t, cfg)

	if _, err := g.Submit(&schemas.AnalyzeRequest{Text: "pending fragment"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	h := g.Health()
	if h.Status != "ok" {
		t.Fatalf("expected ok, got %q", h.Status)
	}
	if h.QueueSize != 1 {
		t.Fatalf("expected queue size 1, got %d", h.QueueSize)
	}
	if h.Workers != 0 {
		t.Fatalf("expected 0 workers, got %d", h.Workers)
	}
}

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		name string
		req  schemas.AnalyzeRequest
		want string
	}{
		{
			"all fields",
			schemas.AnalyzeRequest{Title: "T", Abstract: "A", Text: "body", URL: "http://x"},
			"Title: T\n\nAbstract: A\n\nbody\n\nURL: http://x",
		},
		{
			"text only stays unprefixed",
			schemas.AnalyzeRequest{Text: "just the body"},
			"just the body",
		},
		{
			"title and abstract",
			schemas.AnalyzeRequest{Title: "T", Abstract: "A"},
			"Title: T\n\nAbstract: A",
		},
		{"empty", schemas.AnalyzeRequest{}, ""},
	}
	for _, tc := range cases {
		if got := canonicalize(&tc.req); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestCacheKeyShape(t *testing.T) {
	k1 := CacheKey("Title: T")
	k2 := CacheKey("Title: T")
	k3 := CacheKey("Title: U")

	if !strings.HasPrefix(k1, "analyze:") {
		t.Fatalf("expected analyze: prefix, got %q", k1)
	}
	if len(k1) != len("analyze:")+64 {
		t.Fatalf("expected sha256 hex digest, got %q", k1)
	}
	if k1 != k2 {
		t.Fatal("identical blobs must fingerprint identically")
	}
	if k1 == k3 {
		t.Fatal("distinct blobs must fingerprint distinctly")
	}
}

func TestRequestIDShape(t *testing.T) {
	id := newRequestID()
	if len(id) != 32 {
		t.Fatalf("expected 32 hex chars, got %q", id)
	}
	if strings.Contains(id, "-") {
		t.Fatalf("expected dashes stripped, got %q", id)
	}
	if id == newRequestID() {
		t.Fatal("ids must be unique")
	}
}
