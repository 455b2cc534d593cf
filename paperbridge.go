// Package paperbridge implements an asynchronous analysis gateway: text
// fragments submitted by many concurrent clients are admitted into a bounded
// queue, coalesced into batches by a worker pool, dispatched as single
// chat-completion calls to an LLM endpoint, and resolved per item through a
// content-addressed cache and a request store polled by clients.
package paperbridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paperbridge/paperbridge/cache"
	"github.com/paperbridge/paperbridge/config"
	"github.com/paperbridge/paperbridge/providers"
	"github.com/paperbridge/paperbridge/queue"
	"github.com/paperbridge/paperbridge/schemas"
	"github.com/paperbridge/paperbridge/store"
	"github.com/paperbridge/paperbridge/telemetry"
	"github.com/paperbridge/paperbridge/worker"
)

// Admission-time failures. They surface as HTTP errors and leave no record
// in the store.
var (
	// ErrEmptyInput means the request carried no usable text.
	ErrEmptyInput = errors.New("empty_input")
	// ErrOverloaded means admission was refused by backpressure; the client
	// is expected to retry with backoff.
	ErrOverloaded = errors.New("overloaded")
)

// Gateway aggregates the pipeline: cache, store, queue, dispatcher, worker
// pool and metrics. It is constructed once at startup and passed explicitly
// to handlers; there is no process-global state.
type Gateway struct {
	cfg      *config.Config
	cache    *cache.Cache
	store    *store.Store
	queue    *queue.Queue
	provider *providers.OpenAIProvider
	workers  *worker.Pool
	metrics  *telemetry.Metrics
	logger   schemas.Logger
	cancel   context.CancelFunc
}

// Init constructs every component and spawns the worker pool.
func Init(cfg *config.Config, logger schemas.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to initialize the gateway")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NewDefaultLogger(schemas.LogLevelInfo)
	}

	if cfg.LLM.APIKey == "" {
		logger.Warn("LLM_API_KEY not found in environment; set it before making LLM calls")
	}

	logger.Info("starting up: initializing cache, store, queue, dispatcher, and workers")

	g := &Gateway{
		cfg:     cfg,
		cache:   cache.New(cfg.CacheTTL, cfg.CacheMaxEntries, 0),
		store:   store.New(cfg.StoreMaxEntries),
		queue:   queue.New(cfg.MaxQueueSize),
		metrics: telemetry.New(),
		logger:  logger,
	}
	g.provider = providers.NewOpenAIProvider(cfg.LLM, cfg.MaxInflight, logger)
	g.workers = worker.NewPool(worker.Config{
		Count:        cfg.WorkerCount,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}, g.queue, g.store, g.cache, g.provider, g.metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	g.workers.Start(ctx)

	logger.Info(fmt.Sprintf("startup complete, workers started: %d", cfg.WorkerCount))
	return g, nil
}

// Submit admits one analyze request: canonicalize, consult the cache, apply
// backpressure, then create the lifecycle record and enqueue. The record is
// always created before the item reaches the queue.
func (g *Gateway) Submit(req *schemas.AnalyzeRequest) (*schemas.SubmitResult, error) {
	g.metrics.RequestsTotal.Inc()

	blob := canonicalize(req)
	if blob == "" {
		g.metrics.RequestsErrors.Inc()
		return nil, ErrEmptyInput
	}

	key := CacheKey(blob)
	if result, ok := g.cache.Get(key); ok {
		id := newRequestID()
		g.store.CreateDone(id, result, time.Now())
		g.metrics.RequestsCacheHit.Inc()
		return &schemas.SubmitResult{RequestID: id, Status: schemas.StatusDone, Cached: true}, nil
	}

	// The size prior to insertion bounds admission even when admissions
	// race; the absolute cap is the queue's own capacity.
	qsize := g.queue.Size()
	g.metrics.QueueSize.Set(float64(qsize))
	if qsize >= int(float64(g.cfg.MaxQueueSize)*g.cfg.BackpressureThreshold) {
		g.logger.Warn(fmt.Sprintf("queue full (%d), returning 429", qsize))
		return nil, ErrOverloaded
	}

	id := newRequestID()
	now := time.Now()
	g.store.Create(id, now)
	if !g.queue.TryPut(&schemas.Item{ID: id, Text: blob, SubmittedAt: now, CacheKey: key}) {
		// Admissions raced past the threshold to the absolute cap. The
		// record already exists, so terminate it rather than orphan it.
		g.store.MarkError(id, "overloaded", now)
		g.metrics.RequestsErrors.Inc()
		return nil, ErrOverloaded
	}

	g.metrics.RequestsQueued.Inc()
	g.metrics.QueueSize.Set(float64(g.queue.Size()))
	return &schemas.SubmitResult{RequestID: id, Status: schemas.StatusQueued}, nil
}

// Result returns a copy of the lifecycle record for id.
func (g *Gateway) Result(id string) (schemas.Record, bool) {
	return g.store.Get(id)
}

// Health reports liveness along with queue occupancy and worker count.
func (g *Gateway) Health() schemas.HealthStatus {
	return schemas.HealthStatus{
		Status:    "ok",
		QueueSize: g.queue.Size(),
		Workers:   g.workers.Total(),
	}
}

// Ready reports readiness: true iff at least one worker is alive.
func (g *Gateway) Ready() schemas.ReadyStatus {
	total := g.workers.Total()
	alive := g.workers.Alive()
	if total == 0 {
		return schemas.ReadyStatus{Ready: false, Reason: "no-workers"}
	}
	return schemas.ReadyStatus{
		Ready:        alive > 0,
		WorkersAlive: alive,
		TotalWorkers: total,
	}
}

// Metrics exposes the metrics surface for the HTTP layer.
func (g *Gateway) Metrics() *telemetry.Metrics {
	return g.metrics
}

// Shutdown cancels the workers, waits for them to exit, and stops the cache
// janitor. In-flight items are marked cancelled by their worker where
// feasible; the process makes no durability guarantee.
func (g *Gateway) Shutdown() {
	g.logger.Info("shutting down: cancelling worker tasks")
	g.cancel()
	g.workers.Wait()
	g.cache.Close()
	g.logger.Info("shutdown complete")
}

// canonicalize concatenates the non-empty request fields with blank-line
// separators, keeping the field prefixes the analyzer prompt expects.
func canonicalize(req *schemas.AnalyzeRequest) string {
	var parts []string
	if req.Title != "" {
		parts = append(parts, "Title: "+req.Title)
	}
	if req.Abstract != "" {
		parts = append(parts, "Abstract: "+req.Abstract)
	}
	if req.Text != "" {
		parts = append(parts, req.Text)
	}
	if req.URL != "" {
		parts = append(parts, "URL: "+req.URL)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// CacheKey fingerprints a canonicalized text blob.
func CacheKey(blob string) string {
	sum := sha256.Sum256([]byte(blob))
	return "analyze:" + hex.EncodeToString(sum[:])
}

// newRequestID returns an opaque 128-bit hex id.
func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
