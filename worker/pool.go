// Package worker runs the batch-coalescing worker pool: it drains the work
// queue, groups items submitted within a short window into one outbound
// call, demultiplexes the model's response by id, and falls back to
// per-item calls for anything the batch response did not resolve.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paperbridge/paperbridge/cache"
	"github.com/paperbridge/paperbridge/queue"
	"github.com/paperbridge/paperbridge/schemas"
	"github.com/paperbridge/paperbridge/store"
	"github.com/paperbridge/paperbridge/telemetry"
)

// Provider is the outbound dispatcher contract the pool depends on.
type Provider interface {
	Single(ctx context.Context, prompt string) (string, error)
	Batch(ctx context.Context, prompts []string, ids []string) (string, error)
}

// Config holds the pool's tunables.
type Config struct {
	Count        int
	BatchSize    int
	BatchTimeout time.Duration
}

// Pool is a fixed set of symmetric workers. Workers hold no state beyond
// their current batch.
type Pool struct {
	cfg      Config
	queue    *queue.Queue
	store    *store.Store
	cache    *cache.Cache
	provider Provider
	metrics  *telemetry.Metrics
	logger   schemas.Logger

	wg    sync.WaitGroup
	alive atomic.Int64
}

// NewPool wires a pool; Start spawns the workers.
func NewPool(cfg Config, q *queue.Queue, s *store.Store, c *cache.Cache, p Provider, m *telemetry.Metrics, logger schemas.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		queue:    q,
		store:    s,
		cache:    c,
		provider: p,
		metrics:  m,
		logger:   logger,
	}
}

// Start spawns the configured number of workers. They run until ctx is
// cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Count; i++ {
		p.wg.Add(1)
		p.alive.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Alive returns the number of workers currently running.
func (p *Pool) Alive() int {
	return int(p.alive.Load())
}

// Total returns the configured worker count.
func (p *Pool) Total() int {
	return p.cfg.Count
}

func (p *Pool) run(ctx context.Context, idx int) {
	defer p.wg.Done()
	defer p.alive.Add(-1)

	for {
		item, err := p.queue.Take(ctx)
		if err != nil {
			p.logger.Debug(fmt.Sprintf("worker %d exiting: %v", idx, err))
			return
		}
		p.process(ctx, p.coalesce(ctx, item))
	}
}

// batchItem tracks one queued item through a batch attempt.
type batchItem struct {
	item       *schemas.Item
	dequeuedAt time.Time
	resolved   bool
}

// coalesce collects up to BatchSize items inside one BatchTimeout window.
// The first item anchors the window; it does not reset on later arrivals,
// which bounds head-of-line latency to BatchTimeout.
func (p *Pool) coalesce(ctx context.Context, first *schemas.Item) []*batchItem {
	t0 := time.Now()
	batch := []*batchItem{{item: first, dequeuedAt: t0}}

	for len(batch) < p.cfg.BatchSize {
		item, err := p.queue.TakeWithDeadline(ctx, p.cfg.BatchTimeout-time.Since(t0))
		if err != nil {
			break
		}
		batch = append(batch, &batchItem{item: item, dequeuedAt: time.Now()})
	}
	return batch
}

func (p *Pool) process(ctx context.Context, batch []*batchItem) {
	defer func() {
		for range batch {
			p.queue.Done()
		}
	}()

	for _, bi := range batch {
		p.store.MarkProcessing(bi.item.ID)
	}
	p.metrics.InFlight.Add(float64(len(batch)))
	defer p.metrics.InFlight.Sub(float64(len(batch)))

	ids := make([]string, len(batch))
	texts := make([]string, len(batch))
	for i, bi := range batch {
		ids[i] = bi.item.ID
		texts[i] = bi.item.Text
	}

	content, err := p.provider.Batch(ctx, texts, ids)
	if err != nil {
		reason := err.Error()
		if ctx.Err() != nil {
			reason = "cancelled"
		}
		for _, bi := range batch {
			p.fail(bi, reason)
		}
		return
	}

	p.demux(batch, content)

	for _, bi := range batch {
		if !bi.resolved {
			p.fallback(ctx, bi)
		}
	}
}

// demux matches elements of the parsed batch response to items by the id
// each element carries, never by array position. Items the response omits
// stay unresolved and go through per-item fallback.
func (p *Pool) demux(batch []*batchItem, content string) {
	parsed, ok := ExtractJSON(content).([]any)
	if !ok {
		return
	}

	byID := make(map[string]*batchItem, len(batch))
	for _, bi := range batch {
		byID[bi.item.ID] = bi
	}

	for _, el := range parsed {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		result := schemas.AnalysisResult(obj)
		bi := byID[result.ID()]
		if bi == nil || bi.resolved {
			continue
		}
		p.finish(bi, result)
	}
}

// fallback resolves one item via a single call. A response that still does
// not parse is preserved as {"raw": content} and the item terminates done;
// only call failures terminate it as error.
func (p *Pool) fallback(ctx context.Context, bi *batchItem) {
	content, err := p.provider.Single(ctx, bi.item.Text)
	if err != nil {
		reason := err.Error()
		if ctx.Err() != nil {
			reason = "cancelled"
		}
		p.fail(bi, reason)
		return
	}

	switch parsed := ExtractJSON(content).(type) {
	case map[string]any:
		p.finish(bi, schemas.AnalysisResult(parsed))
	case []any:
		// Some models wrap a lone result in a one-element array.
		if len(parsed) == 1 {
			if obj, ok := parsed[0].(map[string]any); ok {
				p.finish(bi, schemas.AnalysisResult(obj))
				return
			}
		}
		p.finish(bi, schemas.RawResult(content))
	default:
		p.finish(bi, schemas.RawResult(content))
	}
}

func (p *Pool) finish(bi *batchItem, result schemas.AnalysisResult) {
	bi.resolved = true
	p.store.MarkDone(bi.item.ID, result, time.Now())
	p.cache.Put(bi.item.CacheKey, result)
	p.metrics.ProcessingLatency.Observe(time.Since(bi.dequeuedAt).Seconds())
}

func (p *Pool) fail(bi *batchItem, reason string) {
	bi.resolved = true
	if p.store.MarkError(bi.item.ID, reason, time.Now()) {
		p.metrics.RequestsErrors.Inc()
	}
	p.metrics.ProcessingLatency.Observe(time.Since(bi.dequeuedAt).Seconds())
}
