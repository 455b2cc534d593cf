package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/paperbridge/paperbridge/schemas"
)

func TestStoreCreateAndGet(t *testing.T) {
	s := New(0)
	now := time.Now()

	s.Create("r1", now)

	rec, ok := s.Get("r1")
	if !ok {
		t.Fatal("expected record")
	}
	if rec.Status != schemas.StatusQueued {
		t.Fatalf("expected queued, got %s", rec.Status)
	}
	if !rec.QueuedAt.Equal(now) {
		t.Fatalf("unexpected queued_at: %v", rec.QueuedAt)
	}
	if rec.FinishedAt != nil {
		t.Fatal("expected nil finished_at")
	}

	if _, ok := s.Get("missing"); ok {
		t.Fatal("expected miss for unknown id")
	}
}

func TestStoreCreateDoneTimestampsEqual(t *testing.T) {
	s := New(0)
	now := time.Now()

	s.CreateDone("r1", schemas.AnalysisResult{"summary": "cached"}, now)

	rec, ok := s.Get("r1")
	if !ok {
		t.Fatal("expected record")
	}
	if rec.Status != schemas.StatusDone {
		t.Fatalf("expected done, got %s", rec.Status)
	}
	if rec.FinishedAt == nil || !rec.FinishedAt.Equal(rec.QueuedAt) {
		t.Fatalf("expected finished_at == queued_at, got %v / %v", rec.FinishedAt, rec.QueuedAt)
	}
}

func TestStoreTransitions(t *testing.T) {
	s := New(0)
	s.Create("r1", time.Now())

	if !s.MarkProcessing("r1") {
		t.Fatal("expected processing transition to apply")
	}
	rec, _ := s.Get("r1")
	if rec.Status != schemas.StatusProcessing {
		t.Fatalf("expected processing, got %s", rec.Status)
	}

	if !s.MarkDone("r1", schemas.AnalysisResult{"summary": "s"}, time.Now()) {
		t.Fatal("expected done transition to apply")
	}
	rec, _ = s.Get("r1")
	if rec.Status != schemas.StatusDone {
		t.Fatalf("expected done, got %s", rec.Status)
	}
	if rec.Result["summary"] != "s" {
		t.Fatalf("unexpected result: %v", rec.Result)
	}
}

func TestStoreTerminalIsFinal(t *testing.T) {
	s := New(0)
	s.Create("r1", time.Now())
	s.MarkDone("r1", schemas.AnalysisResult{"summary": "first"}, time.Now())

	if s.MarkError("r1", "late failure", time.Now()) {
		t.Fatal("expected error transition to be rejected after done")
	}
	if s.MarkProcessing("r1") {
		t.Fatal("expected processing transition to be rejected after done")
	}
	if s.MarkDone("r1", schemas.AnalysisResult{"summary": "second"}, time.Now()) {
		t.Fatal("expected second done transition to be rejected")
	}

	rec, _ := s.Get("r1")
	if rec.Result["summary"] != "first" {
		t.Fatalf("terminal record was overwritten: %v", rec.Result)
	}
	if rec.Error != "" {
		t.Fatalf("terminal record gained an error: %q", rec.Error)
	}
}

func TestStoreMarkError(t *testing.T) {
	s := New(0)
	s.Create("r1", time.Now())

	if !s.MarkError("r1", "upstream_error: boom", time.Now()) {
		t.Fatal("expected error transition to apply")
	}
	rec, _ := s.Get("r1")
	if rec.Status != schemas.StatusError {
		t.Fatalf("expected error, got %s", rec.Status)
	}
	if rec.Error != "upstream_error: boom" {
		t.Fatalf("unexpected error message: %q", rec.Error)
	}
}

func TestStoreMarkMissingIsNoop(t *testing.T) {
	s := New(0)
	if s.MarkDone("ghost", schemas.AnalysisResult{}, time.Now()) {
		t.Fatal("expected mark on unknown id to be rejected")
	}
}

func TestStoreEvictsTerminalOnly(t *testing.T) {
	s := New(3)
	now := time.Now()

	// Two terminal records, oldest first.
	s.Create("t1", now)
	s.MarkDone("t1", schemas.AnalysisResult{}, now)
	s.Create("t2", now)
	s.MarkDone("t2", schemas.AnalysisResult{}, now)

	// Pending records push the store over the bound; only terminal records
	// may be evicted for them.
	s.Create("p1", now)
	s.Create("p2", now)

	if _, ok := s.Get("t1"); ok {
		t.Fatal("expected oldest terminal record to be evicted")
	}
	if _, ok := s.Get("p1"); !ok {
		t.Fatal("pending record must never be evicted")
	}
	if _, ok := s.Get("p2"); !ok {
		t.Fatal("pending record must never be evicted")
	}

	// With no terminal records left the store may exceed its bound.
	for i := 0; i < 5; i++ {
		s.Create(fmt.Sprintf("p%d", i+3), now)
	}
	for i := 0; i < 5; i++ {
		if _, ok := s.Get(fmt.Sprintf("p%d", i+3)); !ok {
			t.Fatal("pending record must never be evicted")
		}
	}
}
