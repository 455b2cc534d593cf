package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paperbridge/paperbridge/schemas"
)

func item(id string) *schemas.Item {
	return &schemas.Item{ID: id, Text: "text-" + id}
}

func TestQueueFIFO(t *testing.T) {
	q := New(8)
	for i := 0; i < 3; i++ {
		if !q.TryPut(item(fmt.Sprintf("i%d", i))) {
			t.Fatalf("put %d rejected", i)
		}
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := q.Take(ctx)
		if err != nil {
			t.Fatalf("take failed: %v", err)
		}
		if want := fmt.Sprintf("i%d", i); got.ID != want {
			t.Fatalf("expected %s, got %s", want, got.ID)
		}
	}
}

func TestQueueTryPutRejectsAtCapacity(t *testing.T) {
	q := New(2)
	if !q.TryPut(item("a")) || !q.TryPut(item("b")) {
		t.Fatal("puts below capacity must be accepted")
	}
	if q.TryPut(item("c")) {
		t.Fatal("put at capacity must be rejected")
	}
	if q.Size() != 2 {
		t.Fatalf("expected size 2, got %d", q.Size())
	}
}

func TestQueueTakeWithDeadlineExpires(t *testing.T) {
	q := New(2)

	start := time.Now()
	_, err := q.TakeWithDeadline(context.Background(), 30*time.Millisecond)
	if !errors.Is(err, ErrDeadlineExpired) {
		t.Fatalf("expected ErrDeadlineExpired, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("deadline returned too early: %s", elapsed)
	}
}

func TestQueueTakeWithNonPositiveDeadlinePolls(t *testing.T) {
	q := New(2)

	if _, err := q.TakeWithDeadline(context.Background(), 0); !errors.Is(err, ErrDeadlineExpired) {
		t.Fatalf("expected immediate ErrDeadlineExpired, got %v", err)
	}

	q.TryPut(item("a"))
	got, err := q.TakeWithDeadline(context.Background(), -time.Second)
	if err != nil {
		t.Fatalf("expected queued item despite expired window, got %v", err)
	}
	if got.ID != "a" {
		t.Fatalf("unexpected item: %s", got.ID)
	}
}

func TestQueueTakeHonorsCancellation(t *testing.T) {
	q := New(2)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Take(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Take did not observe cancellation")
	}
}

func TestQueueUnfinishedAccounting(t *testing.T) {
	q := New(4)
	q.TryPut(item("a"))
	q.TryPut(item("b"))

	if n := q.Unfinished(); n != 2 {
		t.Fatalf("expected 2 unfinished, got %d", n)
	}

	if _, err := q.Take(context.Background()); err != nil {
		t.Fatalf("take failed: %v", err)
	}
	if n := q.Unfinished(); n != 2 {
		t.Fatalf("taking must not change unfinished count, got %d", n)
	}

	q.Done()
	if n := q.Unfinished(); n != 1 {
		t.Fatalf("expected 1 unfinished after Done, got %d", n)
	}
}
