package usecase

import (
	"context"
	"testing"
	"time"
)

func TestTriggerQueueUrgentFirst(t *testing.T) {
	q := NewTriggerQueue(4)
	q.Enqueue(Trigger{AccountID: "poll-1", Source: "poll"}, false)
	q.Enqueue(Trigger{AccountID: "poll-2", Source: "poll"}, false)
	q.Enqueue(Trigger{AccountID: "hook-1", Source: "webhook"}, true)

	got, ok := q.Dequeue(context.Background())
	if !ok {
		t.Fatal("Dequeue returned no trigger")
	}
	if got.AccountID != "hook-1" {
		t.Errorf("first dequeue = %s, want the urgent trigger hook-1", got.AccountID)
	}
}

func TestTriggerQueueFullDrops(t *testing.T) {
	q := NewTriggerQueue(2)
	if !q.Enqueue(Trigger{AccountID: "a"}, false) {
		t.Fatal("first enqueue should succeed")
	}
	if !q.Enqueue(Trigger{AccountID: "b"}, false) {
		t.Fatal("second enqueue should succeed")
	}
	if q.Enqueue(Trigger{AccountID: "c"}, false) {
		t.Error("enqueue into a full tier must drop, not block")
	}
	// The urgent tier has its own capacity.
	if !q.Enqueue(Trigger{AccountID: "d"}, true) {
		t.Error("urgent enqueue should succeed while normal tier is full")
	}
}

func TestTriggerQueueDequeueHonorsContext(t *testing.T) {
	q := NewTriggerQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := q.Dequeue(ctx)
	if ok {
		t.Error("Dequeue on empty queue returned a trigger")
	}
	if time.Since(start) > time.Second {
		t.Error("Dequeue did not return promptly after context cancellation")
	}
}
