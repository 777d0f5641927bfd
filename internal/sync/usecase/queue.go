package usecase

import (
	"context"
	"log"
)

// Trigger asks for one sync run of one account.
type Trigger struct {
	AccountID string
	// Source records what requested the run: webhook, poll, manual, initial.
	Source string
}

// TriggerQueue is a two-tier buffered queue. Webhook-driven triggers take the
// urgent tier and are drained before scheduled polls. Enqueue never blocks;
// when a tier is full the trigger is dropped, which is safe because the next
// poll cycle re-covers the account.
type TriggerQueue struct {
	urgent chan Trigger
	normal chan Trigger
}

func NewTriggerQueue(size int) *TriggerQueue {
	return &TriggerQueue{
		urgent: make(chan Trigger, size),
		normal: make(chan Trigger, size),
	}
}

func (q *TriggerQueue) Enqueue(t Trigger, isUrgent bool) bool {
	ch := q.normal
	if isUrgent {
		ch = q.urgent
	}
	select {
	case ch <- t:
		return true
	default:
		log.Printf("[SyncQueue] Queue full, dropping %s trigger for account %s", t.Source, t.AccountID)
		return false
	}
}

// Dequeue blocks until a trigger is available or the context ends. The urgent
// tier always wins when both have work.
func (q *TriggerQueue) Dequeue(ctx context.Context) (Trigger, bool) {
	select {
	case t := <-q.urgent:
		return t, true
	default:
	}
	select {
	case t := <-q.urgent:
		return t, true
	case t := <-q.normal:
		return t, true
	case <-ctx.Done():
		return Trigger{}, false
	}
}
