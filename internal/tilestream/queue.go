package tilestream

import (
	"context"
	"fmt"
)

// Queue hands decoded events from the consumer goroutines to the frame
// thread. Push blocks while the queue is full so Kafka offsets are only
// committed for events that were queued.
type Queue struct {
	ch chan Event
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{ch: make(chan Event, size)}
}

func (q *Queue) Push(ctx context.Context, ev Event) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tilestream queue push: %w", ctx.Err())
	}
}

// TryPop never blocks.
func (q *Queue) TryPop() (Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		return Event{}, false
	}
}

func (q *Queue) Len() int { return len(q.ch) }
