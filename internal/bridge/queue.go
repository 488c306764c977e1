package bridge

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueClosed is returned when pushing after Close.
	ErrQueueClosed = errors.New("prompt queue closed")
	// ErrQueueConsumed is returned when the queue is consumed a second time.
	ErrQueueConsumed = errors.New("prompt queue already consumed")
)

// PromptQueue is an unbounded FIFO feeding prompts into a streaming request.
// It supports exactly one producer and one consumer; the producer pushes any
// number of messages and then closes, the consumer drains via a single
// Consume pass.
type PromptQueue struct {
	mu       sync.Mutex
	items    []Message
	closed   bool
	consumed bool
	// signal wakes a suspended consumer. Capacity one: repeated pushes
	// coalesce and the consumer re-checks state after every wake.
	signal chan struct{}
}

// NewPromptQueue constructs an empty open queue.
func NewPromptQueue() *PromptQueue {
	return &PromptQueue{signal: make(chan struct{}, 1)}
}

// Push appends a message. Pushing after Close is a usage error.
func (q *PromptQueue) Push(message Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, message)
	q.wake()
	return nil
}

// Close marks the sequence complete. A suspended consumer observes the end
// of the sequence; further pushes fail. Close is idempotent.
func (q *PromptQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.wake()
}

// wake nudges the consumer; must be called with the lock held.
func (q *PromptQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Consume claims the queue's single consumption pass and returns a cursor.
// A second call fails: the queue feeds exactly one streaming request.
func (q *PromptQueue) Consume() (*QueueCursor, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.consumed {
		return nil, ErrQueueConsumed
	}
	q.consumed = true
	return &QueueCursor{queue: q}, nil
}

// QueueCursor drains a PromptQueue in push order.
type QueueCursor struct {
	queue *PromptQueue
}

// Next returns the next message, suspending until one is pushed or the
// queue closes. ok is false at end of sequence. Context cancellation stops
// the iteration and leaves the queue closed so the producer cannot keep
// accumulating messages nobody will read.
func (c *QueueCursor) Next(ctx context.Context) (Message, bool, error) {
	q := c.queue
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			message := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return message, true, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Message{}, false, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			q.Close()
			return Message{}, false, ctx.Err()
		case <-q.signal:
		}
	}
}

// Cancel abandons the iteration early, closing the queue.
func (c *QueueCursor) Cancel() {
	c.queue.Close()
}
