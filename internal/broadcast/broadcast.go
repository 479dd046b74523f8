// Package broadcast implements a bounded multi-producer, multi-consumer
// broadcast channel. Every receiver observes messages in publish order; a
// receiver that falls behind the retained window is told how many messages it
// missed and resumes at the oldest retained one.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned by Send after Close, and by Recv once a closed
	// channel has been drained.
	ErrClosed = errors.New("broadcast channel closed")
	// ErrLagged matches any *LaggedError via errors.Is.
	ErrLagged = errors.New("broadcast receiver lagged")
)

// LaggedError reports how many messages a receiver skipped.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast receiver lagged: skipped %d messages", e.Skipped)
}

func (e *LaggedError) Is(target error) bool {
	return target == ErrLagged
}

// Channel is a bounded broadcast channel. The zero value is not usable; call New.
type Channel[T any] struct {
	mu        sync.Mutex
	buf       []T
	head      uint64 // sequence of the oldest retained message
	tail      uint64 // sequence of the next message to be sent
	closed    bool
	notify    chan struct{}
	receivers int
}

// New creates a channel retaining at most capacity messages.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Channel[T]{
		buf:    make([]T, capacity),
		notify: make(chan struct{}),
	}
}

// Capacity returns the number of retained messages.
func (c *Channel[T]) Capacity() int {
	return len(c.buf)
}

// Send publishes v to every current receiver and returns how many there were.
// Sending with no receivers is not an error; the message is still retained.
func (c *Channel[T]) Send(v T) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	c.buf[c.tail%uint64(len(c.buf))] = v
	c.tail++
	if c.tail-c.head > uint64(len(c.buf)) {
		c.head = c.tail - uint64(len(c.buf))
	}

	close(c.notify)
	c.notify = make(chan struct{})
	return c.receivers, nil
}

// Subscribe returns a receiver that observes every message sent after this call.
func (c *Channel[T]) Subscribe() *Receiver[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receivers++
	return &Receiver[T]{ch: c, next: c.tail}
}

// ReceiverCount returns the number of attached receivers.
func (c *Channel[T]) ReceiverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receivers
}

// Close stops further sends. Receivers drain what is retained, then get ErrClosed.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.notify)
}

// Receiver is one subscription to a Channel. It must not be shared between goroutines.
type Receiver[T any] struct {
	ch       *Channel[T]
	next     uint64
	detached bool
}

// Recv blocks until the next message is available, the channel is closed and
// drained, or ctx is done. When the receiver has fallen behind, Recv returns a
// *LaggedError once; the following call returns the oldest retained message.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		r.ch.mu.Lock()
		if r.detached {
			r.ch.mu.Unlock()
			return zero, ErrClosed
		}
		if r.next < r.ch.head {
			skipped := r.ch.head - r.next
			r.next = r.ch.head
			r.ch.mu.Unlock()
			return zero, &LaggedError{Skipped: skipped}
		}
		if r.next < r.ch.tail {
			v := r.ch.buf[r.next%uint64(len(r.ch.buf))]
			r.next++
			r.ch.mu.Unlock()
			return v, nil
		}
		if r.ch.closed {
			r.ch.mu.Unlock()
			return zero, ErrClosed
		}
		wait := r.ch.notify
		r.ch.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// Close detaches the receiver from its channel.
func (r *Receiver[T]) Close() {
	r.ch.mu.Lock()
	defer r.ch.mu.Unlock()

	if r.detached {
		return
	}
	r.detached = true
	r.ch.receivers--
}
