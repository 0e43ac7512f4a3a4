package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrChannelClosed is returned by Poll once the channel is closed and all
// buffered batches have been consumed.
var ErrChannelClosed = errors.New("output channel closed")

const defaultChannelBuffer = 32

// OutputChannel is the bounded queue between the engine's producer
// goroutines and the single consumer draining it. Enqueue is safe from
// multiple goroutines; dequeue is meant for exactly one consumer.
type OutputChannel struct {
	ch        chan *Batch
	done      chan struct{}
	closeOnce sync.Once
}

func NewOutputChannel(size int) *OutputChannel {
	if size <= 0 {
		size = defaultChannelBuffer
	}
	return &OutputChannel{
		ch:   make(chan *Batch, size),
		done: make(chan struct{}),
	}
}

// Push enqueues a batch, blocking while the channel is full. It fails when
// the channel has been closed or ctx expires.
func (c *OutputChannel) Push(ctx context.Context, b *Batch) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.ch <- b:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll dequeues the next batch, blocking up to timeout. It returns
// (nil, nil) when the timeout elapses with nothing available, and
// ErrChannelClosed once the channel is closed and drained.
func (c *OutputChannel) Poll(timeout time.Duration) (*Batch, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b := <-c.ch:
		return b, nil
	case <-timer.C:
		return nil, nil
	case <-c.done:
		// drain whatever the producers managed to enqueue before closing
		select {
		case b := <-c.ch:
			return b, nil
		default:
			return nil, ErrChannelClosed
		}
	}
}

// Close marks the channel closed. Buffered batches remain pollable; Push
// fails from now on. Safe to call more than once.
func (c *OutputChannel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Len reports the number of batches currently buffered.
func (c *OutputChannel) Len() int {
	return len(c.ch)
}

// WaitDrained blocks until the buffer is empty or ctx expires. The engine
// uses it on self-completion so already produced batches are not dropped
// before the consumer observed the engine as stopped.
func (c *OutputChannel) WaitDrained(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for len(c.ch) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
