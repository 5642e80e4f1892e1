package queue

import (
	"context"
	"sync"
)

// Memory is a buffered in-process queue. Enqueue blocks while the buffer is
// full.
type Memory struct {
	ch        chan Task
	closeOnce sync.Once
	done      chan struct{}
}

// NewMemory returns a Memory queue holding up to buffer tasks.
func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 256
	}
	return &Memory{ch: make(chan Task, buffer), done: make(chan struct{})}
}

var _ Queue = (*Memory)(nil)

func (m *Memory) Enqueue(ctx context.Context, t Task) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.ch <- t:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-m.ch:
		return &t, nil
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Memory) Len(context.Context) (int, error) {
	return len(m.ch), nil
}

// Close stops accepting and handing out tasks.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
