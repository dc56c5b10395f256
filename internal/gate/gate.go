// Package gate provides a counting permit gate that limits concurrent
// in-flight calls to the aggregation provider. The provider misbehaves
// under concurrent requests from the same credential, so the process runs a
// single global gate with capacity 1.
package gate

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotHeld is returned when releasing a token that is not currently held.
	ErrNotHeld = errors.New("gate: token not held")
	// ErrClosed is returned when acquiring from a closed gate.
	ErrClosed = errors.New("gate: closed")
	// ErrActiveHolders is returned when closing a gate with active holders.
	ErrActiveHolders = errors.New("gate: active holders")
)

// Token represents one held permit. Tokens are not reusable across gates.
type Token struct {
	g *Gate
}

// Gate is a FIFO counting permit gate. Waiters are granted freed slots in
// arrival order; there is no priority beyond that.
type Gate struct {
	capacity int

	mu      sync.Mutex
	holders map[*Token]struct{}
	waiters []chan *Token
	closed  bool
}

// New creates a gate admitting at most capacity concurrent holders.
// Capacity below 1 is treated as 1.
func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		capacity: capacity,
		holders:  make(map[*Token]struct{}),
	}
}

// Acquire blocks until a permit is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) (*Token, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	// Fast path only when nobody is queued, so a free slot can never jump
	// the FIFO line.
	if len(g.holders) < g.capacity && len(g.waiters) == 0 {
		t := &Token{g: g}
		g.holders[t] = struct{}{}
		g.mu.Unlock()
		return t, nil
	}

	grant := make(chan *Token, 1)
	g.waiters = append(g.waiters, grant)
	g.mu.Unlock()

	select {
	case t := <-grant:
		return t, nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.waiters {
			if w == grant {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		g.mu.Unlock()
		// The grant raced with cancellation; hand the slot back.
		t := <-grant
		_ = g.Release(t)
		return nil, ctx.Err()
	}
}

// Release frees the permit held by t and hands the slot to the
// longest-waiting queued acquirer, if any.
func (g *Gate) Release(t *Token) error {
	if t == nil {
		return ErrNotHeld
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.holders[t]; !held {
		return ErrNotHeld
	}
	delete(g.holders, t)

	if len(g.waiters) > 0 {
		grant := g.waiters[0]
		g.waiters = g.waiters[1:]
		next := &Token{g: g}
		g.holders[next] = struct{}{}
		grant <- next
	}
	return nil
}

// Close marks the gate unusable. Closing while permits are held is an
// error; the caller is responsible for draining first.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.holders) > 0 {
		return ErrActiveHolders
	}
	g.closed = true
	return nil
}

// WithPermit runs fn while holding a permit, releasing it on every exit
// path including panics.
func (g *Gate) WithPermit(ctx context.Context, fn func(ctx context.Context) error) error {
	t, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer g.Release(t)
	return fn(ctx)
}
