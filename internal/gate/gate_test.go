package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAcquireUpToCapacity(t *testing.T) {
	g := New(2)
	ctx := context.Background()

	t1, err := g.Acquire(ctx)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	t2, err := g.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	// Third acquire must block until a release.
	ctx3, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := g.Acquire(ctx3); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected third acquire to block, got err=%v", err)
	}

	if err := g.Release(t1); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	t3, err := g.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	g.Release(t2)
	g.Release(t3)
}

func TestFIFOOrder(t *testing.T) {
	g := New(1)
	ctx := context.Background()

	held, err := g.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	const waiters = 5
	order := make(chan int, waiters)
	var done sync.WaitGroup

	for i := 0; i < waiters; i++ {
		done.Add(1)
		i := i
		go func() {
			defer done.Done()
			tok, err := g.Acquire(ctx)
			if err != nil {
				t.Errorf("waiter %d failed: %v", i, err)
				return
			}
			order <- i
			g.Release(tok)
		}()
		// Each goroutine must be queued before the next one launches, or
		// arrival order is undefined.
		waitForWaiters(t, g, i+1)
	}

	g.Release(held)
	done.Wait()
	close(order)

	want := 0
	for got := range order {
		if got != want {
			t.Fatalf("waiter %d was granted out of order (expected %d)", got, want)
		}
		want++
	}
}

func waitForWaiters(t *testing.T, g *Gate, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		queued := len(g.waiters)
		g.mu.Unlock()
		if queued >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d queued waiters", n)
}

func TestReleaseUnheldToken(t *testing.T) {
	g := New(1)

	if err := g.Release(nil); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld for nil token, got %v", err)
	}
	if err := g.Release(&Token{g: g}); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld for foreign token, got %v", err)
	}

	tok, _ := g.Acquire(context.Background())
	if err := g.Release(tok); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := g.Release(tok); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld on double release, got %v", err)
	}
}

func TestCloseWithActiveHolders(t *testing.T) {
	g := New(1)
	tok, _ := g.Acquire(context.Background())

	if err := g.Close(); !errors.Is(err, ErrActiveHolders) {
		t.Fatalf("expected ErrActiveHolders, got %v", err)
	}

	g.Release(tok)
	if err := g.Close(); err != nil {
		t.Fatalf("close after drain failed: %v", err)
	}
	if _, err := g.Acquire(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestAcquireCancelledWhileWaiting(t *testing.T) {
	g := New(1)
	held, _ := g.Acquire(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx)
		errCh <- err
	}()
	waitForWaiters(t, g, 1)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The slot must still be grantable after the cancelled waiter left.
	g.Release(held)
	tok, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after cancelled waiter failed: %v", err)
	}
	g.Release(tok)
}

func TestWithPermitReleasesOnError(t *testing.T) {
	g := New(1)
	wantErr := errors.New("boom")

	err := g.WithPermit(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}

	tok, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("permit was not released after error: %v", err)
	}
	g.Release(tok)
}

func TestWithPermitReleasesOnPanic(t *testing.T) {
	g := New(1)

	func() {
		defer func() { recover() }()
		g.WithPermit(context.Background(), func(ctx context.Context) error {
			panic("boom")
		})
	}()

	tok, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("permit was not released after panic: %v", err)
	}
	g.Release(tok)
}
