package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestShutdownRunsHooksInPriorityOrder(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: time.Second})

	var mu sync.Mutex
	var order []string
	record := func(name string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	h.RegisterHook("store", 90, record("store"))
	h.RegisterHook("http", 10, record("http"))
	h.RegisterHook("worker", 20, record("worker"))

	h.Start()
	h.Shutdown()
	if !h.WaitWithTimeout(2 * time.Second) {
		t.Fatal("shutdown did not complete")
	}

	want := []string{"http", "worker", "store"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("ran %d hooks, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("hook %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestShutdownContinuesPastFailingHook(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: time.Second})

	ran := false
	h.RegisterHook("bad", 10, func(ctx context.Context) error {
		return errors.New("flush failed")
	})
	h.RegisterHook("good", 20, func(ctx context.Context) error {
		ran = true
		return nil
	})

	h.Start()
	h.Shutdown()
	if !h.WaitWithTimeout(2 * time.Second) {
		t.Fatal("shutdown did not complete")
	}
	if !ran {
		t.Error("later hook skipped after failure")
	}
}

func TestShutdownBeforeStartIsNoop(t *testing.T) {
	h := NewShutdownHandler(nil)
	h.Shutdown() // must not panic or block

	select {
	case <-h.Done():
		t.Error("done closed without Start")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGracefulServerMarksNotReadyOnShutdown(t *testing.T) {
	g := NewGracefulServer(nil, &ShutdownConfig{Timeout: time.Second})
	g.Shutdown.Start()
	g.Health.SetReady(true)

	g.Shutdown.Shutdown()
	if !g.Shutdown.WaitWithTimeout(2 * time.Second) {
		t.Fatal("shutdown did not complete")
	}

	// ShutdownCh consumers run async; allow the readiness flip to land.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		g.Health.mu.RLock()
		ready := g.Health.ready
		g.Health.mu.RUnlock()
		if !ready {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("health server still ready after shutdown")
}

func TestPrebuiltHooks(t *testing.T) {
	stopped := false
	hook := TemporalWorkerShutdownHook(func() { stopped = true })
	if hook.Priority != 20 {
		t.Errorf("worker hook priority = %d", hook.Priority)
	}
	if err := hook.Fn(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !stopped {
		t.Error("stop function not called")
	}

	closed := false
	store := ConversationStoreShutdownHook(func() error { closed = true; return nil })
	if err := store.Fn(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !closed {
		t.Error("close function not called")
	}
}
