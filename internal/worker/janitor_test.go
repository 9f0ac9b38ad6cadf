package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingCleaner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingCleaner) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingCleaner) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeLock is an in-memory DistributedLock shared by several janitors.
type fakeLock struct {
	mu         sync.Mutex
	held       map[string]bool
	acquireErr error
	releases   int
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (l *fakeLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.held[name] {
		return false, nil
	}
	l.held[name] = true
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	l.releases++
	return nil
}

func (l *fakeLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	return nil
}

func (l *fakeLock) Ping(ctx context.Context) error {
	return nil
}

func TestNewJanitor_Defaults(t *testing.T) {
	j := NewJanitor(JanitorConfig{
		Cleaners: map[string]Cleaner{"states": &countingCleaner{}, "missing": nil},
	})

	if j.interval != 5*time.Minute {
		t.Errorf("interval: got %v", j.interval)
	}
	if j.lockTTL != 2*time.Minute {
		t.Errorf("lockTTL: got %v", j.lockTTL)
	}
	if len(j.names) != 1 || j.names[0] != "states" {
		t.Errorf("names: got %v", j.names)
	}
}

func TestJanitor_SweepRunsEveryCleaner(t *testing.T) {
	states := &countingCleaner{err: errors.New("db down")}
	staging := &countingCleaner{}
	lock := newFakeLock()

	j := NewJanitor(JanitorConfig{
		Cleaners: map[string]Cleaner{"states": states, "staging": staging},
		Lock:     lock,
	})

	if !j.Sweep(context.Background()) {
		t.Fatal("expected sweep to run")
	}
	if states.Calls() != 1 || staging.Calls() != 1 {
		t.Errorf("calls: states=%d staging=%d", states.Calls(), staging.Calls())
	}
	if lock.releases != 1 {
		t.Errorf("lock released %d times, want 1", lock.releases)
	}
	if lock.held[janitorLockName] {
		t.Error("lock still held after sweep")
	}
}

func TestJanitor_SkipsWhenLockHeld(t *testing.T) {
	lock := newFakeLock()
	lock.held[janitorLockName] = true
	states := &countingCleaner{}

	j := NewJanitor(JanitorConfig{Cleaners: map[string]Cleaner{"states": states}, Lock: lock})

	if j.Sweep(context.Background()) {
		t.Error("expected sweep to be skipped")
	}
	if states.Calls() != 0 {
		t.Errorf("cleaner called %d times", states.Calls())
	}
}

func TestJanitor_SkipsOnLockError(t *testing.T) {
	lock := newFakeLock()
	lock.acquireErr = errors.New("redis unavailable")
	states := &countingCleaner{}

	j := NewJanitor(JanitorConfig{Cleaners: map[string]Cleaner{"states": states}, Lock: lock})

	if j.Sweep(context.Background()) {
		t.Error("expected sweep to be skipped")
	}
	if states.Calls() != 0 {
		t.Errorf("cleaner called %d times", states.Calls())
	}
}

func TestJanitor_WithoutLock(t *testing.T) {
	states := &countingCleaner{}
	j := NewJanitor(JanitorConfig{Cleaners: map[string]Cleaner{"states": states}})

	if !j.Sweep(context.Background()) {
		t.Fatal("expected sweep to run")
	}
	if states.Calls() != 1 {
		t.Errorf("cleaner called %d times", states.Calls())
	}
}

func TestJanitor_StartStop(t *testing.T) {
	states := &countingCleaner{}
	j := NewJanitor(JanitorConfig{
		Cleaners: map[string]Cleaner{"states": states},
		Interval: 10 * time.Millisecond,
	})

	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Starting twice is a no-op.
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for states.Calls() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if states.Calls() < 2 {
		t.Errorf("expected repeated sweeps, got %d", states.Calls())
	}

	j.Stop()
	j.Stop()

	after := states.Calls()
	time.Sleep(30 * time.Millisecond)
	if states.Calls() != after {
		t.Error("janitor swept after Stop")
	}
}

func TestJanitor_StopsOnContextCancel(t *testing.T) {
	j := NewJanitor(JanitorConfig{
		Cleaners: map[string]Cleaner{"states": &countingCleaner{}},
		Interval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		j.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}
