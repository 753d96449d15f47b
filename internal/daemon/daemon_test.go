package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"podscribe/internal/instance"
)

type countingRunner struct {
	passes atomic.Int64
	err    error
}

func (r *countingRunner) DiscoverAndProcess(ctx context.Context) (int, error) {
	r.passes.Add(1)
	if r.err != nil {
		return 0, r.err
	}
	return 0, nil
}

func TestRunExecutesPassesUntilCancelled(t *testing.T) {
	runner := &countingRunner{}
	svc := New(runner, 5*time.Millisecond, filepath.Join(t.TempDir(), "svc.lock"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.passes.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 passes, got %d", runner.passes.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("clean shutdown should return nil, got %v", err)
	}
}

func TestRunSurvivesPassErrors(t *testing.T) {
	runner := &countingRunner{err: errors.New("upstream down")}
	svc := New(runner, 5*time.Millisecond, filepath.Join(t.TempDir(), "svc.lock"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.passes.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("failing passes should not stop the loop, got %d", runner.passes.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("pass errors must not surface from Run, got %v", err)
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "svc.lock")
	guard, err := instance.Acquire(lockPath)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	defer guard.Release()

	svc := New(&countingRunner{}, time.Second, lockPath, nil)
	err = svc.Run(context.Background())
	if !errors.Is(err, instance.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}
