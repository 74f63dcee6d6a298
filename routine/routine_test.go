package routine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/contractflow/logger"
)

func TestRunner_GoNamed(t *testing.T) {
	runner := New(logger.NewNop())

	var executed atomic.Bool
	runner.GoNamed("test-routine", func() {
		executed.Store(true)
	})
	runner.Wait()

	if !executed.Load() {
		t.Error("expected named function to be executed")
	}
	if runner.Running() != 0 {
		t.Errorf("expected 0 running, got %d", runner.Running())
	}
}

func TestRunner_GoNamed_WithPanic(t *testing.T) {
	var mu sync.Mutex
	var panicked []string
	runner := New(logger.NewNop(), WithPanicHandler(func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if !errors.Is(err, ErrPanicRecovered) {
			t.Errorf("expected ErrPanicRecovered, got %v", err)
		}
		panicked = append(panicked, name)
	}))

	var afterPanic atomic.Bool
	runner.GoNamed("panic-routine", func() {
		panic("named panic")
	})
	runner.GoNamed("healthy-routine", func() {
		afterPanic.Store(true)
	})
	runner.Wait()

	if !afterPanic.Load() {
		t.Error("expected goroutine after panic to execute")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(panicked) != 1 || panicked[0] != "panic-routine" {
		t.Errorf("unexpected panic notifications: %v", panicked)
	}
}

func TestRunner_GoNamedWithContext(t *testing.T) {
	runner := New(logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	runner.GoNamedWithContext(ctx, "context-routine", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})

	<-started
	if runner.Running() != 1 {
		t.Errorf("expected 1 running, got %d", runner.Running())
	}
	cancel()
	runner.Wait()
}

func TestRunner_Wait_MultipleGoroutines(t *testing.T) {
	runner := New(logger.NewNop())

	var counter atomic.Int32
	numGoroutines := 100
	for i := 0; i < numGoroutines; i++ {
		runner.GoNamed("worker", func() {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}
	runner.Wait()

	if counter.Load() != int32(numGoroutines) {
		t.Errorf("expected %d executions, got %d", numGoroutines, counter.Load())
	}
}

func TestSafe(t *testing.T) {
	want := errors.New("boom")
	if err := Safe(nil, "plain", func() error { return want }); err != want {
		t.Errorf("expected passthrough error, got %v", err)
	}

	err := Safe(nil, "panicky", func() error { panic("bad") })
	if !errors.Is(err, ErrPanicRecovered) {
		t.Fatalf("expected ErrPanicRecovered, got %v", err)
	}
	if err.Error() != "routine: panic recovered: bad" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestGoNamed_Standalone(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)

	var executed atomic.Bool
	GoNamed(logger.NewNop(), "standalone", func() {
		defer wg.Done()
		executed.Store(true)
	})
	GoNamed(logger.NewNop(), "standalone-panic", func() {
		defer wg.Done()
		panic("standalone panic")
	})
	wg.Wait()

	if !executed.Load() {
		t.Error("expected standalone named function to execute")
	}
}
