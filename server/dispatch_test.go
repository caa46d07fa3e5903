package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func dispatchers() map[string]func() Dispatcher {
	return map[string]func() Dispatcher{
		"pool":  func() Dispatcher { return NewWorkerPool(2) },
		"tasks": func() Dispatcher { return NewTaskGroup() },
	}
}

func TestDispatcherRunsEveryJob(t *testing.T) {
	for name, newDispatcher := range dispatchers() {
		t.Run(name, func(t *testing.T) {
			d := newDispatcher()
			var ran atomic.Int32
			for i := 0; i < 50; i++ {
				if err := d.Submit(func() { ran.Add(1) }); err != nil {
					t.Fatalf("Submit: %v", err)
				}
			}
			d.Stop()

			if ran.Load() != 50 {
				t.Errorf("Expected 50 jobs to run, got %d", ran.Load())
			}
			if d.Pending() != 0 {
				t.Errorf("Expected no pending jobs after Stop, got %d", d.Pending())
			}
		})
	}
}

func TestDispatcherSubmitAfterStop(t *testing.T) {
	for name, newDispatcher := range dispatchers() {
		t.Run(name, func(t *testing.T) {
			d := newDispatcher()
			d.Stop()
			if err := d.Submit(func() {}); !errors.Is(err, ErrDispatcherStopped) {
				t.Errorf("Expected ErrDispatcherStopped, got %v", err)
			}
		})
	}
}

func TestDispatcherStopIsIdempotent(t *testing.T) {
	for name, newDispatcher := range dispatchers() {
		t.Run(name, func(t *testing.T) {
			d := newDispatcher()
			done := make(chan struct{})
			go func() {
				d.Stop()
				d.Stop()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("Stop on an idle dispatcher did not return")
			}
		})
	}
}

func TestDispatcherSurvivesPanics(t *testing.T) {
	for name, newDispatcher := range dispatchers() {
		t.Run(name, func(t *testing.T) {
			d := newDispatcher()
			var mu sync.Mutex
			var recovered []any
			onPanic := func(v any) {
				mu.Lock()
				recovered = append(recovered, v)
				mu.Unlock()
			}
			switch d := d.(type) {
			case *WorkerPool:
				d.OnPanic = onPanic
			case *TaskGroup:
				d.OnPanic = onPanic
			}

			var ran atomic.Int32
			for i := 0; i < 4; i++ {
				_ = d.Submit(func() { panic("job failed") })
				_ = d.Submit(func() { ran.Add(1) })
			}
			d.Stop()

			if ran.Load() != 4 {
				t.Errorf("Expected healthy jobs to keep running, got %d", ran.Load())
			}
			mu.Lock()
			defer mu.Unlock()
			if len(recovered) != 4 || recovered[0] != "job failed" {
				t.Errorf("Expected 4 recovered panics, got %v", recovered)
			}
		})
	}
}

func TestWorkerPoolQueuesBeyondWorkers(t *testing.T) {
	pool := NewWorkerPool(2)
	release := make(chan struct{})
	var started atomic.Int32

	for i := 0; i < 6; i++ {
		if err := pool.Submit(func() {
			started.Add(1)
			<-release
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for started.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if got := started.Load(); got != 2 {
		t.Errorf("Expected only 2 jobs running on 2 workers, got %d", got)
	}
	if pool.Pending() != 6 {
		t.Errorf("Expected 6 pending jobs, got %d", pool.Pending())
	}

	close(release)
	pool.Stop()
	if started.Load() != 6 {
		t.Errorf("Expected Stop to drain the queue, got %d", started.Load())
	}
}

func TestWorkerPoolRunsInOrder(t *testing.T) {
	pool := NewWorkerPool(1)
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		_ = pool.Submit(func() { order = append(order, i) })
	}
	pool.Stop()

	for i, v := range order {
		if v != i {
			t.Fatalf("Expected FIFO order, got %v", order)
		}
	}
}

func TestNewWorkerPoolRejectsZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for zero-size pool")
		}
	}()
	NewWorkerPool(0)
}

func TestTaskGroupRunsConcurrently(t *testing.T) {
	group := NewTaskGroup()
	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	release := make(chan struct{})

	for i := 0; i < n; i++ {
		_ = group.Submit(func() {
			wg.Done()
			<-release
		})
	}

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected every task to start without waiting for the others")
	}

	close(release)
	group.Stop()
}
