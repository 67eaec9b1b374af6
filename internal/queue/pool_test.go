package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/visiongate/visiongate/internal/provider"
)

func newTask(id string) *Task {
	return &Task{ID: id, Request: &provider.Request{TaskID: id, MediaType: "image"}}
}

func TestSubmitAndProcess(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(Config{Capacity: 8, Workers: 2, DrainTimeout: time.Second}, func(ctx context.Context, task *Task) {
		processed.Add(1)
	})

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := pool.Submit(newTask("t")); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if processed.Load() != 5 {
		t.Errorf("Expected 5 processed tasks, got %d", processed.Load())
	}
}

func TestSubmitQueueFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(Config{Capacity: 2, Workers: 1, DrainTimeout: time.Second}, func(ctx context.Context, task *Task) {
		<-release
	})

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		close(release)
		_ = pool.Stop()
	}()

	// First task occupies the worker; wait until it is claimed.
	if err := pool.Submit(newTask("blocker")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for pool.ActiveWorkers() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Worker never claimed the blocking task")
		}
		time.Sleep(time.Millisecond)
	}

	// Fill the queue.
	if err := pool.Submit(newTask("q1")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := pool.Submit(newTask("q2")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	depthBefore := pool.QueueDepth()
	if depthBefore != 2 {
		t.Fatalf("Expected queue depth 2, got %d", depthBefore)
	}

	// At capacity: fail fast, task not silently accepted.
	err := pool.Submit(newTask("overflow"))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
	if pool.QueueDepth() != depthBefore {
		t.Errorf("Rejected submit must leave queue depth unchanged: %d != %d", pool.QueueDepth(), depthBefore)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	pool := NewPool(Config{Capacity: 2, Workers: 1, DrainTimeout: time.Second}, func(ctx context.Context, task *Task) {})

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := pool.Submit(newTask("late")); !errors.Is(err, ErrNotAccepting) {
		t.Errorf("Expected ErrNotAccepting after stop, got %v", err)
	}

	// Stop is idempotent.
	if err := pool.Stop(); err != nil {
		t.Errorf("Second Stop should be a no-op, got %v", err)
	}
}

func TestDoubleStart(t *testing.T) {
	pool := NewPool(Config{Capacity: 1, Workers: 1, DrainTimeout: time.Second}, func(ctx context.Context, task *Task) {})

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = pool.Stop() }()

	if err := pool.Start(context.Background()); err == nil {
		t.Error("Second Start should fail")
	}
}

func TestTaskDeadlinePropagates(t *testing.T) {
	sawDeadline := make(chan bool, 1)
	pool := NewPool(Config{Capacity: 2, Workers: 1, DrainTimeout: time.Second}, func(ctx context.Context, task *Task) {
		_, ok := ctx.Deadline()
		sawDeadline <- ok
	})

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = pool.Stop() }()

	task := newTask("deadline")
	task.Deadline = time.Now().Add(time.Minute)
	if err := pool.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case ok := <-sawDeadline:
		if !ok {
			t.Error("Handler context should carry the task deadline")
		}
	case <-time.After(time.Second):
		t.Fatal("Handler was never invoked")
	}
}

func TestExclusiveOwnership(t *testing.T) {
	var mu sync.Mutex
	claims := make(map[string]int)

	pool := NewPool(Config{Capacity: 64, Workers: 4, DrainTimeout: 2 * time.Second}, func(ctx context.Context, task *Task) {
		mu.Lock()
		claims[task.ID]++
		mu.Unlock()
	})

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		if err := pool.Submit(newTask(fmt.Sprintf("task-%d", i))); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	for id, n := range claims {
		if n != 1 {
			t.Errorf("Task %s claimed %d times, want exactly 1", id, n)
		}
	}
}
