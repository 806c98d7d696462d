package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	wp := NewWorkerPool(3, 0, zerolog.Nop())
	if err := wp.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var done atomic.Int32
	for i := 0; i < 20; i++ {
		if err := wp.Submit("count", func() { done.Add(1) }); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if err := wp.Submit("panic", func() { panic("boom") }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := wp.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := done.Load(); got != 20 {
		t.Errorf("completed tasks = %d, want 20", got)
	}
	if err := wp.Submit("late", func() {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Submit() after Stop error = %v, want ErrPoolStopped", err)
	}
	if err := wp.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestWorkerPoolFullQueue(t *testing.T) {
	wp := NewWorkerPool(1, 1, zerolog.Nop())
	wp.submitTimeout = 20 * time.Millisecond

	// Not started: the single slot fills and the next submit times out.
	if err := wp.Submit("a", func() {}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := wp.Submit("b", func() {}); !errors.Is(err, ErrPoolFull) {
		t.Errorf("Submit() on full queue error = %v, want ErrPoolFull", err)
	}
	if n := wp.GetQueueLength(); n != 1 {
		t.Errorf("GetQueueLength() = %d, want 1", n)
	}
}
