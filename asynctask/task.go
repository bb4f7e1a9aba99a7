package asynctask

import (
	"context"
	"sync"
)

// Task holds the state of a repeatable Step. Each Refresh cancels the previous run and
// starts a new one whose Loading state retains the last known value.
type Task[T any] struct {
	step    Step[T]
	observe Observer[T]

	mu     sync.Mutex
	state  State[T]
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTask creates a Task in the Uninitialized state. observe may be nil.
func NewTask[T any](step Step[T], observe Observer[T]) *Task[T] {
	return &Task[T]{step: step, observe: observe}
}

// Refresh cancels any running step and starts a new run under ctx. The returned channel
// receives the run's outcome and is then closed.
func (t *Task[T]) Refresh(ctx context.Context) <-chan Outcome[T] {
	runCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	gen := t.gen
	t.cancel = cancel
	prev := t.state
	t.mu.Unlock()

	done := make(chan Outcome[T], 1)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(done)
		defer cancel()

		done <- Execute(runCtx, prev, t.step, func(s State[T]) {
			t.mu.Lock()
			current := gen == t.gen
			if current {
				t.state = s
			}
			t.mu.Unlock()

			if current && t.observe != nil {
				t.observe(s)
			}
		})
	}()

	return done
}

// State returns the latest state.
func (t *Task[T]) State() State[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Close cancels the running step and waits for it to return.
func (t *Task[T]) Close() {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.gen++
	t.mu.Unlock()

	t.wg.Wait()
}
