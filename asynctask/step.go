package asynctask

import (
	"context"
	"time"
)

// OutcomeKind tags how a Step ended.
type OutcomeKind int

const (
	Completed OutcomeKind = iota + 1
	Errored
	Cancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Errored:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of a Step. Cancellation is a kind of its own and never
// carries an error.
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   error
}

// Complete returns a Completed outcome.
func Complete[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: Completed, Value: v}
}

// Fail returns an Errored outcome.
func Fail[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: Errored, Err: err}
}

// Cancel returns a Cancelled outcome.
func Cancel[T any]() Outcome[T] {
	return Outcome[T]{Kind: Cancelled}
}

// Step is one cancellable unit of asynchronous work.
type Step[T any] func(ctx context.Context) Outcome[T]

// From adapts a plain function into a Step that reports Cancelled when ctx is done
// before it starts or by the time it returns.
func From[T any](fn func(ctx context.Context) (T, error)) Step[T] {
	return func(ctx context.Context) Outcome[T] {
		if ctx.Err() != nil {
			return Cancel[T]()
		}

		v, err := fn(ctx)
		if ctx.Err() != nil {
			return Cancel[T]()
		}
		if err != nil {
			return Fail[T](err)
		}
		return Complete(v)
	}
}

// Then runs fn on the value of step. Failure and cancellation of step short-circuit.
func Then[A, B any](step Step[A], fn func(ctx context.Context, v A) (B, error)) Step[B] {
	return func(ctx context.Context) Outcome[B] {
		out := step(ctx)
		switch out.Kind {
		case Cancelled:
			return Cancel[B]()
		case Errored:
			return Fail[B](out.Err)
		}

		return From(func(ctx context.Context) (B, error) {
			return fn(ctx, out.Value)
		})(ctx)
	}
}

// Delay waits d before running step. A ctx ending during the wait yields Cancelled.
func Delay[T any](d time.Duration, step Step[T]) Step[T] {
	return func(ctx context.Context) Outcome[T] {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return Cancel[T]()
		case <-timer.C:
		}

		return step(ctx)
	}
}
