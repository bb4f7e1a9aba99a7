package asynctask

import "context"

// Observer receives state transitions. It is called on the goroutine running the task.
type Observer[T any] func(State[T])

// Execute drives observe through Loading and then Succeeded or Failed for one run of step.
//
// If ctx is already done nothing is emitted. If ctx is done by the time step returns the
// result is dropped and Cancelled is returned; only Loading was observed. prev supplies
// the value retained by the Loading and Failed states.
func Execute[T any](ctx context.Context, prev State[T], step Step[T], observe Observer[T]) Outcome[T] {
	if ctx.Err() != nil {
		return Cancel[T]()
	}

	emit(observe, NewLoading(prev))

	out := step(ctx)
	if ctx.Err() != nil || out.Kind == Cancelled {
		return Cancel[T]()
	}

	switch out.Kind {
	case Completed:
		emit(observe, NewSucceeded(out.Value))
	case Errored:
		emit(observe, NewFailed(out.Err, prev))
	}
	return out
}

// ExecuteStream drives observe through Loading and then one Succeeded per value passed to
// emit. A non-nil error from stream ends with Failed retaining the last value. Values
// emitted after ctx is done are dropped, and a cancelled stream emits no terminal state.
// stream must not call emit concurrently or after it returns.
//
// The returned outcome carries the last emitted value.
func ExecuteStream[T any](
	ctx context.Context,
	prev State[T],
	stream func(ctx context.Context, emit func(T)) error,
	observe Observer[T],
) Outcome[T] {
	if ctx.Err() != nil {
		return Cancel[T]()
	}

	last := prev
	emitOne := func(v T) {
		if ctx.Err() != nil {
			return
		}
		last = NewSucceeded(v)
		emit(observe, last)
	}

	emit(observe, NewLoading(prev))

	err := stream(ctx, emitOne)
	if ctx.Err() != nil {
		return Cancel[T]()
	}
	if err != nil {
		emit(observe, NewFailed(err, last))
		return Fail[T](err)
	}
	return Outcome[T]{Kind: Completed, Value: last.Value}
}

func emit[T any](observe Observer[T], s State[T]) {
	if observe != nil {
		observe(s)
	}
}
