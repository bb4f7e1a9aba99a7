package asynctask

import "fmt"

// Status is the lifecycle phase of a State.
type Status int

const (
	Uninitialized Status = iota
	Loading
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State is the observable value of an asynchronous operation. Loading and Failed states
// may retain the last known value so callers can keep showing it.
type State[T any] struct {
	Status   Status
	Value    T
	HasValue bool
	Err      error
}

// NewLoading returns a Loading state that retains prev's value, if any.
func NewLoading[T any](prev State[T]) State[T] {
	return State[T]{Status: Loading, Value: prev.Value, HasValue: prev.HasValue}
}

// NewSucceeded returns a Succeeded state holding v.
func NewSucceeded[T any](v T) State[T] {
	return State[T]{Status: Succeeded, Value: v, HasValue: true}
}

// NewFailed returns a Failed state carrying err and retaining prev's value, if any.
func NewFailed[T any](err error, prev State[T]) State[T] {
	return State[T]{Status: Failed, Value: prev.Value, HasValue: prev.HasValue, Err: err}
}

// Get returns the current or retained value.
func (s State[T]) Get() (T, bool) {
	return s.Value, s.HasValue
}

// Done reports whether the state is terminal.
func (s State[T]) Done() bool {
	return s.Status == Succeeded || s.Status == Failed
}

func (s State[T]) String() string {
	switch s.Status {
	case Succeeded:
		return fmt.Sprintf("succeeded(%v)", s.Value)
	case Failed:
		return fmt.Sprintf("failed(%v)", s.Err)
	default:
		return s.Status.String()
	}
}
