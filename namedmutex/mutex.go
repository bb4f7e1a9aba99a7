package namedmutex

import (
	"container/list"
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrLockExpired is the cancellation cause seen by a WithLock body whose grant was
// force-released by the auto-release timer.
var ErrLockExpired = errors.New("namedmutex: lock auto-released after timeout")

// Logger is an interface for optional logging in Mutex.
type Logger interface {
	Printf(format string, args ...any)
}

// Option is a functional option for configuring Mutex.
type Option func(*Mutex)

// WithLogger sets a logger for forced releases.
func WithLogger(logger Logger) Option {
	return func(m *Mutex) {
		m.logger = logger
	}
}

// WithLoggingEnabled logs forced releases with log.Default().
func WithLoggingEnabled() Option {
	return func(m *Mutex) {
		m.logger = log.Default()
	}
}

// WithExpireHook registers a callback invoked after a grant is force-released.
// The callback runs on the timer goroutine and must not block.
func WithExpireHook(hook func(name string)) Option {
	return func(m *Mutex) {
		m.onExpire = hook
	}
}

// Mutex is a table of named FIFO locks. The zero value is not usable; use New.
type Mutex struct {
	mu       sync.Mutex
	locks    map[string]*record
	timeout  time.Duration
	logger   Logger
	onExpire func(name string)
}

type record struct {
	holder  *Handle
	waiters list.List // of *waiter
}

type waiter struct {
	ready   chan *Handle
	granted bool
}

// Handle represents one grant of a named lock.
type Handle struct {
	m        *Mutex
	name     string
	rec      *record
	timer    *time.Timer
	released bool
	expired  chan struct{}
}

// New creates a Mutex. A positive timeout enables auto-release of every grant.
func New(timeout time.Duration, opts ...Option) *Mutex {
	m := &Mutex{
		locks:   make(map[string]*record),
		timeout: timeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Lock acquires the lock for name, queueing behind earlier callers.
// It returns an error only if ctx ends before the lock is granted.
func (m *Mutex) Lock(ctx context.Context, name string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	rec, ok := m.locks[name]
	if !ok {
		rec = &record{}
		m.locks[name] = rec
	}

	if rec.holder == nil {
		h := m.grantLocked(name, rec)
		m.mu.Unlock()
		return h, nil
	}

	w := &waiter{ready: make(chan *Handle, 1)}
	elem := rec.waiters.PushBack(w)
	m.mu.Unlock()

	select {
	case h := <-w.ready:
		return h, nil
	case <-ctx.Done():
	}

	m.mu.Lock()
	if !w.granted {
		rec.waiters.Remove(elem)
		m.mu.Unlock()
		return nil, ctx.Err()
	}
	m.mu.Unlock()

	// Granted while we were giving up: pass the lock on.
	h := <-w.ready
	h.Unlock()
	return nil, ctx.Err()
}

// grantLocked hands the record to a new Handle. m.mu must be held.
func (m *Mutex) grantLocked(name string, rec *record) *Handle {
	h := &Handle{
		m:       m,
		name:    name,
		rec:     rec,
		expired: make(chan struct{}),
	}
	rec.holder = h

	if m.timeout > 0 {
		h.timer = time.AfterFunc(m.timeout, func() {
			h.release(true)
		})
	}

	return h
}

// Unlock releases the grant. Calls after the first, and calls after an auto-release,
// are no-ops.
func (h *Handle) Unlock() {
	h.release(false)
}

// Expired is closed when the grant was force-released by the auto-release timer.
func (h *Handle) Expired() <-chan struct{} {
	return h.expired
}

// Name returns the lock name of the grant.
func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) release(forced bool) {
	m := h.m

	m.mu.Lock()
	if h.released {
		m.mu.Unlock()
		return
	}
	h.released = true
	if h.timer != nil {
		h.timer.Stop()
	}

	rec := h.rec
	rec.holder = nil
	if front := rec.waiters.Front(); front != nil {
		next := rec.waiters.Remove(front).(*waiter)
		next.granted = true
		next.ready <- m.grantLocked(h.name, rec)
	} else if m.locks[h.name] == rec {
		delete(m.locks, h.name)
	}
	m.mu.Unlock()

	if !forced {
		return
	}

	if m.logger != nil {
		m.logger.Printf("namedmutex: lock %q auto-released after %s", h.name, m.timeout)
	}
	if m.onExpire != nil {
		m.onExpire(h.name)
	}
	close(h.expired)
}

// WithLock runs fn while holding the lock for name and releases it on every exit path,
// including panics. The context passed to fn is cancelled with ErrLockExpired if the
// grant is force-released before fn returns.
func (m *Mutex) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	h, err := m.Lock(ctx, name)
	if err != nil {
		return err
	}
	defer h.Unlock()

	lockCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	go func() {
		select {
		case <-h.expired:
			cancel(ErrLockExpired)
		case <-lockCtx.Done():
		}
	}()

	return fn(lockCtx)
}

// Do is the value-returning form of WithLock.
func Do[T any](ctx context.Context, m *Mutex, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := m.WithLock(ctx, name, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// Held reports whether name currently has a holder.
func (m *Mutex) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.locks[name]
	return ok && rec.holder != nil
}

// Waiting returns the number of callers queued for name.
func (m *Mutex) Waiting(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.locks[name]
	if !ok {
		return 0
	}
	return rec.waiters.Len()
}

// Len returns the number of live lock records.
func (m *Mutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.locks)
}
