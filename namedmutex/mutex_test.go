package namedmutex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

type stubLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *stubLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *stubLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// waitForWaiters blocks until name has n queued waiters.
func waitForWaiters(t *testing.T, m *Mutex, name string, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for m.Waiting(name) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d waiters on %q, got %d", n, name, m.Waiting(name))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMutex_LockUnlock(t *testing.T) {
	m := New(0)

	h, err := m.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !m.Held("a") {
		t.Error("expected lock to be held")
	}
	if h.Name() != "a" {
		t.Errorf("expected handle name a, got %s", h.Name())
	}

	h.Unlock()

	if m.Held("a") {
		t.Error("expected lock to be released")
	}
	if m.Len() != 0 {
		t.Errorf("expected no records after release, got %d", m.Len())
	}
}

func TestMutex_IndependentNames(t *testing.T) {
	m := New(0)

	ha, err := m.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock a failed: %v", err)
	}
	defer ha.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	hb, err := m.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock b should not block on a: %v", err)
	}
	hb.Unlock()
}

func TestMutex_FIFOOrder(t *testing.T) {
	m := New(0)
	const waiters = 8

	first, err := m.Lock(context.Background(), "fifo")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	order := make(chan int, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h, err := m.Lock(context.Background(), "fifo")
			if err != nil {
				t.Errorf("waiter %d: Lock failed: %v", id, err)
				return
			}
			order <- id
			h.Unlock()
		}(i)
		waitForWaiters(t, m, "fifo", i+1)
	}

	first.Unlock()
	wg.Wait()
	close(order)

	expected := 0
	for id := range order {
		if id != expected {
			t.Fatalf("expected waiter %d to be granted next, got %d", expected, id)
		}
		expected++
	}

	if m.Len() != 0 {
		t.Errorf("expected no records after last release, got %d", m.Len())
	}
}

func TestMutex_Exclusivity(t *testing.T) {
	m := New(0)
	const goroutines = 32

	var active, maxActive int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			return m.WithLock(ctx, "shared", func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					prev := atomic.LoadInt32(&maxActive)
					if n <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, n) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("WithLock failed: %v", err)
	}

	if maxActive != 1 {
		t.Errorf("expected at most one holder at a time, observed %d", maxActive)
	}
	if m.Len() != 0 {
		t.Errorf("expected no records after last release, got %d", m.Len())
	}
}

func TestHandle_UnlockIdempotent(t *testing.T) {
	m := New(0)

	h, err := m.Lock(context.Background(), "idem")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	granted := make(chan *Handle, 2)
	for i := 0; i < 2; i++ {
		go func() {
			next, err := m.Lock(context.Background(), "idem")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			granted <- next
		}()
		waitForWaiters(t, m, "idem", i+1)
	}

	h.Unlock()
	h.Unlock()

	second := <-granted
	select {
	case <-granted:
		t.Fatal("double unlock must not grant a second waiter")
	case <-time.After(20 * time.Millisecond):
	}

	if !m.Held("idem") {
		t.Error("expected lock to stay held by the transferred grant")
	}
	if m.Waiting("idem") != 1 {
		t.Errorf("expected one remaining waiter, got %d", m.Waiting("idem"))
	}

	second.Unlock()
	(<-granted).Unlock()

	if m.Len() != 0 {
		t.Errorf("expected no records after last release, got %d", m.Len())
	}
}

func TestMutex_AutoRelease(t *testing.T) {
	logger := &stubLogger{}
	var expiredNames []string
	var expiredMu sync.Mutex

	m := New(20*time.Millisecond,
		WithLogger(logger),
		WithExpireHook(func(name string) {
			expiredMu.Lock()
			expiredNames = append(expiredNames, name)
			expiredMu.Unlock()
		}),
	)

	hung, err := m.Lock(context.Background(), "hung")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	next, err := m.Lock(ctx, "hung")
	if err != nil {
		t.Fatalf("waiter should be granted after auto-release: %v", err)
	}

	select {
	case <-hung.Expired():
	default:
		t.Error("expected superseded handle to report expiry")
	}

	// Late release by the superseded holder must not release the new grant.
	hung.Unlock()
	if !m.Held("hung") {
		t.Error("late unlock of expired handle released the current grant")
	}

	next.Unlock()

	if logger.count() == 0 {
		t.Error("expected forced release to be logged")
	}

	expiredMu.Lock()
	defer expiredMu.Unlock()
	if len(expiredNames) != 1 || expiredNames[0] != "hung" {
		t.Errorf("expected expire hook for hung, got %v", expiredNames)
	}
}

func TestMutex_AutoReleaseAppliesToTransfers(t *testing.T) {
	m := New(20 * time.Millisecond)

	first, err := m.Lock(context.Background(), "transfer")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	secondCh := make(chan *Handle, 1)
	go func() {
		h, err := m.Lock(context.Background(), "transfer")
		if err != nil {
			t.Errorf("Lock failed: %v", err)
			return
		}
		secondCh <- h
	}()
	waitForWaiters(t, m, "transfer", 1)

	first.Unlock()
	second := <-secondCh

	select {
	case <-second.Expired():
	case <-time.After(time.Second):
		t.Fatal("transferred grant was never auto-released")
	}

	if m.Len() != 0 {
		t.Errorf("expected record removal after auto-release, got %d", m.Len())
	}
}

func TestMutex_WithLockCancelsExpiredBody(t *testing.T) {
	m := New(20 * time.Millisecond)

	err := m.WithLock(context.Background(), "slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(time.Second):
			return errors.New("body was not cancelled")
		}
	})

	if !errors.Is(err, ErrLockExpired) {
		t.Fatalf("expected ErrLockExpired, got %v", err)
	}
}

func TestMutex_LockContextCancelledWhileQueued(t *testing.T) {
	m := New(0)

	h, err := m.Lock(context.Background(), "queue")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Lock(ctx, "queue")
		done <- err
	}()
	waitForWaiters(t, m, "queue", 1)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if m.Waiting("queue") != 0 {
		t.Errorf("cancelled waiter should leave the queue, got %d", m.Waiting("queue"))
	}

	h.Unlock()
	if m.Len() != 0 {
		t.Errorf("expected no records, got %d", m.Len())
	}
}

func TestMutex_LockWithDoneContext(t *testing.T) {
	m := New(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Lock(ctx, "done"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("no record should be created for a cancelled caller, got %d", m.Len())
	}
}

func TestMutex_LockRequiresContext(t *testing.T) {
	m := New(0)

	defer func() {
		if recover() == nil {
			t.Error("expected Lock to panic on a nil context")
		}
		if m.Len() != 0 {
			t.Errorf("no record should be created, got %d", m.Len())
		}
	}()

	var ctx context.Context
	_, _ = m.Lock(ctx, "nil")
}

func TestMutex_WithLockReleasesOnPanic(t *testing.T) {
	m := New(0)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = m.WithLock(context.Background(), "panic", func(context.Context) error {
			panic("boom")
		})
	}()

	if m.Held("panic") {
		t.Error("lock should be released after panic")
	}
}

func TestMutex_WithLockReturnsBodyError(t *testing.T) {
	m := New(0)
	want := errors.New("body failed")

	err := m.WithLock(context.Background(), "err", func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected body error, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expected release after error, got %d records", m.Len())
	}
}

func TestDo(t *testing.T) {
	m := New(0)

	got, err := Do(context.Background(), m, "do", func(context.Context) (string, error) {
		return "value", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "value" {
		t.Errorf("expected value, got %s", got)
	}
}
