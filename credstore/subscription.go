package credstore

import (
	"context"
	"sync"
)

// Change is one value delivered by a Subscription. Present is false when the key is
// absent or empty.
type Change struct {
	Key     string
	Value   string
	Present bool
}

// Subscription is an unbounded sequence of Changes for one key. Each notification is
// queued and answered with a fresh read of the key, so a slow reader never causes
// notifications to be dropped.
type Subscription struct {
	store *Store
	key   string
	c     chan Change

	mu      sync.Mutex
	pending int
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newSubscription(s *Store, key string) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())

	return &Subscription{
		store:   s,
		key:     key,
		c:       make(chan Change),
		pending: 1,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// C returns the channel of changes. It is closed after Close.
func (sub *Subscription) C() <-chan Change {
	return sub.c
}

// Key returns the subscribed key.
func (sub *Subscription) Key() string {
	return sub.key
}

// Close stops delivery and releases the store's broadcaster registration when this was
// its last subscription. Close is idempotent.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.cancel()
		sub.store.detach(sub)
	})
}

func (sub *Subscription) trigger() {
	sub.mu.Lock()
	sub.pending++
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *Subscription) run() {
	defer close(sub.c)

	for {
		sub.mu.Lock()
		if sub.pending == 0 {
			sub.mu.Unlock()
			select {
			case <-sub.wake:
				continue
			case <-sub.ctx.Done():
				return
			}
		}
		sub.pending--
		sub.mu.Unlock()

		v, ok, err := sub.store.Get(sub.ctx, BrowserTab{}, sub.key)
		if err != nil {
			if sub.ctx.Err() != nil {
				return
			}
			sub.store.logf("credstore: re-read %q: %v", sub.key, err)
			continue
		}

		select {
		case sub.c <- Change{Key: sub.key, Value: v, Present: ok}:
		case <-sub.ctx.Done():
			return
		}
	}
}
