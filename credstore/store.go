package credstore

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
)

// Well-known keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyIDToken      = "id_token"
	KeyLegacyAPIKey = "legacyApiKey"
)

// Logger is an interface for optional logging in Store.
type Logger interface {
	Printf(format string, args ...any)
}

// Option is a functional option for configuring Store.
type Option func(*Store)

// WithLogger sets a logger for the store.
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithLoggingEnabled enables logging using the standard logger.
func WithLoggingEnabled() Option {
	return func(s *Store) {
		s.logger = log.Default()
	}
}

// WithCookieJar mirrors BrowserTab values into jar as cookies for origin.
func WithCookieJar(jar http.CookieJar, origin *url.URL) Option {
	return func(s *Store) {
		s.jar = jar
		s.origin = origin
	}
}

// WithBroadcaster replaces DefaultHub as the change notification bus.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Store) {
		s.bus = b
	}
}

// WithChannel sets the broadcast channel name. Stores only see each other's changes
// when they share a broadcaster and a channel.
func WithChannel(name string) Option {
	return func(s *Store) {
		s.channel = name
	}
}

// WithCookieOptions sets the attributes of written cookies.
func WithCookieOptions(opts CookieOptions) Option {
	return func(s *Store) {
		s.cookies = opts
	}
}

// Store reads and writes credential strings for an ExecutionContext.
// It is safe for concurrent use.
type Store struct {
	kv      KV
	jar     http.CookieJar
	origin  *url.URL
	bus     Broadcaster
	channel string
	cookies CookieOptions
	logger  Logger

	mu          sync.Mutex
	subs        map[*Subscription]struct{}
	unsubscribe func()
}

// New creates a Store over kv. A nil kv uses a fresh MemoryKV.
func New(kv KV, opts ...Option) *Store {
	if kv == nil {
		kv = NewMemoryKV()
	}

	s := &Store{
		kv:      kv,
		channel: DefaultChannel,
		cookies: DefaultCookieOptions(),
		subs:    make(map[*Subscription]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.bus == nil {
		s.bus = DefaultHub()
	}

	return s
}

// KV returns the durable backend.
func (s *Store) KV() KV {
	return s.kv
}

// Get returns the value of key in ec. Empty values are reported as absent.
func (s *Store) Get(ctx context.Context, ec ExecutionContext, key string) (string, bool, error) {
	var (
		v   string
		ok  bool
		err error
	)

	if sr, isServer := ec.(*ServerRequest); isServer && sr != nil {
		v, ok = sr.lookup(key)
	} else {
		v, ok, err = s.browserGet(ctx, key)
		if err != nil {
			return "", false, err
		}
	}

	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// Set stores value under key in ec.
func (s *Store) Set(ctx context.Context, ec ExecutionContext, key, value string) error {
	if sr, isServer := ec.(*ServerRequest); isServer && sr != nil {
		sr.write(s.cookies.cookie(key, value))
		return nil
	}

	if err := s.kv.Set(ctx, key, value); err != nil {
		return err
	}
	s.setCookie(s.cookies.cookie(key, value))
	s.publish(ctx, key)
	return nil
}

// Remove deletes key from ec.
func (s *Store) Remove(ctx context.Context, ec ExecutionContext, key string) error {
	if sr, isServer := ec.(*ServerRequest); isServer && sr != nil {
		sr.write(s.cookies.expired(key))
		return nil
	}

	if err := s.kv.Delete(ctx, key); err != nil {
		return err
	}
	s.setCookie(s.cookies.expired(key))
	s.publish(ctx, key)
	return nil
}

func (s *Store) browserGet(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if ok {
		return v, true, nil
	}

	if s.jar == nil || s.origin == nil {
		return "", false, nil
	}
	for _, c := range s.jar.Cookies(s.origin) {
		if c.Name == key {
			return c.Value, true, nil
		}
	}
	return "", false, nil
}

func (s *Store) setCookie(c *http.Cookie) {
	if s.jar == nil || s.origin == nil {
		return
	}
	s.jar.SetCookies(s.origin, []*http.Cookie{c})
}

// publish failures do not fail the write; the durable value is already stored.
func (s *Store) publish(ctx context.Context, key string) {
	if err := s.bus.Publish(ctx, s.channel, key); err != nil {
		s.logf("credstore: publish change of %q: %v", key, err)
	}
}

// Changes subscribes to key. The subscription first delivers the current value, then one
// value per subsequent change announced on the broadcaster, until Close is called.
func (s *Store) Changes(ctx context.Context, key string) (*Subscription, error) {
	sub := newSubscription(s, key)

	s.mu.Lock()
	if s.unsubscribe == nil {
		unsubscribe, err := s.bus.Subscribe(ctx, s.channel, s.dispatch)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("credstore: subscribe to %q: %w", s.channel, err)
		}
		s.unsubscribe = unsubscribe
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go sub.run()
	return sub, nil
}

// Listening reports whether the store currently holds a broadcaster registration.
func (s *Store) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.unsubscribe != nil
}

func (s *Store) dispatch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		if sub.key == key {
			sub.trigger()
		}
	}
}

func (s *Store) detach(sub *Subscription) {
	var unsubscribe func()

	s.mu.Lock()
	delete(s.subs, sub)
	if len(s.subs) == 0 {
		unsubscribe = s.unsubscribe
		s.unsubscribe = nil
	}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
