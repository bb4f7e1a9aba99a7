package oauth2client

import (
	"sync"

	"github.com/tienchanhtri/aoxam-web/credstore"
	"github.com/tienchanhtri/aoxam-web/namedmutex"
)

// RegistryOption is a functional option for configuring Registry.
type RegistryOption func(*Registry)

// WithManagerOptions applies opts to every TokenManager the registry builds.
func WithManagerOptions(opts ...Option) RegistryOption {
	return func(r *Registry) {
		r.opts = append(r.opts, opts...)
	}
}

// WithSharedServerLocks makes managers built by ForRequest share one lock table, so
// concurrent requests of the same session refresh once. By default every request gets its
// own table.
func WithSharedServerLocks() RegistryOption {
	return func(r *Registry) {
		r.shareServerLocks = true
	}
}

// Registry builds TokenManagers for execution contexts. The browser manager is created on
// first use and lives as long as the registry; request managers live as long as their
// request.
type Registry struct {
	store    *credstore.Store
	provider IdentityProvider
	opts     []Option

	shareServerLocks bool
	serverMu         sync.Mutex
	serverLocks      *namedmutex.Mutex

	browserOnce sync.Once
	browser     *TokenManager
}

// NewRegistry creates a Registry over one store and provider.
func NewRegistry(store *credstore.Store, provider IdentityProvider, opts ...RegistryOption) *Registry {
	r := &Registry{store: store, provider: provider}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Browser returns the browser-context manager, creating it on the first call.
func (r *Registry) Browser() *TokenManager {
	r.browserOnce.Do(func() {
		r.browser = NewTokenManager(r.store, credstore.BrowserTab{}, r.provider, r.opts...)
	})
	return r.browser
}

// ForRequest returns a new manager for sr.
func (r *Registry) ForRequest(sr *credstore.ServerRequest) *TokenManager {
	if !r.shareServerLocks {
		return NewTokenManager(r.store, sr, r.provider, r.opts...)
	}

	r.serverMu.Lock()
	defer r.serverMu.Unlock()

	// The first request's manager creates the shared table.
	if r.serverLocks == nil {
		tm := NewTokenManager(r.store, sr, r.provider, r.opts...)
		r.serverLocks = tm.Mutex()
		return tm
	}

	opts := append(r.opts[:len(r.opts):len(r.opts)], WithMutex(r.serverLocks))
	return NewTokenManager(r.store, sr, r.provider, opts...)
}
