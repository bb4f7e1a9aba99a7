package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tienchanhtri/aoxam-web/asynctask"
	"github.com/tienchanhtri/aoxam-web/credstore"
	"github.com/tienchanhtri/aoxam-web/namedmutex"
)

// Logger is an interface for optional logging in TokenManager.
// Implementations can log token refresh events if desired.
type Logger interface {
	Printf(format string, args ...any)
}

// TokenManager owns the token triplet of one execution context and coordinates its
// refresh. At most one refresh per session runs at a time; callers that queue behind it
// re-check whether a refresh is still needed once they get the lock.
type TokenManager struct {
	store    *credstore.Store
	ec       credstore.ExecutionContext
	provider IdentityProvider

	mutex       *namedmutex.Mutex
	lockTimeout time.Duration
	logger      Logger
	reporter    ErrorReporter
	metrics     *Metrics
	now         func() time.Time

	apiHost      string
	checkClient  *http.Client
	legacySource []LegacyStrategy
}

// Option is a functional option for configuring TokenManager.
type Option func(*TokenManager)

// WithLogger sets a custom logger for token refresh events.
// If not set, no logging will occur.
func WithLogger(logger Logger) Option {
	return func(tm *TokenManager) {
		tm.logger = logger
	}
}

// WithLoggingEnabled enables logging using the default Go log package.
func WithLoggingEnabled() Option {
	return func(tm *TokenManager) {
		tm.logger = log.Default()
	}
}

// WithMutex shares a lock table with other managers. By default each manager owns one.
func WithMutex(m *namedmutex.Mutex) Option {
	return func(tm *TokenManager) {
		tm.mutex = m
	}
}

// WithLockTimeout sets the auto-release timeout of the manager's own lock table.
func WithLockTimeout(d time.Duration) Option {
	return func(tm *TokenManager) {
		tm.lockTimeout = d
	}
}

// WithErrorReporter sets where swallowed and transient failures are reported.
func WithErrorReporter(r ErrorReporter) Option {
	return func(tm *TokenManager) {
		tm.reporter = r
	}
}

// WithMetrics records refresh outcomes.
func WithMetrics(m *Metrics) Option {
	return func(tm *TokenManager) {
		tm.metrics = m
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) {
		tm.now = now
	}
}

// WithLegacyCheck sets the API host and client used by IsLegacyAPIKeyValid.
func WithLegacyCheck(apiHost string, client *http.Client) Option {
	return func(tm *TokenManager) {
		tm.apiHost = apiHost
		tm.checkClient = client
	}
}

// WithLegacyStrategies replaces the ordered lookup used by LegacyAPIKey.
func WithLegacyStrategies(strategies ...LegacyStrategy) Option {
	return func(tm *TokenManager) {
		tm.legacySource = strategies
	}
}

// NewTokenManager creates a TokenManager reading and writing tokens through store in the
// execution context ec. A nil ec is the browser context.
func NewTokenManager(store *credstore.Store, ec credstore.ExecutionContext, provider IdentityProvider, opts ...Option) *TokenManager {
	if ec == nil {
		ec = credstore.BrowserTab{}
	}

	tm := &TokenManager{
		store:       store,
		ec:          ec,
		provider:    provider,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(tm)
	}

	if tm.mutex == nil {
		mopts := []namedmutex.Option{namedmutex.WithExpireHook(func(name string) {
			tm.metrics.observeLockExpired()
		})}
		if tm.logger != nil {
			mopts = append(mopts, namedmutex.WithLogger(tm.logger))
		}
		tm.mutex = namedmutex.New(tm.lockTimeout, mopts...)
	}
	if tm.checkClient == nil {
		tm.checkClient = newCheckClient(tm.logger)
	}
	if tm.legacySource == nil {
		tm.legacySource = DefaultLegacyStrategies(store, ec)
	}

	return tm
}

// ExecutionContext returns the context the manager reads and writes.
func (tm *TokenManager) ExecutionContext() credstore.ExecutionContext {
	return tm.ec
}

// Mutex returns the manager's lock table.
func (tm *TokenManager) Mutex() *namedmutex.Mutex {
	return tm.mutex
}

// AccessToken returns the stored access token.
func (tm *TokenManager) AccessToken(ctx context.Context) (string, bool, error) {
	return tm.store.Get(ctx, tm.ec, credstore.KeyAccessToken)
}

// RefreshToken returns the stored refresh token.
func (tm *TokenManager) RefreshToken(ctx context.Context) (string, bool, error) {
	return tm.store.Get(ctx, tm.ec, credstore.KeyRefreshToken)
}

// IDToken returns the stored id token.
func (tm *TokenManager) IDToken(ctx context.Context) (string, bool, error) {
	return tm.store.Get(ctx, tm.ec, credstore.KeyIDToken)
}

// Tokens returns the stored triplet.
func (tm *TokenManager) Tokens(ctx context.Context) (TokenSet, error) {
	var (
		set TokenSet
		err error
	)
	if set.AccessToken, _, err = tm.AccessToken(ctx); err != nil {
		return TokenSet{}, err
	}
	if set.RefreshToken, _, err = tm.RefreshToken(ctx); err != nil {
		return TokenSet{}, err
	}
	if set.IDToken, _, err = tm.IDToken(ctx); err != nil {
		return TokenSet{}, err
	}
	return set, nil
}

// SaveTokens stores all three tokens. Empty fields are stored empty and read back absent.
func (tm *TokenManager) SaveTokens(ctx context.Context, tokens TokenSet) error {
	for _, kv := range [...]struct{ key, value string }{
		{credstore.KeyAccessToken, tokens.AccessToken},
		{credstore.KeyRefreshToken, tokens.RefreshToken},
		{credstore.KeyIDToken, tokens.IDToken},
	} {
		if err := tm.store.Set(ctx, tm.ec, kv.key, kv.value); err != nil {
			return fmt.Errorf("oauth2client: save %s: %w", kv.key, err)
		}
	}
	return nil
}

// RemoveTokens clears all three tokens.
func (tm *TokenManager) RemoveTokens(ctx context.Context) error {
	var errs []error
	for _, key := range [...]string{credstore.KeyIDToken, credstore.KeyAccessToken, credstore.KeyRefreshToken} {
		if err := tm.store.Remove(ctx, tm.ec, key); err != nil {
			errs = append(errs, fmt.Errorf("oauth2client: remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// LockName returns the refresh lock name for refreshToken. Server requests are scoped
// by client address and the refresh token's subject; the browser uses one constant name.
func (tm *TokenManager) LockName(refreshToken string) string {
	sr, ok := tm.ec.(*credstore.ServerRequest)
	if !ok {
		return "refresh_token local"
	}

	subject := "unknown"
	if claims, ok := DecodeClaims(refreshToken); ok && claims.Subject != "" {
		subject = claims.Subject
	}
	return fmt.Sprintf("refresh_token %s %s", sr.ClientAddress(), subject)
}

// needsRefresh reports whether current must be replaced.
func (tm *TokenManager) needsRefresh(current, rejected string, eager Eagerness) bool {
	if current == "" || current == rejected {
		return true
	}
	return eager.due(current, tm.now(), func() {
		tm.logf("oauth2client: access token could not be decoded, treating as expired")
	})
}

// RefreshTokenFlow returns a usable access token, refreshing it first when it is absent,
// equals rejected, or is due under eager. Concurrent callers for one session share a
// single refresh.
//
// It returns ErrNotAuthenticated when no token can be produced, an error matching
// ErrInvalidGrant after the triplet was cleared, or an error matching ErrTransient when the
// token endpoint could not be reached.
func (tm *TokenManager) RefreshTokenFlow(ctx context.Context, rejected string, eager Eagerness) (string, error) {
	current, _, err := tm.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	if !tm.needsRefresh(current, rejected, eager) {
		tm.metrics.observeRefresh(resultSkipped)
		return current, nil
	}

	refreshToken, ok, err := tm.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		if current == "" || current == rejected {
			return "", ErrNotAuthenticated
		}
		return current, nil
	}

	err = tm.mutex.WithLock(ctx, tm.LockName(refreshToken), func(ctx context.Context) error {
		current, _, err := tm.AccessToken(ctx)
		if err != nil {
			return err
		}
		if !tm.needsRefresh(current, rejected, eager) {
			tm.metrics.observeRefresh(resultSkipped)
			return nil
		}
		return tm.refresh(ctx)
	})
	if err != nil {
		return "", err
	}

	token, ok, err := tm.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotAuthenticated
	}
	return token, nil
}

// refresh calls the identity provider. The caller holds the session lock.
func (tm *TokenManager) refresh(ctx context.Context) error {
	refreshToken, ok, err := tm.RefreshToken(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthenticated
	}

	tm.logf("oauth2client: refreshing tokens (%s)", tm.LockName(refreshToken))

	tokens, err := tm.provider.Refresh(ctx, refreshToken)
	// The lock context may have been cancelled by an auto-release; stored state must
	// still be updated.
	storeCtx := context.WithoutCancel(ctx)

	if err != nil {
		err = asRefreshError(err)
		if errors.Is(err, ErrInvalidGrant) {
			tm.metrics.observeRefresh(resultInvalidGrant)
			return tm.discardRejected(storeCtx, refreshToken, err)
		}

		tm.metrics.observeRefresh(resultFailed)
		tm.logf("oauth2client: refresh failed: %v", err)
		tm.report(ctx, err)
		return err
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	if err := tm.SaveTokens(storeCtx, tokens); err != nil {
		return err
	}

	tm.metrics.observeRefresh(resultRefreshed)
	tm.logf("oauth2client: refresh done")
	return nil
}

// discardRejected clears the triplet after refreshToken was rejected, unless another
// context already replaced it.
func (tm *TokenManager) discardRejected(ctx context.Context, refreshToken string, cause error) error {
	stored, _, err := tm.RefreshToken(ctx)
	if err == nil && stored != "" && stored != refreshToken {
		tm.logf("oauth2client: rejected refresh token was already replaced, keeping stored tokens")
		return cause
	}

	tm.logf("oauth2client: refresh token rejected, clearing tokens")
	if err := tm.RemoveTokens(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Logout clears the local tokens, then asks the identity provider to end the session.
// Only a failure to clear local state is returned; sign-out failures are logged and
// reported.
func (tm *TokenManager) Logout(ctx context.Context) error {
	tokens, err := tm.Tokens(ctx)
	if err != nil {
		return err
	}
	if err := tm.RemoveTokens(ctx); err != nil {
		return err
	}
	if tokens.RefreshToken == "" {
		return nil
	}

	if err := tm.provider.EndSession(ctx, tokens); err != nil {
		tm.logf("oauth2client: end session failed: %v", err)
		tm.report(ctx, err)
	}
	return nil
}

// Claims decodes the stored access token.
func (tm *TokenManager) Claims(ctx context.Context) (*Claims, bool) {
	token, ok, err := tm.AccessToken(ctx)
	if err != nil || !ok {
		return nil, false
	}
	return DecodeClaims(token)
}

// WatchClaims delivers the decoded access token claims to observe, first for the current
// token and then after every change, until ctx is done. A nil claims value means logged out
// or undecodable. A server request has no change feed: it delivers the claims of its own
// token once and completes.
func (tm *TokenManager) WatchClaims(ctx context.Context, observe asynctask.Observer[*Claims]) asynctask.Outcome[*Claims] {
	return asynctask.ExecuteStream(ctx, asynctask.State[*Claims]{}, func(ctx context.Context, emit func(*Claims)) error {
		if _, ok := tm.ec.(*credstore.ServerRequest); ok {
			claims, _ := tm.Claims(ctx)
			emit(claims)
			return nil
		}

		sub, err := tm.store.Changes(ctx, credstore.KeyAccessToken)
		if err != nil {
			return err
		}
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case change, ok := <-sub.C():
				if !ok {
					return nil
				}
				var claims *Claims
				if change.Present {
					claims, _ = DecodeClaims(change.Value)
				}
				emit(claims)
			}
		}
	}, observe)
}

// SyncTokens rewrites the visible triplet into every browser backend, so a token that was
// only present as a cookie is copied into the durable store. It is a no-op for server
// requests.
func (tm *TokenManager) SyncTokens(ctx context.Context) error {
	if _, ok := tm.ec.(*credstore.ServerRequest); ok {
		return nil
	}

	tokens, err := tm.Tokens(ctx)
	if err != nil {
		return err
	}
	return tm.SaveTokens(ctx, tokens)
}

func (tm *TokenManager) report(ctx context.Context, err error) {
	if tm.reporter != nil {
		tm.reporter.Report(ctx, err)
	}
}

func (tm *TokenManager) logf(format string, args ...any) {
	if tm.logger != nil {
		tm.logger.Printf(format, args...)
	}
}
