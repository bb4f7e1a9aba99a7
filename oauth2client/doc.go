// Package oauth2client keeps an OpenID Connect access token usable across concurrent
// requests and execution contexts.
//
// A TokenManager owns the access/refresh/id token triplet of one execution context (a
// browser tab or a server request, see package credstore). RefreshTokenFlow is its
// single-flight entry point: it refreshes only when the token is absent, equals a token a
// caller saw rejected, or is due under the requested Eagerness, and it serializes refreshes
// per session through a namedmutex lock, re-checking after the lock is granted.
//
// # Features
//
//   - Refresh-token grant through golang.org/x/oauth2 (OIDCProvider)
//   - Eager refresh: OnRejection, Always, WithinRemaining(d)
//   - Full triplet clearance when the refresh token is rejected (ErrInvalidGrant)
//   - Best-effort sign-out through a retrying HTTP client
//   - gRPC unary and stream client interceptors that inject Bearer tokens
//   - Decoded claims and a claims stream for UI state
//   - Optional logging (WithLogger, WithLoggingEnabled), Sentry reporting and Prometheus metrics
//
// # Quick Start
//
//	cfg, err := oauth2client.ConfigFromEnv(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry := oauth2client.NewRegistry(
//	    credstore.New(credstore.NewMemoryKV()),
//	    oauth2client.NewOIDCProvider(cfg),
//	    oauth2client.WithManagerOptions(oauth2client.WithLockTimeout(cfg.LockTimeout)),
//	)
//
//	tm := registry.Browser()
//	token, err := tm.RefreshTokenFlow(ctx, "", oauth2client.WithinRemaining(time.Minute))
//
// # Notes
//
//   - The lock timeout bounds how long a hung refresh blocks other callers. When it
//     fires, the superseded refresh sees its context cancelled with namedmutex.ErrLockExpired.
//   - TokenManager is safe for concurrent use.
package oauth2client
