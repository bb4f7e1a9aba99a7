package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tienchanhtri/aoxam-web/credstore"
	"github.com/tienchanhtri/aoxam-web/oauth2client"
)

// Logger is an interface for optional logging in the middleware.
type Logger interface {
	Printf(format string, args ...any)
}

// MiddlewareConfig holds configuration for the session middleware.
type MiddlewareConfig struct {
	registry           *oauth2client.Registry
	exemptPaths        map[string]bool
	exemptPathPrefixes []string
	logger             Logger
	prewarm            bool
	eager              oauth2client.Eagerness
}

// MiddlewareOption is a functional option for configuring middleware.
type MiddlewareOption func(*MiddlewareConfig)

// WithExemptPaths specifies HTTP paths that get no session. These paths must match exactly.
//
// Example:
//
//	WithExemptPaths("/health", "/metrics", "/favicon.ico")
func WithExemptPaths(paths ...string) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		if c.exemptPaths == nil {
			c.exemptPaths = make(map[string]bool)
		}
		for _, path := range paths {
			c.exemptPaths[path] = true
		}
	}
}

// WithExemptPathPrefixes specifies HTTP path prefixes that get no session.
//
// Example:
//
//	WithExemptPathPrefixes("/_next/", "/static/")
func WithExemptPathPrefixes(prefixes ...string) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.exemptPathPrefixes = append(c.exemptPathPrefixes, prefixes...)
	}
}

// WithMiddlewareLogger sets a logger for the middleware.
func WithMiddlewareLogger(logger Logger) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.logger = logger
	}
}

// WithPrewarm refreshes the access token according to eager before the handler runs, so
// handlers that render several API calls start with a fresh token. Failures are logged and
// the request continues with whatever tokens remain.
func WithPrewarm(eager oauth2client.Eagerness) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.prewarm = true
		c.eager = eager
	}
}

// Middleware returns an HTTP middleware that attaches a request-scoped TokenManager to
// every request. Handlers read it with TokenManagerFromContext. Token writes made during the
// request are sent back as Set-Cookie headers.
//
// When the access token cookie decodes, its claims are available through
// TokenClaimsFromContext. Claims are not verified; they are for rendering only.
//
// Usage:
//
//	registry := oauth2client.NewRegistry(store, provider)
//	mux := http.NewServeMux()
//	mux.HandleFunc("/search", searchHandler)
//
//	http.ListenAndServe(":3000", httpserver.Middleware(registry)(mux))
func Middleware(registry *oauth2client.Registry, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	config := &MiddlewareConfig{
		registry:    registry,
		exemptPaths: make(map[string]bool),
	}

	for _, opt := range opts {
		opt(config)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExempt(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			sr := credstore.NewServerRequest(w, r)
			tm := config.registry.ForRequest(sr)
			ctx := WithTokenManager(r.Context(), tm)

			if config.prewarm {
				_, err := tm.RefreshTokenFlow(ctx, "", config.eager)
				if err != nil && !errors.Is(err, oauth2client.ErrNotAuthenticated) {
					config.logf("httpserver: prewarm failed for %s %s: %v", r.Method, r.URL.Path, err)
				}
			}

			if claims, ok := tm.Claims(ctx); ok {
				ctx = WithTokenClaims(ctx, claims)
				config.logf("httpserver: session for %s %s (subject: %s, request: %s)", r.Method, r.URL.Path, claims.Subject, sr.ID())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (c *MiddlewareConfig) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// isExempt checks if a path is exempt from session handling.
func isExempt(path string, config *MiddlewareConfig) bool {
	if config.exemptPaths[path] {
		return true
	}

	for _, prefix := range config.exemptPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}
