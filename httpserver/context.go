package httpserver

import (
	"context"

	"github.com/tienchanhtri/aoxam-web/oauth2client"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	tokenManagerKey contextKey = "httpserver.token_manager"
	tokenClaimsKey  contextKey = "httpserver.token_claims"
)

// WithTokenManager returns a new context carrying tm.
func WithTokenManager(ctx context.Context, tm *oauth2client.TokenManager) context.Context {
	return context.WithValue(ctx, tokenManagerKey, tm)
}

// TokenManagerFromContext returns the request's TokenManager.
//
// Example:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    tm, ok := httpserver.TokenManagerFromContext(r.Context())
//	    if !ok {
//	        http.Error(w, "no session", http.StatusInternalServerError)
//	        return
//	    }
//	    client := httpclient.NewHTTPClient(tm)
//	    // ... call the API ...
//	}
func TokenManagerFromContext(ctx context.Context) (*oauth2client.TokenManager, bool) {
	tm, ok := ctx.Value(tokenManagerKey).(*oauth2client.TokenManager)
	return tm, ok && tm != nil
}

// MustTokenManagerFromContext returns the request's TokenManager and panics if the
// middleware did not run.
func MustTokenManagerFromContext(ctx context.Context) *oauth2client.TokenManager {
	tm, ok := TokenManagerFromContext(ctx)
	if !ok {
		panic("httpserver: token manager not found in context")
	}
	return tm
}

// WithTokenClaims returns a new context with the provided claims.
func WithTokenClaims(ctx context.Context, claims *oauth2client.Claims) context.Context {
	return context.WithValue(ctx, tokenClaimsKey, claims)
}

// TokenClaimsFromContext returns the decoded claims of the request's access token.
// Returns nil and false for anonymous requests.
func TokenClaimsFromContext(ctx context.Context) (*oauth2client.Claims, bool) {
	claims, ok := ctx.Value(tokenClaimsKey).(*oauth2client.Claims)
	return claims, ok && claims != nil
}

// MustTokenClaimsFromContext extracts the claims and panics if not found.
// This should only be used in handlers reached only by signed-in users.
func MustTokenClaimsFromContext(ctx context.Context) *oauth2client.Claims {
	claims, ok := TokenClaimsFromContext(ctx)
	if !ok {
		panic("httpserver: token claims not found in context")
	}
	return claims
}
