// Package testutil provides test helpers for aoxam-web packages.
//
// It includes utilities to spin up IPv4-only local HTTP servers (avoiding IPv6 in sandboxes),
// a mock identity provider served without real sockets, signed test tokens, and miniredis.
//
// # Utilities
//
//   - NewLocalHTTPServer: start httptest server bound to 127.0.0.1
//   - MockOAuth2Server, TokenResponse, OAuthErrorResponse: stub token and end-session endpoints and capture requests
//   - RoundTripFunc: inline http.RoundTripper implementations
//   - JWTClaims: build HS256 tokens with chosen subject, expiry and roles
//   - NewRedis: miniredis server plus go-redis client
package testutil
