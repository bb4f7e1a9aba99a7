package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()
	tb.Cleanup(server.Close)

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// MockOAuth2Server simulates an identity provider without real sockets.
// It records every request with its parsed form and serves responses through handler.
type MockOAuth2Server struct {
	URL string

	mu       sync.Mutex
	handler  RoundTripFunc
	requests []*http.Request
	forms    []url.Values
}

// NewMockOAuth2Server builds a mock identity provider backed by an in-memory RoundTripper.
// If handler is nil, every request gets a successful token response.
func NewMockOAuth2Server(tb testing.TB, handler RoundTripFunc) *MockOAuth2Server {
	tb.Helper()

	if handler == nil {
		handler = TokenResponse("mock-access-token", "mock-refresh-token", "mock-id-token")
	}

	return &MockOAuth2Server{
		URL:     "https://mock-oauth.example.com",
		handler: handler,
	}
}

// TokenURL returns the mock token endpoint.
func (m *MockOAuth2Server) TokenURL() string {
	return m.URL + "/protocol/openid-connect/token"
}

// EndSessionURL returns the mock end-session endpoint.
func (m *MockOAuth2Server) EndSessionURL() string {
	return m.URL + "/protocol/openid-connect/logout"
}

// SetHandler replaces the response handler.
func (m *MockOAuth2Server) SetHandler(handler RoundTripFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// RoundTrip records req and delegates to the handler.
func (m *MockOAuth2Server) RoundTrip(req *http.Request) (*http.Response, error) {
	form := url.Values{}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
		form, _ = url.ParseQuery(string(body))
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.forms = append(m.forms, form)
	handler := m.handler
	m.mu.Unlock()

	return handler(req)
}

// Client returns an HTTP client whose transport is the mock.
func (m *MockOAuth2Server) Client() *http.Client {
	return &http.Client{Transport: m}
}

// Ctx returns a context carrying Client for golang.org/x/oauth2.
func (m *MockOAuth2Server) Ctx() context.Context {
	return context.WithValue(context.Background(), oauth2.HTTPClient, m.Client())
}

// Count returns the number of requests whose path ends with suffix.
func (m *MockOAuth2Server) Count(suffix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.requests {
		if strings.HasSuffix(r.URL.Path, suffix) {
			n++
		}
	}
	return n
}

// Forms returns the parsed form of every recorded request.
func (m *MockOAuth2Server) Forms() []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]url.Values(nil), m.forms...)
}

// JSONResponse returns a RoundTripper that always responds with status and body.
func JSONResponse(status int, body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		header := make(http.Header)
		header.Set("Content-Type", "application/json")
		return &http.Response{
			StatusCode: status,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

// StaticJSONResponse returns a RoundTripper that always responds 200 with body.
func StaticJSONResponse(body string) RoundTripFunc {
	return JSONResponse(http.StatusOK, body)
}

// TokenResponse returns a successful token endpoint response. Empty tokens are omitted.
func TokenResponse(accessToken, refreshToken, idToken string) RoundTripFunc {
	payload := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   300,
	}
	if refreshToken != "" {
		payload["refresh_token"] = refreshToken
	}
	if idToken != "" {
		payload["id_token"] = idToken
	}

	body, _ := json.Marshal(payload)
	return StaticJSONResponse(string(body))
}

// OAuthErrorResponse returns an OAuth2 error response such as 400 invalid_grant.
func OAuthErrorResponse(status int, code, description string) RoundTripFunc {
	return JSONResponse(status, fmt.Sprintf(`{"error":%q,"error_description":%q}`, code, description))
}

// testSigningKey signs test tokens; signatures are never verified by the client.
var testSigningKey = []byte("aoxam-test-signing-key")

// JWTClaims provides a builder pattern for creating test JWT claims.
type JWTClaims struct {
	claims jwt.MapClaims
}

// NewJWTClaims creates a new JWTClaims builder for subject, expiring in one hour.
func NewJWTClaims(subject string) *JWTClaims {
	return &JWTClaims{
		claims: jwt.MapClaims{
			"iss": "https://auth.aoxam.example.com/realms/aoxam",
			"sub": subject,
			"exp": time.Now().Add(time.Hour).Unix(),
			"iat": time.Now().Add(-time.Minute).Unix(),
		},
	}
}

// WithExpiry sets a custom expiry time.
func (c *JWTClaims) WithExpiry(exp time.Time) *JWTClaims {
	c.claims["exp"] = exp.Unix()
	return c
}

// WithSubject overrides the subject.
func (c *JWTClaims) WithSubject(subject string) *JWTClaims {
	c.claims["sub"] = subject
	return c
}

// WithEmail sets the email claim.
func (c *JWTClaims) WithEmail(email string) *JWTClaims {
	c.claims["email"] = email
	return c
}

// WithRoles sets realm_access.roles.
func (c *JWTClaims) WithRoles(roles ...string) *JWTClaims {
	c.claims["realm_access"] = map[string]any{"roles": roles}
	return c
}

// WithoutClaim removes a specific claim.
func (c *JWTClaims) WithoutClaim(key string) *JWTClaims {
	delete(c.claims, key)
	return c
}

// WithCustomClaim adds a custom claim.
func (c *JWTClaims) WithCustomClaim(key string, value interface{}) *JWTClaims {
	c.claims[key] = value
	return c
}

// Sign returns the claims as an HS256 token.
func (c *JWTClaims) Sign(tb testing.TB) string {
	tb.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c.claims).SignedString(testSigningKey)
	if err != nil {
		tb.Fatalf("failed to sign token: %v", err)
	}
	return token
}

// NewRedis starts a miniredis server and returns it with a connected client.
// Both are closed on cleanup.
func NewRedis(tb testing.TB) (*miniredis.Miniredis, *redis.Client) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("failed to start miniredis: %v", err)
	}
	tb.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tb.Cleanup(func() { _ = client.Close() })

	return mr, client
}
