package httpserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tienchanhtri/aoxam-web/credstore"
	itestutil "github.com/tienchanhtri/aoxam-web/internal/testutil"
	"github.com/tienchanhtri/aoxam-web/oauth2client"
	"github.com/tienchanhtri/aoxam-web/testutil"
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

func (l *stubLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func newRegistry() (*oauth2client.Registry, *testutil.FakeIdentityProvider) {
	idp := testutil.NewFakeIdentityProvider()
	return oauth2client.NewRegistry(credstore.New(credstore.NewMemoryKV(), credstore.WithBroadcaster(credstore.NewHub())), idp), idp
}

func setCookies(rr *httptest.ResponseRecorder) map[string]*http.Cookie {
	cookies := make(map[string]*http.Cookie)
	for _, c := range rr.Result().Cookies() {
		cookies[c.Name] = c
	}
	return cookies
}

func TestMiddleware_AttachesTokenManager(t *testing.T) {
	registry, _ := newRegistry()

	var sawToken string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tm, ok := TokenManagerFromContext(r.Context())
		if !ok {
			t.Error("expected token manager in context")
			return
		}
		if _, ok := tm.ExecutionContext().(*credstore.ServerRequest); !ok {
			t.Errorf("expected a server request context, got %T", tm.ExecutionContext())
		}
		sawToken, _, _ = tm.AccessToken(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/search?q=hue", nil)
	req.AddCookie(&http.Cookie{Name: credstore.KeyAccessToken, Value: "a0"})
	rr := httptest.NewRecorder()

	Middleware(registry)(handler).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if sawToken != "a0" {
		t.Errorf("expected the request cookie, got %q", sawToken)
	}
}

func TestMiddleware_Claims(t *testing.T) {
	tests := []struct {
		name        string
		accessToken func(t *testing.T) string
		wantClaims  bool
		wantSubject string
	}{
		{
			name: "decodable access token",
			accessToken: func(t *testing.T) string {
				return itestutil.NewJWTClaims("user-1").WithEmail("user@example.com").Sign(t)
			},
			wantClaims:  true,
			wantSubject: "user-1",
		},
		{
			name: "expired access token still decodes",
			accessToken: func(t *testing.T) string {
				return itestutil.NewJWTClaims("user-2").WithExpiry(time.Now().Add(-time.Hour)).Sign(t)
			},
			wantClaims:  true,
			wantSubject: "user-2",
		},
		{
			name:        "opaque access token",
			accessToken: func(*testing.T) string { return "opaque" },
		},
		{
			name:        "anonymous",
			accessToken: func(*testing.T) string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, _ := newRegistry()

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims, ok := TokenClaimsFromContext(r.Context())
				if ok != tt.wantClaims {
					t.Fatalf("expected claims present=%v, got %v", tt.wantClaims, ok)
				}
				if ok && claims.Subject != tt.wantSubject {
					t.Errorf("expected subject %q, got %q", tt.wantSubject, claims.Subject)
				}
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if token := tt.accessToken(t); token != "" {
				req.AddCookie(&http.Cookie{Name: credstore.KeyAccessToken, Value: token})
			}

			Middleware(registry)(handler).ServeHTTP(httptest.NewRecorder(), req)
		})
	}
}

func TestMiddleware_ExemptPaths(t *testing.T) {
	registry, _ := newRegistry()

	tests := []struct {
		name       string
		path       string
		wantExempt bool
	}{
		{name: "exact exempt path", path: "/health", wantExempt: true},
		{name: "exempt prefix", path: "/static/app.js", wantExempt: true},
		{name: "second exempt prefix", path: "/_next/data.json", wantExempt: true},
		{name: "exact path is not a prefix", path: "/health/deep", wantExempt: false},
		{name: "regular path", path: "/search", wantExempt: false},
	}

	mw := Middleware(registry,
		WithExemptPaths("/health"),
		WithExemptPathPrefixes("/static/", "/_next/"),
	)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hasManager bool
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, hasManager = TokenManagerFromContext(r.Context())
			})

			mw(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if hasManager == tt.wantExempt {
				t.Errorf("expected exempt=%v, but token manager present=%v", tt.wantExempt, hasManager)
			}
		})
	}
}

func TestMiddleware_RefreshWritesCookies(t *testing.T) {
	registry, idp := newRegistry()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tm := MustTokenManagerFromContext(r.Context())
		token, err := tm.RefreshTokenFlow(r.Context(), "a0", oauth2client.OnRejection)
		if err != nil {
			t.Errorf("RefreshTokenFlow failed: %v", err)
		}
		if token != "access-1" {
			t.Errorf("expected access-1, got %q", token)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	req.AddCookie(&http.Cookie{Name: credstore.KeyAccessToken, Value: "a0"})
	req.AddCookie(&http.Cookie{Name: credstore.KeyRefreshToken, Value: "r0"})
	rr := httptest.NewRecorder()

	Middleware(registry)(handler).ServeHTTP(rr, req)

	cookies := setCookies(rr)
	if c := cookies[credstore.KeyAccessToken]; c == nil || c.Value != "access-1" {
		t.Errorf("expected refreshed access token cookie, got %v", c)
	}
	if c := cookies[credstore.KeyRefreshToken]; c == nil || c.Value != "refresh-1" {
		t.Errorf("expected refreshed refresh token cookie, got %v", c)
	}
	if idp.RefreshCalls() != 1 {
		t.Errorf("expected 1 refresh, got %d", idp.RefreshCalls())
	}
}

func TestMiddleware_Prewarm(t *testing.T) {
	tests := []struct {
		name         string
		accessToken  func(t *testing.T) string
		refreshToken string
		refreshErr   error
		wantRefresh  int
		wantLog      string
	}{
		{
			name: "expired token is refreshed before the handler",
			accessToken: func(t *testing.T) string {
				return itestutil.NewJWTClaims("user-1").WithExpiry(time.Now().Add(-time.Minute)).Sign(t)
			},
			refreshToken: "r0",
			wantRefresh:  1,
		},
		{
			name: "fresh token is kept",
			accessToken: func(t *testing.T) string {
				return itestutil.NewJWTClaims("user-1").Sign(t)
			},
			refreshToken: "r0",
			wantRefresh:  0,
		},
		{
			name:        "anonymous request is not logged",
			accessToken: func(*testing.T) string { return "" },
			wantRefresh: 0,
		},
		{
			name: "failure is logged and the request continues",
			accessToken: func(t *testing.T) string {
				return itestutil.NewJWTClaims("user-1").WithExpiry(time.Now().Add(-time.Minute)).Sign(t)
			},
			refreshToken: "r0",
			refreshErr:   testutil.Unavailable(),
			wantRefresh:  1,
			wantLog:      "prewarm failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, idp := newRegistry()
			idp.FailRefresh(tt.refreshErr)
			logger := &stubLogger{}

			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if token := tt.accessToken(t); token != "" {
				req.AddCookie(&http.Cookie{Name: credstore.KeyAccessToken, Value: token})
			}
			if tt.refreshToken != "" {
				req.AddCookie(&http.Cookie{Name: credstore.KeyRefreshToken, Value: tt.refreshToken})
			}

			mw := Middleware(registry, WithPrewarm(oauth2client.WithinRemaining(time.Minute)), WithMiddlewareLogger(logger))
			mw(handler).ServeHTTP(httptest.NewRecorder(), req)

			if !called {
				t.Error("expected handler to run")
			}
			if idp.RefreshCalls() != tt.wantRefresh {
				t.Errorf("expected %d refreshes, got %d", tt.wantRefresh, idp.RefreshCalls())
			}
			if tt.wantLog != "" && !logger.contains(tt.wantLog) {
				t.Errorf("expected log containing %q, got %v", tt.wantLog, logger.messages)
			}
			if tt.wantLog == "" && logger.contains("prewarm failed") {
				t.Errorf("unexpected prewarm failure log: %v", logger.messages)
			}
		})
	}
}

func TestMiddleware_Logger(t *testing.T) {
	registry, _ := newRegistry()
	logger := &stubLogger{}

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	req.Header.Set(credstore.RequestIDHeader, "req-42")
	req.AddCookie(&http.Cookie{Name: credstore.KeyAccessToken, Value: itestutil.NewJWTClaims("user-1").Sign(t)})

	mw := Middleware(registry, WithMiddlewareLogger(logger))
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(httptest.NewRecorder(), req)

	if !logger.contains("subject: user-1, request: req-42") {
		t.Errorf("expected session log, got %v", logger.messages)
	}
}

func BenchmarkMiddleware(b *testing.B) {
	registry, _ := newRegistry()
	token := itestutil.NewJWTClaims("user-1").Sign(b)

	mw := Middleware(registry)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/search", nil)
		req.AddCookie(&http.Cookie{Name: credstore.KeyAccessToken, Value: token})
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}
