package oauth2client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tienchanhtri/aoxam-web/credstore"
	"github.com/tienchanhtri/aoxam-web/namedmutex"
)

// stubProvider returns err, or a fixed triplet, after waiting for block to close.
type stubProvider struct {
	mu     sync.Mutex
	tokens TokenSet
	err    error
	block  chan struct{}
	calls  int
}

func (p *stubProvider) Refresh(ctx context.Context, _ string) (TokenSet, error) {
	p.mu.Lock()
	p.calls++
	block, tokens, err := p.block, p.tokens, p.err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return TokenSet{}, ctx.Err()
		}
	}
	return tokens, err
}

func (p *stubProvider) EndSession(context.Context, TokenSet) error {
	return nil
}

func newMetricsManager(t *testing.T, provider IdentityProvider, opts ...Option) (*TokenManager, *Metrics) {
	t.Helper()

	metrics, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	store := credstore.New(credstore.NewMemoryKV(), credstore.WithBroadcaster(credstore.NewHub()))
	tm := NewTokenManager(store, nil, provider, append([]Option{WithMetrics(metrics)}, opts...)...)
	if err := tm.SaveTokens(context.Background(), TokenSet{AccessToken: "a0", RefreshToken: "r0"}); err != nil {
		t.Fatalf("SaveTokens failed: %v", err)
	}
	return tm, metrics
}

func TestMetrics_RefreshOutcomes(t *testing.T) {
	ctx := context.Background()

	provider := &stubProvider{tokens: TokenSet{AccessToken: "a1", RefreshToken: "r1"}}
	tm, metrics := newMetricsManager(t, provider)

	if _, err := tm.RefreshTokenFlow(ctx, "", OnRejection); err != nil {
		t.Fatalf("skip path failed: %v", err)
	}
	if _, err := tm.RefreshTokenFlow(ctx, "a0", OnRejection); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	provider.mu.Lock()
	provider.err = errors.New("connection refused")
	provider.mu.Unlock()
	if _, err := tm.RefreshTokenFlow(ctx, "a1", OnRejection); !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}

	provider.mu.Lock()
	provider.err = &RefreshError{StatusCode: 400, Code: "invalid_grant"}
	provider.mu.Unlock()
	if _, err := tm.RefreshTokenFlow(ctx, "a1", OnRejection); !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected invalid grant, got %v", err)
	}

	for result, want := range map[string]float64{
		resultSkipped:      1,
		resultRefreshed:    1,
		resultFailed:       1,
		resultInvalidGrant: 1,
	} {
		if got := promtestutil.ToFloat64(metrics.refreshes.WithLabelValues(result)); got != want {
			t.Errorf("%s: expected %v, got %v", result, want, got)
		}
	}
}

func TestMetrics_LockExpired(t *testing.T) {
	provider := &stubProvider{
		tokens: TokenSet{AccessToken: "a1", RefreshToken: "r1"},
		block:  make(chan struct{}),
	}
	tm, metrics := newMetricsManager(t, provider, WithLockTimeout(50*time.Millisecond))

	_, err := tm.RefreshTokenFlow(context.Background(), "a0", OnRejection)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected aborted refresh to be transient, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancelled lock context as cause, got %v", err)
	}

	if got := promtestutil.ToFloat64(metrics.lockExpired); got != 1 {
		t.Errorf("expected 1 forced release, got %v", got)
	}

	token, _, _ := tm.AccessToken(context.Background())
	if token != "a0" {
		t.Errorf("expected tokens untouched, got %q", token)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.observeRefresh(resultRefreshed)
	m.observeLockExpired()
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestNewTokenManager_SharedMutexSkipsHook(t *testing.T) {
	shared := namedmutex.New(time.Second)
	tm, _ := newMetricsManager(t, &stubProvider{}, WithMutex(shared))

	if tm.Mutex() != shared {
		t.Error("expected the shared lock table")
	}
}
