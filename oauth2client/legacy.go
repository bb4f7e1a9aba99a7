package oauth2client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tienchanhtri/aoxam-web/credstore"
)

// legacyDurableKey is where the previous search front-end kept its API key, JSON-quoted.
const legacyDurableKey = "apiKey"

// LegacyStrategy is one named place a legacy API key may be found.
type LegacyStrategy struct {
	Name   string
	Lookup func(ctx context.Context) (string, bool)
}

// ResolveLegacyCredential returns the first value found by strategies, in order, together
// with the name of the strategy that produced it.
func ResolveLegacyCredential(ctx context.Context, strategies ...LegacyStrategy) (value, source string, ok bool) {
	for _, s := range strategies {
		if v, found := s.Lookup(ctx); found && v != "" {
			return v, s.Name, true
		}
	}
	return "", "", false
}

// StoreKeyStrategy reads key from store in ec.
func StoreKeyStrategy(store *credstore.Store, ec credstore.ExecutionContext, key string) LegacyStrategy {
	return LegacyStrategy{
		Name: "store:" + key,
		Lookup: func(ctx context.Context) (string, bool) {
			v, ok, err := store.Get(ctx, ec, key)
			if err != nil {
				return "", false
			}
			return v, ok
		},
	}
}

// QuotedKVStrategy reads key directly from a durable backend and strips one pair of
// surrounding double quotes.
func QuotedKVStrategy(kv credstore.KV, key string) LegacyStrategy {
	return LegacyStrategy{
		Name: "kv:" + key,
		Lookup: func(ctx context.Context) (string, bool) {
			v, ok, err := kv.Get(ctx, key)
			if err != nil || !ok {
				return "", false
			}
			if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
				v = v[1 : len(v)-1]
			}
			return v, v != ""
		},
	}
}

// DefaultLegacyStrategies checks the legacyApiKey entry of ec, then, in the browser
// context only, the quoted apiKey entry of the durable store.
func DefaultLegacyStrategies(store *credstore.Store, ec credstore.ExecutionContext) []LegacyStrategy {
	strategies := []LegacyStrategy{StoreKeyStrategy(store, ec, credstore.KeyLegacyAPIKey)}
	if _, server := ec.(*credstore.ServerRequest); !server {
		strategies = append(strategies, QuotedKVStrategy(store.KV(), legacyDurableKey))
	}
	return strategies
}

// LegacyAPIKey returns the legacy API key, if any strategy finds one.
func (tm *TokenManager) LegacyAPIKey(ctx context.Context) (string, bool) {
	v, _, ok := ResolveLegacyCredential(ctx, tm.legacySource...)
	return v, ok
}

// SetLegacyAPIKey stores the legacy API key in the manager's context.
func (tm *TokenManager) SetLegacyAPIKey(ctx context.Context, value string) error {
	return tm.store.Set(ctx, tm.ec, credstore.KeyLegacyAPIKey, value)
}

// IsLegacyAPIKeyValid asks the API host whether the legacy key is accepted. Any failure,
// including a missing key or host, reports false.
func (tm *TokenManager) IsLegacyAPIKeyValid(ctx context.Context) bool {
	value, ok := tm.LegacyAPIKey(ctx)
	if !ok || tm.apiHost == "" {
		return false
	}

	endpoint, err := url.JoinPath(tm.apiHost, "check")
	if err != nil {
		return false
	}
	query := url.Values{}
	query.Set("key", credstore.KeyLegacyAPIKey)
	query.Set("value", value)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return false
	}

	resp, err := tm.checkClient.Do(req)
	if err != nil {
		tm.logf("oauth2client: legacy key check failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusNoContent
}

func newCheckClient(logger Logger) *http.Client {
	cl := retryablehttp.NewClient()
	cl.RetryMax = 2
	cl.RetryWaitMin = 100 * time.Millisecond
	cl.RetryWaitMax = time.Second
	cl.Logger = nil
	if logger != nil {
		cl.Logger = logger
	}
	return cl.StandardClient()
}
