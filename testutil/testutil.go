// Package testutil provides fakes for code that depends on oauth2client.
//
// FakeIdentityProvider stands in for an OpenID Connect server: it counts refresh and
// sign-out calls and by default issues a fresh, numbered token triplet per refresh.
//
//	idp := testutil.NewFakeIdentityProvider()
//	tm := oauth2client.NewTokenManager(credstore.New(nil), nil, idp)
//
//	idp.FailRefresh(testutil.InvalidGrant())
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tienchanhtri/aoxam-web/oauth2client"
)

// FakeIdentityProvider is an in-memory oauth2client.IdentityProvider.
type FakeIdentityProvider struct {
	mu            sync.Mutex
	refreshes     []string
	endSessions   []oauth2client.TokenSet
	refreshErr    error
	endSessionErr error
	delay         time.Duration
	issue         func(n int) oauth2client.TokenSet
}

// NewFakeIdentityProvider creates a provider issuing "access-N", "refresh-N" and "id-N"
// on the Nth refresh.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{
		issue: func(n int) oauth2client.TokenSet {
			return oauth2client.TokenSet{
				AccessToken:  fmt.Sprintf("access-%d", n),
				RefreshToken: fmt.Sprintf("refresh-%d", n),
				IDToken:      fmt.Sprintf("id-%d", n),
			}
		},
	}
}

// IssueWith replaces the token factory. n starts at 1.
func (f *FakeIdentityProvider) IssueWith(issue func(n int) oauth2client.TokenSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issue = issue
}

// FailRefresh makes every following refresh return err. A nil err restores success.
func (f *FakeIdentityProvider) FailRefresh(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshErr = err
}

// FailEndSession makes every following sign-out return err.
func (f *FakeIdentityProvider) FailEndSession(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endSessionErr = err
}

// SetDelay makes each refresh wait d, or until ctx is done.
func (f *FakeIdentityProvider) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func (f *FakeIdentityProvider) Refresh(ctx context.Context, refreshToken string) (oauth2client.TokenSet, error) {
	f.mu.Lock()
	f.refreshes = append(f.refreshes, refreshToken)
	n := len(f.refreshes)
	delay, err, issue := f.delay, f.refreshErr, f.issue
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return oauth2client.TokenSet{}, ctx.Err()
		case <-timer.C:
		}
	}

	if err != nil {
		return oauth2client.TokenSet{}, err
	}
	return issue(n), nil
}

func (f *FakeIdentityProvider) EndSession(_ context.Context, tokens oauth2client.TokenSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.endSessions = append(f.endSessions, tokens)
	return f.endSessionErr
}

// RefreshCalls returns the number of refreshes performed.
func (f *FakeIdentityProvider) RefreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refreshes)
}

// RefreshedTokens returns the refresh tokens presented, in order.
func (f *FakeIdentityProvider) RefreshedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshes...)
}

// EndSessionCalls returns the triplets passed to EndSession, in order.
func (f *FakeIdentityProvider) EndSessionCalls() []oauth2client.TokenSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]oauth2client.TokenSet(nil), f.endSessions...)
}

// InvalidGrant returns the error an identity provider reports for a stale refresh token.
func InvalidGrant() error {
	return &oauth2client.RefreshError{
		StatusCode:  http.StatusBadRequest,
		Code:        "invalid_grant",
		Description: "Stale token",
	}
}

// Unavailable returns a transient token endpoint failure.
func Unavailable() error {
	return &oauth2client.RefreshError{StatusCode: http.StatusServiceUnavailable}
}
