package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tienchanhtri/aoxam-web/oauth2client"
)

// TokenSource yields access tokens and refreshes rejected ones.
// *oauth2client.TokenManager implements it.
type TokenSource interface {
	RefreshTokenFlow(ctx context.Context, rejected string, eager oauth2client.Eagerness) (string, error)
}

// OAuth2Transport is an http.RoundTripper that adds the session's access token as a
// Bearer header.
//
// When the server answers 401, the token that was sent is reported as rejected, a refresh
// is attempted, and the request is sent once more with the new token. Requests whose body
// cannot be replayed (GetBody is nil) are not retried. Sessions without credentials are
// sent without the header.
type OAuth2Transport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Tokens provides access tokens.
	Tokens TokenSource

	// Eager decides whether a present token is refreshed before sending.
	Eager oauth2client.Eagerness
}

// RoundTrip implements http.RoundTripper.
func (t *OAuth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Tokens == nil {
		return nil, errors.New("httpclient: TokenSource is nil")
	}

	ctx := req.Context()
	token, err := t.token(ctx, "", t.Eager)
	if err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(authorize(req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	fresh, err := t.token(ctx, token, oauth2client.OnRejection)
	if err != nil || fresh == "" || fresh == token {
		return resp, nil
	}

	retry := authorize(req, fresh)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return t.base().RoundTrip(retry)
}

// token returns "" for anonymous sessions.
func (t *OAuth2Transport) token(ctx context.Context, rejected string, eager oauth2client.Eagerness) (string, error) {
	token, err := t.Tokens.RefreshTokenFlow(ctx, rejected, eager)
	if errors.Is(err, oauth2client.ErrNotAuthenticated) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("httpclient: failed to get token: %w", err)
	}
	return token, nil
}

func (t *OAuth2Transport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

// authorize clones req with token as its Bearer header. An empty token removes the header.
func authorize(req *http.Request, token string) *http.Request {
	clone := req.Clone(req.Context())
	if token == "" {
		clone.Header.Del("Authorization")
	} else {
		clone.Header.Set("Authorization", "Bearer "+token)
	}
	return clone
}

// NewOAuth2Transport creates a new OAuth2Transport refreshing only on rejection.
// The base transport defaults to http.DefaultTransport if not specified.
func NewOAuth2Transport(tokens TokenSource, base http.RoundTripper) *OAuth2Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &OAuth2Transport{
		Base:   base,
		Tokens: tokens,
	}
}
