package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
)

// TokenSet is the access/refresh/id token triplet. Empty fields are absent.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// IdentityProvider performs the network calls of the refresh and sign-out flows.
type IdentityProvider interface {
	// Refresh exchanges refreshToken for a new TokenSet. A permanently rejected refresh
	// token must yield an error matching ErrInvalidGrant.
	Refresh(ctx context.Context, refreshToken string) (TokenSet, error)

	// EndSession notifies the provider that the session identified by tokens ended.
	EndSession(ctx context.Context, tokens TokenSet) error
}

// ProviderOption is a functional option for configuring OIDCProvider.
type ProviderOption func(*OIDCProvider)

// WithHTTPClient sets the HTTP client used for token and sign-out requests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *OIDCProvider) {
		p.httpClient = client
	}
}

// WithSignOutRetries sets how many times a failed sign-out request is retried.
func WithSignOutRetries(n int) ProviderOption {
	return func(p *OIDCProvider) {
		p.signOutRetries = n
	}
}

// WithProviderLogger sets a logger for retried sign-out requests.
func WithProviderLogger(logger Logger) ProviderOption {
	return func(p *OIDCProvider) {
		p.logger = logger
	}
}

// OIDCProvider is an IdentityProvider for an OpenID Connect server such as Keycloak.
// Refresh uses the refresh_token grant with the client id sent in the form body.
type OIDCProvider struct {
	oauth          *oauth2.Config
	endSessionURL  string
	httpClient     *http.Client
	signOutRetries int
	logger         Logger
	signOut        *retryablehttp.Client
}

// NewOIDCProvider creates an OIDCProvider from cfg. Missing URLs are derived from
// cfg.Authority.
func NewOIDCProvider(cfg Config, opts ...ProviderOption) *OIDCProvider {
	cfg = cfg.withDefaults()

	p := &OIDCProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		endSessionURL:  cfg.EndSessionURL,
		signOutRetries: 2,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.signOut = retryablehttp.NewClient()
	p.signOut.RetryMax = p.signOutRetries
	p.signOut.RetryWaitMin = 100 * time.Millisecond
	p.signOut.RetryWaitMax = time.Second
	p.signOut.Logger = nil
	if p.logger != nil {
		p.signOut.Logger = p.logger
	}
	if p.httpClient != nil {
		p.signOut.HTTPClient = p.httpClient
	}

	return p
}

// Refresh performs the refresh_token grant.
func (p *OIDCProvider) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return TokenSet{}, classifyRetrieveError(err)
	}

	set := TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		set.IDToken = id
	}
	return set, nil
}

func classifyRetrieveError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &RefreshError{Err: err}
	}

	refreshErr := &RefreshError{
		Code:        re.ErrorCode,
		Description: re.ErrorDescription,
		Err:         err,
	}
	if re.Response != nil {
		refreshErr.StatusCode = re.Response.StatusCode
	}
	return refreshErr
}

// EndSession posts id_token_hint, client_id and refresh_token to the end-session endpoint.
// Any non-2xx response is an error.
func (p *OIDCProvider) EndSession(ctx context.Context, tokens TokenSet) error {
	if p.endSessionURL == "" {
		return errors.New("oauth2client: end-session URL not configured")
	}

	form := url.Values{}
	if tokens.IDToken != "" {
		form.Set("id_token_hint", tokens.IDToken)
	}
	form.Set("client_id", p.oauth.ClientID)
	form.Set("refresh_token", tokens.RefreshToken)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.endSessionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("oauth2client: build end-session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.signOut.Do(req)
	if err != nil {
		return fmt.Errorf("oauth2client: end session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("oauth2client: end session: unexpected status %d", resp.StatusCode)
	}
	return nil
}
