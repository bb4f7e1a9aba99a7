package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tienchanhtri/aoxam-web/oauth2client"
)

// Builder provides a fluent interface for constructing HTTP clients that call the API
// host on behalf of a session.
type Builder struct {
	tokens TokenSource
	eager  oauth2client.Eagerness

	timeout         time.Duration
	baseTransport   http.RoundTripper
	followRedirects bool
	jar             http.CookieJar
	retries         int
	logger          oauth2client.Logger
}

// NewBuilder creates a new HTTP client builder.
func NewBuilder() *Builder {
	return &Builder{
		timeout:         30 * time.Second,
		followRedirects: true,
	}
}

// WithTokenManager sets the token source for automatic authentication.
func (b *Builder) WithTokenManager(tokens TokenSource) *Builder {
	b.tokens = tokens
	return b
}

// WithEagerness refreshes tokens before sending according to eager, instead of only after
// a 401.
func (b *Builder) WithEagerness(eager oauth2client.Eagerness) *Builder {
	b.eager = eager
	return b
}

// WithTimeout sets the request timeout for the HTTP client.
// Default is 30 seconds if not specified.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithBaseTransport sets a custom base transport.
func (b *Builder) WithBaseTransport(transport http.RoundTripper) *Builder {
	b.baseTransport = transport
	return b
}

// WithoutRedirects disables automatic redirect following.
func (b *Builder) WithoutRedirects() *Builder {
	b.followRedirects = false
	return b
}

// WithCookieJar sets the jar used for cookies set by the API host.
func (b *Builder) WithCookieJar(jar http.CookieJar) *Builder {
	b.jar = jar
	return b
}

// WithRetries retries connection failures and 5xx responses up to n times below the
// authentication layer. A 401 is never retried here.
func (b *Builder) WithRetries(n int, logger oauth2client.Logger) *Builder {
	b.retries = n
	b.logger = logger
	return b
}

// Build constructs the HTTP client with the configured options.
func (b *Builder) Build() (*http.Client, error) {
	transport := b.baseTransport
	if transport == nil {
		transport = http.DefaultTransport
	}

	if b.retries > 0 {
		rc := retryablehttp.NewClient()
		rc.HTTPClient = &http.Client{Transport: transport}
		rc.RetryMax = b.retries
		rc.RetryWaitMin = 100 * time.Millisecond
		rc.RetryWaitMax = 2 * time.Second
		rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
		rc.Logger = nil
		if b.logger != nil {
			rc.Logger = b.logger
		}
		transport = &retryablehttp.RoundTripper{Client: rc}
	}

	if b.tokens != nil {
		transport = &OAuth2Transport{Base: transport, Tokens: b.tokens, Eager: b.eager}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   b.timeout,
		Jar:       b.jar,
	}

	if !b.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

// NewHTTPClient is a convenience function that creates an HTTP client authenticated by tm.
// For more configuration options, use Builder instead.
//
// Example:
//
//	tm := registry.Browser()
//	client := httpclient.NewHTTPClient(tm)
//	resp, err := client.Get("https://api.aoxam.example.com/search?q=hue")
func NewHTTPClient(tokens TokenSource) *http.Client {
	return &http.Client{
		Transport: NewOAuth2Transport(tokens, nil),
		Timeout:   30 * time.Second,
	}
}
