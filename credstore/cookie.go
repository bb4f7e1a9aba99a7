package credstore

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// CookieOptions are the attributes of every cookie a Store writes.
type CookieOptions struct {
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// DefaultCookieOptions returns root-path, SameSite=Lax session cookies.
// HttpOnly is off because client code reads the same cookies.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
}

func (o CookieOptions) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		Secure:   o.Secure,
		HttpOnly: o.HttpOnly,
		SameSite: o.SameSite,
	}
}

func (o CookieOptions) expired(name string) *http.Cookie {
	c := o.cookie(name, "")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

// NewCookieJar creates a cookie jar that applies the public suffix list.
func NewCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("credstore: create cookie jar: %w", err)
	}
	return jar, nil
}
