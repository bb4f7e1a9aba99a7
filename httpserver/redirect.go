package httpserver

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/tienchanhtri/aoxam-web/httpclient"
	"github.com/tienchanhtri/aoxam-web/oauth2client"
)

// RedirectParam is the query parameter carrying the page to return to after sign-in.
const RedirectParam = "axRedirectUrl"

// Redirector maps authentication failures of server-rendered pages to redirects.
type Redirector struct {
	// LoginPath is the sign-in entry point. Defaults to "/auth".
	LoginPath string

	// HomePath receives requests that were forbidden. Defaults to "/".
	HomePath string

	Logger Logger
}

// DefaultRedirector redirects to "/auth" and "/".
var DefaultRedirector = &Redirector{}

// AuthRedirect uses DefaultRedirector.
func AuthRedirect(w http.ResponseWriter, r *http.Request, err error) bool {
	return DefaultRedirector.AuthRedirect(w, r, err)
}

// AuthRedirect writes a redirect for err and reports whether it did.
//
// A 401 from the API, ErrNotAuthenticated, and ErrInvalidGrant send the user to the login
// path with the current URL in axRedirectUrl. A 403 sends the user home.
// Any other error is left to the caller.
func (rd *Redirector) AuthRedirect(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}

	switch {
	case unauthenticated(err):
		target := rd.LoginURL(r)
		rd.logf("httpserver: 401 redirect to %s", target)
		http.Redirect(w, r, target, http.StatusFound)
		return true
	case statusCode(err) == http.StatusForbidden:
		target := rd.homePath()
		rd.logf("httpserver: 403 redirect to %s", target)
		http.Redirect(w, r, target, http.StatusFound)
		return true
	default:
		return false
	}
}

// LoginURL returns the login path carrying the request URI as axRedirectUrl.
func (rd *Redirector) LoginURL(r *http.Request) string {
	loginPath := rd.LoginPath
	if loginPath == "" {
		loginPath = "/auth"
	}

	query := url.Values{}
	query.Set(RedirectParam, r.URL.RequestURI())
	return loginPath + "?" + query.Encode()
}

// Handler runs render and redirects on authentication failures. Other errors answer 500.
//
// Usage:
//
//	mux.Handle("/settings/iam", httpserver.DefaultRedirector.Handler(func(w http.ResponseWriter, r *http.Request) error {
//	    resp, err := client.Get(apiHost + "/urp")
//	    if err == nil {
//	        err = httpclient.CheckResponse(resp)
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    return renderIAM(w, resp)
//	}))
func (rd *Redirector) Handler(render func(w http.ResponseWriter, r *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := render(w, r)
		if err == nil || rd.AuthRedirect(w, r, err) {
			return
		}
		rd.logf("httpserver: render %s failed: %v", r.URL.Path, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	})
}

func (rd *Redirector) homePath() string {
	if rd.HomePath == "" {
		return "/"
	}
	return rd.HomePath
}

func (rd *Redirector) logf(format string, args ...any) {
	if rd.Logger != nil {
		rd.Logger.Printf(format, args...)
	}
}

func unauthenticated(err error) bool {
	return statusCode(err) == http.StatusUnauthorized ||
		errors.Is(err, oauth2client.ErrNotAuthenticated) ||
		errors.Is(err, oauth2client.ErrInvalidGrant)
}

func statusCode(err error) int {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
