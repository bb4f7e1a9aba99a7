// Package httpserver wires sessions into server-rendered pages.
//
// Middleware gives every request its own oauth2client.TokenManager that reads the
// request's auth cookies and writes refreshed tokens back as Set-Cookie headers. Handlers
// build API clients from it and turn authentication failures into redirects.
//
// # Quick Start
//
//	registry := oauth2client.NewRegistry(store, provider)
//
//	mux := http.NewServeMux()
//	mux.Handle("/settings/iam", httpserver.DefaultRedirector.Handler(func(w http.ResponseWriter, r *http.Request) error {
//	    tm := httpserver.MustTokenManagerFromContext(r.Context())
//	    resp, err := httpclient.NewHTTPClient(tm).Get(apiHost + "/urp")
//	    if err == nil {
//	        err = httpclient.CheckResponse(resp)
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    defer resp.Body.Close()
//	    return render(w, resp.Body)
//	}))
//
//	handler := httpserver.Middleware(registry,
//	    httpserver.WithExemptPaths("/health"),
//	    httpserver.WithExemptPathPrefixes("/static/"),
//	)(mux)
//
// # Redirects
//
// An API 401, oauth2client.ErrNotAuthenticated and oauth2client.ErrInvalidGrant redirect
// to "/auth?axRedirectUrl=<request URI>". A 403 redirects to "/".
//
// # Claims
//
// TokenClaimsFromContext returns the decoded, unverified claims of the request's access
// token. They are meant for rendering, never for authorization.
package httpserver
