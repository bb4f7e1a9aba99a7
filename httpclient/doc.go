// Package httpclient builds HTTP clients that call the API host on behalf of a session.
//
// OAuth2Transport adds the session's access token as a Bearer header. When the API answers
// 401 it reports the sent token as rejected to the token source, which refreshes it at most
// once per session, and retries the request a single time with the new token.
//
// # Quick Start
//
//	client, err := httpclient.NewBuilder().
//	    WithTokenManager(registry.Browser()).
//	    WithEagerness(oauth2client.WithinRemaining(time.Minute)).
//	    WithRetries(2, nil).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Get("https://api.aoxam.example.com/search?q=hue")
//	if err == nil {
//	    err = httpclient.CheckResponse(resp)
//	}
//
// # Manual Transport Wrapping
//
//	transport := httpclient.NewOAuth2Transport(tm, nil)
//	client := &http.Client{Transport: transport}
//
// All components are safe for concurrent use if the provided TokenSource is.
package httpclient
