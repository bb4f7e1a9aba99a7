package httpclient

import (
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpclient: http error: %d (%s %s)", e.StatusCode, e.Method, e.URL)
}

// CheckResponse returns a *StatusError for non-2xx responses, after reading and closing
// the body. 2xx responses are returned untouched.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	if resp.Request != nil {
		err.Method = resp.Request.Method
		err.URL = resp.Request.URL.Redacted()
	}
	return err
}
