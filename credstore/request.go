package credstore

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RequestIDHeader is read by NewServerRequest to reuse an upstream request id.
const RequestIDHeader = "X-Request-Id"

// ExecutionContext selects where a Store reads and writes. It is either BrowserTab or
// a *ServerRequest. A nil ExecutionContext means BrowserTab.
type ExecutionContext interface {
	executionContext()
}

// BrowserTab is the long-lived client context backed by the durable KV store.
type BrowserTab struct{}

func (BrowserTab) executionContext() {}

// ServerRequest is the context of one inbound HTTP request. Values are read from the
// request and written to the response; nothing is kept after the request completes.
type ServerRequest struct {
	id string
	r  *http.Request
	w  http.ResponseWriter

	mu      sync.Mutex
	written map[string]*http.Cookie
}

func (*ServerRequest) executionContext() {}

// NewServerRequest wraps an inbound request and its response writer. w may be nil for
// read-only use, in which case writes are only visible to later reads.
func NewServerRequest(w http.ResponseWriter, r *http.Request) *ServerRequest {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}

	return &ServerRequest{
		id:      id,
		r:       r,
		w:       w,
		written: make(map[string]*http.Cookie),
	}
}

// ID returns the request id.
func (sr *ServerRequest) ID() string {
	return sr.id
}

// Request returns the wrapped request.
func (sr *ServerRequest) Request() *http.Request {
	return sr.r
}

// ClientAddress returns the first X-Forwarded-For entry, or the host part of RemoteAddr.
func (sr *ServerRequest) ClientAddress() string {
	if fwd := sr.r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(sr.r.RemoteAddr)
	if err != nil {
		return sr.r.RemoteAddr
	}
	return host
}

// lookup resolves key from, in order, cookies written during this request, the query
// string, and the request cookies.
func (sr *ServerRequest) lookup(key string) (string, bool) {
	sr.mu.Lock()
	c, ok := sr.written[key]
	sr.mu.Unlock()
	if ok {
		if c.MaxAge < 0 {
			return "", false
		}
		return c.Value, true
	}

	if values, ok := sr.r.URL.Query()[key]; ok && len(values) > 0 {
		return values[0], true
	}

	if c, err := sr.r.Cookie(key); err == nil {
		return c.Value, true
	}
	return "", false
}

func (sr *ServerRequest) write(c *http.Cookie) {
	sr.mu.Lock()
	sr.written[c.Name] = c
	sr.mu.Unlock()

	if sr.w != nil {
		http.SetCookie(sr.w, c)
	}
}
