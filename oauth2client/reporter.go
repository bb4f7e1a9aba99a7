package oauth2client

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// ErrorReporter receives failures that are handled locally but worth tracking, such as
// swallowed sign-out errors and transient refresh failures.
type ErrorReporter interface {
	Report(ctx context.Context, err error)
}

// SentryReporter reports errors to Sentry. A hub attached to ctx takes precedence.
type SentryReporter struct {
	Hub *sentry.Hub
}

// NewSentryReporter creates a SentryReporter. A nil hub uses sentry.CurrentHub().
func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryReporter{Hub: hub}
}

func (r *SentryReporter) Report(ctx context.Context, err error) {
	hub := r.Hub
	if h := sentry.GetHubFromContext(ctx); h != nil {
		hub = h
	}
	if hub == nil {
		return
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "oauth2client")
		hub.CaptureException(err)
	})
}
