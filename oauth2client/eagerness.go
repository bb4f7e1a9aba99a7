package oauth2client

import (
	"fmt"
	"time"
)

type eagerMode int

const (
	eagerOnRejection eagerMode = iota
	eagerAlways
	eagerWithin
)

// Eagerness decides whether a present access token is refreshed before it is rejected.
// The zero value is OnRejection.
type Eagerness struct {
	mode   eagerMode
	remain time.Duration
}

var (
	// OnRejection refreshes only when the token is absent or equals the rejected token.
	// Use it from handlers reacting to a 401.
	OnRejection = Eagerness{}

	// Always refreshes unconditionally, for pre-warming at startup.
	Always = Eagerness{mode: eagerAlways}
)

// WithinRemaining refreshes when the token expires within d, or when its expiry cannot be
// decoded. Tokens without an exp claim are not refreshed.
func WithinRemaining(d time.Duration) Eagerness {
	return Eagerness{mode: eagerWithin, remain: d}
}

// MaxRemainMillis maps a millisecond freshness margin to an Eagerness: -1 is Always,
// other values are WithinRemaining.
func MaxRemainMillis(ms int64) Eagerness {
	if ms == -1 {
		return Always
	}
	return WithinRemaining(time.Duration(ms) * time.Millisecond)
}

func (e Eagerness) String() string {
	switch e.mode {
	case eagerAlways:
		return "always"
	case eagerWithin:
		return fmt.Sprintf("within %s", e.remain)
	default:
		return "on rejection"
	}
}

// due reports whether token should be refreshed at now. decodeFailed is called when the
// token cannot be decoded.
func (e Eagerness) due(token string, now time.Time, decodeFailed func()) bool {
	if token == "" {
		return true
	}

	switch e.mode {
	case eagerAlways:
		return true
	case eagerWithin:
		claims, ok := DecodeClaims(token)
		if !ok {
			if decodeFailed != nil {
				decodeFailed()
			}
			return true
		}
		exp, ok := claims.Expiry()
		if !ok {
			return false
		}
		return exp.Sub(now) <= e.remain
	default:
		return false
	}
}
