package oauth2client

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh results recorded by Metrics.
const (
	resultSkipped      = "skipped"
	resultRefreshed    = "refreshed"
	resultInvalidGrant = "invalid_grant"
	resultFailed       = "failed"
)

// Metrics counts refresh outcomes and forced lock releases. A nil *Metrics records nothing.
type Metrics struct {
	refreshes   *prometheus.CounterVec
	lockExpired prometheus.Counter
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aoxam_auth_refresh_total",
			Help: "Refresh flow outcomes by result.",
		}, []string{"result"}),
		lockExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aoxam_auth_lock_expired_total",
			Help: "Refresh locks force-released after the lock timeout.",
		}),
	}

	for _, c := range []prometheus.Collector{m.refreshes, m.lockExpired} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("oauth2client: register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) observeLockExpired() {
	if m == nil {
		return
	}
	m.lockExpired.Inc()
}
