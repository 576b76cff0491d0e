package metrics

import (
	"github.com/milk-back/backend/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

// Auth counts authentication verdicts and refresh outcomes.
type Auth struct {
	verdicts  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
}

func NewAuth(reg prometheus.Registerer) *Auth {
	m := &Auth{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "milk",
			Subsystem: "auth",
			Name:      "verdicts_total",
			Help:      "Authentication verdicts computed per request.",
		}, []string{"verdict"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "milk",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Transparent token refresh outcomes.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.verdicts, m.refreshes)
	}
	return m
}

func (m *Auth) ObserveVerdict(v model.Verdict) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(v.String()).Inc()
}

func (m *Auth) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}
