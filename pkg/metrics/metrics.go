// Package metrics holds the prometheus instruments for the conversation
// engine and the credential cache.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	EventsTotal     *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec
	TokenRefreshes  prometheus.Counter
}

// New builds the instrument set and registers it on reg. Passing a fresh
// private registry gives an isolated set, which is what tests do.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Name:      "events_total",
			Help:      "Inbound events processed, by dialog state at dispatch time.",
		}, []string{"state"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Name:      "handler_failures_total",
			Help:      "Handler failures, by failure kind.",
		}, []string{"kind"}),
		TokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pizzabot",
			Name:      "token_refreshes_total",
			Help:      "Credential exchanges performed by the token cache.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.EventsTotal, m.HandlerFailures, m.TokenRefreshes)
	}
	return m
}

// NewUnregistered builds instruments that report nowhere. Test default.
func NewUnregistered() *Metrics {
	return New(nil)
}
