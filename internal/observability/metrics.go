package observability

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sign-in outcomes
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeServerError        = "server_error"
	OutcomeNetworkError       = "network_error"
	OutcomeValidation         = "validation"
	OutcomeStale              = "stale"
)

// Metrics holds the portal's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry       prometheus.Gatherer
	signIns        *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Collectors
// already registered by an earlier call are reused.
func NewMetrics(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: reg,
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_signin_total",
			Help: "Sign-in attempts by outcome",
		}, []string{"outcome"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_guard_decisions_total",
			Help: "Route guard decisions by final state",
		}, []string{"state"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_upstream_errors_total",
			Help: "Failed calls to the remote API by kind",
		}, []string{"kind"}),
	}

	var err error
	if m.signIns, err = register(reg, m.signIns); err != nil {
		return nil, err
	}
	if m.guardDecisions, err = register(reg, m.guardDecisions); err != nil {
		return nil, err
	}
	if m.upstreamErrors, err = register(reg, m.upstreamErrors); err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSignIn counts one sign-in attempt
func (m *Metrics) ObserveSignIn(outcome string) {
	if m == nil {
		return
	}
	m.signIns.WithLabelValues(outcome).Inc()
}

// ObserveGuardDecision counts one route guard decision
func (m *Metrics) ObserveGuardDecision(state string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(state).Inc()
}

// ObserveUpstreamError counts a failed remote API call (network or http)
func (m *Metrics) ObserveUpstreamError(kind string) {
	if m == nil {
		return
	}
	m.upstreamErrors.WithLabelValues(kind).Inc()
}
