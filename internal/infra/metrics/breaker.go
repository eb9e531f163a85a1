package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(breakerState, breakerRejectionsTotal)
}

var (
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open).",
		},
		[]string{"provider"},
	)

	breakerRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejections_total",
			Help: "Requests rejected because the provider breaker was open.",
		},
		[]string{"provider"},
	)
)

func SetBreakerState(provider string, state int) {
	breakerState.WithLabelValues(norm(provider)).Set(float64(state))
}

func IncBreakerRejection(provider string) {
	breakerRejectionsTotal.WithLabelValues(norm(provider)).Inc()
}
