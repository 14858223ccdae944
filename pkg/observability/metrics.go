package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the control-plane collectors.
type Metrics struct {
	exchanges         *prometheus.CounterVec
	exchangeDuration  *prometheus.HistogramVec
	storageRequests   *prometheus.CounterVec
	controllerChanges *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicemocker_exchanges_total",
				Help: "Total number of request/response exchanges by outcome",
			},
			[]string{"outcome"},
		),
		exchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "servicemocker_exchange_duration_seconds",
				Help:    "Duration of request/response exchanges",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 3, 5},
			},
			[]string{"outcome"},
		),
		storageRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicemocker_storage_requests_total",
				Help: "Storage requests handled for the worker by action and status",
			},
			[]string{"action", "status"},
		),
		controllerChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "servicemocker_controller_changes_total",
				Help: "Controller handoffs observed by the client by result",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.exchanges, m.exchangeDuration, m.storageRequests, m.controllerChanges)
	return m
}

// ObserveExchange implements message.Observer.
func (m *Metrics) ObserveExchange(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(outcome).Inc()
	m.exchangeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveStorage records one handled storage request.
func (m *Metrics) ObserveStorage(action, status string) {
	if m == nil {
		return
	}
	m.storageRequests.WithLabelValues(action, status).Inc()
}

// ObserveControllerChange records one controller handoff.
func (m *Metrics) ObserveControllerChange(err error) {
	if m == nil {
		return
	}
	result := "connected"
	if err != nil {
		result = "failed"
	}
	m.controllerChanges.WithLabelValues(result).Inc()
}
