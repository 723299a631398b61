// Package metrics exposes controller state to Prometheus.
package metrics

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the controller's collectors on a private registry
type Metrics struct {
	registry    *prometheus.Registry
	daemonUp    prometheus.Gauge
	transitions prometheus.Counter
	operations  *prometheus.CounterVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		daemonUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lapsusctl_daemon_up",
			Help: "Whether the supervised daemon was live at the last probe (1) or not (0)",
		}),
		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lapsusctl_liveness_transitions_total",
			Help: "Number of observed daemon liveness changes",
		}),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lapsusctl_control_operations_total",
				Help: "Start and stop requests by backend and outcome",
			},
			[]string{"operation", "backend", "result"},
		),
	}

	m.registry.MustRegister(m.daemonUp)
	m.registry.MustRegister(m.transitions)
	m.registry.MustRegister(m.operations)

	return m
}

// SetDaemonUp records the current liveness without counting a transition
func (m *Metrics) SetDaemonUp(running bool) {
	if running {
		m.daemonUp.Set(1)
	} else {
		m.daemonUp.Set(0)
	}
}

// ObserveTransition records a liveness edge
func (m *Metrics) ObserveTransition(running bool) {
	m.SetDaemonUp(running)
	m.transitions.Inc()
}

// ObserveOperation counts a start or stop request
func (m *Metrics) ObserveOperation(operation, backend, result string) {
	m.operations.WithLabelValues(operation, backend, result).Inc()
}

// Registry exposes the private registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Status is the JSON body of GET /status
type Status struct {
	Running bool   `json:"running"`
	Backend string `json:"backend"`
	Binary  string `json:"binary,omitempty"`
}

// Handler serves /metrics and /status. status is called per request.
func (m *Metrics) Handler(status func() Status) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			slog.Debug("Failed to write status response", "error", err)
		}
	}).Methods("GET")
	return r
}
