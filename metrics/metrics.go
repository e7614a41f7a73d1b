// Package metrics exposes the tracker's operational counters as
// Prometheus collectors. Everything is registered on a dedicated
// registry so tests and dry runs can run without global state, and a
// nil *Metrics no-ops every increment.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the tracker's counters.
type Metrics struct {
	registry *prometheus.Registry

	ticks              prometheus.Counter
	telemetryErrors    prometheus.Counter
	stintsCreated      prometheus.Counter
	dedupHits          prometheus.Counter
	heartbeats         prometheus.Counter
	staleAgentsRemoved prometheus.Counter
}

// New creates a metrics set on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stintflow_tracker_ticks_total",
			Help: "Polling ticks executed by the tracker loop.",
		}),
		telemetryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stintflow_tracker_telemetry_errors_total",
			Help: "Ticks skipped because the telemetry mapping was unavailable.",
		}),
		stintsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stintflow_tracker_stints_created_total",
			Help: "Official stints this agent inserted first.",
		}),
		dedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stintflow_tracker_dedup_hits_total",
			Help: "Pit-outs another agent had already recorded.",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stintflow_tracker_heartbeats_total",
			Help: "Agent heartbeat updates written to the registry.",
		}),
		staleAgentsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stintflow_tracker_stale_agents_removed_total",
			Help: "Stale agent registrations removed by this agent's cleanup.",
		}),
	}

	m.registry.MustRegister(
		m.ticks,
		m.telemetryErrors,
		m.stintsCreated,
		m.dedupHits,
		m.heartbeats,
		m.staleAgentsRemoved,
	)
	return m
}

// IncTick counts a loop tick.
func (m *Metrics) IncTick() {
	if m != nil {
		m.ticks.Inc()
	}
}

// IncTelemetryError counts a tick skipped on unavailable telemetry.
func (m *Metrics) IncTelemetryError() {
	if m != nil {
		m.telemetryErrors.Inc()
	}
}

// IncStintCreated counts a first-insert stint.
func (m *Metrics) IncStintCreated() {
	if m != nil {
		m.stintsCreated.Inc()
	}
}

// IncDedupHit counts an upsert that found an existing record.
func (m *Metrics) IncDedupHit() {
	if m != nil {
		m.dedupHits.Inc()
	}
}

// IncHeartbeat counts a heartbeat write.
func (m *Metrics) IncHeartbeat() {
	if m != nil {
		m.heartbeats.Inc()
	}
}

// AddStaleAgentsRemoved counts registrations removed by cleanup.
func (m *Metrics) AddStaleAgentsRemoved(n int64) {
	if m != nil && n > 0 {
		m.staleAgentsRemoved.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ListenAndServe runs a metrics endpoint on addr until the context is
// cancelled.
func (m *Metrics) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
