package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCountersIncrement(t *testing.T) {
	m := New()

	m.IncTick()
	m.IncTick()
	m.IncStintCreated()
	m.IncDedupHit()
	m.IncHeartbeat()
	m.IncTelemetryError()
	m.AddStaleAgentsRemoved(3)
	m.AddStaleAgentsRemoved(0) // no-op

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	got := make(map[string]float64)
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			got[fam.GetName()] = metric.GetCounter().GetValue()
		}
	}

	want := map[string]float64{
		"stintflow_tracker_ticks_total":                2,
		"stintflow_tracker_stints_created_total":       1,
		"stintflow_tracker_dedup_hits_total":           1,
		"stintflow_tracker_heartbeats_total":           1,
		"stintflow_tracker_telemetry_errors_total":     1,
		"stintflow_tracker_stale_agents_removed_total": 3,
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("%s = %v, want %v", name, got[name], value)
		}
	}
}

func TestNilMetricsNoOp(t *testing.T) {
	// A tracker without a metrics endpoint passes nil; every increment
	// must be safe.
	var m *Metrics
	m.IncTick()
	m.IncTelemetryError()
	m.IncStintCreated()
	m.IncDedupHit()
	m.IncHeartbeat()
	m.AddStaleAgentsRemoved(5)
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.IncTick()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stintflow_tracker_ticks_total 1") {
		t.Errorf("exposition missing tick counter:\n%s", rec.Body.String())
	}
}
