package tires

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"stintflow/logging"
	"stintflow/telemetry"
)

// DefaultEndpoint is the simulator's local REST endpoint exposing the
// garage tire-management screen state.
const DefaultEndpoint = "http://localhost:6397/rest/garage/UIScreen/TireManagement"

// requestTimeout keeps the tracker responsive when the simulator's REST
// server is not listening. There is no retry; compound identity is not
// critical.
const requestTimeout = 2 * time.Second

// Extractor builds canonical tire snapshots from a telemetry read plus
// the garage compound endpoint.
type Extractor struct {
	endpoint string
	client   *http.Client
	log      *logging.Logger
}

// NewExtractor creates an extractor against the given endpoint. An empty
// endpoint selects DefaultEndpoint; a nil logger discards.
func NewExtractor(endpoint string, log *logging.Logger) *Extractor {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Extractor{
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
		log:      log,
	}
}

// Snapshot produces the canonical tire state for the given wheel
// telemetry. Compound identity comes from the garage endpoint; on any
// failure there the snapshot carries Unknown compounds and a warning is
// logged. Snapshot never returns an error.
func (e *Extractor) Snapshot(ctx context.Context, wheels [4]telemetry.WheelSnapshot) Snapshot {
	compounds, err := e.fetchCompounds(ctx)
	if err != nil {
		e.log.WithAction("stint_tracker", "get_tire_compound").
			Warnf("failed to retrieve tire management data: %v", err)
	}

	snap := make(Snapshot, len(Positions))
	for i, pos := range Positions {
		compound := CompoundUnknown
		if err == nil {
			compound = compounds[i]
		}
		snap[pos] = Wheel{
			Wear:     wheels[i].Wear,
			Flat:     wheels[i].Flat,
			Detached: wheels[i].Detached,
			Compound: compound,
		}
	}
	return snap
}

// tireManagementPayload is the slice of the garage UI state the
// extractor cares about.
type tireManagementPayload struct {
	WheelInfo struct {
		WheelLocs []struct {
			Compound *int `json:"compound"`
		} `json:"wheelLocs"`
	} `json:"wheelInfo"`
}

// fetchCompounds queries the garage endpoint and returns compound names
// in wheel-array order.
func (e *Extractor) fetchCompounds(ctx context.Context) ([4]string, error) {
	var compounds [4]string

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint, nil)
	if err != nil {
		return compounds, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return compounds, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return compounds, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var payload tireManagementPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return compounds, fmt.Errorf("decode tire management response: %w", err)
	}

	locs := payload.WheelInfo.WheelLocs
	if len(locs) < len(compounds) {
		return compounds, fmt.Errorf("tire management payload has %d wheels", len(locs))
	}

	for i := range compounds {
		if locs[i].Compound == nil {
			compounds[i] = CompoundUnknown
			continue
		}
		compounds[i] = CompoundName(*locs[i].Compound)
	}
	return compounds, nil
}
