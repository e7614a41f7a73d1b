package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStintStore is the dry-run stint persister: the full dedup and
// enrichment semantics of the MongoDB path over an in-memory map, so a
// tracker can be exercised without touching a live database.
type MemoryStintStore struct {
	mu      sync.Mutex
	byKey   map[string]*Stint
	idByKey map[string]string
}

// NewMemoryStintStore creates an empty in-memory persister.
func NewMemoryStintStore() *MemoryStintStore {
	return &MemoryStintStore{
		byKey:   make(map[string]*Stint),
		idByKey: make(map[string]string),
	}
}

// UpsertOfficial implements StintPersister.
func (m *MemoryStintStore) UpsertOfficial(ctx context.Context, stint *Stint) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byKey[stint.StintKey]; ok {
		for path, compound := range enrichmentUpdates(stint.TireData) {
			applyCompoundPath(existing, path, compound)
		}
		return m.idByKey[stint.StintKey], false, nil
	}

	copied := *stint
	id := uuid.NewString()
	m.byKey[stint.StintKey] = &copied
	m.idByKey[stint.StintKey] = id
	return id, true, nil
}

// Stint returns the stored record for a stint key, or nil.
func (m *MemoryStintStore) Stint(stintKey string) *Stint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[stintKey]
}

// Len reports how many distinct stint keys have been recorded.
func (m *MemoryStintStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

// applyCompoundPath interprets the "tire_data.<pos>.incoming.compound"
// update paths produced by enrichmentUpdates against an in-memory stint.
func applyCompoundPath(stint *Stint, path, compound string) {
	// path layout: tire_data.<pos>.incoming.compound
	const prefix, suffix = "tire_data.", ".incoming.compound"
	if len(path) <= len(prefix)+len(suffix) {
		return
	}
	pos := path[len(prefix) : len(path)-len(suffix)]

	switch pos {
	case "fl":
		stint.TireData.FL.Incoming.Compound = compound
	case "fr":
		stint.TireData.FR.Incoming.Compound = compound
	case "rl":
		stint.TireData.RL.Incoming.Compound = compound
	case "rr":
		stint.TireData.RR.Incoming.Compound = compound
	}
}
