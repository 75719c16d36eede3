package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/catalog"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/event"
)

// Memory is an in-memory store for tests. It enforces the same
// constraints as the SQL stores: unique event ids and, once reference
// data is seeded, valid facility and procedure references.
type Memory struct {
	mu         sync.Mutex
	events     map[string]event.CaseEvent
	watermarks map[string]Watermark
	facilities map[string]bool
	procedures map[string]bool
}

var (
	_ EventSink       = (*Memory)(nil)
	_ EventSource     = (*Memory)(nil)
	_ WatermarkStore  = (*Memory)(nil)
	_ ReferenceSeeder = (*Memory)(nil)
)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events:     make(map[string]event.CaseEvent),
		watermarks: make(map[string]Watermark),
	}
}

// SeedReference records the valid facility and procedure keys. Once
// seeded, event writes referencing unknown keys fail like a foreign key
// violation would.
func (m *Memory) SeedReference(_ context.Context, cat *catalog.Catalog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facilities = make(map[string]bool)
	m.procedures = make(map[string]bool)
	for _, f := range cat.Facilities() {
		m.facilities[f.ID] = true
	}
	for _, p := range cat.Procedures() {
		m.procedures[p.Name] = true
	}
	return nil
}

func (m *Memory) checkReferences(ev event.CaseEvent) error {
	if m.facilities == nil {
		return nil
	}
	if !m.facilities[ev.FacilityID] {
		return &IntegrityError{Op: "insert event", Err: fmt.Errorf("unknown facility %q", ev.FacilityID)}
	}
	if !m.procedures[ev.ProcedureType] {
		return &IntegrityError{Op: "insert event", Err: fmt.Errorf("unknown procedure %q", ev.ProcedureType)}
	}
	return nil
}

// InsertEvent writes one event; a duplicate id is an IntegrityError.
func (m *Memory) InsertEvent(_ context.Context, ev event.CaseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkReferences(ev); err != nil {
		return err
	}
	if _, exists := m.events[ev.EventID]; exists {
		return &IntegrityError{Op: "insert event", Err: fmt.Errorf("duplicate event id %s", ev.EventID)}
	}
	m.events[ev.EventID] = ev
	return nil
}

// UpsertIgnoreEvent writes one event, ignoring a duplicate id.
func (m *Memory) UpsertIgnoreEvent(_ context.Context, ev event.CaseEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkReferences(ev); err != nil {
		return 0, err
	}
	if _, exists := m.events[ev.EventID]; exists {
		return 0, nil
	}
	m.events[ev.EventID] = ev
	return 1, nil
}

// QueryEventsSince returns up to limit events created strictly after the
// given timestamp, ascending by created_at.
func (m *Memory) QueryEventsSince(_ context.Context, after time.Time, limit int) ([]event.CaseEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.CaseEvent
	for _, ev := range m.events {
		if ev.CreatedAt.After(after) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountEvents returns the number of stored events.
func (m *Memory) CountEvents(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

// GetWatermark returns the watermark for sourceID, or a zero-value
// default when the source has never transferred.
func (m *Memory) GetWatermark(_ context.Context, sourceID string) (Watermark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watermarks[sourceID]
	if !ok {
		return Watermark{SourceID: sourceID}, nil
	}
	return w, nil
}

// SetWatermark upserts the watermark, accumulating rows transferred.
func (m *Memory) SetWatermark(_ context.Context, sourceID string, lastCreatedAt time.Time, rowsDelta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.watermarks[sourceID]
	w.SourceID = sourceID
	w.LastCreatedAt = lastCreatedAt
	w.LastRunAt = time.Now().UTC()
	w.RowsTransferred += rowsDelta
	m.watermarks[sourceID] = w
	return nil
}
