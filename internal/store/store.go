package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/catalog"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/event"
)

// Watermark records transfer progress for one source. A zero
// LastCreatedAt means the source has never transferred: everything is
// still pending.
type Watermark struct {
	SourceID        string
	LastCreatedAt   time.Time
	LastRunAt       time.Time
	RowsTransferred int64
}

// EventSink accepts case events.
type EventSink interface {
	// InsertEvent writes one event. A duplicate event id is a constraint
	// violation, returned as an IntegrityError.
	InsertEvent(ctx context.Context, ev event.CaseEvent) error

	// UpsertIgnoreEvent writes one event, silently ignoring a duplicate
	// event id. Returns the number of rows actually inserted (0 or 1).
	UpsertIgnoreEvent(ctx context.Context, ev event.CaseEvent) (int64, error)
}

// EventSource reads case events in creation order.
type EventSource interface {
	// QueryEventsSince returns up to limit events with created_at strictly
	// greater than after, ascending by created_at.
	QueryEventsSince(ctx context.Context, after time.Time, limit int) ([]event.CaseEvent, error)
}

// WatermarkStore persists transfer progress.
type WatermarkStore interface {
	// GetWatermark returns the watermark for sourceID. When no run has
	// been recorded it returns a zero-value default, not an error.
	GetWatermark(ctx context.Context, sourceID string) (Watermark, error)

	// SetWatermark advances the watermark for sourceID and adds rowsDelta
	// to the cumulative transferred count. Upserts: the first call for a
	// source creates its row.
	SetWatermark(ctx context.Context, sourceID string, lastCreatedAt time.Time, rowsDelta int64) error
}

// ReferenceSeeder populates the facility and procedure reference tables
// that event rows foreign-key against.
type ReferenceSeeder interface {
	SeedReference(ctx context.Context, cat *catalog.Catalog) error
}

// IntegrityError wraps a database constraint violation (duplicate key,
// missing foreign key, check failure) so callers can distinguish it from
// transient failures.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: integrity violation: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// IsIntegrityError reports whether err is (or wraps) an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
