package event

import (
	"fmt"
	"time"
)

// Status is the terminal disposition of an outpatient case.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusConverted Status = "converted_to_inpatient"
	StatusDelayed   Status = "delayed"
)

// Valid reports whether s is one of the four known case statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusConverted, StatusDelayed:
		return true
	}
	return false
}

// CaseEvent is a single outpatient case record.
//
// Identity (EventID) is globally unique and never reused. CreatedAt is the
// watermark ordering key: strictly monotonic within a generator run and
// stable across re-runs with the same seed.
//
// Nullable timestamps use pointers:
//   - canceled cases populate PreopStart only; OpStart, PostopStart and
//     DischargeTime are nil
//   - converted_to_inpatient cases have DischargeTime nil
type CaseEvent struct {
	EventID       string
	FacilityID    string
	ProcedureType string

	ScheduledStart time.Time
	CheckinTime    time.Time
	PreopStart     *time.Time
	OpStart        *time.Time
	PostopStart    *time.Time
	DischargeTime  *time.Time

	AnesthesiaType string
	ASAClass       int
	Status         Status

	CreatedAt         time.Time
	SourceGeneratorID string
}

// Durations holds the derived phase durations in minutes.
// A nil field means the corresponding phase boundary is absent.
type Durations struct {
	CheckinToPreop    *float64
	PreopToOp         *float64
	OpToPostop        *float64
	PostopToDischarge *float64
	Total             *float64
}

// Durations derives the four phase durations and the total duration from
// the stored timestamps. Durations spanning an absent boundary are nil.
func (e *CaseEvent) Durations() Durations {
	var d Durations
	d.CheckinToPreop = minutesBetween(&e.CheckinTime, e.PreopStart)
	d.PreopToOp = minutesBetween(e.PreopStart, e.OpStart)
	d.OpToPostop = minutesBetween(e.OpStart, e.PostopStart)
	d.PostopToDischarge = minutesBetween(e.PostopStart, e.DischargeTime)
	d.Total = minutesBetween(&e.CheckinTime, e.DischargeTime)
	return d
}

func minutesBetween(from, to *time.Time) *float64 {
	if from == nil || to == nil {
		return nil
	}
	m := to.Sub(*from).Minutes()
	return &m
}

// Validate checks the per-status phase-order invariant:
//
//	completed/delayed: checkin <= preop <= op <= postop <= discharge
//	canceled:          checkin <= preop (if present); op/postop/discharge absent
//	converted:         checkin <= preop <= op <= postop; discharge absent
//
// It also rejects empty identity and an ASA class outside 1..6.
func (e *CaseEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("case event: empty event id")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("case event %s: unknown status %q", e.EventID, e.Status)
	}
	if e.ASAClass < 1 || e.ASAClass > 6 {
		return fmt.Errorf("case event %s: asa class %d out of range 1..6", e.EventID, e.ASAClass)
	}

	switch e.Status {
	case StatusCanceled:
		if e.OpStart != nil || e.PostopStart != nil || e.DischargeTime != nil {
			return fmt.Errorf("case event %s: canceled case must not have op/postop/discharge timestamps", e.EventID)
		}
		if e.PreopStart != nil && e.PreopStart.Before(e.CheckinTime) {
			return fmt.Errorf("case event %s: preop before checkin", e.EventID)
		}
		return nil
	case StatusConverted:
		if e.DischargeTime != nil {
			return fmt.Errorf("case event %s: converted case must not have a discharge timestamp", e.EventID)
		}
		return orderedPhases(e.EventID, &e.CheckinTime, e.PreopStart, e.OpStart, e.PostopStart)
	default:
		return orderedPhases(e.EventID, &e.CheckinTime, e.PreopStart, e.OpStart, e.PostopStart, e.DischargeTime)
	}
}

func orderedPhases(id string, stamps ...*time.Time) error {
	names := []string{"checkin", "preop", "op", "postop", "discharge"}
	for i, ts := range stamps {
		if ts == nil {
			return fmt.Errorf("case event %s: missing %s timestamp", id, names[i])
		}
		if i > 0 && ts.Before(*stamps[i-1]) {
			return fmt.Errorf("case event %s: %s before %s", id, names[i], names[i-1])
		}
	}
	return nil
}
