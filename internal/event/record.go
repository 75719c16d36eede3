package event

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Record is the boundary serialization of a CaseEvent: the flat shape
// consumed by the downstream analytics stage. Field names and order are a
// fixed contract. Absent timestamps and durations serialize as JSON null.
type Record struct {
	EventID              string   `json:"event_id"`
	FacilityID           string   `json:"facility_id"`
	ProcedureType        string   `json:"procedure_type"`
	ScheduledStartTime   string   `json:"scheduled_start_time"`
	CheckinTime          string   `json:"checkin_time"`
	PreopStartTime       *string  `json:"preop_start_time"`
	OpStartTime          *string  `json:"op_start_time"`
	PostopStartTime      *string  `json:"postop_start_time"`
	DischargeTime        *string  `json:"discharge_time"`
	AnesthesiaType       string   `json:"anesthesia_type"`
	ASAClass             int      `json:"asa_class"`
	CaseStatus           string   `json:"case_status"`
	CreatedAt            string   `json:"created_at"`
	SourceGeneratorID    string   `json:"source_generator_id"`
	CheckinToPreopMin    *float64 `json:"checkin_to_preop_min"`
	PreopToOpMin         *float64 `json:"preop_to_op_min"`
	OpToPostopMin        *float64 `json:"op_to_postop_min"`
	PostopToDischargeMin *float64 `json:"postop_to_discharge_min"`
	TotalMin             *float64 `json:"total_min"`
}

// csvHeader lists the CSV column order, matching the Record field order.
var csvHeader = []string{
	"event_id", "facility_id", "procedure_type", "scheduled_start_time",
	"checkin_time", "preop_start_time", "op_start_time",
	"postop_start_time", "discharge_time", "anesthesia_type",
	"asa_class", "case_status", "created_at", "source_generator_id",
	"checkin_to_preop_min", "preop_to_op_min", "op_to_postop_min",
	"postop_to_discharge_min", "total_min",
}

// ToRecord converts a CaseEvent to its boundary shape. Timestamps are
// RFC 3339 with their original zone offsets preserved.
func (e *CaseEvent) ToRecord() Record {
	d := e.Durations()
	return Record{
		EventID:              e.EventID,
		FacilityID:           e.FacilityID,
		ProcedureType:        e.ProcedureType,
		ScheduledStartTime:   e.ScheduledStart.Format(time.RFC3339),
		CheckinTime:          e.CheckinTime.Format(time.RFC3339),
		PreopStartTime:       formatOpt(e.PreopStart),
		OpStartTime:          formatOpt(e.OpStart),
		PostopStartTime:      formatOpt(e.PostopStart),
		DischargeTime:        formatOpt(e.DischargeTime),
		AnesthesiaType:       e.AnesthesiaType,
		ASAClass:             e.ASAClass,
		CaseStatus:           string(e.Status),
		CreatedAt:            e.CreatedAt.UTC().Format(time.RFC3339Nano),
		SourceGeneratorID:    e.SourceGeneratorID,
		CheckinToPreopMin:    d.CheckinToPreop,
		PreopToOpMin:         d.PreopToOp,
		OpToPostopMin:        d.OpToPostop,
		PostopToDischargeMin: d.PostopToDischarge,
		TotalMin:             d.Total,
	}
}

func formatOpt(ts *time.Time) *string {
	if ts == nil {
		return nil
	}
	s := ts.Format(time.RFC3339)
	return &s
}

// WriteJSON writes events as a JSON array of boundary records.
func WriteJSON(w io.Writer, events []CaseEvent) error {
	records := make([]Record, len(events))
	for i := range events {
		records[i] = events[i].ToRecord()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteCSV writes events as CSV with a header row. Absent fields are
// empty cells.
func WriteCSV(w io.Writer, events []CaseEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range events {
		r := events[i].ToRecord()
		row := []string{
			r.EventID, r.FacilityID, r.ProcedureType, r.ScheduledStartTime,
			r.CheckinTime, optStr(r.PreopStartTime), optStr(r.OpStartTime),
			optStr(r.PostopStartTime), optStr(r.DischargeTime), r.AnesthesiaType,
			strconv.Itoa(r.ASAClass), r.CaseStatus, r.CreatedAt, r.SourceGeneratorID,
			optFloat(r.CheckinToPreopMin), optFloat(r.PreopToOpMin),
			optFloat(r.OpToPostopMin), optFloat(r.PostopToDischargeMin),
			optFloat(r.TotalMin),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func optStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}
