package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/catalog"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/event"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Pre-migration database
// 1 - Initial schema
const currentSchemaVersion = 1

// createdAtLayout is a fixed-width UTC timestamp. Unlike RFC3339Nano it
// never trims trailing zeros, so lexical comparison in SQL matches
// chronological order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is the edge event store backed by a local SQLite file.
type SQLite struct {
	db *sql.DB
}

var (
	_ EventSink       = (*SQLite)(nil)
	_ EventSource     = (*SQLite)(nil)
	_ WatermarkStore  = (*SQLite)(nil)
	_ ReferenceSeeder = (*SQLite)(nil)
)

// OpenSQLite creates or opens the SQLite database at path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Prefer the typed methods when available.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// SeedReference upserts the facility and procedure reference rows for a
// catalog. Event rows foreign-key against these tables, so seeding must
// happen before the first event write.
func (s *SQLite) SeedReference(ctx context.Context, cat *catalog.Catalog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed reference: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, f := range cat.Facilities() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO facility (id, name, timezone)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, timezone = excluded.timezone
		`, f.ID, f.Name, f.Timezone)
		if err != nil {
			return fmt.Errorf("seed reference: facility %s: %w", f.ID, err)
		}
	}

	for _, p := range cat.Procedures() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO procedure_type (name, service_line)
			VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET service_line = excluded.service_line
		`, p.Name, p.ServiceLine)
		if err != nil {
			return fmt.Errorf("seed reference: procedure %s: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed reference: commit: %w", err)
	}
	return nil
}

const insertEventSQL = `
	INSERT INTO outpatient_case_event
	(event_id, facility_id, procedure_type, scheduled_start, checkin_time,
	 preop_start, op_start, postop_start, discharge_time,
	 anesthesia_type, asa_class, status, created_at, source_generator_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertEvent writes one event. A duplicate event id (or a missing
// reference row) is returned as an IntegrityError.
func (s *SQLite) InsertEvent(ctx context.Context, ev event.CaseEvent) error {
	_, err := s.db.ExecContext(ctx, insertEventSQL, eventArgs(ev)...)
	if err != nil {
		if isSQLiteConstraint(err) {
			return &IntegrityError{Op: "insert event", Err: err}
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpsertIgnoreEvent writes one event with ON CONFLICT(event_id) DO NOTHING.
// Returns 1 if the row was inserted, 0 if the id already existed.
func (s *SQLite) UpsertIgnoreEvent(ctx context.Context, ev event.CaseEvent) (int64, error) {
	res, err := s.db.ExecContext(ctx, insertEventSQL+" ON CONFLICT(event_id) DO NOTHING", eventArgs(ev)...)
	if err != nil {
		if isSQLiteConstraint(err) {
			return 0, &IntegrityError{Op: "upsert event", Err: err}
		}
		return 0, fmt.Errorf("upsert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("upsert event: rows affected: %w", err)
	}
	return n, nil
}

// WriteEvents inserts a slice of events in one transaction, ignoring
// duplicates. Returns the number of rows actually inserted.
func (s *SQLite) WriteEvents(ctx context.Context, events []event.CaseEvent) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEventSQL+" ON CONFLICT(event_id) DO NOTHING")
	if err != nil {
		return 0, fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for i := range events {
		res, err := stmt.ExecContext(ctx, eventArgs(events[i])...)
		if err != nil {
			if isSQLiteConstraint(err) {
				return 0, &IntegrityError{Op: "write events", Err: err}
			}
			return 0, fmt.Errorf("write events: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("write events: rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write events: commit: %w", err)
	}
	return inserted, nil
}

// QueryEventsSince returns up to limit events created strictly after the
// given timestamp, ascending by created_at.
func (s *SQLite) QueryEventsSince(ctx context.Context, after time.Time, limit int) ([]event.CaseEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, facility_id, procedure_type, scheduled_start, checkin_time,
		       preop_start, op_start, postop_start, discharge_time,
		       anesthesia_type, asa_class, status, created_at, source_generator_id
		FROM outpatient_case_event
		WHERE created_at > ?
		ORDER BY created_at ASC
		LIMIT ?
	`, after.UTC().Format(createdAtLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.CaseEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("query events: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}

// CountEvents returns the total number of stored events.
func (s *SQLite) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outpatient_case_event`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// GetWatermark returns the watermark for sourceID, or a zero-value
// default when the source has never transferred.
func (s *SQLite) GetWatermark(ctx context.Context, sourceID string) (Watermark, error) {
	var w Watermark
	var lastCreated, lastRun string
	err := s.db.QueryRowContext(ctx, `
		SELECT source_id, last_created_at, last_run_at, rows_transferred
		FROM etl_watermark WHERE source_id = ?
	`, sourceID).Scan(&w.SourceID, &lastCreated, &lastRun, &w.RowsTransferred)
	if errors.Is(err, sql.ErrNoRows) {
		return Watermark{SourceID: sourceID}, nil
	}
	if err != nil {
		return Watermark{}, fmt.Errorf("get watermark: %w", err)
	}
	if w.LastCreatedAt, err = time.Parse(createdAtLayout, lastCreated); err != nil {
		return Watermark{}, fmt.Errorf("get watermark: parse last_created_at: %w", err)
	}
	if w.LastRunAt, err = time.Parse(time.RFC3339, lastRun); err != nil {
		return Watermark{}, fmt.Errorf("get watermark: parse last_run_at: %w", err)
	}
	return w, nil
}

// SetWatermark upserts the watermark row, accumulating rows_transferred.
func (s *SQLite) SetWatermark(ctx context.Context, sourceID string, lastCreatedAt time.Time, rowsDelta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO etl_watermark (source_id, last_created_at, last_run_at, rows_transferred)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			last_created_at  = excluded.last_created_at,
			last_run_at      = excluded.last_run_at,
			rows_transferred = etl_watermark.rows_transferred + excluded.rows_transferred
	`, sourceID, lastCreatedAt.UTC().Format(createdAtLayout),
		time.Now().UTC().Format(time.RFC3339), rowsDelta)
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

// eventArgs flattens an event into the insert parameter order.
func eventArgs(ev event.CaseEvent) []any {
	return []any{
		ev.EventID,
		ev.FacilityID,
		ev.ProcedureType,
		ev.ScheduledStart.Format(time.RFC3339),
		ev.CheckinTime.Format(time.RFC3339),
		optTimestamp(ev.PreopStart),
		optTimestamp(ev.OpStart),
		optTimestamp(ev.PostopStart),
		optTimestamp(ev.DischargeTime),
		ev.AnesthesiaType,
		ev.ASAClass,
		string(ev.Status),
		ev.CreatedAt.UTC().Format(createdAtLayout),
		ev.SourceGeneratorID,
	}
}

func optTimestamp(t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (event.CaseEvent, error) {
	var ev event.CaseEvent
	var scheduled, checkin, createdAt string
	var preop, op, postop, discharge sql.NullString
	var status string

	err := r.Scan(&ev.EventID, &ev.FacilityID, &ev.ProcedureType, &scheduled, &checkin,
		&preop, &op, &postop, &discharge,
		&ev.AnesthesiaType, &ev.ASAClass, &status, &createdAt, &ev.SourceGeneratorID)
	if err != nil {
		return event.CaseEvent{}, err
	}

	ev.Status = event.Status(status)
	if ev.ScheduledStart, err = time.Parse(time.RFC3339, scheduled); err != nil {
		return event.CaseEvent{}, fmt.Errorf("parse scheduled_start: %w", err)
	}
	if ev.CheckinTime, err = time.Parse(time.RFC3339, checkin); err != nil {
		return event.CaseEvent{}, fmt.Errorf("parse checkin_time: %w", err)
	}
	if ev.CreatedAt, err = time.Parse(createdAtLayout, createdAt); err != nil {
		return event.CaseEvent{}, fmt.Errorf("parse created_at: %w", err)
	}
	if ev.PreopStart, err = parseOpt(preop, "preop_start"); err != nil {
		return event.CaseEvent{}, err
	}
	if ev.OpStart, err = parseOpt(op, "op_start"); err != nil {
		return event.CaseEvent{}, err
	}
	if ev.PostopStart, err = parseOpt(postop, "postop_start"); err != nil {
		return event.CaseEvent{}, err
	}
	if ev.DischargeTime, err = parseOpt(discharge, "discharge_time"); err != nil {
		return event.CaseEvent{}, err
	}
	return ev, nil
}

func parseOpt(ns sql.NullString, column string) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", column, err)
	}
	return &t, nil
}

func isSQLiteConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
