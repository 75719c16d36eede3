package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/catalog"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/event"
)

// postgresSchema mirrors schema.sql with native Postgres types.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS facility (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL,
    timezone TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS procedure_type (
    name         TEXT PRIMARY KEY,
    service_line TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outpatient_case_event (
    event_id            TEXT PRIMARY KEY,
    facility_id         TEXT NOT NULL REFERENCES facility(id),
    procedure_type      TEXT NOT NULL REFERENCES procedure_type(name),
    scheduled_start     TIMESTAMPTZ NOT NULL,
    checkin_time        TIMESTAMPTZ NOT NULL,
    preop_start         TIMESTAMPTZ,
    op_start            TIMESTAMPTZ,
    postop_start        TIMESTAMPTZ,
    discharge_time      TIMESTAMPTZ,
    anesthesia_type     TEXT NOT NULL,
    asa_class           INTEGER NOT NULL CHECK (asa_class BETWEEN 1 AND 6),
    status              TEXT NOT NULL CHECK (status IN
                            ('completed', 'canceled', 'converted_to_inpatient', 'delayed')),
    created_at          TIMESTAMPTZ NOT NULL,
    source_generator_id TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_case_event_created_at
    ON outpatient_case_event(created_at);

CREATE TABLE IF NOT EXISTS etl_watermark (
    source_id        TEXT PRIMARY KEY,
    last_created_at  TIMESTAMPTZ NOT NULL,
    last_run_at      TIMESTAMPTZ NOT NULL,
    rows_transferred BIGINT NOT NULL DEFAULT 0
);
`

// Postgres is the central analytics store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ EventSink       = (*Postgres)(nil)
	_ EventSource     = (*Postgres)(nil)
	_ WatermarkStore  = (*Postgres)(nil)
	_ ReferenceSeeder = (*Postgres)(nil)
)

// OpenPostgres connects to the central database and verifies the
// connection. Sessions run in UTC so timestamptz round-trips are stable.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET timezone TO 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// EnsureSchema creates the central tables if they do not exist.
// Idempotent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SeedReference upserts the facility and procedure reference rows.
func (p *Postgres) SeedReference(ctx context.Context, cat *catalog.Catalog) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("seed reference: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range cat.Facilities() {
		_, err := tx.Exec(ctx, `
			INSERT INTO facility (id, name, timezone)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, timezone = excluded.timezone
		`, f.ID, f.Name, f.Timezone)
		if err != nil {
			return fmt.Errorf("seed reference: facility %s: %w", f.ID, err)
		}
	}

	for _, pr := range cat.Procedures() {
		_, err := tx.Exec(ctx, `
			INSERT INTO procedure_type (name, service_line)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET service_line = excluded.service_line
		`, pr.Name, pr.ServiceLine)
		if err != nil {
			return fmt.Errorf("seed reference: procedure %s: %w", pr.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("seed reference: commit: %w", err)
	}
	return nil
}

const pgInsertEventSQL = `
	INSERT INTO outpatient_case_event
	(event_id, facility_id, procedure_type, scheduled_start, checkin_time,
	 preop_start, op_start, postop_start, discharge_time,
	 anesthesia_type, asa_class, status, created_at, source_generator_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// InsertEvent writes one event. Constraint violations are returned as
// IntegrityError.
func (p *Postgres) InsertEvent(ctx context.Context, ev event.CaseEvent) error {
	_, err := p.pool.Exec(ctx, pgInsertEventSQL, pgEventArgs(ev)...)
	if err != nil {
		if isPostgresIntegrity(err) {
			return &IntegrityError{Op: "insert event", Err: err}
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpsertIgnoreEvent writes one event with ON CONFLICT (event_id) DO NOTHING.
// Returns 1 if the row was inserted, 0 if the id already existed.
func (p *Postgres) UpsertIgnoreEvent(ctx context.Context, ev event.CaseEvent) (int64, error) {
	tag, err := p.pool.Exec(ctx, pgInsertEventSQL+" ON CONFLICT (event_id) DO NOTHING", pgEventArgs(ev)...)
	if err != nil {
		if isPostgresIntegrity(err) {
			return 0, &IntegrityError{Op: "upsert event", Err: err}
		}
		return 0, fmt.Errorf("upsert event: %w", err)
	}
	return tag.RowsAffected(), nil
}

// WriteEvents inserts a slice of events in one transaction, ignoring
// duplicates. Returns the number of rows actually inserted.
func (p *Postgres) WriteEvents(ctx context.Context, events []event.CaseEvent) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for i := range events {
		tag, err := tx.Exec(ctx, pgInsertEventSQL+" ON CONFLICT (event_id) DO NOTHING", pgEventArgs(events[i])...)
		if err != nil {
			if isPostgresIntegrity(err) {
				return 0, &IntegrityError{Op: "write events", Err: err}
			}
			return 0, fmt.Errorf("write events: %w", err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("write events: commit: %w", err)
	}
	return inserted, nil
}

// QueryEventsSince returns up to limit events created strictly after the
// given timestamp, ascending by created_at.
func (p *Postgres) QueryEventsSince(ctx context.Context, after time.Time, limit int) ([]event.CaseEvent, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT event_id, facility_id, procedure_type, scheduled_start, checkin_time,
		       preop_start, op_start, postop_start, discharge_time,
		       anesthesia_type, asa_class, status, created_at, source_generator_id
		FROM outpatient_case_event
		WHERE created_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.CaseEvent
	for rows.Next() {
		var ev event.CaseEvent
		var status string
		err := rows.Scan(&ev.EventID, &ev.FacilityID, &ev.ProcedureType,
			&ev.ScheduledStart, &ev.CheckinTime,
			&ev.PreopStart, &ev.OpStart, &ev.PostopStart, &ev.DischargeTime,
			&ev.AnesthesiaType, &ev.ASAClass, &status, &ev.CreatedAt, &ev.SourceGeneratorID)
		if err != nil {
			return nil, fmt.Errorf("query events: scan: %w", err)
		}
		ev.Status = event.Status(status)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}

// CountEvents returns the total number of stored events.
func (p *Postgres) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outpatient_case_event`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// GetWatermark returns the watermark for sourceID, or a zero-value
// default when the source has never transferred.
func (p *Postgres) GetWatermark(ctx context.Context, sourceID string) (Watermark, error) {
	var w Watermark
	err := p.pool.QueryRow(ctx, `
		SELECT source_id, last_created_at, last_run_at, rows_transferred
		FROM etl_watermark WHERE source_id = $1
	`, sourceID).Scan(&w.SourceID, &w.LastCreatedAt, &w.LastRunAt, &w.RowsTransferred)
	if errors.Is(err, pgx.ErrNoRows) {
		return Watermark{SourceID: sourceID}, nil
	}
	if err != nil {
		return Watermark{}, fmt.Errorf("get watermark: %w", err)
	}
	return w, nil
}

// SetWatermark upserts the watermark row, accumulating rows_transferred.
func (p *Postgres) SetWatermark(ctx context.Context, sourceID string, lastCreatedAt time.Time, rowsDelta int64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO etl_watermark (source_id, last_created_at, last_run_at, rows_transferred)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id) DO UPDATE SET
			last_created_at  = excluded.last_created_at,
			last_run_at      = excluded.last_run_at,
			rows_transferred = etl_watermark.rows_transferred + excluded.rows_transferred
	`, sourceID, lastCreatedAt, time.Now().UTC(), rowsDelta)
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

func pgEventArgs(ev event.CaseEvent) []any {
	return []any{
		ev.EventID,
		ev.FacilityID,
		ev.ProcedureType,
		ev.ScheduledStart,
		ev.CheckinTime,
		ev.PreopStart,
		ev.OpStart,
		ev.PostopStart,
		ev.DischargeTime,
		ev.AnesthesiaType,
		ev.ASAClass,
		string(ev.Status),
		ev.CreatedAt,
		ev.SourceGeneratorID,
	}
}

// Class 23 covers integrity constraint violations (unique, foreign key,
// not null, check).
func isPostgresIntegrity(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}
