package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/event"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/store"
)

// State identifies the phase of a transfer run. It is reported in
// RunError so a failure names exactly where the run stopped.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateWriting
	StateCommitting
	StateAdvancingWatermark
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateWriting:
		return "writing"
	case StateCommitting:
		return "committing"
	case StateAdvancingWatermark:
		return "advancing_watermark"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source is the edge side of a transfer.
type Source interface {
	store.EventSource
}

// Destination is the central side of a transfer. It receives the events
// and owns the watermark, so progress survives an edge database reset.
type Destination interface {
	store.EventSink
	store.WatermarkStore
}

// batchWriter is an optional destination fast path: the whole page is
// written and committed in one transaction. The SQL stores implement it;
// without it the engine falls back to per-row idempotent writes.
type batchWriter interface {
	WriteEvents(ctx context.Context, events []event.CaseEvent) (int64, error)
}

// Result summarizes one completed transfer run.
type Result struct {
	SourceID     string
	RowsFetched  int64
	RowsInserted int64
	Batches      int
	Watermark    time.Time
	NoNewData    bool
}

// RunError reports a failed transfer run, naming the state and batch at
// which it stopped. LastGood is the watermark that remains durable: the
// next run resumes from there.
type RunError struct {
	State    State
	Batch    int
	SourceID string
	LastGood time.Time
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("transfer %s: %s (batch %d): %v", e.SourceID, e.State, e.Batch, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Engine executes watermark-bounded incremental transfers.
type Engine struct {
	src       Source
	dst       Destination
	sourceID  string
	batchSize int
	log       *slog.Logger
}

// New creates a transfer engine. batchSize must be positive.
func New(src Source, dst Destination, sourceID string, batchSize int) (*Engine, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if sourceID == "" {
		return nil, errors.New("source id must not be empty")
	}
	return &Engine{
		src:       src,
		dst:       dst,
		sourceID:  sourceID,
		batchSize: batchSize,
		log:       slog.Default(),
	}, nil
}

// Run executes one transfer: read the watermark, page through all events
// created after it in batches, write each batch idempotently, then
// advance the watermark exactly once with the cumulative inserted count.
//
// Batches run sequentially. The watermark is untouched on any failure,
// so a retry re-covers the whole range.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	wm, err := e.dst.GetWatermark(ctx, e.sourceID)
	if err != nil {
		return nil, e.fail(StateFetching, 0, time.Time{}, err)
	}
	// A zero watermark means no prior run: transfer from the beginning.
	lastGood := wm.LastCreatedAt
	cursor := lastGood
	res := &Result{SourceID: e.sourceID}

	for {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(StateFetching, res.Batches, lastGood, err)
		}

		events, err := e.src.QueryEventsSince(ctx, cursor, e.batchSize)
		if err != nil {
			return nil, e.fail(StateFetching, res.Batches, lastGood, err)
		}
		if len(events) == 0 {
			break
		}

		res.Batches++
		res.RowsFetched += int64(len(events))

		if bw, ok := e.dst.(batchWriter); ok {
			n, err := bw.WriteEvents(ctx, events)
			if err != nil {
				return nil, e.fail(StateCommitting, res.Batches, lastGood, err)
			}
			res.RowsInserted += n
		} else {
			for i := range events {
				n, err := e.dst.UpsertIgnoreEvent(ctx, events[i])
				if err != nil {
					return nil, e.fail(StateWriting, res.Batches, lastGood, err)
				}
				res.RowsInserted += n
			}
		}

		cursor = events[len(events)-1].CreatedAt
		e.log.Debug("batch transferred",
			"source", e.sourceID,
			"batch", res.Batches,
			"rows", len(events),
			"cursor", cursor,
		)

		if len(events) < e.batchSize {
			break
		}
	}

	if res.RowsFetched == 0 {
		res.NoNewData = true
		res.Watermark = lastGood
		e.log.Info("transfer complete", "source", e.sourceID, "rows", 0, "new_data", false)
		return res, nil
	}

	if err := e.dst.SetWatermark(ctx, e.sourceID, cursor, res.RowsInserted); err != nil {
		return nil, e.fail(StateAdvancingWatermark, res.Batches, lastGood, err)
	}
	res.Watermark = cursor

	e.log.Info("transfer complete",
		"source", e.sourceID,
		"rows_fetched", res.RowsFetched,
		"rows_inserted", res.RowsInserted,
		"batches", res.Batches,
		"watermark", res.Watermark,
	)
	return res, nil
}

func (e *Engine) fail(state State, batch int, lastGood time.Time, err error) error {
	e.log.Error("transfer failed",
		"source", e.sourceID,
		"state", state.String(),
		"batch", batch,
		"err", err,
	)
	return &RunError{
		State:    state,
		Batch:    batch,
		SourceID: e.sourceID,
		LastGood: lastGood,
		Err:      err,
	}
}
