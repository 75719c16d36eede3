package gen

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/catalog"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/event"
)

// Rare-event probabilities. A single per-case roll is partitioned into
// disjoint ranges, so the three outcomes are mutually exclusive:
// [0, 0.02) canceled, [0.02, 0.03) converted, [0.03, 0.06) delayed.
const (
	probCanceled  = 0.02
	probConverted = 0.01
	probDelayed   = 0.03
)

// DefaultGeneratorID identifies the generator version in event provenance.
const DefaultGeneratorID = "gen-v1"

// Options configures one generator run.
type Options struct {
	// Start and End are inclusive calendar dates; only the year/month/day
	// components are used. End before Start is a fatal input error.
	Start time.Time
	End   time.Time

	Seed        int64
	GeneratorID string

	// Facilities restricts the run to a subset of facility IDs.
	// Empty means all facilities. Unknown IDs are fatal.
	Facilities []string
}

// Summary aggregates a run for reporting.
type Summary struct {
	Cases      int
	Days       int
	Facilities int
	ByStatus   map[event.Status]int
}

// Generator produces the deterministic case event stream for a catalog.
type Generator struct {
	cat *catalog.Catalog
	log *slog.Logger
}

// New creates a Generator over an immutable catalog.
func New(cat *catalog.Catalog) *Generator {
	return &Generator{cat: cat, log: slog.Default()}
}

// Run generates all case events for the configured date range, ordered by
// creation timestamp. Weekends produce no volume. The output is fully
// determined by (seed, date range, facility subset, catalog).
func (g *Generator) Run(opts Options) ([]event.CaseEvent, error) {
	start := dateUTC(opts.Start)
	end := dateUTC(opts.End)
	if end.Before(start) {
		return nil, fmt.Errorf("invalid date range: end %s before start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	generatorID := opts.GeneratorID
	if generatorID == "" {
		generatorID = DefaultGeneratorID
	}

	facilities, err := g.selectFacilities(opts.Facilities)
	if err != nil {
		return nil, err
	}
	if len(g.cat.Facilities()) > maxFacilities {
		return nil, fmt.Errorf("catalog has %d facilities; creation-stamp scheme supports at most %d", len(g.cat.Facilities()), maxFacilities)
	}

	// Per-facility procedure weights depend only on the facility bias,
	// so build them once.
	procs := g.cat.Procedures()
	weightsByFacility := make(map[string][]float64, len(facilities))
	for _, f := range facilities {
		w := make([]float64, len(procs))
		for i, p := range procs {
			w[i] = f.BiasWeight(p.ServiceLine)
		}
		weightsByFacility[f.ID] = w
	}

	clock := &stampClock{}
	seen := make(map[string]struct{})
	var events []event.CaseEvent
	days := 0

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		days++
		for _, f := range facilities {
			dayEvents, err := g.generateDay(f, day, procs, weightsByFacility[f.ID], generatorID, opts.Seed, clock)
			if err != nil {
				return nil, err
			}
			for _, ev := range dayEvents {
				if _, dup := seen[ev.EventID]; dup {
					return nil, fmt.Errorf("duplicate event id %s within run", ev.EventID)
				}
				seen[ev.EventID] = struct{}{}
			}
			events = append(events, dayEvents...)
			g.log.Debug("generated day",
				"facility", f.ID,
				"day", day.Format("2006-01-02"),
				"cases", len(dayEvents),
			)
		}
	}

	g.log.Info("generation complete",
		"cases", len(events),
		"days", days,
		"facilities", len(facilities),
		"seed", opts.Seed,
	)
	return events, nil
}

// generateDay produces all cases for one (facility, day) partition from
// its own sub-seeded RNG.
func (g *Generator) generateDay(
	f catalog.Facility,
	day time.Time,
	procs []catalog.Procedure,
	weights []float64,
	generatorID string,
	seed int64,
	clock *stampClock,
) ([]event.CaseEvent, error) {
	rng := partitionRNG(seed, f.ID, day)
	n := f.VolumeMin + rng.Intn(f.VolumeMax-f.VolumeMin+1)

	facIdx := facilityIndex(g.cat, f.ID)
	events := make([]event.CaseEvent, 0, n)
	for i := 0; i < n; i++ {
		proc := procs[weightedIndex(weights, rng)]
		createdAt, err := clock.stamp(day, facIdx, i)
		if err != nil {
			return nil, err
		}
		ev, err := g.generateCase(f, day, proc, rng, generatorID, createdAt)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// generateCase builds one case event. The draw order from rng is fixed:
// changing it changes every seeded output, so treat it as part of the
// deterministic contract.
func (g *Generator) generateCase(
	f catalog.Facility,
	day time.Time,
	proc catalog.Procedure,
	rng *rand.Rand,
	generatorID string,
	createdAt time.Time,
) (event.CaseEvent, error) {
	hourWeights := g.cat.CheckinHourWeights()
	hour := weightedIndex(hourWeights[:], rng)
	minute := rng.Intn(60)
	second := rng.Intn(60)
	checkin := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, second, 0, f.Location)

	d1 := sampleLogNormal(proc.CheckinToPreop, rng)
	d2 := sampleLogNormal(proc.PreopToOp, rng)
	d3 := sampleLogNormal(proc.OpToPostop, rng)
	d4 := sampleLogNormal(proc.PostopToDischarge, rng)

	preop := checkin.Add(minutes(d1))
	op := preop.Add(minutes(d2))
	postop := op.Add(minutes(d3))
	discharge := postop.Add(minutes(d4))

	// Scheduled start is the op start +/- gaussian variance.
	scheduled := op.Add(-minutes(rng.NormFloat64() * 10))

	ev := event.CaseEvent{
		EventID:           caseID(rng),
		FacilityID:        f.ID,
		ProcedureType:     proc.Name,
		ScheduledStart:    scheduled,
		CheckinTime:       checkin,
		AnesthesiaType:    g.pickAnesthesia(proc.ServiceLine, rng),
		Status:            event.StatusCompleted,
		CreatedAt:         createdAt,
		SourceGeneratorID: generatorID,
	}

	// One roll, partitioned into disjoint ranges; the outcomes are never
	// re-rolled independently.
	roll := rng.Float64()
	switch {
	case roll < probCanceled:
		ev.Status = event.StatusCanceled
		// The case never reached the OR: check-in plus a short preop
		// interval, nothing after.
		canceledPreop := checkin.Add(minutes(uniform(rng, 5, 20)))
		ev.PreopStart = &canceledPreop
	case roll < probCanceled+probConverted:
		ev.Status = event.StatusConverted
		// Admitted as inpatient: no outpatient discharge occurs.
		ev.PreopStart = &preop
		ev.OpStart = &op
		ev.PostopStart = &postop
	case roll < probCanceled+probConverted+probDelayed:
		ev.Status = event.StatusDelayed
		// Delay is additive on top of the sampled draw: a positive offset
		// at the op-start boundary, with later phases re-accumulated.
		delayedOp := op.Add(minutes(uniform(rng, 15, 90)))
		delayedPostop := delayedOp.Add(minutes(d3))
		delayedDischarge := delayedPostop.Add(minutes(d4))
		ev.PreopStart = &preop
		ev.OpStart = &delayedOp
		ev.PostopStart = &delayedPostop
		ev.DischargeTime = &delayedDischarge
	default:
		ev.PreopStart = &preop
		ev.OpStart = &op
		ev.PostopStart = &postop
		ev.DischargeTime = &discharge
	}

	asaWeights := g.cat.ASAWeights()
	ev.ASAClass = weightedIndex(asaWeights[:], rng) + 1

	if err := ev.Validate(); err != nil {
		return event.CaseEvent{}, fmt.Errorf("generated invalid event: %w", err)
	}
	return ev, nil
}

func (g *Generator) pickAnesthesia(serviceLine string, rng *rand.Rand) string {
	mix := g.cat.AnesthesiaMix(serviceLine)
	weights := make([]float64, len(mix))
	for i, m := range mix {
		weights[i] = m.Weight
	}
	return mix[weightedIndex(weights, rng)].Type
}

// selectFacilities resolves the facility subset in full catalog order.
// Unknown IDs are fatal configuration errors, never skipped.
func (g *Generator) selectFacilities(ids []string) ([]catalog.Facility, error) {
	all := g.cat.Facilities()
	if len(ids) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := g.cat.Facility(id); !ok {
			return nil, fmt.Errorf("unknown facility %q", id)
		}
		want[id] = true
	}
	var out []catalog.Facility
	for _, f := range all {
		if want[f.ID] {
			out = append(out, f)
		}
	}
	return out, nil
}

// facilityIndex is the facility's position in full catalog order. Creation
// stamps use this index (not the subset position) so that subset runs
// produce the same stamps as full runs.
func facilityIndex(c *catalog.Catalog, id string) int {
	for i, f := range c.Facilities() {
		if f.ID == id {
			return i
		}
	}
	return 0
}

// Summarize aggregates events for run reporting.
func Summarize(events []event.CaseEvent) Summary {
	s := Summary{ByStatus: make(map[event.Status]int)}
	days := map[string]bool{}
	facs := map[string]bool{}
	for i := range events {
		s.Cases++
		s.ByStatus[events[i].Status]++
		days[events[i].CheckinTime.Format("2006-01-02")] = true
		facs[events[i].FacilityID] = true
	}
	s.Days = len(days)
	s.Facilities = len(facs)
	return s
}

// dateUTC truncates a timestamp to its calendar date at UTC midnight.
func dateUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
