package gen

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/catalog"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/event"
)

func referenceCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadEmbedded()
	require.NoError(t, err)
	return cat
}

// scenarioCatalog pins every facility to a fixed daily volume so case
// counts are exact.
func scenarioCatalog(t *testing.T, volume int) *catalog.Catalog {
	t.Helper()
	cat := referenceCatalog(t)
	overrides := &catalog.Overrides{Facilities: map[string]catalog.VolumeOverride{}}
	for _, f := range cat.Facilities() {
		v := volume
		overrides.Facilities[f.ID] = catalog.VolumeOverride{DailyVolumeMin: &v, DailyVolumeMax: &v}
	}
	cat, err := cat.WithOverrides(overrides)
	require.NoError(t, err)
	return cat
}

func mustRun(t *testing.T, cat *catalog.Catalog, opts Options) []event.CaseEvent {
	t.Helper()
	events, err := New(cat).Run(opts)
	require.NoError(t, err)
	return events
}

// serialize renders events through the boundary format so comparisons
// cover every field, including zone handling.
func serialize(t *testing.T, events []event.CaseEvent) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, event.WriteJSON(&buf, events))
	return buf.Bytes()
}

func TestRunDeterministic(t *testing.T) {
	cat := referenceCatalog(t)
	opts := Options{Start: day("2026-03-02"), End: day("2026-03-06"), Seed: 42}

	first := mustRun(t, cat, opts)
	second := mustRun(t, cat, opts)

	require.NotEmpty(t, first)
	assert.Equal(t, serialize(t, first), serialize(t, second))
}

func TestRunSeedChangesOutput(t *testing.T) {
	cat := referenceCatalog(t)

	a := mustRun(t, cat, Options{Start: day("2026-03-02"), End: day("2026-03-02"), Seed: 42})
	b := mustRun(t, cat, Options{Start: day("2026-03-02"), End: day("2026-03-02"), Seed: 43})

	assert.NotEqual(t, serialize(t, a), serialize(t, b))
}

func TestPartitionIndependence(t *testing.T) {
	cat := referenceCatalog(t)
	opts := Options{Start: day("2026-03-02"), End: day("2026-03-04"), Seed: 42}

	full := mustRun(t, cat, opts)

	subsetOpts := opts
	subsetOpts.Facilities = []string{"HOSP_B"}
	subset := mustRun(t, cat, subsetOpts)

	var filtered []event.CaseEvent
	for _, ev := range full {
		if ev.FacilityID == "HOSP_B" {
			filtered = append(filtered, ev)
		}
	}

	require.NotEmpty(t, subset)
	assert.Equal(t, serialize(t, filtered), serialize(t, subset))
}

func TestRunRejectsInvertedDateRange(t *testing.T) {
	cat := referenceCatalog(t)
	_, err := New(cat).Run(Options{Start: day("2026-03-06"), End: day("2026-03-02"), Seed: 42})
	assert.Error(t, err)
}

func TestRunRejectsUnknownFacility(t *testing.T) {
	cat := referenceCatalog(t)
	_, err := New(cat).Run(Options{
		Start:      day("2026-03-02"),
		End:        day("2026-03-02"),
		Seed:       42,
		Facilities: []string{"HOSP_Z"},
	})
	assert.Error(t, err)
}

func TestWeekendsProduceNoCases(t *testing.T) {
	cat := referenceCatalog(t)
	events := mustRun(t, cat, Options{Start: day("2026-03-07"), End: day("2026-03-08"), Seed: 42})
	assert.Empty(t, events)
}

func TestFixedVolumeScenario(t *testing.T) {
	cat := scenarioCatalog(t, 10)

	events := mustRun(t, cat, Options{
		Start:      day("2026-03-02"),
		End:        day("2026-03-02"),
		Seed:       42,
		Facilities: []string{"HOSP_A"},
	})
	assert.Len(t, events, 10)
}

func TestEventIDsUnique(t *testing.T) {
	cat := referenceCatalog(t)
	events := mustRun(t, cat, Options{Start: day("2026-03-02"), End: day("2026-03-13"), Seed: 42})

	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		assert.False(t, seen[ev.EventID], "duplicate id %s", ev.EventID)
		seen[ev.EventID] = true
	}
}

func TestCreatedAtStrictlyMonotonic(t *testing.T) {
	cat := referenceCatalog(t)
	events := mustRun(t, cat, Options{Start: day("2026-03-02"), End: day("2026-03-06"), Seed: 42})

	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.True(t, events[i].CreatedAt.After(events[i-1].CreatedAt),
			"created_at not increasing at index %d", i)
	}
}

func TestCreatedAtStableAcrossSubsetRuns(t *testing.T) {
	cat := referenceCatalog(t)
	opts := Options{Start: day("2026-03-02"), End: day("2026-03-02"), Seed: 42}

	full := mustRun(t, cat, opts)

	subsetOpts := opts
	subsetOpts.Facilities = []string{"HOSP_C"}
	subset := mustRun(t, cat, subsetOpts)

	stamps := make(map[string]time.Time)
	for _, ev := range full {
		stamps[ev.EventID] = ev.CreatedAt
	}
	for _, ev := range subset {
		full, ok := stamps[ev.EventID]
		require.True(t, ok)
		assert.True(t, ev.CreatedAt.Equal(full))
	}
}

func TestEventsSatisfyPhaseInvariants(t *testing.T) {
	cat := referenceCatalog(t)
	events := mustRun(t, cat, Options{Start: day("2026-03-02"), End: day("2026-03-06"), Seed: 42})

	for i := range events {
		ev := &events[i]
		require.NoError(t, ev.Validate())

		switch ev.Status {
		case event.StatusCanceled:
			assert.Nil(t, ev.OpStart)
			assert.Nil(t, ev.PostopStart)
			assert.Nil(t, ev.DischargeTime)
			require.NotNil(t, ev.PreopStart)
		case event.StatusConverted:
			assert.Nil(t, ev.DischargeTime)
			require.NotNil(t, ev.PostopStart)
		default:
			require.NotNil(t, ev.DischargeTime)
		}
	}
}

func TestGeneratorIDStamped(t *testing.T) {
	cat := scenarioCatalog(t, 5)
	opts := Options{Start: day("2026-03-02"), End: day("2026-03-02"), Seed: 42}

	for _, ev := range mustRun(t, cat, opts) {
		assert.Equal(t, DefaultGeneratorID, ev.SourceGeneratorID)
	}

	opts.GeneratorID = "gen-test"
	for _, ev := range mustRun(t, cat, opts) {
		assert.Equal(t, "gen-test", ev.SourceGeneratorID)
	}
}

func TestCheckinInFacilityTimezone(t *testing.T) {
	cat := referenceCatalog(t)
	events := mustRun(t, cat, Options{
		Start:      day("2026-03-02"),
		End:        day("2026-03-02"),
		Seed:       42,
		Facilities: []string{"HOSP_C"},
	})

	f, ok := cat.Facility("HOSP_C")
	require.True(t, ok)
	for _, ev := range events {
		assert.Equal(t, f.Location.String(), ev.CheckinTime.Location().String())
		assert.Equal(t, "2026-03-02", ev.CheckinTime.Format("2006-01-02"))
		// Check-ins only fall in hours with nonzero weight (05:00-17:59).
		h := ev.CheckinTime.Hour()
		assert.GreaterOrEqual(t, h, 5)
		assert.LessOrEqual(t, h, 17)
	}
}

// Status rates are checked over a large sample; tolerances sit several
// standard deviations out, so a correct generator essentially never
// trips them.
func TestStatusRatesConverge(t *testing.T) {
	if testing.Short() {
		t.Skip("large sample generation")
	}

	cat := referenceCatalog(t)
	events := mustRun(t, cat, Options{Start: day("2026-01-01"), End: day("2026-06-30"), Seed: 42})
	require.Greater(t, len(events), 20000)

	s := Summarize(events)
	total := float64(s.Cases)
	canceled := float64(s.ByStatus[event.StatusCanceled]) / total
	converted := float64(s.ByStatus[event.StatusConverted]) / total
	delayed := float64(s.ByStatus[event.StatusDelayed]) / total

	assert.InDelta(t, 0.02, canceled, 0.005)
	assert.InDelta(t, 0.01, converted, 0.003)
	assert.InDelta(t, 0.03, delayed, 0.006)
}

func TestSummarize(t *testing.T) {
	cat := scenarioCatalog(t, 5)
	events := mustRun(t, cat, Options{Start: day("2026-03-02"), End: day("2026-03-03"), Seed: 42})

	s := Summarize(events)
	assert.Equal(t, 30, s.Cases) // 3 facilities x 2 weekdays x 5 cases
	assert.Equal(t, 2, s.Days)
	assert.Equal(t, 3, s.Facilities)

	var statusTotal int
	for _, n := range s.ByStatus {
		statusTotal += n
	}
	assert.Equal(t, s.Cases, statusTotal)
}
