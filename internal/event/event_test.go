package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

// completedEvent returns a valid completed case with whole-minute phase
// boundaries so derived durations are exact.
func completedEvent() CaseEvent {
	return CaseEvent{
		EventID:           "c3a4e1d2-0000-4000-8000-000000000001",
		FacilityID:        "HOSP_A",
		ProcedureType:     "Colonoscopy",
		ScheduledStart:    ts("2026-03-02T08:25:00Z"),
		CheckinTime:       ts("2026-03-02T07:30:00Z"),
		PreopStart:        tsp("2026-03-02T07:45:00Z"),
		OpStart:           tsp("2026-03-02T08:30:00Z"),
		PostopStart:       tsp("2026-03-02T09:45:00Z"),
		DischargeTime:     tsp("2026-03-02T10:45:00Z"),
		AnesthesiaType:    "MAC",
		ASAClass:          2,
		Status:            StatusCompleted,
		CreatedAt:         ts("2026-03-02T00:00:00.005Z"),
		SourceGeneratorID: "gen-v1",
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCanceled, StatusConverted, StatusDelayed} {
		assert.True(t, s.Valid(), "status %q", s)
	}
	assert.False(t, Status("no_show").Valid())
	assert.False(t, Status("").Valid())
}

func TestValidateCompleted(t *testing.T) {
	ev := completedEvent()
	require.NoError(t, ev.Validate())
}

func TestValidateRejectsMissingID(t *testing.T) {
	ev := completedEvent()
	ev.EventID = ""
	assert.Error(t, ev.Validate())
}

func TestValidateRejectsASAOutOfRange(t *testing.T) {
	ev := completedEvent()
	ev.ASAClass = 0
	assert.Error(t, ev.Validate())
	ev.ASAClass = 7
	assert.Error(t, ev.Validate())
}

func TestValidateRejectsDisorderedPhases(t *testing.T) {
	ev := completedEvent()
	ev.OpStart = tsp("2026-03-02T07:00:00Z") // before preop
	assert.Error(t, ev.Validate())
}

func TestValidateRejectsMissingPhaseOnCompleted(t *testing.T) {
	ev := completedEvent()
	ev.PostopStart = nil
	assert.Error(t, ev.Validate())
}

func TestValidateCanceled(t *testing.T) {
	ev := completedEvent()
	ev.Status = StatusCanceled
	ev.PreopStart = tsp("2026-03-02T07:40:00Z")
	ev.OpStart = nil
	ev.PostopStart = nil
	ev.DischargeTime = nil
	require.NoError(t, ev.Validate())

	// A canceled case must not carry timestamps past preop.
	ev.OpStart = tsp("2026-03-02T08:30:00Z")
	assert.Error(t, ev.Validate())
}

func TestValidateConverted(t *testing.T) {
	ev := completedEvent()
	ev.Status = StatusConverted
	ev.DischargeTime = nil
	require.NoError(t, ev.Validate())

	ev.DischargeTime = tsp("2026-03-02T10:45:00Z")
	assert.Error(t, ev.Validate())
}

func TestDurationsCompleted(t *testing.T) {
	ev := completedEvent()
	d := ev.Durations()

	require.NotNil(t, d.CheckinToPreop)
	require.NotNil(t, d.Total)
	assert.Equal(t, 15.0, *d.CheckinToPreop)
	assert.Equal(t, 45.0, *d.PreopToOp)
	assert.Equal(t, 75.0, *d.OpToPostop)
	assert.Equal(t, 60.0, *d.PostopToDischarge)
	assert.Equal(t, 195.0, *d.Total)
}

func TestDurationsCanceled(t *testing.T) {
	ev := completedEvent()
	ev.Status = StatusCanceled
	ev.OpStart = nil
	ev.PostopStart = nil
	ev.DischargeTime = nil

	d := ev.Durations()
	require.NotNil(t, d.CheckinToPreop)
	assert.Equal(t, 15.0, *d.CheckinToPreop)
	assert.Nil(t, d.PreopToOp)
	assert.Nil(t, d.OpToPostop)
	assert.Nil(t, d.PostopToDischarge)
	assert.Nil(t, d.Total)
}

func TestDurationsConverted(t *testing.T) {
	ev := completedEvent()
	ev.Status = StatusConverted
	ev.DischargeTime = nil

	d := ev.Durations()
	require.NotNil(t, d.OpToPostop)
	assert.Equal(t, 75.0, *d.OpToPostop)
	assert.Nil(t, d.PostopToDischarge)
	assert.Nil(t, d.Total)
}
