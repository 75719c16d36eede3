package event

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRecordCompleted(t *testing.T) {
	ev := completedEvent()
	r := ev.ToRecord()

	assert.Equal(t, ev.EventID, r.EventID)
	assert.Equal(t, "completed", r.CaseStatus)
	assert.Equal(t, "2026-03-02T07:30:00Z", r.CheckinTime)
	assert.Equal(t, "2026-03-02T00:00:00.005Z", r.CreatedAt)
	require.NotNil(t, r.TotalMin)
	assert.Equal(t, 195.0, *r.TotalMin)
}

func TestToRecordCanceledNulls(t *testing.T) {
	ev := completedEvent()
	ev.Status = StatusCanceled
	ev.OpStart = nil
	ev.PostopStart = nil
	ev.DischargeTime = nil

	r := ev.ToRecord()
	assert.Nil(t, r.OpStartTime)
	assert.Nil(t, r.PostopStartTime)
	assert.Nil(t, r.DischargeTime)
	assert.Nil(t, r.PreopToOpMin)
	assert.Nil(t, r.TotalMin)
	require.NotNil(t, r.PreopStartTime)
}

func TestWriteJSONGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []CaseEvent{completedEvent()}))

	g := goldie.New(t)
	g.Assert(t, "completed_event", buf.Bytes())
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []CaseEvent{completedEvent()}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
	assert.Equal(t,
		"c3a4e1d2-0000-4000-8000-000000000001,HOSP_A,Colonoscopy,"+
			"2026-03-02T08:25:00Z,2026-03-02T07:30:00Z,2026-03-02T07:45:00Z,"+
			"2026-03-02T08:30:00Z,2026-03-02T09:45:00Z,2026-03-02T10:45:00Z,"+
			"MAC,2,completed,2026-03-02T00:00:00.005Z,gen-v1,"+
			"15.00,45.00,75.00,60.00,195.00",
		lines[1])
}

func TestWriteCSVEmptyCellsForAbsentFields(t *testing.T) {
	ev := completedEvent()
	ev.Status = StatusCanceled
	ev.OpStart = nil
	ev.PostopStart = nil
	ev.DischargeTime = nil

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []CaseEvent{ev}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	cells := strings.Split(lines[1], ",")
	require.Len(t, cells, len(csvHeader))
	assert.Empty(t, cells[6])  // op_start_time
	assert.Empty(t, cells[7])  // postop_start_time
	assert.Empty(t, cells[8])  // discharge_time
	assert.Empty(t, cells[18]) // total_min
}
