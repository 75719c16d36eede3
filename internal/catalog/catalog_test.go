package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadReference(t *testing.T) *Catalog {
	t.Helper()
	cat, err := LoadEmbedded()
	require.NoError(t, err)
	return cat
}

func TestLoadEmbedded(t *testing.T) {
	cat := loadReference(t)

	assert.Len(t, cat.Procedures(), 58)
	assert.Len(t, cat.Facilities(), 3)
	assert.Len(t, cat.ServiceLines(), 10)
}

func TestFacilitiesSortedByID(t *testing.T) {
	cat := loadReference(t)

	var ids []string
	for _, f := range cat.Facilities() {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"HOSP_A", "HOSP_B", "HOSP_C"}, ids)
}

func TestFacilityLookup(t *testing.T) {
	cat := loadReference(t)

	f, ok := cat.Facility("HOSP_A")
	require.True(t, ok)
	assert.Equal(t, "Metro General Ambulatory Center", f.Name)
	assert.Equal(t, "America/New_York", f.Timezone)
	require.NotNil(t, f.Location)
	assert.Equal(t, 60, f.VolumeMin)
	assert.Equal(t, 100, f.VolumeMax)

	_, ok = cat.Facility("HOSP_Z")
	assert.False(t, ok)
}

func TestProcedureLookup(t *testing.T) {
	cat := loadReference(t)

	p, ok := cat.Procedure("Colonoscopy with biopsy")
	require.True(t, ok)
	assert.Equal(t, "GI", p.ServiceLine)
	assert.Positive(t, p.PreopToOp.Sigma)

	_, ok = cat.Procedure("Teleportation")
	assert.False(t, ok)
}

func TestBiasWeight(t *testing.T) {
	cat := loadReference(t)

	f, ok := cat.Facility("HOSP_A")
	require.True(t, ok)
	assert.Equal(t, 2.0, f.BiasWeight("GI"))
	// Service lines without an explicit bias default to 1.0.
	assert.Equal(t, 1.0, f.BiasWeight("Orthopedics"))
}

func TestAnesthesiaMixCoversEveryServiceLine(t *testing.T) {
	cat := loadReference(t)

	for _, line := range cat.ServiceLines() {
		mix := cat.AnesthesiaMix(line)
		require.NotEmpty(t, mix, "service line %s", line)
		var total float64
		for _, m := range mix {
			assert.Positive(t, m.Weight)
			total += m.Weight
		}
		assert.InDelta(t, 1.0, total, 1e-9, "service line %s", line)
	}
}

func TestWeightTables(t *testing.T) {
	cat := loadReference(t)

	hours := cat.CheckinHourWeights()
	var total float64
	for _, w := range hours {
		assert.GreaterOrEqual(t, w, 0.0)
		total += w
	}
	assert.Positive(t, total)
	// Overnight hours carry no check-in probability.
	assert.Zero(t, hours[0])
	assert.Zero(t, hours[23])

	asa := cat.ASAWeights()
	assert.Equal(t, [6]float64{0.15, 0.40, 0.30, 0.12, 0.02, 0.01}, asa)
}

func TestProceduresForServiceLine(t *testing.T) {
	cat := loadReference(t)

	gi := cat.ProceduresFor("GI")
	require.NotEmpty(t, gi)
	for _, p := range gi {
		assert.Equal(t, "GI", p.ServiceLine)
	}
}
