package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverrides(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverrides(t *testing.T) {
	path := writeOverrides(t, `
facilities:
  HOSP_A:
    daily_volume_min: 10
    daily_volume_max: 10
`)

	ov, err := LoadOverrides(path)
	require.NoError(t, err)
	require.Contains(t, ov.Facilities, "HOSP_A")
	require.NotNil(t, ov.Facilities["HOSP_A"].DailyVolumeMin)
	assert.Equal(t, 10, *ov.Facilities["HOSP_A"].DailyVolumeMin)
}

func TestWithOverridesReplacesVolume(t *testing.T) {
	cat := loadReference(t)

	ten := 10
	next, err := cat.WithOverrides(&Overrides{
		Facilities: map[string]VolumeOverride{
			"HOSP_A": {DailyVolumeMin: &ten, DailyVolumeMax: &ten},
		},
	})
	require.NoError(t, err)

	f, ok := next.Facility("HOSP_A")
	require.True(t, ok)
	assert.Equal(t, 10, f.VolumeMin)
	assert.Equal(t, 10, f.VolumeMax)

	// The original catalog is untouched.
	orig, _ := cat.Facility("HOSP_A")
	assert.Equal(t, 60, orig.VolumeMin)
}

func TestWithOverridesPartial(t *testing.T) {
	cat := loadReference(t)

	five := 5
	next, err := cat.WithOverrides(&Overrides{
		Facilities: map[string]VolumeOverride{
			"HOSP_B": {DailyVolumeMin: &five},
		},
	})
	require.NoError(t, err)

	f, _ := next.Facility("HOSP_B")
	assert.Equal(t, 5, f.VolumeMin)
	assert.Equal(t, 80, f.VolumeMax)
}

func TestWithOverridesUnknownFacility(t *testing.T) {
	cat := loadReference(t)

	ten := 10
	_, err := cat.WithOverrides(&Overrides{
		Facilities: map[string]VolumeOverride{
			"HOSP_Z": {DailyVolumeMin: &ten},
		},
	})
	assert.Equal(t, ErrCodeFacility, configCode(t, err))
}

func TestWithOverridesInvalidRange(t *testing.T) {
	cat := loadReference(t)

	lo, hi := 50, 10
	_, err := cat.WithOverrides(&Overrides{
		Facilities: map[string]VolumeOverride{
			"HOSP_A": {DailyVolumeMin: &lo, DailyVolumeMax: &hi},
		},
	})
	assert.Equal(t, ErrCodeFacility, configCode(t, err))
}

func TestWithNilOverridesReturnsSameCatalog(t *testing.T) {
	cat := loadReference(t)
	next, err := cat.WithOverrides(nil)
	require.NoError(t, err)
	assert.Same(t, cat, next)
}
