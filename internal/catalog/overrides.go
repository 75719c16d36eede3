package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides is an optional YAML document that pins per-facility daily
// volumes for scenario runs, e.g.:
//
//	facilities:
//	  HOSP_A:
//	    daily_volume_min: 10
//	    daily_volume_max: 10
type Overrides struct {
	Facilities map[string]VolumeOverride `yaml:"facilities"`
}

// VolumeOverride replaces one or both ends of a facility's daily volume
// range. Nil fields keep the catalog value.
type VolumeOverride struct {
	DailyVolumeMin *int `yaml:"daily_volume_min"`
	DailyVolumeMax *int `yaml:"daily_volume_max"`
}

// LoadOverrides reads an overrides YAML file.
func LoadOverrides(path string) (*Overrides, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	return &o, nil
}

// WithOverrides returns a new catalog with facility volumes replaced.
// An override naming an unknown facility is a fatal configuration error,
// matching the fail-fast policy for all catalog references.
func (c *Catalog) WithOverrides(o *Overrides) (*Catalog, error) {
	if o == nil || len(o.Facilities) == 0 {
		return c, nil
	}

	next := &Catalog{
		procedures:         c.procedures,
		anesthesia:         c.anesthesia,
		checkinHourWeights: c.checkinHourWeights,
		asaWeights:         c.asaWeights,
		byProcedure:        c.byProcedure,
		byFacility:         make(map[string]int, len(c.byFacility)),
	}
	next.facilities = make([]Facility, len(c.facilities))
	copy(next.facilities, c.facilities)
	for id, i := range c.byFacility {
		next.byFacility[id] = i
	}

	for id, ov := range o.Facilities {
		i, ok := next.byFacility[id]
		if !ok {
			return nil, &ConfigError{Code: ErrCodeFacility, Message: fmt.Sprintf("override references unknown facility %q", id)}
		}
		f := &next.facilities[i]
		if ov.DailyVolumeMin != nil {
			f.VolumeMin = *ov.DailyVolumeMin
		}
		if ov.DailyVolumeMax != nil {
			f.VolumeMax = *ov.DailyVolumeMax
		}
		if f.VolumeMin < 0 || f.VolumeMax < f.VolumeMin {
			return nil, &ConfigError{Code: ErrCodeFacility, Message: fmt.Sprintf("override for %s: invalid daily volume range [%d, %d]", id, f.VolumeMin, f.VolumeMax)}
		}
	}

	return next, nil
}
