package catalog

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// validate enforces the semantic invariants the CUE schema cannot express:
// key uniqueness under NFC normalization, cross-references between biases,
// anesthesia mixes and service lines, sane volume ranges, and parseable
// timezones. All violations are fatal configuration errors.
func (c *Catalog) validate() error {
	if len(c.procedures) == 0 {
		return &ConfigError{Code: ErrCodeProcedure, Message: "catalog has no procedures"}
	}
	if len(c.facilities) == 0 {
		return &ConfigError{Code: ErrCodeFacility, Message: "catalog has no facilities"}
	}

	serviceLines := map[string]bool{}
	seenProc := map[string]string{}
	for _, p := range c.procedures {
		if p.Name == "" {
			return &ConfigError{Code: ErrCodeProcedure, Message: "procedure with empty name"}
		}
		if p.ServiceLine == "" {
			return &ConfigError{Code: ErrCodeProcedure, Message: fmt.Sprintf("procedure %q: empty service line", p.Name)}
		}
		// Unicode-equal names must collide even when byte representations
		// differ, so keys are compared NFC-normalized.
		key := norm.NFC.String(p.Name)
		if prev, dup := seenProc[key]; dup {
			return &ConfigError{Code: ErrCodeProcedure, Message: fmt.Sprintf("duplicate procedure name %q (conflicts with %q)", p.Name, prev)}
		}
		seenProc[key] = p.Name
		serviceLines[p.ServiceLine] = true

		for _, phase := range []struct {
			name   string
			params PhaseParams
		}{
			{"checkin_to_preop", p.CheckinToPreop},
			{"preop_to_op", p.PreopToOp},
			{"op_to_postop", p.OpToPostop},
			{"postop_to_discharge", p.PostopToDischarge},
		} {
			if phase.params.Sigma <= 0 {
				return &ConfigError{Code: ErrCodeProcedure, Message: fmt.Sprintf("procedure %q: %s sigma must be > 0, got %v", p.Name, phase.name, phase.params.Sigma)}
			}
		}
	}

	seenFac := map[string]string{}
	for _, f := range c.facilities {
		if f.ID == "" {
			return &ConfigError{Code: ErrCodeFacility, Message: "facility with empty id"}
		}
		key := norm.NFC.String(f.ID)
		if prev, dup := seenFac[key]; dup {
			return &ConfigError{Code: ErrCodeFacility, Message: fmt.Sprintf("duplicate facility id %q (conflicts with %q)", f.ID, prev)}
		}
		seenFac[key] = f.ID

		if f.VolumeMin < 0 || f.VolumeMax < f.VolumeMin {
			return &ConfigError{Code: ErrCodeFacility, Message: fmt.Sprintf("facility %s: invalid daily volume range [%d, %d]", f.ID, f.VolumeMin, f.VolumeMax)}
		}
		if _, err := time.LoadLocation(f.Timezone); err != nil {
			return &ConfigError{Code: ErrCodeFacility, Message: fmt.Sprintf("facility %s: unknown timezone %q", f.ID, f.Timezone)}
		}
		for line, w := range f.Bias {
			if !serviceLines[line] {
				return &ConfigError{Code: ErrCodeFacility, Message: fmt.Sprintf("facility %s: bias references unknown service line %q", f.ID, line)}
			}
			if w <= 0 {
				return &ConfigError{Code: ErrCodeFacility, Message: fmt.Sprintf("facility %s: bias weight for %q must be > 0, got %v", f.ID, line, w)}
			}
		}
	}

	for line := range serviceLines {
		mix := c.anesthesia[line]
		if len(mix) == 0 {
			return &ConfigError{Code: ErrCodeAnesthesia, Message: fmt.Sprintf("service line %q has no anesthesia mix", line)}
		}
		for _, m := range mix {
			if m.Type == "" {
				return &ConfigError{Code: ErrCodeAnesthesia, Message: fmt.Sprintf("service line %q: anesthesia entry with empty type", line)}
			}
			if m.Weight <= 0 {
				return &ConfigError{Code: ErrCodeAnesthesia, Message: fmt.Sprintf("service line %q: anesthesia weight for %q must be > 0", line, m.Type)}
			}
		}
	}
	for line := range c.anesthesia {
		if !serviceLines[line] {
			return &ConfigError{Code: ErrCodeAnesthesia, Message: fmt.Sprintf("anesthesia mix references unknown service line %q", line)}
		}
	}

	if err := validateWeights("checkin_hour_weights", c.checkinHourWeights[:]); err != nil {
		return err
	}
	if err := validateWeights("asa_weights", c.asaWeights[:]); err != nil {
		return err
	}

	return nil
}

func validateWeights(name string, weights []float64) error {
	var sum float64
	for i, w := range weights {
		if w < 0 {
			return &ConfigError{Code: ErrCodeWeights, Message: fmt.Sprintf("%s[%d]: negative weight %v", name, i, w)}
		}
		sum += w
	}
	if sum <= 0 {
		return &ConfigError{Code: ErrCodeWeights, Message: fmt.Sprintf("%s: weights sum to zero", name)}
	}
	return nil
}
