package catalog

import (
	"sort"
	"time"
)

// PhaseParams are log-normal distribution parameters for one case phase:
// duration in minutes = exp(Normal(Mu, Sigma)).
type PhaseParams struct {
	Mu    float64
	Sigma float64
}

// Procedure defines one procedure type and its four sequential phase
// duration distributions (checkin→preop, preop→op, op→postop,
// postop→discharge).
type Procedure struct {
	Name        string
	ServiceLine string

	CheckinToPreop    PhaseParams
	PreopToOp         PhaseParams
	OpToPostop        PhaseParams
	PostopToDischarge PhaseParams
}

// Facility defines one outpatient facility: display name, IANA timezone,
// daily case volume range, and per-service-line selection-weight bias.
// Service lines absent from Bias have weight 1.0.
type Facility struct {
	ID        string
	Name      string
	Timezone  string
	VolumeMin int
	VolumeMax int
	Bias      map[string]float64

	// Location is resolved from Timezone at load time.
	Location *time.Location
}

// WeightedAnesthesia is one anesthesia type with its selection weight
// within a service line.
type WeightedAnesthesia struct {
	Type   string
	Weight float64
}

// Catalog is the full immutable configuration. Construct via Load,
// LoadDir or LoadEmbedded; do not mutate after construction.
type Catalog struct {
	procedures []Procedure
	facilities []Facility // sorted by ID
	anesthesia map[string][]WeightedAnesthesia

	checkinHourWeights [24]float64
	asaWeights         [6]float64

	byProcedure map[string]int
	byFacility  map[string]int
}

// Procedures returns all procedure definitions in catalog order.
func (c *Catalog) Procedures() []Procedure {
	out := make([]Procedure, len(c.procedures))
	copy(out, c.procedures)
	return out
}

// Procedure looks up a procedure definition by name.
func (c *Catalog) Procedure(name string) (Procedure, bool) {
	i, ok := c.byProcedure[name]
	if !ok {
		return Procedure{}, false
	}
	return c.procedures[i], true
}

// Facilities returns all facilities sorted by ID. The sorted order is the
// generator's facility iteration order, so it is part of the deterministic
// output contract.
func (c *Catalog) Facilities() []Facility {
	out := make([]Facility, len(c.facilities))
	copy(out, c.facilities)
	return out
}

// Facility looks up a facility by ID.
func (c *Catalog) Facility(id string) (Facility, bool) {
	i, ok := c.byFacility[id]
	if !ok {
		return Facility{}, false
	}
	return c.facilities[i], true
}

// ServiceLines returns the distinct service lines, sorted.
func (c *Catalog) ServiceLines() []string {
	seen := map[string]bool{}
	for _, p := range c.procedures {
		seen[p.ServiceLine] = true
	}
	lines := make([]string, 0, len(seen))
	for l := range seen {
		lines = append(lines, l)
	}
	sort.Strings(lines)
	return lines
}

// ProceduresFor returns the procedures belonging to a service line, in
// catalog order.
func (c *Catalog) ProceduresFor(serviceLine string) []Procedure {
	var out []Procedure
	for _, p := range c.procedures {
		if p.ServiceLine == serviceLine {
			out = append(out, p)
		}
	}
	return out
}

// AnesthesiaMix returns the weighted anesthesia choices for a service line.
func (c *Catalog) AnesthesiaMix(serviceLine string) []WeightedAnesthesia {
	mix := c.anesthesia[serviceLine]
	out := make([]WeightedAnesthesia, len(mix))
	copy(out, mix)
	return out
}

// CheckinHourWeights returns the 24-entry hourly check-in probability
// weights (front-loaded toward the morning; zero outside operating hours).
func (c *Catalog) CheckinHourWeights() [24]float64 {
	return c.checkinHourWeights
}

// ASAWeights returns the selection weights for ASA classes 1..6.
func (c *Catalog) ASAWeights() [6]float64 {
	return c.asaWeights
}

// BiasWeight returns the facility's selection weight for a service line,
// defaulting to 1.0 where no bias is configured.
func (f Facility) BiasWeight(serviceLine string) float64 {
	if w, ok := f.Bias[serviceLine]; ok {
		return w
	}
	return 1.0
}
