package catalog

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

//go:embed data/*.cue
var embeddedData embed.FS

// Error codes for catalog configuration failures. All of them are fatal:
// a catalog that fails to load must never be partially used.
const (
	ErrCodeNotFound    = "E101" // catalog path not found
	ErrCodeScanError   = "E102" // directory scan error
	ErrCodeNoFiles     = "E103" // no CUE files found
	ErrCodeBuildFailed = "E104" // CUE compile/build failed
	ErrCodeDecode      = "E105" // CUE value did not decode
	ErrCodeProcedure   = "E110" // invalid procedure definition
	ErrCodeFacility    = "E111" // invalid facility definition
	ErrCodeAnesthesia  = "E112" // invalid anesthesia mix
	ErrCodeWeights     = "E113" // invalid categorical weight table
)

// ConfigError is a fatal catalog configuration error with an error code
// and, when it originates in CUE, a source position.
type ConfigError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load loads the catalog from dir, or the embedded reference catalog when
// dir is empty.
func Load(dir string) (*Catalog, error) {
	if dir == "" {
		return LoadEmbedded()
	}
	return LoadDir(dir)
}

// LoadEmbedded builds the catalog from the CUE files compiled into the
// binary. The embedded catalog is the reference configuration and must
// always validate; an error here is a build defect, not user input.
func LoadEmbedded() (*Catalog, error) {
	entries, err := embeddedData.ReadDir("data")
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeScanError, Message: fmt.Sprintf("reading embedded catalog: %v", err)}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".cue" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	ctx := cuecontext.New()
	var value cue.Value
	for i, name := range names {
		b, err := embeddedData.ReadFile("data/" + name)
		if err != nil {
			return nil, &ConfigError{Code: ErrCodeScanError, Message: fmt.Sprintf("reading embedded %s: %v", name, err)}
		}
		v := ctx.CompileBytes(b, cue.Filename(name))
		if err := v.Err(); err != nil {
			return nil, &ConfigError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("compiling %s: %v", name, err)}
		}
		if i == 0 {
			value = v
		} else {
			value = value.Unify(v)
		}
	}

	return decodeCatalog(value)
}

// LoadDir loads all CUE files from a directory and unifies them with the
// embedded schema so that alternate catalogs are held to the same
// structural constraints as the reference one.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &ConfigError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing catalog directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &ConfigError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeScanError, Message: fmt.Sprintf("scanning catalog directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &ConfigError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances(cueFiles, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &ConfigError{Code: ErrCodeBuildFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &ConfigError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &ConfigError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	// Unify with the embedded schema so structural constraints always apply.
	schemaBytes, err := embeddedData.ReadFile("data/schema.cue")
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeScanError, Message: fmt.Sprintf("reading embedded schema: %v", err)}
	}
	schema := ctx.CompileBytes(schemaBytes, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &ConfigError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("compiling embedded schema: %v", err)}
	}
	value = value.Unify(schema)

	return decodeCatalog(value)
}

// findCUEFiles returns the relative paths of all .cue files under dir.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

// Raw decode targets for the CUE catalog value. The [2]float64 phase shape
// is (mu, sigma) in log-space.
type rawProcedure struct {
	Name              string     `json:"name"`
	ServiceLine       string     `json:"service_line"`
	CheckinToPreop    [2]float64 `json:"checkin_to_preop"`
	PreopToOp         [2]float64 `json:"preop_to_op"`
	OpToPostop        [2]float64 `json:"op_to_postop"`
	PostopToDischarge [2]float64 `json:"postop_to_discharge"`
}

type rawVolume struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type rawFacility struct {
	Name        string             `json:"name"`
	Timezone    string             `json:"timezone"`
	Bias        map[string]float64 `json:"bias"`
	DailyVolume rawVolume          `json:"daily_volume"`
}

type rawAnesthesia struct {
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

type rawCatalog struct {
	Procedure          []rawProcedure             `json:"procedure"`
	Facility           map[string]rawFacility     `json:"facility"`
	Anesthesia         map[string][]rawAnesthesia `json:"anesthesia"`
	CheckinHourWeights []float64                  `json:"checkin_hour_weights"`
	ASAWeights         []float64                  `json:"asa_weights"`
}

func decodeCatalog(value cue.Value) (*Catalog, error) {
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, &ConfigError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("validating CUE value: %v", err)}
	}

	var raw rawCatalog
	if err := value.Decode(&raw); err != nil {
		return nil, &ConfigError{Code: ErrCodeDecode, Message: fmt.Sprintf("decoding catalog: %v", err)}
	}

	return buildCatalog(raw)
}

func buildCatalog(raw rawCatalog) (*Catalog, error) {
	c := &Catalog{
		anesthesia:  make(map[string][]WeightedAnesthesia, len(raw.Anesthesia)),
		byProcedure: make(map[string]int, len(raw.Procedure)),
		byFacility:  make(map[string]int, len(raw.Facility)),
	}

	for _, rp := range raw.Procedure {
		c.procedures = append(c.procedures, Procedure{
			Name:              rp.Name,
			ServiceLine:       rp.ServiceLine,
			CheckinToPreop:    PhaseParams{Mu: rp.CheckinToPreop[0], Sigma: rp.CheckinToPreop[1]},
			PreopToOp:         PhaseParams{Mu: rp.PreopToOp[0], Sigma: rp.PreopToOp[1]},
			OpToPostop:        PhaseParams{Mu: rp.OpToPostop[0], Sigma: rp.OpToPostop[1]},
			PostopToDischarge: PhaseParams{Mu: rp.PostopToDischarge[0], Sigma: rp.PostopToDischarge[1]},
		})
	}

	ids := make([]string, 0, len(raw.Facility))
	for id := range raw.Facility {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rf := raw.Facility[id]
		bias := make(map[string]float64, len(rf.Bias))
		for k, v := range rf.Bias {
			bias[k] = v
		}
		c.facilities = append(c.facilities, Facility{
			ID:        id,
			Name:      rf.Name,
			Timezone:  rf.Timezone,
			VolumeMin: rf.DailyVolume.Min,
			VolumeMax: rf.DailyVolume.Max,
			Bias:      bias,
		})
	}

	for line, mix := range raw.Anesthesia {
		choices := make([]WeightedAnesthesia, 0, len(mix))
		for _, m := range mix {
			choices = append(choices, WeightedAnesthesia{Type: m.Type, Weight: m.Weight})
		}
		c.anesthesia[line] = choices
	}

	if len(raw.CheckinHourWeights) != len(c.checkinHourWeights) {
		return nil, &ConfigError{
			Code:    ErrCodeWeights,
			Message: fmt.Sprintf("checkin_hour_weights: got %d entries, want %d", len(raw.CheckinHourWeights), len(c.checkinHourWeights)),
		}
	}
	copy(c.checkinHourWeights[:], raw.CheckinHourWeights)

	if len(raw.ASAWeights) != len(c.asaWeights) {
		return nil, &ConfigError{
			Code:    ErrCodeWeights,
			Message: fmt.Sprintf("asa_weights: got %d entries, want %d", len(raw.ASAWeights), len(c.asaWeights)),
		}
	}
	copy(c.asaWeights[:], raw.ASAWeights)

	if err := c.validate(); err != nil {
		return nil, err
	}

	// Resolve timezones once; validate() has already confirmed they parse.
	for i := range c.facilities {
		loc, err := time.LoadLocation(c.facilities[i].Timezone)
		if err != nil {
			return nil, &ConfigError{Code: ErrCodeFacility, Message: fmt.Sprintf("facility %s: timezone %q: %v", c.facilities[i].ID, c.facilities[i].Timezone, err)}
		}
		c.facilities[i].Location = loc
	}

	for i, p := range c.procedures {
		c.byProcedure[p.Name] = i
	}
	for i, f := range c.facilities {
		c.byFacility[f.ID] = i
	}

	return c, nil
}
