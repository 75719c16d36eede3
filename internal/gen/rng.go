package gen

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/catalog"
)

// Sampled durations are clamped to a plausible range in minutes.
const (
	minPhaseMinutes = 3.0
	maxPhaseMinutes = 600.0
)

// subSeed derives the per-partition seed: FNV-1a over
// "seed|facility|YYYY-MM-DD". A pure function of the partition key, so the
// same (facility, day) always gets the same RNG stream regardless of which
// range or subset is being generated.
func subSeed(seed int64, facilityID string, day time.Time) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s", seed, facilityID, day.Format("2006-01-02"))
	return int64(h.Sum64())
}

// partitionRNG returns the seeded random source for one (facility, day).
func partitionRNG(seed int64, facilityID string, day time.Time) *rand.Rand {
	return rand.New(rand.NewSource(subSeed(seed, facilityID, day)))
}

// weightedIndex picks an index with probability proportional to its weight.
// Weights must be non-negative with a positive sum (enforced at catalog
// load time).
func weightedIndex(weights []float64, rng *rand.Rand) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return i
		}
	}
	return len(weights) - 1
}

// sampleLogNormal draws a duration in minutes from exp(Normal(mu, sigma)),
// clamped to [minPhaseMinutes, maxPhaseMinutes].
func sampleLogNormal(p catalog.PhaseParams, rng *rand.Rand) float64 {
	v := math.Exp(rng.NormFloat64()*p.Sigma + p.Mu)
	return math.Max(minPhaseMinutes, math.Min(v, maxPhaseMinutes))
}

// uniform draws from [lo, hi).
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// caseID builds an RFC 4122 v4 UUID from deterministic RNG bytes, so event
// identity is reproducible for a fixed seed.
func caseID(rng *rand.Rand) string {
	var b [16]byte
	rng.Read(b[:]) // never fails for math/rand sources
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		// Unreachable: FromBytes only rejects slices that are not 16 bytes.
		panic(err)
	}
	return id.String()
}

// minutes converts fractional minutes to a time.Duration.
func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
