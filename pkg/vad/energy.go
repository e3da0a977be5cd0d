package vad

import "math"

// Default dBFS range mapped onto [0, 1] by the energy scorer.
const (
	DefaultEnergyFloorDB   = -55.0
	DefaultEnergyCeilingDB = -25.0
)

// EnergyScorer scores frames by RMS level. The level in dBFS is mapped
// linearly from [FloorDB, CeilingDB] onto [0, 1]. It needs no model and is
// stateless, but cannot tell speech from other loud sounds.
type EnergyScorer struct {
	FloorDB   float64
	CeilingDB float64
}

var _ Scorer = (*EnergyScorer)(nil)

// NewEnergyScorer returns an energy scorer. Zero bounds select the defaults.
func NewEnergyScorer(floorDB, ceilingDB float64) *EnergyScorer {
	if floorDB == 0 && ceilingDB == 0 {
		floorDB, ceilingDB = DefaultEnergyFloorDB, DefaultEnergyCeilingDB
	}
	return &EnergyScorer{FloorDB: floorDB, CeilingDB: ceilingDB}
}

// Score implements Scorer.
func (e *EnergyScorer) Score(samples []float32) (float32, error) {
	db := LevelDB(samples)
	if e.CeilingDB <= e.FloorDB {
		if db >= e.FloorDB {
			return 1, nil
		}
		return 0, nil
	}
	p := (db - e.FloorDB) / (e.CeilingDB - e.FloorDB)
	return float32(math.Max(0, math.Min(1, p))), nil
}

// Reset implements Scorer.
func (e *EnergyScorer) Reset() error { return nil }

// Destroy implements Scorer.
func (e *EnergyScorer) Destroy() error { return nil }

// LevelDB returns the RMS level of samples in dBFS. Digital silence returns
// -inf.
func LevelDB(samples []float32) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}
