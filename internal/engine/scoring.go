package engine

import (
	"hash/fnv"

	"github.com/haasonsaas/splitdeck/pkg/models"
)

// ScoreFunc produces the effect magnitude and statistical significance for
// a contamination finding. The values are opaque to the engine; callers
// plug in a real scoring model when they have one.
type ScoreFunc func(primary, affected *models.TestDefinition, overlap models.OverlapType) (effect, significance float64)

// DefaultScore derives stable pseudo-scores from the pair's identity,
// scaled by overlap severity. Deterministic so repeated snapshots agree.
func DefaultScore(primary, affected *models.TestDefinition, overlap models.OverlapType) (float64, float64) {
	scale := 0.0
	switch overlap {
	case models.OverlapBoth:
		scale = 1.0
	case models.OverlapElement:
		scale = 0.7
	case models.OverlapSegment:
		scale = 0.5
	}

	base := hashFraction(primary.ID + ":" + affected.ID)
	effect := (0.05 + 0.25*base) * scale
	significance := 0.5 + 0.45*hashFraction(affected.ID+":"+primary.ID)*scale
	return effect, significance
}

// hashFraction maps a string to [0, 1).
func hashFraction(value string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	return float64(h.Sum32()%1000) / 1000
}
