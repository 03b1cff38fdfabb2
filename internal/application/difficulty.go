package application

import (
	"fmt"
	"math"
	"sort"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
)

// Classifier modes
const (
	ModeDistribution = "distribution"
	ModeThresholds   = "thresholds"
)

// Classifier assigns a discrete difficulty bucket to a scored recording.
//
// In distribution mode, buckets are assigned by the rank of a score among all
// known scores: the configured fractions split the ascending-sorted population
// into tiers (e.g. [0.6, 0.3, 0.1] puts the lowest 60% of scores in bucket 0).
// This requires the full scored population and is recomputed at batch time.
//
// In thresholds mode, assignment is purely local: the bucket is the first tier
// whose upper bound exceeds the score, with an unbounded final tier.
type Classifier struct {
	mode         string
	distribution []float64
	thresholds   []float64
}

// NewClassifier validates the difficulty configuration and creates a
// classifier. An unparseable or non-monotonic configuration fails with
// ErrInvalidDifficultyConfig here, at load time, never at scoring time.
func NewClassifier(mode string, distribution, thresholds []float64) (*Classifier, error) {
	switch mode {
	case ModeDistribution:
		if len(distribution) == 0 {
			return nil, fmt.Errorf("%w: empty distribution", domain.ErrInvalidDifficultyConfig)
		}
		sum := 0.0
		for _, fraction := range distribution {
			if fraction <= 0 || fraction > 1 {
				return nil, fmt.Errorf("%w: fraction %v out of range", domain.ErrInvalidDifficultyConfig, fraction)
			}
			sum += fraction
		}
		if math.Abs(sum-1) > 1e-9 {
			return nil, fmt.Errorf("%w: fractions sum to %v, want 1", domain.ErrInvalidDifficultyConfig, sum)
		}
	case ModeThresholds:
		if len(thresholds) == 0 {
			return nil, fmt.Errorf("%w: empty thresholds", domain.ErrInvalidDifficultyConfig)
		}
		for i := 1; i < len(thresholds); i++ {
			if thresholds[i] <= thresholds[i-1] {
				return nil, fmt.Errorf("%w: thresholds not strictly increasing", domain.ErrInvalidDifficultyConfig)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidDifficultyConfig, mode)
	}
	return &Classifier{
		mode:         mode,
		distribution: distribution,
		thresholds:   thresholds,
	}, nil
}

// DistributionMode reports whether buckets depend on the scored population
func (c *Classifier) DistributionMode() bool {
	return c.mode == ModeDistribution
}

// Classify assigns a bucket to a single score. In distribution mode the
// bucket is computed against the given population and is provisional until
// the next batch recomputation; population is ignored in thresholds mode.
func (c *Classifier) Classify(score float64, population []float64) int {
	if c.mode == ModeThresholds {
		for i, upper := range c.thresholds {
			if score < upper {
				return i
			}
		}
		// Unbounded final tier
		return len(c.thresholds)
	}

	rank := 0
	for _, other := range population {
		if other < score {
			rank++
		}
	}
	return c.bucketForRank(rank, len(population)+1)
}

// BucketsByRank assigns buckets to the whole scored population, ascending by
// accuracy with ties broken by recording ID for determinism
func (c *Classifier) BucketsByRank(scores []domain.RecordingScore) map[string]int {
	sorted := make([]domain.RecordingScore, len(scores))
	copy(sorted, scores)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Accuracy != sorted[j].Accuracy {
			return sorted[i].Accuracy < sorted[j].Accuracy
		}
		return sorted[i].RecordingID < sorted[j].RecordingID
	})

	buckets := make(map[string]int, len(sorted))
	for rank, score := range sorted {
		buckets[score.RecordingID] = c.bucketForRank(rank, len(sorted))
	}
	return buckets
}

// bucketForRank maps an ascending rank within a population of size n to a
// bucket, with tier boundaries at the cumulative fraction positions
func (c *Classifier) bucketForRank(rank, n int) int {
	cumulative := 0.0
	for i, fraction := range c.distribution {
		cumulative += fraction
		boundary := int(cumulative*float64(n) + 0.5)
		if rank < boundary {
			return i
		}
	}
	return len(c.distribution) - 1
}
