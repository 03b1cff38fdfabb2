package application

import (
	"github.com/escalopa/quizzr-dataflow/internal/domain"
)

// Scorer computes the accuracy of a forced alignment and decides whether a
// submission passes pre-screening. It is a pure function of its inputs.
type Scorer struct {
	minAccuracy float64
	checkUnk    bool
	unkToken    string
}

// NewScorer creates a scorer. When checkUnk is true, words the engine aligned
// to unkToken count against accuracy like unaligned words; when false they
// are excluded from the word count entirely.
func NewScorer(minAccuracy float64, checkUnk bool, unkToken string) *Scorer {
	return &Scorer{
		minAccuracy: minAccuracy,
		checkUnk:    checkUnk,
		unkToken:    unkToken,
	}
}

// Score returns the accuracy in [0, 1] and whether it meets the configured
// minimum. An alignment with no transcript words fails with
// ErrMalformedAlignment.
func (s *Scorer) Score(alignment *domain.Alignment) (float64, bool, error) {
	if alignment == nil || len(alignment.Words) == 0 {
		return 0, false, domain.ErrMalformedAlignment
	}

	aligned := 0
	total := 0
	for _, word := range alignment.Words {
		unk := word.AlignedWord == s.unkToken
		if unk && !s.checkUnk {
			continue
		}
		total++
		if word.Success() && !unk {
			aligned++
		}
	}

	// All words excluded as unknown leaves nothing to grade
	if total == 0 {
		return 0, false, domain.ErrMalformedAlignment
	}

	accuracy := float64(aligned) / float64(total)
	return accuracy, accuracy >= s.minAccuracy, nil
}
