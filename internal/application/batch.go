package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

// Coordinator validates and applies batches of externally computed evaluation
// results against the document state machine. The batch as a whole never
// fails atomically; each item carries its own outcome so the caller can
// resubmit only the failed subset.
type Coordinator struct {
	lifecycle  *Lifecycle
	classifier *Classifier
	store      domain.DocumentStore
	log        *logger.Logger
}

// NewCoordinator creates a batch coordinator
func NewCoordinator(lifecycle *Lifecycle, classifier *Classifier, store domain.DocumentStore, log *logger.Logger) *Coordinator {
	return &Coordinator{
		lifecycle:  lifecycle,
		classifier: classifier,
		store:      store,
		log:        log.With("component", "batch"),
	}
}

// Apply applies each batch item independently and returns per-item results.
// A batch referencing the same recording twice is rejected wholesale with
// ErrDuplicateBatchItem before any item is applied, since applying the second
// would be nondeterministic relative to the first.
func (c *Coordinator) Apply(ctx context.Context, items []domain.BatchItem) ([]domain.ItemResult, error) {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.RecordingID]; ok {
			return nil, fmt.Errorf("recording %s: %w", item.RecordingID, domain.ErrDuplicateBatchItem)
		}
		seen[item.RecordingID] = struct{}{}
	}

	results := make([]domain.ItemResult, 0, len(items))
	applied := 0
	for _, item := range items {
		err := c.applyItem(ctx, item)
		if err == nil {
			applied++
		}
		results = append(results, domain.ItemResult{RecordingID: item.RecordingID, Err: err})
	}
	c.log.Info("batch applied", "items", len(items), "applied", applied)

	// Rank-based buckets shift as the population grows, so they are
	// recomputed over the full scored population after every batch
	if applied > 0 && c.classifier.DistributionMode() {
		if err := c.recomputeDistribution(ctx); err != nil {
			return results, fmt.Errorf("recompute difficulty distribution: %w", err)
		}
	}
	return results, nil
}

func (c *Coordinator) applyItem(ctx context.Context, item domain.BatchItem) error {
	var vtt string
	if item.Alignment != nil {
		vtt = AlignmentToVTT(item.Alignment)
	}

	result := domain.ProcessingResult{
		Alignment: item.Alignment,
		Accuracy:  item.Accuracy,
		VTT:       vtt,
		BatchID:   item.BatchID,
	}
	if !c.classifier.DistributionMode() {
		difficulty := c.classifier.Classify(item.Accuracy, nil)
		result.Difficulty = &difficulty
	}

	err := c.lifecycle.Apply(ctx, item.RecordingID, result)
	if err != nil && !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrAlreadyProcessed) {
		c.log.Error("batch item failed", "recording_id", item.RecordingID, "error", err)
	}
	return err
}

// recomputeDistribution reassigns every processed recording's bucket from its
// accuracy rank. In distribution mode this runs after each batch; a full
// rescan keeps the classifier pure at the cost of rereading the population.
func (c *Coordinator) recomputeDistribution(ctx context.Context) error {
	scores, err := c.store.ProcessedScores(ctx)
	if err != nil {
		return fmt.Errorf("list processed scores: %w", err)
	}
	if len(scores) == 0 {
		return nil
	}

	buckets := c.classifier.BucketsByRank(scores)
	for recordingID, bucket := range buckets {
		if err := c.store.SetDifficulty(ctx, recordingID, bucket); err != nil {
			return fmt.Errorf("set difficulty for %s: %w", recordingID, err)
		}
	}
	c.log.Debug("difficulty distribution recomputed", "population", len(scores))
	return nil
}
