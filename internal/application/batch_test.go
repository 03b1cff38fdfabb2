package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

func newCoordinator(t *testing.T, store *fakeStore, mode string) *Coordinator {
	t.Helper()

	var classifier *Classifier
	var err error
	switch mode {
	case ModeDistribution:
		classifier, err = NewClassifier(ModeDistribution, []float64{0.6, 0.3, 0.1}, nil)
	case ModeThresholds:
		classifier, err = NewClassifier(ModeThresholds, nil, []float64{0.5, 0.8})
	}
	require.NoError(t, err)

	lifecycle := NewLifecycle(store, logger.NewNop())
	return NewCoordinator(lifecycle, classifier, store, logger.NewNop())
}

func TestCoordinator_Apply(t *testing.T) {
	store := newFakeStore()
	coordinator := newCoordinator(t, store, ModeThresholds)
	_, recording := seedRecording(t, store)

	results, err := coordinator.Apply(context.Background(), []domain.BatchItem{
		{RecordingID: recording.ID, Accuracy: 0.9, BatchID: "batch-1"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	processed, err := store.GetRecording(context.Background(), recording.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingProcessed, processed.State)
	require.NotNil(t, processed.Difficulty)
	assert.Equal(t, 2, *processed.Difficulty) // 0.9 clears both thresholds
}

func TestCoordinator_DuplicateRejectedWholesale(t *testing.T) {
	store := newFakeStore()
	coordinator := newCoordinator(t, store, ModeThresholds)
	_, recording := seedRecording(t, store)

	_, err := coordinator.Apply(context.Background(), []domain.BatchItem{
		{RecordingID: recording.ID, Accuracy: 0.9},
		{RecordingID: recording.ID, Accuracy: 0.1},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateBatchItem)

	// Nothing was applied
	untouched, err := store.GetRecording(context.Background(), recording.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingUnprocessed, untouched.State)
}

func TestCoordinator_ItemIsolation(t *testing.T) {
	store := newFakeStore()
	coordinator := newCoordinator(t, store, ModeThresholds)
	_, recording := seedRecording(t, store)

	results, err := coordinator.Apply(context.Background(), []domain.BatchItem{
		{RecordingID: "missing", Accuracy: 0.5},
		{RecordingID: recording.ID, Accuracy: 0.7},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The missing item failed; its neighbor still applied
	assert.ErrorIs(t, results[0].Err, domain.ErrNotFound)
	assert.NoError(t, results[1].Err)

	processed, err := store.GetRecording(context.Background(), recording.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingProcessed, processed.State)
}

func TestCoordinator_DistributionRecompute(t *testing.T) {
	store := newFakeStore()
	coordinator := newCoordinator(t, store, ModeDistribution)

	question, err := domain.NewQuestion("transcript", "answer")
	require.NoError(t, err)
	require.NoError(t, store.CreateQuestion(context.Background(), question))

	items := make([]domain.BatchItem, 10)
	for i := range items {
		recording, rerr := domain.NewRecording(question.ID, "user-1", domain.KindNormal)
		require.NoError(t, rerr)
		recording.ID = fmt.Sprintf("rec-%02d", i)
		require.NoError(t, store.CreateRecording(context.Background(), recording))
		items[i] = domain.BatchItem{RecordingID: recording.ID, Accuracy: float64(i) / 10}
	}

	results, err := coordinator.Apply(context.Background(), items)
	require.NoError(t, err)
	for _, result := range results {
		assert.NoError(t, result.Err)
	}

	// Ranks over the full population: lowest 60% in bucket 0, then 30%, 10%
	counts := make(map[int]int)
	for i := range items {
		recording, gerr := store.GetRecording(context.Background(), items[i].RecordingID)
		require.NoError(t, gerr)
		require.NotNil(t, recording.Difficulty)
		counts[*recording.Difficulty]++
	}
	assert.Equal(t, map[int]int{0: 6, 1: 3, 2: 1}, counts)
}
