package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

type serviceEnv struct {
	service *Service
	store   *fakeStore
	blobs   *fakeBlobs
	aligner *fakeAligner
	queue   *EvalQueue
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	store := newFakeStore()
	blobs := &fakeBlobs{}
	align := &fakeAligner{}
	queue := NewEvalQueue(2)

	classifier, err := NewClassifier(ModeDistribution, []float64{0.6, 0.3, 0.1}, nil)
	require.NoError(t, err)

	lifecycle := NewLifecycle(store, logger.NewNop())
	service := NewService(ServiceParams{
		Queue:       queue,
		Scorer:      NewScorer(0.5, true, "<unk>"),
		Classifier:  classifier,
		Lifecycle:   lifecycle,
		Coordinator: NewCoordinator(lifecycle, classifier, store, logger.NewNop()),
		Sampler:     NewSampler(store, newFakeSessions(), testVersion, logger.NewNop()),
		Aligner:     align,
		Blobs:       blobs,
		Store:       store,
		Version:     testVersion,
		BlobRoot:    "test",
		FindLimit:   4,
		Log:         logger.NewNop(),
	})

	return &serviceEnv{service: service, store: store, blobs: blobs, aligner: align, queue: queue}
}

func (e *serviceEnv) seedQuestion(t *testing.T) *domain.Question {
	t.Helper()
	question, err := domain.NewQuestion("the quick brown fox", "fox")
	require.NoError(t, err)
	require.NoError(t, e.store.CreateQuestion(context.Background(), question))
	return question
}

func alignmentOf(cases ...bool) *domain.Alignment {
	words := make([]domain.AlignedWord, len(cases))
	for i, success := range cases {
		words[i] = domain.AlignedWord{Word: "w", AlignedWord: "w", Case: domain.CaseNotFoundInAudio}
		if success {
			words[i].Case = domain.CaseSuccess
		}
	}
	return &domain.Alignment{Words: words}
}

func TestService_SubmitAccepted(t *testing.T) {
	env := newServiceEnv(t)
	question := env.seedQuestion(t)
	env.aligner.alignment = alignmentOf(true, true, true, false)

	result, err := env.service.SubmitForScreening(context.Background(), &domain.Submission{
		Audio:      []byte("wav-bytes"),
		QuestionID: question.ID,
		UserID:     "user-1",
		Kind:       domain.KindNormal,
		Duration:   4.2,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.InDelta(t, 0.75, result.Accuracy, 1e-9)
	require.NotNil(t, result.Difficulty)

	// The accepted recording is stored unprocessed, awaiting batch evaluation
	recording, err := env.store.GetRecording(context.Background(), result.RecordingID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingUnprocessed, recording.State)
	assert.Equal(t, testVersion, recording.Version)
	assert.Equal(t, 4.2, recording.Duration)
	assert.NotEmpty(t, recording.VTT)
	assert.NotEmpty(t, recording.BlobPath)
	require.Len(t, env.blobs.paths, 1)
}

func TestService_SubmitRejected(t *testing.T) {
	env := newServiceEnv(t)
	question := env.seedQuestion(t)
	env.aligner.alignment = alignmentOf(true, false, false, false)

	result, err := env.service.SubmitForScreening(context.Background(), &domain.Submission{
		Audio:      []byte("wav-bytes"),
		QuestionID: question.ID,
		UserID:     "user-1",
		Kind:       domain.KindNormal,
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.InDelta(t, 0.25, result.Accuracy, 1e-9)
	assert.Empty(t, result.RecordingID)

	// Nothing was persisted
	assert.Empty(t, env.blobs.paths)
	assert.Empty(t, env.store.recordings)
}

func TestService_SubmitQueueFull(t *testing.T) {
	env := newServiceEnv(t)
	question := env.seedQuestion(t)

	// Occupy every slot
	for i := 0; i < 2; i++ {
		_, err := env.queue.Admit()
		require.NoError(t, err)
	}

	_, err := env.service.SubmitForScreening(context.Background(), &domain.Submission{
		Audio:      []byte("wav-bytes"),
		QuestionID: question.ID,
		UserID:     "user-1",
		Kind:       domain.KindNormal,
	})
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestService_SubmitSlotReleasedOnFailure(t *testing.T) {
	env := newServiceEnv(t)
	question := env.seedQuestion(t)
	env.aligner.err = errors.New("engine unreachable")

	sub := &domain.Submission{
		Audio:      []byte("wav-bytes"),
		QuestionID: question.ID,
		UserID:     "user-1",
		Kind:       domain.KindNormal,
	}

	// Failed evaluations must not leak queue capacity
	for i := 0; i < 5; i++ {
		_, err := env.service.SubmitForScreening(context.Background(), sub)
		assert.ErrorIs(t, err, domain.ErrAlignmentEngine)
	}

	env.aligner.err = nil
	env.aligner.alignment = alignmentOf(true)
	result, err := env.service.SubmitForScreening(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestService_SubmitUnknownQuestion(t *testing.T) {
	env := newServiceEnv(t)

	_, err := env.service.SubmitForScreening(context.Background(), &domain.Submission{
		Audio:      []byte("wav-bytes"),
		QuestionID: "missing",
		UserID:     "user-1",
		Kind:       domain.KindNormal,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_SubmitAnswerKindBypassesScreening(t *testing.T) {
	env := newServiceEnv(t)
	question := env.seedQuestion(t)

	result, err := env.service.SubmitForScreening(context.Background(), &domain.Submission{
		Audio:      []byte("wav-bytes"),
		QuestionID: question.ID,
		UserID:     "user-1",
		Kind:       domain.KindAnswer,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	// Stored processed without ever touching the aligner
	recording, err := env.store.GetRecording(context.Background(), result.RecordingID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingProcessed, recording.State)

	// Linked to the user but not to the question
	assert.Equal(t, []string{result.RecordingID}, env.store.users["user-1"])
	updated, err := env.store.GetQuestion(context.Background(), question.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionUnrecorded, updated.State)
	assert.Empty(t, updated.Recordings)
}

func TestService_ListUnprocessed(t *testing.T) {
	env := newServiceEnv(t)
	question := env.seedQuestion(t)

	for i := 0; i < 6; i++ {
		recording, err := domain.NewRecording(question.ID, "user-1", domain.KindNormal)
		require.NoError(t, err)
		require.NoError(t, env.store.CreateRecording(context.Background(), recording))
	}

	// A non-positive limit falls back to the find limit, which also caps
	// oversized requests
	items, err := env.service.ListUnprocessed(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, items, 4)

	items, err = env.service.ListUnprocessed(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, items, 4)

	items, err = env.service.ListUnprocessed(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, question.Transcript, items[0].Transcript)
	assert.NotEmpty(t, items[0].RecordingID)
}
