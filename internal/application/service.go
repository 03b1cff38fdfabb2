package application

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

// Service is the data-flow facade exposed to the HTTP tier. It wires the
// screening pipeline (queue → aligner → scorer → verdict) to the document
// state machine and the selection sampler.
type Service struct {
	queue       *EvalQueue
	scorer      *Scorer
	classifier  *Classifier
	lifecycle   *Lifecycle
	coordinator *Coordinator
	sampler     *Sampler

	aligner domain.Aligner
	blobs   domain.BlobStore
	store   domain.DocumentStore

	version   string
	blobRoot  string
	findLimit int
	log       *logger.Logger
}

// ServiceParams collects the collaborators of the service
type ServiceParams struct {
	Queue       *EvalQueue
	Scorer      *Scorer
	Classifier  *Classifier
	Lifecycle   *Lifecycle
	Coordinator *Coordinator
	Sampler     *Sampler
	Aligner     domain.Aligner
	Blobs       domain.BlobStore
	Store       domain.DocumentStore
	Version     string
	BlobRoot    string
	FindLimit   int
	Log         *logger.Logger
}

// NewService creates the data-flow service
func NewService(p ServiceParams) *Service {
	return &Service{
		queue:       p.Queue,
		scorer:      p.Scorer,
		classifier:  p.Classifier,
		lifecycle:   p.Lifecycle,
		coordinator: p.Coordinator,
		sampler:     p.Sampler,
		aligner:     p.Aligner,
		blobs:       p.Blobs,
		store:       p.Store,
		version:     p.Version,
		blobRoot:    p.BlobRoot,
		findLimit:   p.FindLimit,
		log:         p.Log.With("component", "service"),
	}
}

// ScreeningResult is the outcome of a submission. Accuracy is reported on
// rejection too, so the user can see the gap to the threshold. Difficulty is
// provisional until the recording is processed.
type ScreeningResult struct {
	Accepted    bool
	RecordingID string
	Accuracy    float64
	Difficulty  *int
}

// SubmitForScreening runs one submission through the pre-screening pipeline.
// Normal submissions are admitted to the bounded evaluation queue (failing
// with ErrQueueFull at capacity), aligned, scored, and either rejected or
// persisted as an unprocessed recording. Answer and buzz recordings skip
// screening and are stored as processed immediately.
func (s *Service) SubmitForScreening(ctx context.Context, sub *domain.Submission) (*ScreeningResult, error) {
	question, err := s.store.GetQuestion(ctx, sub.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}

	if sub.Kind != domain.KindNormal {
		return s.storeUnscreened(ctx, sub)
	}

	slot, err := s.queue.Admit()
	if err != nil {
		return nil, err
	}
	// The slot must come back even when the client disconnects mid-evaluation
	defer slot.Release()
	sub.AdmittedAt = time.Now()

	// The alignment call dominates latency; the slot bounds how many run at
	// once but no lock is held across it
	alignment, err := s.aligner.Align(ctx, sub.Audio, question.Transcript)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAlignmentEngine, err)
	}

	accuracy, pass, err := s.scorer.Score(alignment)
	if err != nil {
		return nil, err
	}
	if !pass {
		s.log.Info("submission rejected",
			"question_id", sub.QuestionID, "accuracy", accuracy)
		return &ScreeningResult{Accepted: false, Accuracy: accuracy}, nil
	}

	recording, err := domain.NewRecording(sub.QuestionID, sub.UserID, sub.Kind)
	if err != nil {
		return nil, err
	}
	recording.Accuracy = accuracy
	recording.Alignment = alignment
	recording.VTT = AlignmentToVTT(alignment)
	recording.Version = s.version
	recording.Duration = sub.Duration

	locator, err := s.blobs.Put(ctx, sub.Audio, path.Join(s.blobRoot, recording.ID+".wav"))
	if err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}
	recording.BlobPath = locator

	if err := s.store.CreateRecording(ctx, recording); err != nil {
		return nil, fmt.Errorf("persist recording: %w", err)
	}

	difficulty := s.provisionalDifficulty(ctx, accuracy)
	s.log.Info("submission accepted",
		"recording_id", recording.ID,
		"question_id", sub.QuestionID,
		"accuracy", accuracy)
	return &ScreeningResult{
		Accepted:    true,
		RecordingID: recording.ID,
		Accuracy:    accuracy,
		Difficulty:  difficulty,
	}, nil
}

// storeUnscreened persists an answer or buzz recording directly as processed
// audio, linked only to its user
func (s *Service) storeUnscreened(ctx context.Context, sub *domain.Submission) (*ScreeningResult, error) {
	recording, err := domain.NewRecording(sub.QuestionID, sub.UserID, sub.Kind)
	if err != nil {
		return nil, err
	}
	recording.Version = s.version
	recording.Duration = sub.Duration

	locator, err := s.blobs.Put(ctx, sub.Audio, path.Join(s.blobRoot, recording.ID+".wav"))
	if err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}
	recording.BlobPath = locator

	if err := recording.MarkProcessed(domain.ProcessingResult{}); err != nil {
		return nil, err
	}
	if err := s.store.CreateRecording(ctx, recording); err != nil {
		return nil, fmt.Errorf("persist recording: %w", err)
	}
	if err := s.store.AppendRecordingToUser(ctx, sub.UserID, recording.ID); err != nil {
		return nil, fmt.Errorf("link recording to user: %w", err)
	}

	return &ScreeningResult{Accepted: true, RecordingID: recording.ID}, nil
}

// provisionalDifficulty classifies an accepted score. Population errors only
// degrade the provisional answer, never the acceptance.
func (s *Service) provisionalDifficulty(ctx context.Context, accuracy float64) *int {
	var population []float64
	if s.classifier.DistributionMode() {
		scores, err := s.store.ProcessedScores(ctx)
		if err != nil {
			s.log.Warn("could not load scored population", "error", err)
			return nil
		}
		population = make([]float64, len(scores))
		for i, score := range scores {
			population[i] = score.Accuracy
		}
	}
	difficulty := s.classifier.Classify(accuracy, population)
	return &difficulty
}

// ApplyBatch applies a batch of externally computed evaluation results
func (s *Service) ApplyBatch(ctx context.Context, items []domain.BatchItem) ([]domain.ItemResult, error) {
	return s.coordinator.Apply(ctx, items)
}

// SelectForRecording picks a question for the record flow
func (s *Service) SelectForRecording(ctx context.Context, sessionID string) (*domain.Question, error) {
	return s.sampler.SelectForRecording(ctx, sessionID)
}

// SelectForAnswering picks a question and its best recording for the answer
// flow
func (s *Service) SelectForAnswering(ctx context.Context, sessionID string) (*domain.Question, *domain.Recording, error) {
	return s.sampler.SelectForAnswering(ctx, sessionID)
}

// UnprocessedItem pairs an unprocessed recording with the transcript an
// external processing agent needs to evaluate it
type UnprocessedItem struct {
	RecordingID string
	BlobPath    string
	Transcript  string
}

// ListUnprocessed returns up to limit unprocessed recordings with their
// transcripts. A non-positive limit falls back to the configured find limit.
func (s *Service) ListUnprocessed(ctx context.Context, limit int) ([]UnprocessedItem, error) {
	if limit <= 0 || limit > s.findLimit {
		limit = s.findLimit
	}

	recordings, err := s.store.ListUnprocessed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}

	items := make([]UnprocessedItem, 0, len(recordings))
	for _, recording := range recordings {
		question, err := s.store.GetQuestion(ctx, recording.QuestionID)
		if err != nil {
			s.log.Warn("question missing for unprocessed recording",
				"recording_id", recording.ID, "question_id", recording.QuestionID)
			continue
		}
		items = append(items, UnprocessedItem{
			RecordingID: recording.ID,
			BlobPath:    recording.BlobPath,
			Transcript:  question.Transcript,
		})
	}
	return items, nil
}
