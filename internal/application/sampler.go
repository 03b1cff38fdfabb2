package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

// Sampler picks questions for the record and answer flows. Selection is
// uniform over the eligible population as seen by the document store; when a
// session ID is supplied, questions recently served to that session are
// skipped unless skipping them would empty the pool.
type Sampler struct {
	store    domain.DocumentStore
	sessions domain.SessionStore
	version  string
	log      *logger.Logger
}

// NewSampler creates a sampler. version is the schema tag processed
// recordings must carry to be selectable in the answer flow.
func NewSampler(store domain.DocumentStore, sessions domain.SessionStore, version string, log *logger.Logger) *Sampler {
	return &Sampler{
		store:    store,
		sessions: sessions,
		version:  version,
		log:      log.With("component", "sampler"),
	}
}

// SelectForRecording picks a random unrecorded question. Fails with
// ErrEmptyPool when no unrecorded question exists at all.
func (s *Sampler) SelectForRecording(ctx context.Context, sessionID string) (*domain.Question, error) {
	exclude := s.recentlyServed(ctx, sessionID)

	question, err := s.store.RandomUnrecordedQuestion(ctx, exclude)
	if errors.Is(err, domain.ErrEmptyPool) && len(exclude) > 0 {
		// Dedup must never starve a session; fall back to the full pool
		question, err = s.store.RandomUnrecordedQuestion(ctx, nil)
	}
	if err != nil {
		return nil, err
	}

	s.markServed(ctx, sessionID, question.ID)
	return question, nil
}

// SelectForAnswering picks a random recorded question that has a selectable
// processed recording, along with that question's best recording: highest
// accuracy, ties broken by lowest recording ID.
func (s *Sampler) SelectForAnswering(ctx context.Context, sessionID string) (*domain.Question, *domain.Recording, error) {
	exclude := s.recentlyServed(ctx, sessionID)

	question, err := s.store.RandomAnswerableQuestion(ctx, s.version, exclude)
	if errors.Is(err, domain.ErrEmptyPool) && len(exclude) > 0 {
		question, err = s.store.RandomAnswerableQuestion(ctx, s.version, nil)
	}
	if err != nil {
		return nil, nil, err
	}

	best, err := s.bestRecording(ctx, question.ID)
	if err != nil {
		return nil, nil, err
	}

	s.markServed(ctx, sessionID, question.ID)
	return question, best, nil
}

// bestRecording returns the processed recording of a question with the best
// evaluation
func (s *Sampler) bestRecording(ctx context.Context, questionID string) (*domain.Recording, error) {
	recordings, err := s.store.ProcessedRecordings(ctx, questionID, s.version)
	if err != nil {
		return nil, fmt.Errorf("list processed recordings: %w", err)
	}
	if len(recordings) == 0 {
		return nil, domain.ErrEmptyPool
	}

	best := recordings[0]
	for _, recording := range recordings[1:] {
		if recording.Accuracy > best.Accuracy ||
			(recording.Accuracy == best.Accuracy && recording.ID < best.ID) {
			best = recording
		}
	}
	return best, nil
}

func (s *Sampler) recentlyServed(ctx context.Context, sessionID string) []string {
	if sessionID == "" {
		return nil
	}
	served, err := s.sessions.Served(ctx, sessionID)
	if err != nil {
		// Dedup is best-effort; selection proceeds without it
		s.log.Warn("could not load served questions", "session_id", sessionID, "error", err)
		return nil
	}
	return served
}

func (s *Sampler) markServed(ctx context.Context, sessionID, questionID string) {
	if sessionID == "" {
		return
	}
	if err := s.sessions.MarkServed(ctx, sessionID, questionID); err != nil {
		s.log.Warn("could not mark question served", "session_id", sessionID, "error", err)
	}
}
