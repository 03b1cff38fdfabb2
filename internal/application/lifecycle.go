package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

// Lifecycle is the document state machine. It owns the authoritative
// transitions Unprocessed→Processed for recordings and Unrecorded→Recorded
// for questions, and links processed recordings into their question and user
// documents.
//
// The three updates per item (question list, user list, recording flag) form
// one logical unit. The store cannot give multi-document transactions, so the
// recording's processed flag is written last: it is the single source of
// truth for "side effects already applied", and the list appends are
// idempotent, so a partial failure is safe to retry.
type Lifecycle struct {
	store domain.DocumentStore
	log   *logger.Logger
	locks keyedMutex
}

// NewLifecycle creates the state machine over the given store
func NewLifecycle(store domain.DocumentStore, log *logger.Logger) *Lifecycle {
	return &Lifecycle{
		store: store,
		log:   log.With("component", "lifecycle"),
	}
}

// Apply transitions the recording to processed with the given result and
// links it into the owning question and user. It fails with ErrNotFound when
// the recording does not exist and ErrAlreadyProcessed when the transition
// already happened; in the latter case no document is touched.
//
// Application is serialized per recording ID, so a batch item and a
// concurrent single-submission acceptance of the same recording cannot
// interleave.
func (l *Lifecycle) Apply(ctx context.Context, recordingID string, result domain.ProcessingResult) error {
	unlock := l.locks.lock(recordingID)
	defer unlock()

	recording, err := l.store.GetRecording(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("get recording: %w", err)
	}
	if recording.State == domain.RecordingProcessed {
		return domain.ErrAlreadyProcessed
	}

	// Side effects first; both appends are idempotent
	if err := l.store.AppendRecordingToQuestion(ctx, recording.QuestionID, recording.ID); err != nil {
		return fmt.Errorf("link recording to question: %w", err)
	}
	if err := l.store.AppendRecordingToUser(ctx, recording.UserID, recording.ID); err != nil {
		return fmt.Errorf("link recording to user: %w", err)
	}

	// Processed flag last
	if err := recording.MarkProcessed(result); err != nil {
		return err
	}
	if err := l.store.MarkRecordingProcessed(ctx, recording); err != nil {
		return fmt.Errorf("mark recording processed: %w", err)
	}

	l.log.Info("recording processed",
		"recording_id", recording.ID,
		"question_id", recording.QuestionID,
		"accuracy", result.Accuracy)
	return nil
}

// keyedMutex provides mutual exclusion per recording ID
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns its unlock function
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
