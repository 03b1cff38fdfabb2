package domain

import (
	"context"
)

// Aligner defines the interface for the external forced-alignment engine
type Aligner interface {
	// Align aligns the given audio against the expected transcript and
	// returns a word-level alignment
	Align(ctx context.Context, audio []byte, transcript string) (*Alignment, error)
}

// DocumentStore defines the interface for the persistent document store.
// Single-document updates are atomic; list appends are field-level merges,
// never last-writer-wins.
type DocumentStore interface {
	// CreateQuestion inserts a question into the unrecorded collection
	CreateQuestion(ctx context.Context, question *Question) error

	// GetQuestion retrieves a question by ID regardless of lifecycle state
	GetQuestion(ctx context.Context, id string) (*Question, error)

	// RandomUnrecordedQuestion picks a uniformly random unrecorded question,
	// skipping the excluded IDs. Returns ErrEmptyPool when none is eligible.
	RandomUnrecordedQuestion(ctx context.Context, exclude []string) (*Question, error)

	// RandomAnswerableQuestion picks a uniformly random recorded question
	// that has at least one processed recording with the given version tag,
	// skipping the excluded IDs. Returns ErrEmptyPool when none is eligible.
	RandomAnswerableQuestion(ctx context.Context, version string, exclude []string) (*Question, error)

	// CreateRecording inserts a recording
	CreateRecording(ctx context.Context, recording *Recording) error

	// GetRecording retrieves a recording by ID
	GetRecording(ctx context.Context, id string) (*Recording, error)

	// MarkRecordingProcessed persists the processed fields of a recording.
	// The update is conditional on the stored state still being unprocessed
	// and fails with ErrAlreadyProcessed otherwise, making the processed flag
	// the single source of truth for applied side effects.
	MarkRecordingProcessed(ctx context.Context, recording *Recording) error

	// AppendRecordingToQuestion appends a recording ID to the question's
	// recording list, transitioning the question to recorded if it is still
	// unrecorded. The append is idempotent.
	AppendRecordingToQuestion(ctx context.Context, questionID, recordingID string) error

	// AppendRecordingToUser appends a recording ID to the user's recording
	// list. The append is idempotent.
	AppendRecordingToUser(ctx context.Context, userID, recordingID string) error

	// ListUnprocessed returns up to limit unprocessed recordings
	ListUnprocessed(ctx context.Context, limit int) ([]*Recording, error)

	// ProcessedRecordings returns the processed recordings of a question
	// with the given version tag
	ProcessedRecordings(ctx context.Context, questionID, version string) ([]*Recording, error)

	// ProcessedScores returns the accuracy of every processed recording,
	// for rank-based difficulty recomputation
	ProcessedScores(ctx context.Context) ([]RecordingScore, error)

	// SetDifficulty updates the difficulty bucket of a processed recording
	SetDifficulty(ctx context.Context, recordingID string, difficulty int) error
}

// BlobStore defines the interface for raw audio blob storage
type BlobStore interface {
	// Put stores the given bytes under path and returns an opaque locator
	Put(ctx context.Context, data []byte, path string) (string, error)
}

// SessionStore defines the interface for tracking recently served questions
// per session, so selection can avoid duplicates within a session
type SessionStore interface {
	// MarkServed records that a question was served to a session
	MarkServed(ctx context.Context, sessionID, questionID string) error

	// Served returns the question IDs recently served to a session
	Served(ctx context.Context, sessionID string) ([]string, error)
}
