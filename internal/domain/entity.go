package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuestionState is the lifecycle state of a question. A question starts
// unrecorded and becomes recorded exactly once, the first time one of its
// recordings finishes processing. It never transitions back.
type QuestionState string

const (
	QuestionUnrecorded QuestionState = "unrecorded"
	QuestionRecorded   QuestionState = "recorded"
)

// RecordingState is the lifecycle state of an audio recording
type RecordingState string

const (
	RecordingUnprocessed RecordingState = "unprocessed"
	RecordingProcessed   RecordingState = "processed"
)

// RecordingKind distinguishes screened question readings from the auxiliary
// recording types that skip pre-screening
type RecordingKind string

const (
	KindNormal RecordingKind = "normal"
	KindAnswer RecordingKind = "answer"
	KindBuzz   RecordingKind = "buzz"
)

// Question represents a quiz question with its transcript and the ordered
// list of recording IDs made for it
type Question struct {
	ID         string
	Transcript string
	Answer     string
	State      QuestionState
	Recordings []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewQuestion creates an unrecorded question with no recordings
func NewQuestion(transcript, answer string) (*Question, error) {
	if transcript == "" {
		return nil, fmt.Errorf("question transcript is required")
	}
	return &Question{
		ID:         uuid.NewString(),
		Transcript: transcript,
		Answer:     answer,
		State:      QuestionUnrecorded,
		CreatedAt:  time.Now(),
	}, nil
}

// WordCase is the alignment outcome of a single transcript word
type WordCase string

const (
	CaseSuccess         WordCase = "success"
	CaseNotFoundInAudio WordCase = "not-found-in-audio"
)

// AlignedWord is one transcript word tagged with its alignment outcome and
// timing. AlignedWord holds the token the engine matched the word to, which
// is the configured unknown token when the engine could not identify it.
type AlignedWord struct {
	Word        string   `json:"word"`
	AlignedWord string   `json:"alignedWord"`
	Case        WordCase `json:"case"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
}

// Success reports whether the word was aligned to the audio
func (w AlignedWord) Success() bool {
	return w.Case == CaseSuccess
}

// Alignment is a word-level forced alignment of a transcript against a
// recording
type Alignment struct {
	Transcript string        `json:"transcript"`
	Words      []AlignedWord `json:"words"`
}

// Recording represents an audio document. A recording belongs to exactly one
// question and one user for its lifetime.
type Recording struct {
	ID         string
	QuestionID string
	UserID     string
	Kind       RecordingKind
	State      RecordingState
	BlobPath   string
	Accuracy   float64
	Alignment  *Alignment
	VTT        string
	Difficulty *int
	BatchID    string
	Version    string
	Duration   float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewRecording creates an unprocessed recording for the given question and
// user
func NewRecording(questionID, userID string, kind RecordingKind) (*Recording, error) {
	if questionID == "" {
		return nil, fmt.Errorf("recording question ID is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("recording user ID is required")
	}
	return &Recording{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		UserID:     userID,
		Kind:       kind,
		State:      RecordingUnprocessed,
		CreatedAt:  time.Now(),
	}, nil
}

// ProcessingResult carries the evaluation payload applied to a recording when
// it transitions to processed
type ProcessingResult struct {
	Alignment  *Alignment
	Accuracy   float64
	VTT        string
	Difficulty *int
	BatchID    string
}

// MarkProcessed applies an evaluation result and flips the recording to
// processed. Applying a result to an already-processed recording fails with
// ErrAlreadyProcessed so replays cannot double-count side effects. A
// difficulty bucket may only ever be set through this transition.
func (r *Recording) MarkProcessed(result ProcessingResult) error {
	if r.State == RecordingProcessed {
		return ErrAlreadyProcessed
	}
	r.Alignment = result.Alignment
	r.Accuracy = result.Accuracy
	r.VTT = result.VTT
	r.Difficulty = result.Difficulty
	if result.BatchID != "" {
		r.BatchID = result.BatchID
	}
	r.State = RecordingProcessed
	r.UpdatedAt = time.Now()
	return nil
}

// User holds the recording-ownership side of the data model. Profile fields
// live in the upstream service.
type User struct {
	ID         string
	Username   string
	Recordings []string
}

// Submission is a transient in-flight upload. It is never persisted; on
// acceptance it is converted into a Recording, on rejection it is discarded.
type Submission struct {
	Audio      []byte
	QuestionID string
	UserID     string
	Kind       RecordingKind
	Duration   float64
	AdmittedAt time.Time
}

// BatchItem is one externally evaluated result targeting a recording. It is
// consumed exactly once by the batch coordinator.
type BatchItem struct {
	RecordingID string
	Alignment   *Alignment
	Accuracy    float64
	BatchID     string
}

// ItemResult is the per-item outcome of a batch application. Err is nil for
// items that were applied.
type ItemResult struct {
	RecordingID string
	Err         error
}

// RecordingScore pairs a processed recording with its accuracy for
// rank-based difficulty recomputation
type RecordingScore struct {
	RecordingID string
	Accuracy    float64
}
