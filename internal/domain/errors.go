package domain

import "errors"

var (
	// ErrQueueFull is returned when the submission queue is at capacity.
	// The caller should retry later; this is expected under load, not a defect.
	ErrQueueFull = errors.New("evaluation queue is full")

	// ErrMalformedAlignment is returned for an alignment with no transcript words
	ErrMalformedAlignment = errors.New("malformed alignment")

	// ErrAlignmentEngine is returned when the forced-alignment engine fails.
	// Surfaced to the caller as a rejected submission, never retried internally.
	ErrAlignmentEngine = errors.New("alignment engine failure")

	// ErrInvalidDifficultyConfig is returned at load time for an unparseable
	// or non-monotonic difficulty configuration. Fatal at startup.
	ErrInvalidDifficultyConfig = errors.New("invalid difficulty configuration")

	// ErrAlreadyProcessed is returned when a processing result targets a
	// recording that has already been processed
	ErrAlreadyProcessed = errors.New("recording already processed")

	// ErrNotFound is returned when a referenced document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateBatchItem is returned when a batch references the same
	// recording more than once. The batch is rejected before any item applies.
	ErrDuplicateBatchItem = errors.New("duplicate recording reference in batch")

	// ErrEmptyPool is returned when no eligible question exists for selection
	ErrEmptyPool = errors.New("no eligible question in pool")
)
