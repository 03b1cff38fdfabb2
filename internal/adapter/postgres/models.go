package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
)

type questionRow struct {
	ID         string `gorm:"primaryKey"`
	Transcript string `gorm:"not null"`
	Answer     string
	State      string `gorm:"index;not null"`
	Recordings datatypes.JSON
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (questionRow) TableName() string { return "questions" }

type recordingRow struct {
	ID         string `gorm:"primaryKey"`
	QuestionID string `gorm:"index;not null"`
	UserID     string `gorm:"index;not null"`
	Kind       string `gorm:"not null"`
	State      string `gorm:"index;not null"`
	BlobPath   string
	Accuracy   float64
	Alignment  datatypes.JSON
	VTT        string
	Difficulty *int
	BatchID    string `gorm:"index"`
	Version    string `gorm:"index"`
	Duration   float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (recordingRow) TableName() string { return "recordings" }

type userRow struct {
	ID         string `gorm:"primaryKey"`
	Username   string `gorm:"uniqueIndex"`
	Recordings datatypes.JSON
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (userRow) TableName() string { return "users" }

func questionToRow(q *domain.Question) (*questionRow, error) {
	recordings, err := json.Marshal(q.Recordings)
	if err != nil {
		return nil, fmt.Errorf("marshal recordings: %w", err)
	}
	return &questionRow{
		ID:         q.ID,
		Transcript: q.Transcript,
		Answer:     q.Answer,
		State:      string(q.State),
		Recordings: recordings,
		CreatedAt:  q.CreatedAt,
		UpdatedAt:  q.UpdatedAt,
	}, nil
}

func rowToQuestion(row *questionRow) (*domain.Question, error) {
	var recordings []string
	if len(row.Recordings) > 0 {
		if err := json.Unmarshal(row.Recordings, &recordings); err != nil {
			return nil, fmt.Errorf("unmarshal recordings: %w", err)
		}
	}
	return &domain.Question{
		ID:         row.ID,
		Transcript: row.Transcript,
		Answer:     row.Answer,
		State:      domain.QuestionState(row.State),
		Recordings: recordings,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

func recordingToRow(r *domain.Recording) (*recordingRow, error) {
	row := &recordingRow{
		ID:         r.ID,
		QuestionID: r.QuestionID,
		UserID:     r.UserID,
		Kind:       string(r.Kind),
		State:      string(r.State),
		BlobPath:   r.BlobPath,
		Accuracy:   r.Accuracy,
		VTT:        r.VTT,
		Difficulty: r.Difficulty,
		BatchID:    r.BatchID,
		Version:    r.Version,
		Duration:   r.Duration,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Alignment != nil {
		alignment, err := json.Marshal(r.Alignment)
		if err != nil {
			return nil, fmt.Errorf("marshal alignment: %w", err)
		}
		row.Alignment = alignment
	}
	return row, nil
}

func rowToRecording(row *recordingRow) (*domain.Recording, error) {
	recording := &domain.Recording{
		ID:         row.ID,
		QuestionID: row.QuestionID,
		UserID:     row.UserID,
		Kind:       domain.RecordingKind(row.Kind),
		State:      domain.RecordingState(row.State),
		BlobPath:   row.BlobPath,
		Accuracy:   row.Accuracy,
		VTT:        row.VTT,
		Difficulty: row.Difficulty,
		BatchID:    row.BatchID,
		Version:    row.Version,
		Duration:   row.Duration,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if len(row.Alignment) > 0 {
		var alignment domain.Alignment
		if err := json.Unmarshal(row.Alignment, &alignment); err != nil {
			return nil, fmt.Errorf("unmarshal alignment: %w", err)
		}
		recording.Alignment = &alignment
	}
	return recording, nil
}
