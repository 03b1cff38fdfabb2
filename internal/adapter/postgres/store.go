package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

// Store is the document store backed by PostgreSQL. Single-row updates are
// atomic; list appends run as row-locked read-modify-write transactions so
// concurrent writers merge at field level instead of overwriting each other.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// New connects to PostgreSQL and migrates the document tables
func New(dsn string, log *logger.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.AutoMigrate(&questionRow{}, &recordingRow{}, &userRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db, log: log.With("adapter", "postgres")}, nil
}

// NewWithDB wraps an existing gorm connection. Used by the importer and tests.
func NewWithDB(db *gorm.DB, log *logger.Logger) (*Store, error) {
	if err := db.AutoMigrate(&questionRow{}, &recordingRow{}, &userRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db, log: log.With("adapter", "postgres")}, nil
}

// CreateQuestion inserts a question
func (s *Store) CreateQuestion(ctx context.Context, question *domain.Question) error {
	row, err := questionToRow(question)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

// GetQuestion retrieves a question by ID
func (s *Store) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	var row questionRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return rowToQuestion(&row)
}

// RandomUnrecordedQuestion picks a uniformly random unrecorded question
func (s *Store) RandomUnrecordedQuestion(ctx context.Context, exclude []string) (*domain.Question, error) {
	query := s.db.WithContext(ctx).Where("state = ?", domain.QuestionUnrecorded)
	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}

	var row questionRow
	err := query.Order("random()").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEmptyPool
	}
	if err != nil {
		return nil, fmt.Errorf("pick unrecorded question: %w", err)
	}
	return rowToQuestion(&row)
}

// RandomAnswerableQuestion picks a uniformly random recorded question with at
// least one processed recording carrying the given version tag
func (s *Store) RandomAnswerableQuestion(ctx context.Context, version string, exclude []string) (*domain.Question, error) {
	query := s.db.WithContext(ctx).
		Where("state = ?", domain.QuestionRecorded).
		Where("EXISTS (SELECT 1 FROM recordings r WHERE r.question_id = questions.id AND r.state = ? AND r.version = ?)",
			domain.RecordingProcessed, version)
	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}

	var row questionRow
	err := query.Order("random()").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrEmptyPool
	}
	if err != nil {
		return nil, fmt.Errorf("pick answerable question: %w", err)
	}
	return rowToQuestion(&row)
}

// CreateRecording inserts a recording
func (s *Store) CreateRecording(ctx context.Context, recording *domain.Recording) error {
	row, err := recordingToRow(recording)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// GetRecording retrieves a recording by ID
func (s *Store) GetRecording(ctx context.Context, id string) (*domain.Recording, error) {
	var row recordingRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rowToRecording(&row)
}

// MarkRecordingProcessed writes the processed fields of a recording. The
// update is conditional on the stored state still being unprocessed, so a
// replay observes ErrAlreadyProcessed instead of double-applying.
func (s *Store) MarkRecordingProcessed(ctx context.Context, recording *domain.Recording) error {
	row, err := recordingToRow(recording)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"state":      string(domain.RecordingProcessed),
		"accuracy":   row.Accuracy,
		"alignment":  row.Alignment,
		"vtt":        row.VTT,
		"difficulty": row.Difficulty,
		"batch_id":   row.BatchID,
		"updated_at": time.Now(),
	}

	result := s.db.WithContext(ctx).
		Model(&recordingRow{}).
		Where("id = ? AND state = ?", recording.ID, domain.RecordingUnprocessed).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update recording: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Either the row is gone or another writer got there first
		if _, err := s.GetRecording(ctx, recording.ID); err != nil {
			return err
		}
		return domain.ErrAlreadyProcessed
	}
	return nil
}

// AppendRecordingToQuestion appends a recording ID to a question's recording
// list and transitions the question to recorded if it is still unrecorded.
// Appending an already-linked recording is a no-op.
func (s *Store) AppendRecordingToQuestion(ctx context.Context, questionID, recordingID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row questionRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "id = ?", questionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock question: %w", err)
		}

		recordings, err := appendID(row.Recordings, recordingID)
		if err != nil {
			return err
		}
		if recordings == nil {
			return nil // already linked
		}

		updates := map[string]interface{}{
			"recordings": datatypes.JSON(recordings),
			"updated_at": time.Now(),
		}
		if row.State == string(domain.QuestionUnrecorded) {
			updates["state"] = string(domain.QuestionRecorded)
		}
		if err := tx.Model(&questionRow{}).Where("id = ?", questionID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		return nil
	})
}

// AppendRecordingToUser appends a recording ID to a user's recording list.
// Appending an already-linked recording is a no-op. A missing user document
// is created, since profile management lives upstream.
func (s *Store) AppendRecordingToUser(ctx context.Context, userID, recordingID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, "id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			recordings, merr := json.Marshal([]string{recordingID})
			if merr != nil {
				return fmt.Errorf("marshal recordings: %w", merr)
			}
			now := time.Now()
			return tx.Create(&userRow{
				ID:         userID,
				Recordings: datatypes.JSON(recordings),
				CreatedAt:  now,
				UpdatedAt:  now,
			}).Error
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		recordings, err := appendID(row.Recordings, recordingID)
		if err != nil {
			return err
		}
		if recordings == nil {
			return nil // already linked
		}

		updates := map[string]interface{}{
			"recordings": datatypes.JSON(recordings),
			"updated_at": time.Now(),
		}
		if err := tx.Model(&userRow{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
}

// ListUnprocessed returns up to limit unprocessed recordings, oldest first
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]*domain.Recording, error) {
	var rows []recordingRow
	err := s.db.WithContext(ctx).
		Where("state = ?", domain.RecordingUnprocessed).
		Order("created_at asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	return rowsToRecordings(rows)
}

// ProcessedRecordings returns the processed recordings of a question with the
// given version tag
func (s *Store) ProcessedRecordings(ctx context.Context, questionID, version string) ([]*domain.Recording, error) {
	var rows []recordingRow
	err := s.db.WithContext(ctx).
		Where("question_id = ? AND state = ? AND version = ?", questionID, domain.RecordingProcessed, version).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list processed recordings: %w", err)
	}
	return rowsToRecordings(rows)
}

// ProcessedScores returns the accuracy of every processed recording
func (s *Store) ProcessedScores(ctx context.Context) ([]domain.RecordingScore, error) {
	var rows []struct {
		ID       string
		Accuracy float64
	}
	err := s.db.WithContext(ctx).
		Model(&recordingRow{}).
		Select("id", "accuracy").
		Where("state = ? AND kind = ?", domain.RecordingProcessed, domain.KindNormal).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list processed scores: %w", err)
	}

	scores := make([]domain.RecordingScore, len(rows))
	for i, row := range rows {
		scores[i] = domain.RecordingScore{RecordingID: row.ID, Accuracy: row.Accuracy}
	}
	return scores, nil
}

// SetDifficulty updates the difficulty bucket of a processed recording
func (s *Store) SetDifficulty(ctx context.Context, recordingID string, difficulty int) error {
	result := s.db.WithContext(ctx).
		Model(&recordingRow{}).
		Where("id = ? AND state = ?", recordingID, domain.RecordingProcessed).
		Updates(map[string]interface{}{
			"difficulty": difficulty,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("set difficulty: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// appendID appends id to a JSON string list unless it is already present, in
// which case it returns nil
func appendID(raw []byte, id string) ([]byte, error) {
	var ids []string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, fmt.Errorf("unmarshal recordings: %w", err)
		}
	}
	for _, existing := range ids {
		if existing == id {
			return nil, nil
		}
	}
	appended, err := json.Marshal(append(ids, id))
	if err != nil {
		return nil, fmt.Errorf("marshal recordings: %w", err)
	}
	return appended, nil
}

func rowsToRecordings(rows []recordingRow) ([]*domain.Recording, error) {
	recordings := make([]*domain.Recording, 0, len(rows))
	for i := range rows {
		recording, err := rowToRecording(&rows[i])
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, recording)
	}
	return recordings, nil
}
