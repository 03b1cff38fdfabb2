package application

import (
	"context"
	"sort"
	"sync"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
)

// fakeStore is an in-memory document store for tests. Selection is
// deterministic: the eligible question with the lowest ID wins.
type fakeStore struct {
	mu         sync.Mutex
	questions  map[string]*domain.Question
	recordings map[string]*domain.Recording
	users      map[string][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		questions:  make(map[string]*domain.Question),
		recordings: make(map[string]*domain.Recording),
		users:      make(map[string][]string),
	}
}

func (f *fakeStore) CreateQuestion(_ context.Context, question *domain.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *question
	f.questions[question.ID] = &clone
	return nil
}

func (f *fakeStore) GetQuestion(_ context.Context, id string) (*domain.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	question, ok := f.questions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *question
	return &clone, nil
}

func (f *fakeStore) RandomUnrecordedQuestion(_ context.Context, exclude []string) (*domain.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pick(func(q *domain.Question) bool {
		return q.State == domain.QuestionUnrecorded
	}, exclude)
}

func (f *fakeStore) RandomAnswerableQuestion(_ context.Context, version string, exclude []string) (*domain.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pick(func(q *domain.Question) bool {
		if q.State != domain.QuestionRecorded {
			return false
		}
		for _, recording := range f.recordings {
			if recording.QuestionID == q.ID &&
				recording.State == domain.RecordingProcessed &&
				recording.Version == version {
				return true
			}
		}
		return false
	}, exclude)
}

func (f *fakeStore) pick(eligible func(*domain.Question) bool, exclude []string) (*domain.Question, error) {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	ids := make([]string, 0, len(f.questions))
	for id, question := range f.questions {
		if _, skip := excluded[id]; skip {
			continue
		}
		if eligible(question) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, domain.ErrEmptyPool
	}
	sort.Strings(ids)
	clone := *f.questions[ids[0]]
	return &clone, nil
}

func (f *fakeStore) CreateRecording(_ context.Context, recording *domain.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *recording
	f.recordings[recording.ID] = &clone
	return nil
}

func (f *fakeStore) GetRecording(_ context.Context, id string) (*domain.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recording, ok := f.recordings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *recording
	return &clone, nil
}

func (f *fakeStore) MarkRecordingProcessed(_ context.Context, recording *domain.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.recordings[recording.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.State != domain.RecordingUnprocessed {
		return domain.ErrAlreadyProcessed
	}
	clone := *recording
	f.recordings[recording.ID] = &clone
	return nil
}

func (f *fakeStore) AppendRecordingToQuestion(_ context.Context, questionID, recordingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	question, ok := f.questions[questionID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, existing := range question.Recordings {
		if existing == recordingID {
			return nil
		}
	}
	question.Recordings = append(question.Recordings, recordingID)
	question.State = domain.QuestionRecorded
	return nil
}

func (f *fakeStore) AppendRecordingToUser(_ context.Context, userID, recordingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users[userID] {
		if existing == recordingID {
			return nil
		}
	}
	f.users[userID] = append(f.users[userID], recordingID)
	return nil
}

func (f *fakeStore) ListUnprocessed(_ context.Context, limit int) ([]*domain.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.recordings))
	for id, recording := range f.recordings {
		if recording.State == domain.RecordingUnprocessed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	recordings := make([]*domain.Recording, len(ids))
	for i, id := range ids {
		clone := *f.recordings[id]
		recordings[i] = &clone
	}
	return recordings, nil
}

func (f *fakeStore) ProcessedRecordings(_ context.Context, questionID, version string) ([]*domain.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var recordings []*domain.Recording
	for _, recording := range f.recordings {
		if recording.QuestionID == questionID &&
			recording.State == domain.RecordingProcessed &&
			recording.Version == version {
			clone := *recording
			recordings = append(recordings, &clone)
		}
	}
	return recordings, nil
}

func (f *fakeStore) ProcessedScores(_ context.Context) ([]domain.RecordingScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var scores []domain.RecordingScore
	for _, recording := range f.recordings {
		if recording.State == domain.RecordingProcessed && recording.Kind == domain.KindNormal {
			scores = append(scores, domain.RecordingScore{
				RecordingID: recording.ID,
				Accuracy:    recording.Accuracy,
			})
		}
	}
	return scores, nil
}

func (f *fakeStore) SetDifficulty(_ context.Context, recordingID string, difficulty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	recording, ok := f.recordings[recordingID]
	if !ok || recording.State != domain.RecordingProcessed {
		return domain.ErrNotFound
	}
	recording.Difficulty = &difficulty
	return nil
}

// fakeSessions is an in-memory session store
type fakeSessions struct {
	mu     sync.Mutex
	served map[string][]string
	err    error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{served: make(map[string][]string)}
}

func (f *fakeSessions) MarkServed(_ context.Context, sessionID, questionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.served[sessionID] = append(f.served[sessionID], questionID)
	return nil
}

func (f *fakeSessions) Served(_ context.Context, sessionID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.served[sessionID], nil
}

// fakeAligner returns a canned alignment or error
type fakeAligner struct {
	alignment *domain.Alignment
	err       error
}

func (f *fakeAligner) Align(context.Context, []byte, string) (*domain.Alignment, error) {
	return f.alignment, f.err
}

// fakeBlobs records uploads and returns the path as the locator
type fakeBlobs struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeBlobs) Put(_ context.Context, _ []byte, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, path)
	return path, nil
}
