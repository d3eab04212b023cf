package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// MemoryStore keeps the catalog, results and presence in process memory.
// It backs the offline client and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	classes   []model.Class
	exams     []model.Exam
	questions []model.Question
	packages  []model.QuestionPackage
	results   []model.Result
	presence  map[string]model.OnlineStudent
}

// NewMemoryStore creates a store holding a copy of f.
func NewMemoryStore(f *CatalogFile) *MemoryStore {
	s := &MemoryStore{presence: make(map[string]model.OnlineStudent)}
	if f != nil {
		s.classes = append(s.classes, f.Classes...)
		s.exams = append(s.exams, f.Exams...)
		s.questions = append(s.questions, f.Questions...)
		s.packages = append(s.packages, f.Packages...)
		s.results = append(s.results, f.Results...)
	}
	return s
}

func (s *MemoryStore) ListExams(context.Context) ([]model.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Exam(nil), s.exams...), nil
}

func (s *MemoryStore) ListResults(context.Context) ([]model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Result(nil), s.results...), nil
}

func (s *MemoryStore) ListQuestions(context.Context) ([]model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Question(nil), s.questions...), nil
}

func (s *MemoryStore) ListQuestionPackages(context.Context) ([]model.QuestionPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.QuestionPackage(nil), s.packages...), nil
}

func (s *MemoryStore) ListClasses(context.Context) ([]model.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Class(nil), s.classes...), nil
}

// SubmitResult upserts on (exam id, student name).
func (s *MemoryStore) SubmitResult(_ context.Context, res model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertResultLocked(res)
	return nil
}

// upsertResultLocked stores res and returns a func that undoes the change.
func (s *MemoryStore) upsertResultLocked(res model.Result) (undo func()) {
	for i := range s.results {
		if s.results[i].Key() == res.Key() {
			prev := s.results[i]
			res.ID = prev.ID
			s.results[i] = res
			return func() { s.results[i] = prev }
		}
	}
	s.results = append(s.results, res)
	n := len(s.results) - 1
	return func() { s.results = s.results[:n] }
}

// UpdateScore overwrites the score of an existing result.
func (s *MemoryStore) UpdateScore(_ context.Context, key model.ResultKey, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.results {
		if s.results[i].Key() == key {
			s.results[i].Score = score
			return nil
		}
	}
	return model.ErrResultNotFound
}

// SendHeartbeat records the student as seen at hb.At.
func (s *MemoryStore) SendHeartbeat(_ context.Context, hb model.Heartbeat) error {
	if hb.At.IsZero() {
		hb.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[hb.StudentName+"|"+hb.ClassName] = model.OnlineStudent{
		StudentName: hb.StudentName,
		ClassName:   hb.ClassName,
		LastSeen:    hb.At,
	}
	return nil
}

// ListOnline returns students seen at or after since, most recent first.
func (s *MemoryStore) ListOnline(_ context.Context, since time.Time) ([]model.OnlineStudent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.OnlineStudent
	for _, o := range s.presence {
		if !o.LastSeen.Before(since) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return strings.Compare(out[i].StudentName, out[j].StudentName) < 0
	})
	return out, nil
}

// snapshot copies the store back into file form.
func (s *MemoryStore) snapshot() *CatalogFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &CatalogFile{
		Classes:   append([]model.Class(nil), s.classes...),
		Exams:     append([]model.Exam(nil), s.exams...),
		Questions: append([]model.Question(nil), s.questions...),
		Packages:  append([]model.QuestionPackage(nil), s.packages...),
		Results:   append([]model.Result(nil), s.results...),
	}
}
