package repository

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// Source is the store a CachedStore reads through to.
type Source interface {
	ListExams(ctx context.Context) ([]model.Exam, error)
	ListResults(ctx context.Context) ([]model.Result, error)
	ListQuestions(ctx context.Context) ([]model.Question, error)
	ListQuestionPackages(ctx context.Context) ([]model.QuestionPackage, error)
	ListClasses(ctx context.Context) ([]model.Class, error)
	SubmitResult(ctx context.Context, res model.Result) error
	UpdateScore(ctx context.Context, key model.ResultKey, score int) error
}

// slot caches one list. gen is bumped on invalidation so a fetch that
// started earlier cannot overwrite newer state.
type slot[T any] struct {
	mu    sync.Mutex
	val   []T
	at    time.Time
	valid bool
	gen   uint64
}

// CachedStore coalesces the catalog reads of concurrent sessions: identical
// reads inside ttl share one round trip. Writes go straight through and
// invalidate results.
type CachedStore struct {
	src   Source
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	exams     slot[model.Exam]
	results   slot[model.Result]
	questions slot[model.Question]
	packages  slot[model.QuestionPackage]
	classes   slot[model.Class]
}

// NewCachedStore wraps src. A non-positive ttl disables caching but still
// coalesces concurrent identical reads.
func NewCachedStore(src Source, ttl time.Duration) *CachedStore {
	return &CachedStore{src: src, ttl: ttl, now: time.Now}
}

func load[T any](ctx context.Context, c *CachedStore, name string, s *slot[T], fetch func(context.Context) ([]T, error)) ([]T, error) {
	s.mu.Lock()
	if s.valid && c.now().Sub(s.at) < c.ttl {
		v := append([]T(nil), s.val...)
		s.mu.Unlock()
		return v, nil
	}
	gen := s.gen
	s.mu.Unlock()

	v, err, _ := c.group.Do(name+":"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.gen == gen {
			s.val, s.at, s.valid = fresh, c.now(), true
		}
		s.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]T(nil), v.([]T)...), nil
}

func invalidate[T any](s *slot[T]) {
	s.mu.Lock()
	s.valid = false
	s.val = nil
	s.gen++
	s.mu.Unlock()
}

func (c *CachedStore) ListExams(ctx context.Context) ([]model.Exam, error) {
	return load(ctx, c, "exams", &c.exams, c.src.ListExams)
}

func (c *CachedStore) ListResults(ctx context.Context) ([]model.Result, error) {
	return load(ctx, c, "results", &c.results, c.src.ListResults)
}

func (c *CachedStore) ListQuestions(ctx context.Context) ([]model.Question, error) {
	return load(ctx, c, "questions", &c.questions, c.src.ListQuestions)
}

func (c *CachedStore) ListQuestionPackages(ctx context.Context) ([]model.QuestionPackage, error) {
	return load(ctx, c, "packages", &c.packages, c.src.ListQuestionPackages)
}

func (c *CachedStore) ListClasses(ctx context.Context) ([]model.Class, error) {
	return load(ctx, c, "classes", &c.classes, c.src.ListClasses)
}

// SubmitResult writes through and drops cached results, so the submitting
// student's next discovery sees the new result.
func (c *CachedStore) SubmitResult(ctx context.Context, res model.Result) error {
	err := c.src.SubmitResult(ctx, res)
	invalidate(&c.results)
	return err
}

func (c *CachedStore) UpdateScore(ctx context.Context, key model.ResultKey, score int) error {
	err := c.src.UpdateScore(ctx, key, score)
	invalidate(&c.results)
	return err
}
