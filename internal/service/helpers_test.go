package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/model"
)

var errStoreDown = errors.New("store unavailable")

// fakeStore is an in-memory Store with switchable failures.
type fakeStore struct {
	mu        sync.Mutex
	exams     []model.Exam
	results   []model.Result
	questions []model.Question
	packages  []model.QuestionPackage

	listErr   error
	submitErr error
	// submitGate, when set, blocks SubmitResult until it is closed.
	submitGate chan struct{}
	entered    chan struct{}
	submits    int
	// resultsGate, when set, holds ListResults after it has read the
	// results and signalled resultsRead.
	resultsGate chan struct{}
	resultsRead chan struct{}
}

func (f *fakeStore) ListExams(context.Context) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Exam(nil), f.exams...), nil
}

func (f *fakeStore) ListResults(context.Context) ([]model.Result, error) {
	f.mu.Lock()
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	results := append([]model.Result(nil), f.results...)
	gate, read := f.resultsGate, f.resultsRead
	f.mu.Unlock()

	if read != nil {
		read <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return results, nil
}

func (f *fakeStore) ListQuestions(context.Context) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Question(nil), f.questions...), nil
}

func (f *fakeStore) ListQuestionPackages(context.Context) ([]model.QuestionPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.QuestionPackage(nil), f.packages...), nil
}

func (f *fakeStore) SubmitResult(ctx context.Context, r model.Result) error {
	f.mu.Lock()
	gate, entered := f.submitGate, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return f.submitErr
	}
	for i := range f.results {
		if f.results[i].Key() == r.Key() {
			f.results[i] = r
			return nil
		}
	}
	f.results = append(f.results, r)
	return nil
}

func (f *fakeStore) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func (f *fakeStore) setSubmitErr(err error) {
	f.mu.Lock()
	f.submitErr = err
	f.mu.Unlock()
}

// fakeTicker only fires when a test sends on it.
type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

// fire delivers one tick and waits until the loop has taken it.
func (t *fakeTicker) fire(tb testing.TB) {
	tb.Helper()
	select {
	case t.ch <- time.Now():
	case <-time.After(2 * time.Second):
		tb.Fatal("tick not consumed")
	}
}

type fakeClock struct {
	created chan *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{created: make(chan *fakeTicker, 16)}
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time)}
	c.created <- t
	return t
}

func (c *fakeClock) next(tb testing.TB) *fakeTicker {
	tb.Helper()
	select {
	case t := <-c.created:
		return t
	case <-time.After(2 * time.Second):
		tb.Fatal("no ticker created")
		return nil
	}
}

// recorder collects session events.
type recorder struct {
	ch chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 1024)}
}

func (r *recorder) notify(ev Event) { r.ch <- ev }

func (r *recorder) waitState(tb testing.TB, state SessionState) Snapshot {
	tb.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Snapshot != nil && ev.Snapshot.State == state {
				return *ev.Snapshot
			}
		case <-deadline:
			tb.Fatalf("state %s never reached", state)
		}
	}
}

func (r *recorder) waitTick(tb testing.TB, remaining int) {
	tb.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.ch:
			if ev.Tick != nil && ev.Tick.Remaining == remaining {
				return
			}
		case <-deadline:
			tb.Fatalf("tick with %d remaining never seen", remaining)
		}
	}
}

var fixedNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func testStudent() model.User {
	return model.User{Username: "budi", FullName: "Budi Santoso", ClassName: "XII RPL 1", Role: model.RoleStudent}
}

func mcQuestion(id, correct string) model.Question {
	return model.Question{
		ID:            id,
		Text:          "Question " + id,
		Type:          model.QuestionTypeMultipleChoice,
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: correct,
	}
}

func nativeExam(id string, minutes int) model.Exam {
	return model.Exam{
		ID:              id,
		Title:           "Exam " + id,
		Mode:            model.ExamModeNative,
		PackageID:       "pkg-" + id,
		Token:           "MATH01",
		DurationMinutes: minutes,
		IsActive:        true,
	}
}

// newFixtureStore holds one native exam with four MC questions and one
// external-form exam.
func newFixtureStore() *fakeStore {
	return &fakeStore{
		exams: []model.Exam{
			nativeExam("math", 1),
			{
				ID:              "bio",
				Title:           "Biology",
				Mode:            model.ExamModeExternalForm,
				ExternalFormURL: "https://forms.example/bio",
				Token:           "BIO22",
				DurationMinutes: 30,
				IsActive:        true,
			},
		},
		questions: []model.Question{
			mcQuestion("q1", "0"),
			mcQuestion("q2", "1"),
			mcQuestion("q3", "2"),
			mcQuestion("q4", "3"),
		},
		packages: []model.QuestionPackage{
			{ID: "pkg-math", Title: "Math", QuestionIDs: []string{"q1", "q2", "q3", "q4"}},
		},
	}
}

func newTestSession(t *testing.T, store *fakeStore) (*ExamSession, *fakeClock, *recorder) {
	t.Helper()
	clock := newFakeClock()
	rec := newRecorder()
	log := zerolog.Nop()
	cfg := SessionConfig{
		Now:       func() time.Time { return fixedNow },
		NewTicker: clock.NewTicker,
	}
	s := NewExamSession(testStudent(), NewLobbyService(store, log), store, cfg, log, rec.notify)
	t.Cleanup(s.Close)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return s, clock, rec
}

// startAttempt selects examID and unlocks it, returning the clock's ticker.
func startAttempt(t *testing.T, s *ExamSession, clock *fakeClock, examID, token string) *fakeTicker {
	t.Helper()
	if err := s.Select(examID); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.SubmitToken(context.Background(), token); err != nil {
		t.Fatalf("submit token: %v", err)
	}
	return clock.next(t)
}
