package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// SessionState is the position of a student session in the exam flow.
type SessionState string

const (
	StateBrowsing     SessionState = "BROWSING"
	StateTokenPending SessionState = "TOKEN_PENDING"
	StateInProgress   SessionState = "IN_PROGRESS"
	StateFinished     SessionState = "FINISHED"
)

// CompletionReason records how an attempt ended.
type CompletionReason string

const (
	ReasonManual  CompletionReason = "MANUAL"
	ReasonTimeout CompletionReason = "TIMEOUT"
)

var (
	ErrInvalidState       = errors.New("action not allowed in the current state")
	ErrSessionClosed      = errors.New("session is closed")
	ErrExamNotEligible    = errors.New("exam is not available for joining")
	ErrInvalidToken       = errors.New("invalid entry token")
	ErrNotNative          = errors.New("exam is answered on an external form")
	ErrUnknownQuestion    = errors.New("question is not part of this attempt")
	ErrIndexOutOfRange    = errors.New("question index out of range")
	ErrFinishNotRequested = errors.New("finish must be requested before it is confirmed")
	ErrSubmissionInFlight = errors.New("result submission already in progress")
	ErrSubmissionFailed   = errors.New("result submission failed")
	ErrNothingToRetry     = errors.New("no failed submission to retry")
)

// SessionConfig tunes timing. Zero values get production defaults.
type SessionConfig struct {
	Now           func() time.Time
	NewTicker     TickerFactory
	TickInterval  time.Duration
	SubmitTimeout time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewTicker == nil {
		c.NewTicker = NewRealTicker
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 10 * time.Second
	}
	return c
}

// nativeAttempt is the payload of an attempt graded in this system.
type nativeAttempt struct {
	questions   []model.Question
	answers     *AnswerStore
	index       int
	unavailable bool
}

// externalAttempt is the payload of an attempt taken on an external form.
type externalAttempt struct {
	formURL string
}

// attempt is one timed pass at one exam. Exactly one of native and
// external is set, chosen by exam.Mode.
type attempt struct {
	exam      model.Exam
	native    *nativeAttempt
	external  *externalAttempt
	startedAt time.Time
	remaining int

	reason         CompletionReason
	confirmPending bool
	submitting     bool
	// pending holds a prepared result whose submission failed.
	pending *model.Result
	lastErr error
}

// ExamSession is the state machine for one student. Every exported method
// is serialised by mu; the clock goroutine goes through the same lock.
// Notifications are delivered after mu is released.
type ExamSession struct {
	mu sync.Mutex

	student   model.User
	lobby     *LobbyService
	submitter ResultSubmitter
	cfg       SessionConfig
	log       zerolog.Logger
	notify    Notifier

	seq      uint64
	closed   bool
	state    SessionState
	eligible []model.Exam
	// completed holds exams submitted by this session. A discovery that
	// read results before the submission landed must not list them again.
	completed map[string]struct{}
	selected  *model.Exam
	attempt   *attempt
	clock     *periodic
	result    *model.Result
	reason    CompletionReason
}

// NewExamSession creates a session in BROWSING with an empty candidate list.
// Call Refresh to populate it.
func NewExamSession(
	student model.User,
	lobby *LobbyService,
	submitter ResultSubmitter,
	cfg SessionConfig,
	log zerolog.Logger,
	notify Notifier,
) *ExamSession {
	if notify == nil {
		notify = func(Event) {}
	}
	return &ExamSession{
		student:   student,
		lobby:     lobby,
		submitter: submitter,
		cfg:       cfg.withDefaults(),
		log: logger.Component(log, "exam_session").With().
			Str("student", student.DisplayName()).
			Logger(),
		notify:    notify,
		state:     StateBrowsing,
		completed: make(map[string]struct{}),
	}
}

// State returns the current state.
func (s *ExamSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Eligible returns a copy of the current candidate list.
func (s *ExamSession) Eligible() []model.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Exam(nil), s.eligible...)
}

// Snapshot returns the renderable view of the session.
func (s *ExamSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ─── Discovery ──────────────────────────────────────────────────────

// Refresh re-runs discovery. On failure the previous list is kept and the
// error is returned for logging only.
func (s *ExamSession) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	exams, err := s.lobby.Discover(ctx, s.student, s.cfg.Now())
	if err != nil {
		s.log.Warn().Err(err).Msg("Discovery failed, keeping stale exam list")
		return err
	}

	return s.apply(func() error {
		kept := exams[:0:0]
		for _, e := range exams {
			if _, done := s.completed[e.ID]; !done {
				kept = append(kept, e)
			}
		}
		s.eligible = kept
		return nil
	})
}

// ─── Token entry ────────────────────────────────────────────────────

// Select picks an exam from the candidate list and asks for its token.
func (s *ExamSession) Select(examID string) error {
	return s.apply(func() error {
		if err := s.expect(StateBrowsing); err != nil {
			return err
		}
		for i := range s.eligible {
			if s.eligible[i].ID == examID {
				exam := s.eligible[i]
				s.selected = &exam
				s.state = StateTokenPending
				return nil
			}
		}
		return ErrExamNotEligible
	})
}

// CancelToken abandons token entry without creating an attempt.
func (s *ExamSession) CancelToken() error {
	return s.apply(func() error {
		if err := s.expect(StateTokenPending); err != nil {
			return err
		}
		s.selected = nil
		s.state = StateBrowsing
		return nil
	})
}

// SubmitToken validates the entered token and starts the attempt. A wrong
// token returns ErrInvalidToken and may be retried without limit. A catalog
// read failure also leaves the session in TOKEN_PENDING; a missing question
// package starts the attempt with no questions.
func (s *ExamSession) SubmitToken(ctx context.Context, token string) error {
	return s.apply(func() error {
		if err := s.expect(StateTokenPending); err != nil {
			return err
		}
		exam := *s.selected
		if strings.ToUpper(token) != model.NormalizeToken(exam.Token) {
			return ErrInvalidToken
		}

		a := &attempt{
			exam:      exam,
			startedAt: s.cfg.Now(),
			remaining: exam.DurationSeconds(),
		}

		switch exam.Mode {
		case model.ExamModeNative:
			questions, err := s.lobby.LoadQuestions(ctx, exam)
			switch {
			case errors.Is(err, ErrPackageNotFound):
				s.log.Warn().Err(err).Str("exam_id", exam.ID).Msg("Starting attempt without questions")
				a.native = &nativeAttempt{answers: NewAnswerStore(), unavailable: true}
			case err != nil:
				return fmt.Errorf("load questions: %w", err)
			default:
				a.native = &nativeAttempt{
					questions:   questions,
					answers:     NewAnswerStore(),
					unavailable: len(questions) == 0,
				}
			}
		default:
			a.external = &externalAttempt{formURL: exam.ExternalFormURL}
		}

		s.attempt = a
		s.state = StateInProgress
		s.startClockLocked()

		s.log.Info().
			Str("exam_id", exam.ID).
			Str("mode", string(exam.Mode)).
			Int("remaining", a.remaining).
			Msg("Attempt started")
		return nil
	})
}

// ─── Answers & navigation ───────────────────────────────────────────

// Answer records an answer for a question of the current attempt.
func (s *ExamSession) Answer(questionID, answer string) error {
	return s.apply(func() error {
		n, err := s.editableNative()
		if err != nil {
			return err
		}
		for i := range n.questions {
			if n.questions[i].ID == questionID {
				n.answers.Record(questionID, answer)
				return nil
			}
		}
		return ErrUnknownQuestion
	})
}

// Goto jumps to a question. Jumping one past the last question requests
// finish confirmation instead.
func (s *ExamSession) Goto(index int) error {
	return s.apply(func() error {
		n, err := s.editableNative()
		if err != nil {
			return err
		}
		switch {
		case index < 0 || index > len(n.questions):
			return ErrIndexOutOfRange
		case index == len(n.questions):
			s.attempt.confirmPending = true
		default:
			n.index = index
		}
		return nil
	})
}

// Next moves forward; past the last question it requests finish confirmation.
func (s *ExamSession) Next() error {
	return s.apply(func() error {
		n, err := s.editableNative()
		if err != nil {
			return err
		}
		if n.index+1 >= len(n.questions) {
			s.attempt.confirmPending = true
			return nil
		}
		n.index++
		return nil
	})
}

// Prev moves back one question; at the first question it does nothing.
func (s *ExamSession) Prev() error {
	return s.apply(func() error {
		n, err := s.editableNative()
		if err != nil {
			return err
		}
		if n.index > 0 {
			n.index--
		}
		return nil
	})
}

// ─── Finishing ──────────────────────────────────────────────────────

// RequestFinish is the first step of the manual two-step finish.
func (s *ExamSession) RequestFinish() error {
	return s.apply(func() error {
		if err := s.expectEditable(); err != nil {
			return err
		}
		s.attempt.confirmPending = true
		return nil
	})
}

// DismissFinish withdraws a finish request.
func (s *ExamSession) DismissFinish() error {
	return s.apply(func() error {
		if err := s.expectEditable(); err != nil {
			return err
		}
		s.attempt.confirmPending = false
		return nil
	})
}

// ConfirmFinish commits a requested manual finish and submits the result.
// Once the session is FINISHED it returns the stored result without
// submitting again.
func (s *ExamSession) ConfirmFinish(ctx context.Context) (*model.Result, error) {
	return s.finish(ctx, ReasonManual, false)
}

// RetrySubmit resends a result whose submission failed.
func (s *ExamSession) RetrySubmit(ctx context.Context) (*model.Result, error) {
	return s.finish(ctx, ReasonManual, true)
}

// Acknowledge returns a FINISHED session to BROWSING and re-runs discovery.
func (s *ExamSession) Acknowledge(ctx context.Context) error {
	err := s.apply(func() error {
		if err := s.expect(StateFinished); err != nil {
			return err
		}
		s.state = StateBrowsing
		s.selected = nil
		s.result = nil
		s.reason = ""
		return nil
	})
	if err != nil {
		return err
	}
	_ = s.Refresh(ctx)
	return nil
}

// Abandon drops the current attempt without persisting anything.
func (s *ExamSession) Abandon() error {
	return s.apply(func() error {
		if err := s.expect(StateInProgress); err != nil {
			return err
		}
		if s.attempt.submitting {
			return ErrSubmissionInFlight
		}
		s.log.Info().Str("exam_id", s.attempt.exam.ID).Msg("Attempt abandoned")
		s.stopClockLocked()
		s.attempt = nil
		s.selected = nil
		s.state = StateBrowsing
		return nil
	})
}

// Close tears the session down: the clock stops and further actions fail
// with ErrSessionClosed. It is safe to call more than once.
func (s *ExamSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopClockLocked()
	if s.attempt != nil && s.state == StateInProgress {
		s.log.Info().Str("exam_id", s.attempt.exam.ID).Msg("Session closed during attempt")
	}
}

// finish runs both finish paths. retry selects RetrySubmit semantics.
func (s *ExamSession) finish(ctx context.Context, reason CompletionReason, retry bool) (*model.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.state == StateFinished && s.result != nil {
		res := *s.result
		s.mu.Unlock()
		return &res, nil
	}
	if s.state != StateInProgress {
		s.mu.Unlock()
		return nil, ErrInvalidState
	}
	a := s.attempt
	switch {
	case a.submitting:
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	case retry && a.pending == nil:
		s.mu.Unlock()
		return nil, ErrNothingToRetry
	case !retry && a.pending == nil && !a.confirmPending:
		s.mu.Unlock()
		return nil, ErrFinishNotRequested
	}
	res := s.beginFinishLocked(reason)
	ev := s.eventLocked(EventSnapshot)
	s.mu.Unlock()
	s.notify(ev)

	return s.submit(ctx, res)
}

// beginFinishLocked stops the clock and prepares the result. After a failed
// submission the earlier result is reused unchanged.
func (s *ExamSession) beginFinishLocked(reason CompletionReason) model.Result {
	a := s.attempt
	s.stopClockLocked()
	a.submitting = true
	a.confirmPending = false
	a.lastErr = nil

	if a.pending != nil {
		return *a.pending
	}
	a.reason = reason

	res := model.Result{
		ID:          uuid.NewString(),
		ExamID:      a.exam.ID,
		StudentName: s.student.DisplayName(),
		ClassName:   s.student.Class(),
		CompletedAt: s.cfg.Now(),
		Status:      model.ResultStatusCompleted,
	}
	if a.native != nil {
		res.Score = Score(a.exam.Mode, a.native.questions, a.native.answers)
		res.Answers = a.native.answers.Snapshot()
	}
	a.pending = &res

	s.log.Info().
		Str("exam_id", a.exam.ID).
		Str("reason", string(reason)).
		Int("score", res.Score).
		Msg("Attempt finishing")
	return res
}

// submit hands the result to the submitter without holding mu and applies
// the outcome.
func (s *ExamSession) submit(ctx context.Context, res model.Result) (*model.Result, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	err := s.submitter.SubmitResult(sctx, res)
	cancel()

	s.mu.Lock()
	if s.closed || s.attempt == nil || s.attempt.pending == nil || s.attempt.pending.ID != res.ID {
		s.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
		}
		return &res, nil
	}

	a := s.attempt
	a.submitting = false
	if err != nil {
		a.lastErr = fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
		s.log.Error().Err(err).Str("exam_id", res.ExamID).Msg("Result submission failed")
		ev := s.eventLocked(EventSnapshot)
		s.mu.Unlock()
		s.notify(ev)
		return nil, a.lastErr
	}

	s.result = &res
	s.reason = a.reason
	s.attempt = nil
	s.state = StateFinished
	s.completed[res.ExamID] = struct{}{}
	s.dropEligibleLocked(res.ExamID)
	s.log.Info().Str("exam_id", res.ExamID).Int("score", res.Score).Msg("Result submitted")

	ev := s.eventLocked(EventSnapshot)
	s.mu.Unlock()
	s.notify(ev)
	return &res, nil
}

// ─── Clock ──────────────────────────────────────────────────────────

func (s *ExamSession) startClockLocked() {
	c := newPeriodic(s.cfg.NewTicker, s.cfg.TickInterval)
	s.clock = c
	c.run(func() { s.tick(c) })
}

func (s *ExamSession) stopClockLocked() {
	if s.clock != nil {
		s.clock.Stop()
		s.clock = nil
	}
}

// tick decrements the countdown and forces a finish at zero. Ticks from a
// clock that has since been replaced or stopped are ignored.
func (s *ExamSession) tick(c *periodic) {
	s.mu.Lock()
	a := s.attempt
	if s.closed || s.clock != c || s.state != StateInProgress || a == nil || a.submitting {
		s.mu.Unlock()
		return
	}

	a.remaining--
	if a.remaining > 0 {
		ev := s.eventLocked(EventTick)
		s.mu.Unlock()
		s.notify(ev)
		return
	}

	a.remaining = 0
	res := s.beginFinishLocked(ReasonTimeout)
	ev := s.eventLocked(EventSnapshot)
	s.mu.Unlock()
	s.notify(ev)

	// Not tied to the session scope: a result already finishing is still sent.
	_, _ = s.submit(context.Background(), res)
}

// ─── Helpers ────────────────────────────────────────────────────────

// apply runs fn under mu and publishes a snapshot if fn succeeded.
func (s *ExamSession) apply(fn func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	ev := s.eventLocked(EventSnapshot)
	s.mu.Unlock()
	s.notify(ev)
	return nil
}

func (s *ExamSession) expect(state SessionState) error {
	if s.state != state {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	}
	return nil
}

// expectEditable requires an attempt that is neither submitting nor
// waiting on a failed submission.
func (s *ExamSession) expectEditable() error {
	if err := s.expect(StateInProgress); err != nil {
		return err
	}
	if s.attempt.submitting {
		return ErrSubmissionInFlight
	}
	if s.attempt.pending != nil {
		return fmt.Errorf("%w: answers are frozen until the result is submitted", ErrInvalidState)
	}
	return nil
}

func (s *ExamSession) editableNative() (*nativeAttempt, error) {
	if err := s.expectEditable(); err != nil {
		return nil, err
	}
	if s.attempt.native == nil {
		return nil, ErrNotNative
	}
	return s.attempt.native, nil
}

func (s *ExamSession) dropEligibleLocked(examID string) {
	kept := s.eligible[:0:0]
	for _, e := range s.eligible {
		if e.ID != examID {
			kept = append(kept, e)
		}
	}
	s.eligible = kept
}
