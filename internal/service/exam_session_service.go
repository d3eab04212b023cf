package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// ErrNotStudent is returned when a non-student tries to open an exam session.
var ErrNotStudent = errors.New("only students can take exams")

// ExamSessionService opens student sessions against a store.
type ExamSessionService struct {
	store        Store
	lobby        *LobbyService
	heartbeat    *HeartbeatService
	cfg          SessionConfig
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService. A zero poll
// interval means every 60 seconds.
func NewExamSessionService(
	store Store,
	heartbeat *HeartbeatService,
	cfg SessionConfig,
	pollInterval time.Duration,
	log zerolog.Logger,
) *ExamSessionService {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &ExamSessionService{
		store:        store,
		lobby:        NewLobbyService(store, log),
		heartbeat:    heartbeat,
		cfg:          cfg.withDefaults(),
		pollInterval: pollInterval,
		log:          log,
	}
}

// Lobby returns the discovery service shared by all sessions.
func (s *ExamSessionService) Lobby() *LobbyService {
	return s.lobby
}

// StudentSession is the context of one logged-in student: the exam state
// machine plus the periodic tasks that live as long as the login does.
type StudentSession struct {
	User model.User
	Exam *ExamSession

	heartbeat *Heartbeat
	poller    *periodic
	cancel    context.CancelFunc
	once      sync.Once
}

// Open initialises a session: heartbeat started, first discovery run,
// discovery poller started. The caller must Close it on logout or disconnect.
func (s *ExamSessionService) Open(ctx context.Context, user model.User, notify Notifier) (*StudentSession, error) {
	if !user.IsStudent() {
		return nil, ErrNotStudent
	}

	sctx, cancel := context.WithCancel(context.Background())
	exam := NewExamSession(user, s.lobby, s.store, s.cfg, s.log, notify)

	ss := &StudentSession{
		User:   user,
		Exam:   exam,
		cancel: cancel,
	}
	if s.heartbeat != nil {
		ss.heartbeat = s.heartbeat.Start(sctx, user)
	}

	_ = exam.Refresh(ctx)

	ss.poller = newPeriodic(s.cfg.NewTicker, s.pollInterval)
	ss.poller.run(func() {
		_ = exam.Refresh(sctx)
	})

	s.log.Info().
		Str("student", user.DisplayName()).
		Str("class", user.Class()).
		Msg("Student session opened")
	return ss, nil
}

// Close tears the session down. Heartbeat, poller and clock are all stopped
// before it returns; calling it again does nothing.
func (ss *StudentSession) Close() {
	ss.once.Do(func() {
		ss.cancel()
		if ss.poller != nil {
			ss.poller.Stop()
		}
		if ss.heartbeat != nil {
			ss.heartbeat.Stop()
		}
		ss.Exam.Close()
	})
}
