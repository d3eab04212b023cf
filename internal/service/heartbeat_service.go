package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// HeartbeatService emits presence pulses for logged-in students.
type HeartbeatService struct {
	sender    HeartbeatSender
	interval  time.Duration
	timeout   time.Duration
	newTicker TickerFactory
	now       func() time.Time
	log       zerolog.Logger
}

// NewHeartbeatService creates a new HeartbeatService. A zero interval
// means every 30 seconds.
func NewHeartbeatService(sender HeartbeatSender, interval time.Duration, log zerolog.Logger) *HeartbeatService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HeartbeatService{
		sender:    sender,
		interval:  interval,
		timeout:   5 * time.Second,
		newTicker: NewRealTicker,
		now:       time.Now,
		log:       logger.Component(log, "heartbeat"),
	}
}

// WithClock replaces the ticker factory and time source; used by tests.
func (s *HeartbeatService) WithClock(newTicker TickerFactory, now func() time.Time) *HeartbeatService {
	cp := *s
	cp.newTicker = newTicker
	cp.now = now
	return &cp
}

// Heartbeat is a running pulse loop. Stop cancels it.
type Heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the loop and waits for it to exit. It is idempotent.
func (h *Heartbeat) Stop() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
	})
}

// Start emits one pulse immediately and then one per interval until ctx is
// done or Stop is called. Admins get a loop that never sends anything.
func (s *HeartbeatService) Start(ctx context.Context, user model.User) *Heartbeat {
	ctx, cancel := context.WithCancel(ctx)
	h := &Heartbeat{cancel: cancel, done: make(chan struct{})}

	if !user.IsStudent() {
		close(h.done)
		return h
	}

	hb := model.Heartbeat{StudentName: user.DisplayName(), ClassName: user.Class()}
	ticker := s.newTicker(s.interval)

	go func() {
		defer close(h.done)
		defer ticker.Stop()

		s.pulse(ctx, hb)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				s.pulse(ctx, hb)
			}
		}
	}()
	return h
}

// pulse sends once and swallows any failure.
func (s *HeartbeatService) pulse(ctx context.Context, hb model.Heartbeat) {
	if ctx.Err() != nil {
		return
	}
	hb.At = s.now()
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Debug().Interface("panic", r).Msg("Heartbeat sender panicked")
		}
	}()
	if err := s.sender.SendHeartbeat(sctx, hb); err != nil {
		s.log.Debug().Err(err).Str("student", hb.StudentName).Msg("Heartbeat dropped")
	}
}
