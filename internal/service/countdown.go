package service

import (
	"fmt"
	"sync"
	"time"
)

// LowTimeThreshold is the remaining time, in seconds, below which the
// countdown is shown as a warning. It does not change session state.
const LowTimeThreshold = 300

// Ticker is the part of time.Ticker the engine depends on.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the production TickerFactory.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// FormatRemaining renders seconds as HH:MM:SS. Negative input renders as zero.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// IsLowTime reports whether the warning presentation applies.
func IsLowTime(seconds int) bool {
	return seconds < LowTimeThreshold
}

// periodic runs fn on every tick until stopped. Stop is idempotent and does
// not wait for an in-flight fn, so fn must tolerate running after Stop.
type periodic struct {
	ticker Ticker
	done   chan struct{}
	once   sync.Once
}

func newPeriodic(factory TickerFactory, every time.Duration) *periodic {
	return &periodic{
		ticker: factory(every),
		done:   make(chan struct{}),
	}
}

// run starts the loop. It must be called once.
func (p *periodic) run(fn func()) {
	go func() {
		for {
			select {
			case <-p.done:
				return
			case <-p.ticker.C():
				select {
				case <-p.done:
					return
				default:
				}
				fn()
			}
		}
	}()
}

func (p *periodic) Stop() {
	p.once.Do(func() {
		close(p.done)
		p.ticker.Stop()
	})
}
