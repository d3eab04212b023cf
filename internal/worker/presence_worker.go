package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-cbt/internal/logger"
)

// PresenceStore is the part of the presence repository the sweeper needs.
type PresenceStore interface {
	TryLock(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PresenceWorker drops students whose last heartbeat is older than the
// presence window. Several server instances may run it; the sweep lock makes
// only one of them prune per interval.
type PresenceWorker struct {
	store    PresenceStore
	window   time.Duration
	interval time.Duration
	owner    string
	now      func() time.Time
	log      zerolog.Logger
}

func NewPresenceWorker(store PresenceStore, window time.Duration, log zerolog.Logger) *PresenceWorker {
	return &PresenceWorker{
		store:    store,
		window:   window,
		interval: window,
		owner:    uuid.NewString(),
		now:      time.Now,
		log:      logger.Component(log, "presence_worker"),
	}
}

// Start sweeps every interval until ctx is cancelled.
func (w *PresenceWorker) Start(ctx context.Context) {
	w.log.Info().Dur("window", w.window).Msg("PresenceWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("PresenceWorker stopped")
			return
		case <-ticker.C:
			w.sweepSafe(ctx)
		}
	}
}

// sweepSafe runs one sweep and only logs failures; the next tick retries.
func (w *PresenceWorker) sweepSafe(ctx context.Context) {
	removed, err := w.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("Presence sweep failed")
		}
		return
	}
	if removed > 0 {
		w.log.Debug().Int64("removed", removed).Msg("Pruned stale presence")
	}
}

// Sweep prunes once if this instance wins the lock. It reports how many
// members were removed.
func (w *PresenceWorker) Sweep(ctx context.Context) (int64, error) {
	// The lock expires just before the next tick so a crashed owner never
	// blocks the others for long.
	ok, err := w.store.TryLock(ctx, w.owner, w.interval*9/10)
	if err != nil || !ok {
		return 0, err
	}
	return w.store.Prune(ctx, w.now().Add(-w.window))
}
