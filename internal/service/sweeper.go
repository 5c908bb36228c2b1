package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper evicts idle sessions. It runs on its own timer, fully
// independent of message handling; the only coordination with live
// handlers is the atomic removal inside Finalizer, which guarantees a
// session racing a sweep is finalized exactly once.
type Sweeper struct {
	sessions  *Sessions
	finalizer *Finalizer
	notifier  Notifier
	timeout   time.Duration
	interval  time.Duration
	log       *slog.Logger
}

func NewSweeper(sessions *Sessions, finalizer *Finalizer, notifier Notifier, timeout, interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		sessions:  sessions,
		finalizer: finalizer,
		notifier:  notifier,
		timeout:   timeout,
		interval:  interval,
		log:       log,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.log.Info("sweeper started",
		slog.Duration("interval", w.interval), slog.Duration("timeout", w.timeout))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction cycle. Sessions are independent: an error on
// one is logged and the cycle moves on, so a transient store failure
// only delays that session until the next tick.
func (w *Sweeper) Sweep(ctx context.Context) {
	ids, err := w.sessions.ActiveUserIDs(ctx)
	if err != nil {
		w.log.Error("sweep: list sessions", slog.Any("error", err))
		return
	}
	for _, id := range ids {
		s, err := w.sessions.Load(ctx, id)
		if err != nil {
			w.log.Error("sweep: load session", slog.Int64("user_id", id), slog.Any("error", err))
			continue
		}
		if s == nil {
			continue // finalized between the listing and now
		}
		if time.Since(s.LastActivity) <= w.timeout {
			continue
		}
		finalized, err := w.finalizer.Finalize(ctx, s, ReasonTimeout)
		if err != nil {
			w.log.Error("sweep: finalize", slog.Int64("user_id", id), slog.Any("error", err))
			continue
		}
		if !finalized {
			continue
		}
		w.log.Info("idle session evicted",
			slog.Int64("user_id", id),
			slog.Time("last_activity", s.LastActivity))
		if err := w.notifier.SendToUser(ctx, id,
			"⌛ Your questionnaire was closed after a period of inactivity. Send /start to begin again.", nil); err != nil {
			w.log.Warn("sweep: notify user", slog.Int64("user_id", id), slog.Any("error", err))
		}
	}
}
