package sweep

import (
	"context"
	"log/slog"
	"time"
)

// passTimeout bounds a single pass. Mutations applied before the deadline
// stay applied; the remainder waits for the next tick.
const passTimeout = 10 * time.Minute

// Runner drives the sweeper from inside the long-running server process: one
// pass immediately on start, then one per interval. External one-shot
// invocations share the same Sweeper and may overlap with a tick; the
// engine's conditional mutations make that safe.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
}

func NewRunner(sweeper *Sweeper, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweep-runner")),
	}
}

func (r *Runner) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.run(runCtx)

	r.logger.Info("sweep runner started", slog.String("interval", r.interval.String()))
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.logger.Info("sweep runner stopped")
}

func (r *Runner) run(ctx context.Context) {
	r.runPass(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runPass(ctx)
		}
	}
}

func (r *Runner) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, passTimeout)
	defer cancel()

	if _, err := r.sweeper.Run(passCtx); err != nil {
		r.logger.Error("sweep pass failed", slog.String("error", err.Error()))
	}
}
