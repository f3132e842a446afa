// Package sweep implements the expiry lifecycle engine: it scans the file
// table for records that are overdue or approaching their expiry, deletes
// expired blobs and rows, and sends the one-time pre-expiry warning.
//
// A pass may be triggered by the in-process runner, by the one-shot sweep
// binary, or by the manual admin endpoint, and two passes may overlap. All
// record mutations are conditional (delete-if-exists, set-flag-if-unset), so
// overlapping passes never double-count or fail on work the other already did.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sejf-plikow/internal/database"
	"sejf-plikow/internal/notifier"
	"sejf-plikow/internal/storage"
)

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_sweep_runs_total",
		Help: "Total number of sweep passes.",
	})

	sweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_sweep_files_deleted_total",
		Help: "Total number of expired files deleted by the sweep.",
	})

	sweepNotifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_sweep_notifications_sent_total",
		Help: "Total number of expiry warnings sent by the sweep.",
	})

	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vault_sweep_errors_total",
		Help: "Total number of per-record errors during sweeps.",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vault_sweep_duration_seconds",
		Help:    "Duration of a sweep pass in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// RecordStore is the slice of the metadata store the sweep needs. All
// coordination state lives behind it; the engine itself keeps nothing between
// passes, which is what lets a stateless external invocation share the work
// with the long-running server.
type RecordStore interface {
	FindExpiryCandidates(ctx context.Context, now time.Time, lookback time.Duration) ([]database.ExpiryCandidate, error)
	DeleteFileByID(ctx context.Context, id int64) (bool, error)
	MarkNotificationSent(ctx context.Context, id int64) (bool, error)
	LogEvent(ctx context.Context, userID int64, eventType string, payload interface{}) error
}

// Result is the outcome of one sweep pass. ErrorDetails is capped so a mass
// failure cannot grow the response without bound; Errors carries the full
// count.
type Result struct {
	Deleted      int           `json:"deleted"`
	Notified     int           `json:"notified"`
	Errors       int           `json:"errors"`
	ErrorDetails []string      `json:"error_details,omitempty"`
	Duration     time.Duration `json:"-"`
}

const maxErrorDetails = 5

// lookbackMargin widens the scan window past the notification lead time, so
// clock jitter between two trigger sources cannot hide an actionable record.
const lookbackMargin = time.Hour

type Sweeper struct {
	store    RecordStore
	blobs    storage.BlobStorage
	notifier notifier.Notifier
	leadTime time.Duration
	logger   *slog.Logger
}

func New(store RecordStore, blobs storage.BlobStorage, n notifier.Notifier, leadTime time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		blobs:    blobs,
		notifier: n,
		leadTime: leadTime,
		logger:   logger.With(slog.String("component", "sweep")),
	}
}

// Run executes one sweep pass. Individual record failures are collected in
// the Result and do not stop the pass; only a failure to read the candidate
// window is fatal and propagates to the trigger. Partial progress on a
// cancelled context is kept: every mutation already applied stays applied.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	now := start.UTC()
	horizon := now.Add(s.leadTime)

	candidates, err := s.store.FindExpiryCandidates(ctx, now, s.leadTime+lookbackMargin)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiry candidates: %w", err)
	}

	result := &Result{}

	for i := range candidates {
		if ctx.Err() != nil {
			s.recordError(result, fmt.Errorf("pass interrupted: %w", ctx.Err()))
			break
		}

		c := &candidates[i]
		switch {
		case c.ExpiryTime.Before(now):
			s.processExpired(ctx, c, result)
		case !c.NotificationSent && !c.ExpiryTime.After(horizon):
			s.processWarning(ctx, c, result)
		}
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepDeletedTotal.Add(float64(result.Deleted))
	sweepNotifiedTotal.Add(float64(result.Notified))
	sweepErrorsTotal.Add(float64(result.Errors))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("sweep pass finished",
		slog.Int("candidates", len(candidates)),
		slog.Int("deleted", result.Deleted),
		slog.Int("notified", result.Notified),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// processExpired removes the blob first and the row second. If the blob
// delete fails the row stays, so the next pass retries; if the row was
// already deleted by a concurrent pass, the record is simply not counted.
func (s *Sweeper) processExpired(ctx context.Context, c *database.ExpiryCandidate, result *Result) {
	if err := s.blobs.Delete(ctx, c.UserID, c.Filename); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.recordError(result, fmt.Errorf("file %d: blob delete failed: %w", c.FileID, err))
		return
	}

	removed, err := s.store.DeleteFileByID(ctx, c.FileID)
	if err != nil {
		// The blob may already be gone here. The dangling row is retried
		// next pass and its blob delete is then a tolerated no-op.
		s.recordError(result, fmt.Errorf("file %d: row delete failed: %w", c.FileID, err))
		return
	}
	if !removed {
		return
	}

	result.Deleted++
	s.logger.Debug("deleted expired file",
		slog.Int64("file_id", c.FileID),
		slog.String("filename", c.Filename),
	)

	if err := s.store.LogEvent(ctx, c.UserID, database.EventFileExpired, map[string]interface{}{
		"file_id":  c.FileID,
		"filename": c.Filename,
	}); err != nil {
		s.logger.Warn("failed to journal expiry event", slog.Int64("file_id", c.FileID), slog.String("error", err.Error()))
	}
}

// processWarning sends the pre-expiry notice and flips the flag only after a
// successful send. A send failure leaves the flag unset so the next pass
// retries; a lost race on the flag means another pass already warned, and the
// record is not counted here.
func (s *Sweeper) processWarning(ctx context.Context, c *database.ExpiryCandidate, result *Result) {
	if err := s.notifier.Notify(ctx, c.UserEmail, c.Filename, c.ExpiryTime); err != nil {
		s.recordError(result, fmt.Errorf("file %d: notification failed: %w", c.FileID, err))
		return
	}

	flipped, err := s.store.MarkNotificationSent(ctx, c.FileID)
	if err != nil {
		s.recordError(result, fmt.Errorf("file %d: flag update failed: %w", c.FileID, err))
		return
	}
	if !flipped {
		return
	}

	result.Notified++
	s.logger.Debug("sent expiry warning",
		slog.Int64("file_id", c.FileID),
		slog.String("filename", c.Filename),
	)

	if err := s.store.LogEvent(ctx, c.UserID, database.EventExpiryNoticeSent, map[string]interface{}{
		"file_id":     c.FileID,
		"filename":    c.Filename,
		"expiry_time": c.ExpiryTime,
	}); err != nil {
		s.logger.Warn("failed to journal notice event", slog.Int64("file_id", c.FileID), slog.String("error", err.Error()))
	}
}

func (s *Sweeper) recordError(result *Result, err error) {
	result.Errors++
	if len(result.ErrorDetails) < maxErrorDetails {
		result.ErrorDetails = append(result.ErrorDetails, err.Error())
	}
	s.logger.Error("sweep record error", slog.String("error", err.Error()))
}
