// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StaleSweeper fails uploads stuck in processing since before a cutoff
type StaleSweeper interface {
	FailStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron      *cron.Cron
	uploads   StaleSweeper
	staleness time.Duration
	logger    *slog.Logger
}

// NewScheduler creates a new job scheduler. staleness is how long an upload
// may sit in "processing" before the sweeper treats the run as dead.
func NewScheduler(uploads StaleSweeper, staleness time.Duration, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:      c,
		uploads:   uploads,
		staleness: staleness,
		logger:    logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Stale-run sweep: every 10 minutes. An aborted pipeline run leaves its
	// upload in "processing"; the sweep turns that into an explicit failure
	// the caller can act on.
	_, err := s.cron.AddFunc("*/10 * * * *", s.sweepStaleRuns)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the stale-run sweep (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweepStaleRuns()
}

// sweepStaleRuns fails any upload stuck in processing past the threshold.
func (s *Scheduler) sweepStaleRuns() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.staleness)
	swept, err := s.uploads.FailStaleProcessing(ctx, cutoff)
	if err != nil {
		s.logger.Error("stale upload sweep failed", slog.Any("error", err))
		return
	}
	if swept > 0 {
		s.logger.Warn("failed stale extraction runs",
			slog.Int64("count", swept),
			slog.Time("cutoff", cutoff),
		)
	}
}
