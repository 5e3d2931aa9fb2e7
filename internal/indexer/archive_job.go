package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// archiveLockKey guards the sweep so only one instance runs it at a time.
const archiveLockKey = "jobs:archive"

// ArchiveJob periodically moves fills and pool events older than the
// retention window from PostgreSQL to cold storage. The sweep takes a
// distributed lock first, so running the job on every instance is safe.
type ArchiveJob struct {
	archiver  domain.Archiver
	locks     domain.LockManager
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewArchiveJob creates an ArchiveJob. Records older than retention are
// archived; the sweep fires every interval.
func NewArchiveJob(archiver domain.Archiver, locks domain.LockManager, retention, interval time.Duration, logger *slog.Logger) *ArchiveJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveJob{
		archiver:  archiver,
		locks:     locks,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Run executes sweeps on the configured interval until the context is
// cancelled. Failed sweeps are logged and retried on the next tick.
func (j *ArchiveJob) Run(ctx context.Context) error {
	j.logger.Info("archive job started",
		slog.Duration("retention", j.retention),
		slog.Duration("interval", j.interval),
	)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("archive job stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := j.Sweep(ctx); err != nil {
				j.logger.Error("archive sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep runs a single archive pass. Returns nil without doing work when
// another instance holds the lock.
func (j *ArchiveJob) Sweep(ctx context.Context) error {
	unlock, err := j.locks.Acquire(ctx, archiveLockKey, 10*time.Minute)
	if errors.Is(err, domain.ErrLockHeld) {
		j.logger.Debug("archive sweep skipped, lock held elsewhere")
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire archive lock: %w", err)
	}
	defer unlock()

	cutoff := time.Now().UTC().Add(-j.retention)

	fills, err := j.archiver.ArchiveFills(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving fills before %v: %w", cutoff, err)
	}
	events, err := j.archiver.ArchiveEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving events before %v: %w", cutoff, err)
	}

	if fills > 0 || events > 0 {
		j.logger.Info("archive sweep complete",
			slog.Time("cutoff", cutoff),
			slog.Int64("fills_archived", fills),
			slog.Int64("events_archived", events),
		)
	}
	return nil
}
