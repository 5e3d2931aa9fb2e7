package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

type fakeArchiver struct {
	fillCutoffs  []time.Time
	eventCutoffs []time.Time
}

func (a *fakeArchiver) ArchiveFills(_ context.Context, before time.Time) (int64, error) {
	a.fillCutoffs = append(a.fillCutoffs, before)
	return 3, nil
}

func (a *fakeArchiver) ArchiveEvents(_ context.Context, before time.Time) (int64, error) {
	a.eventCutoffs = append(a.eventCutoffs, before)
	return 7, nil
}

type fakeLocks struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired++
	return func() { l.released++ }, nil
}

func TestArchiveSweep(t *testing.T) {
	arch := &fakeArchiver{}
	locks := &fakeLocks{}
	job := NewArchiveJob(arch, locks, 30*24*time.Hour, time.Hour, nil)

	require.NoError(t, job.Sweep(testCtx))

	require.Len(t, arch.fillCutoffs, 1)
	require.Len(t, arch.eventCutoffs, 1)
	require.Equal(t, 1, locks.acquired)
	require.Equal(t, 1, locks.released)

	// Cutoff sits one retention window in the past.
	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	require.WithinDuration(t, wantCutoff, arch.fillCutoffs[0], time.Minute)
}

func TestArchiveSweepSkipsWhenLockHeld(t *testing.T) {
	arch := &fakeArchiver{}
	locks := &fakeLocks{held: true}
	job := NewArchiveJob(arch, locks, 30*24*time.Hour, time.Hour, nil)

	require.NoError(t, job.Sweep(testCtx))
	require.Empty(t, arch.fillCutoffs)
	require.Empty(t, arch.eventCutoffs)
}
