package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/util"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scanNow = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

type fakeAttempts struct {
	mu     sync.Mutex
	active []repository.ActiveAttempt
	err    error
	calls  int
}

func (f *fakeAttempts) ListActiveAttempts(context.Context) ([]repository.ActiveAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.active, f.err
}

func (f *fakeAttempts) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFinalizer struct {
	finalized  []uint
	failFor    map[uint]bool
	finishedBy map[uint]bool
}

func (f *fakeFinalizer) TimeoutAttempt(_ context.Context, attemptID uint) (bool, error) {
	if f.failFor[attemptID] {
		return false, errors.New("deadlock")
	}
	if f.finishedBy[attemptID] {
		return false, nil
	}
	f.finalized = append(f.finalized, attemptID)
	return true, nil
}

func TestScanFinishesOnlyExpiredAttempts(t *testing.T) {
	attempts := &fakeAttempts{active: []repository.ActiveAttempt{
		{AttemptID: 1, StartedAt: scanNow.Add(-20 * time.Minute), DurationMinutes: 10},
		{AttemptID: 2, StartedAt: scanNow.Add(-5 * time.Minute), DurationMinutes: 10},
	}}
	fin := &fakeFinalizer{}
	s := NewTimeoutScanner(attempts, fin, &util.FixedClock{T: scanNow})

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.ScannedCount)
	assert.Equal(t, 1, res.TimeoutCount)
	assert.Equal(t, 1, res.AutoFinishedCount)
	assert.Zero(t, res.FailedCount)
	assert.Equal(t, []uint{1}, fin.finalized)
}

func TestScanDeadlineIsInclusive(t *testing.T) {
	attempts := &fakeAttempts{active: []repository.ActiveAttempt{
		{AttemptID: 7, StartedAt: scanNow.Add(-10 * time.Minute), DurationMinutes: 10},
	}}
	fin := &fakeFinalizer{}
	s := NewTimeoutScanner(attempts, fin, &util.FixedClock{T: scanNow})

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.AutoFinishedCount)
}

func TestScanContinuesPastFailures(t *testing.T) {
	attempts := &fakeAttempts{active: []repository.ActiveAttempt{
		{AttemptID: 1, StartedAt: scanNow.Add(-time.Hour), DurationMinutes: 30},
		{AttemptID: 2, StartedAt: scanNow.Add(-time.Hour), DurationMinutes: 30},
	}}
	fin := &fakeFinalizer{failFor: map[uint]bool{1: true}}
	s := NewTimeoutScanner(attempts, fin, &util.FixedClock{T: scanNow})

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.TimeoutCount)
	assert.Equal(t, 1, res.AutoFinishedCount)
	assert.Equal(t, 1, res.FailedCount)
	assert.Equal(t, []uint{2}, fin.finalized)
}

func TestScanIgnoresAttemptsFinishedConcurrently(t *testing.T) {
	attempts := &fakeAttempts{active: []repository.ActiveAttempt{
		{AttemptID: 1, StartedAt: scanNow.Add(-time.Hour), DurationMinutes: 30},
		{AttemptID: 2, StartedAt: scanNow.Add(-time.Hour), DurationMinutes: 30},
	}}
	fin := &fakeFinalizer{finishedBy: map[uint]bool{1: true}}
	s := NewTimeoutScanner(attempts, fin, &util.FixedClock{T: scanNow})

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.TimeoutCount)
	assert.Equal(t, 1, res.AutoFinishedCount)
	assert.Zero(t, res.FailedCount)
	assert.Equal(t, []uint{2}, fin.finalized)
}

func TestScanSkippedWhileRunning(t *testing.T) {
	attempts := &fakeAttempts{}
	s := NewTimeoutScanner(attempts, &fakeFinalizer{}, &util.FixedClock{T: scanNow})
	require.True(t, s.guard.TryAcquire())

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, attempts.Calls())

	s.guard.Release()
	res, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestScanListFailure(t *testing.T) {
	attempts := &fakeAttempts{err: errors.New("connection refused")}
	s := NewTimeoutScanner(attempts, &fakeFinalizer{}, &util.FixedClock{T: scanNow})

	_, err := s.Scan(context.Background())
	assert.Error(t, err)
	assert.False(t, s.guard.Running())
}

func TestTimeoutSummary(t *testing.T) {
	attempts := &fakeAttempts{active: []repository.ActiveAttempt{
		{AttemptID: 1, StartedAt: scanNow.Add(-20 * time.Minute), DurationMinutes: 10},
		{AttemptID: 2, StartedAt: scanNow.Add(-5 * time.Minute), DurationMinutes: 10},
		{AttemptID: 3, StartedAt: scanNow.Add(-2 * time.Hour), DurationMinutes: 60},
	}}
	fin := &fakeFinalizer{}
	s := NewTimeoutScanner(attempts, fin, &util.FixedClock{T: scanNow})

	summary, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ActiveCount)
	assert.Equal(t, 2, summary.TimedOutPendingCount)
	assert.True(t, scanNow.Equal(summary.Now))
	assert.Empty(t, fin.finalized)
}
