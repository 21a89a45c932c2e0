package scheduler

import (
	"context"
	"time"

	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/util"
	"exam_practice_backend/pkg/logger"
	"exam_practice_backend/pkg/monitoring"
	"exam_practice_backend/pkg/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const JobTimeoutScan = "exam_timeout_scan"

type ActiveAttemptLister interface {
	ListActiveAttempts(ctx context.Context) ([]repository.ActiveAttempt, error)
}

// AttemptFinalizer 返回作答是否由本次调用切换为 timeout
type AttemptFinalizer interface {
	TimeoutAttempt(ctx context.Context, attemptID uint) (bool, error)
}

type ScanResult struct {
	RunID             string `json:"runId,omitempty"`
	Skipped           bool   `json:"skipped"`
	ScannedCount      int    `json:"scannedCount"`
	TimeoutCount      int    `json:"timeoutCount"`
	AutoFinishedCount int    `json:"autoFinishedCount"`
	FailedCount       int    `json:"failedCount"`
}

type TimeoutSummary struct {
	ActiveCount          int       `json:"activeCount"`
	TimedOutPendingCount int       `json:"timedOutPendingCount"`
	Now                  time.Time `json:"now"`
}

// TimeoutScanner 把超过时限仍为 active 的作答按 timeout 结束
type TimeoutScanner struct {
	attempts  ActiveAttemptLister
	finalizer AttemptFinalizer
	clock     util.Clock
	guard     Guard
}

func NewTimeoutScanner(attempts ActiveAttemptLister, finalizer AttemptFinalizer, clock util.Clock) *TimeoutScanner {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &TimeoutScanner{
		attempts:  attempts,
		finalizer: finalizer,
		clock:     clock,
	}
}

// Scan 与正在进行的扫描重叠时直接返回 Skipped，不视为错误
func (s *TimeoutScanner) Scan(ctx context.Context) (ScanResult, error) {
	if !s.guard.TryAcquire() {
		logger.Log.Debug("Timeout scan already running, skipped")
		monitoring.SchedulerRuns.WithLabelValues(JobTimeoutScan, "skipped").Inc()
		return ScanResult{Skipped: true}, nil
	}
	defer s.guard.Release()

	started := time.Now()
	result := ScanResult{RunID: uuid.NewString()}
	ctx, span := tracing.StartJob(ctx, JobTimeoutScan, result.RunID)
	defer span.End()

	active, err := s.attempts.ListActiveAttempts(ctx)
	if err != nil {
		span.RecordError(err)
		monitoring.ObserveSchedulerRun(JobTimeoutScan, "error", started)
		return result, errors.Wrap(err, "list active attempts")
	}

	now := s.clock.Now()
	result.ScannedCount = len(active)
	for _, a := range active {
		if a.TimeoutAt().After(now) {
			continue
		}
		result.TimeoutCount++
		changed, err := s.finalizer.TimeoutAttempt(ctx, a.AttemptID)
		if err != nil {
			result.FailedCount++
			logger.Log.Warn("Failed to finalize timed out attempt",
				zap.String("runID", result.RunID),
				zap.Uint("attemptID", a.AttemptID),
				zap.Error(err))
			continue
		}
		if !changed {
			// 扫描期间学生已交卷
			continue
		}
		result.AutoFinishedCount++
		monitoring.AttemptsTimedOut.Inc()
	}

	span.SetAttributes(
		attribute.Int("scanned", result.ScannedCount),
		attribute.Int("timed_out", result.TimeoutCount),
	)
	monitoring.ObserveSchedulerRun(JobTimeoutScan, "ok", started)
	if result.TimeoutCount > 0 {
		logger.Log.Info("Timeout scan finished",
			zap.String("runID", result.RunID),
			zap.Int("scanned", result.ScannedCount),
			zap.Int("timedOut", result.TimeoutCount),
			zap.Int("finished", result.AutoFinishedCount),
			zap.Int("failed", result.FailedCount),
			zap.Duration("elapsed", time.Since(started)))
	}
	return result, nil
}

// Summary 只读统计：当前 active 数量和已超时但尚未结束的数量
func (s *TimeoutScanner) Summary(ctx context.Context) (TimeoutSummary, error) {
	active, err := s.attempts.ListActiveAttempts(ctx)
	if err != nil {
		return TimeoutSummary{}, errors.Wrap(err, "list active attempts")
	}
	now := s.clock.Now()
	summary := TimeoutSummary{ActiveCount: len(active), Now: now}
	for _, a := range active {
		if !a.TimeoutAt().After(now) {
			summary.TimedOutPendingCount++
		}
	}
	return summary, nil
}
