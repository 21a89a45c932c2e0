package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/retry"
	"exam_practice_backend/internal/service"
	"exam_practice_backend/internal/util"
	"exam_practice_backend/pkg/logger"
	"exam_practice_backend/pkg/monitoring"
	"exam_practice_backend/pkg/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const JobDailyReview = "daily_review_tasks"

// DailyTaskStore 按运行日重建复习任务并统计
type DailyTaskStore interface {
	GenerateForDate(ctx context.Context, runDate string) (service.GenerateResult, error)
	Summary(ctx context.Context, runDate string) (repository.ReviewTaskSummary, error)
}

type DailySummary struct {
	RunDate              string `json:"runDate"`
	Total                int64  `json:"total"`
	Pending              int64  `json:"pending"`
	Done                 int64  `json:"done"`
	LastGeneratedRunDate string `json:"lastGeneratedRunDate"`
}

// DailyReviewGenerator 每个运行日只自动生成一次；手动生成总会重跑，只有生成当天时更新标记
type DailyReviewGenerator struct {
	store  DailyTaskStore
	clock  util.Clock
	policy retry.Policy
	guard  Guard

	mu          sync.Mutex
	lastRunDate string
}

func NewDailyReviewGenerator(store DailyTaskStore, clock util.Clock, policy retry.Policy) *DailyReviewGenerator {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &DailyReviewGenerator{
		store:  store,
		clock:  clock,
		policy: policy,
	}
}

func (g *DailyReviewGenerator) LastGeneratedRunDate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRunDate
}

// Tick 定时调用；当天已生成或另一次生成正在进行时返回 ran=false
func (g *DailyReviewGenerator) Tick(ctx context.Context) (result service.GenerateResult, ran bool, err error) {
	runDate := util.RunDate(g.clock.Now())
	if g.LastGeneratedRunDate() == runDate {
		return service.GenerateResult{}, false, nil
	}
	if !g.guard.TryAcquire() {
		monitoring.SchedulerRuns.WithLabelValues(JobDailyReview, "skipped").Inc()
		return service.GenerateResult{}, false, nil
	}
	defer g.guard.Release()

	result, err = g.run(ctx, runDate)
	return result, err == nil, err
}

// Generate 手动生成，runDate 为空时使用当天；并发调用返回冲突
func (g *DailyReviewGenerator) Generate(ctx context.Context, runDate string) (service.GenerateResult, error) {
	if runDate == "" {
		runDate = util.RunDate(g.clock.Now())
	} else if _, err := util.ParseRunDate(runDate); err != nil {
		return service.GenerateResult{}, err
	}
	if !g.guard.TryAcquire() {
		return service.GenerateResult{}, util.ErrGenerationInProgress
	}
	defer g.guard.Release()

	return g.run(ctx, runDate)
}

func (g *DailyReviewGenerator) run(ctx context.Context, runDate string) (service.GenerateResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	ctx, span := tracing.StartJob(ctx, JobDailyReview, runID, attribute.String("run_date", runDate))
	defer span.End()

	policy := g.policy
	policy.OnError = func(attempt int, err error) {
		logger.Log.Warn("Daily review task generation attempt failed",
			zap.String("runID", runID),
			zap.String("runDate", runDate),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", policy.MaxAttempts()),
			zap.Error(err))
	}

	var result service.GenerateResult
	err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		result, err = g.store.GenerateForDate(ctx, runDate)
		return err
	})
	if err != nil {
		span.RecordError(err)
		monitoring.ObserveSchedulerRun(JobDailyReview, "error", started)
		logger.Log.Error("Daily review task generation failed",
			zap.String("runID", runID),
			zap.String("runDate", runDate),
			zap.Error(err))
		return service.GenerateResult{}, fmt.Errorf("%w: %w", util.ErrTransient, err)
	}

	// 只记录当天的生成，补生成历史日期不能让定时任务重跑当天
	if runDate == util.RunDate(g.clock.Now()) {
		g.mu.Lock()
		g.lastRunDate = runDate
		g.mu.Unlock()
	}

	monitoring.ObserveSchedulerRun(JobDailyReview, "ok", started)
	monitoring.DailyReviewTasks.Set(float64(result.GeneratedCount))
	logger.Log.Info("Daily review tasks generated",
		zap.String("runID", runID),
		zap.String("runDate", runDate),
		zap.Int64("deleted", result.DeletedCount),
		zap.Int("generated", result.GeneratedCount),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

// Summary runDate 为空时统计当天
func (g *DailyReviewGenerator) Summary(ctx context.Context, runDate string) (DailySummary, error) {
	if runDate == "" {
		runDate = util.RunDate(g.clock.Now())
	}
	s, err := g.store.Summary(ctx, runDate)
	if err != nil {
		return DailySummary{}, err
	}
	return DailySummary{
		RunDate:              runDate,
		Total:                s.Total,
		Pending:              s.Pending,
		Done:                 s.Done,
		LastGeneratedRunDate: g.LastGeneratedRunDate(),
	}, nil
}
