package scheduler

import (
	"context"
	"time"

	"exam_practice_backend/pkg/logger"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Runner 用 gocron 驱动两个后台任务：启动时先执行一次，之后按固定间隔执行
type Runner struct {
	cron    *gocron.Scheduler
	timeout *TimeoutScanner
	daily   *DailyReviewGenerator

	timeoutEvery time.Duration
	dailyEvery   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRunner(timeout *TimeoutScanner, daily *DailyReviewGenerator, timeoutEvery, dailyEvery time.Duration) *Runner {
	return &Runner{
		cron:         gocron.NewScheduler(time.UTC),
		timeout:      timeout,
		daily:        daily,
		timeoutEvery: timeoutEvery,
		dailyEvery:   dailyEvery,
	}
}

func (r *Runner) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	if _, err := r.cron.Every(r.timeoutEvery).StartImmediately().SingletonMode().Do(r.runTimeoutScan); err != nil {
		r.cancel()
		return errors.Wrap(err, "schedule timeout scan")
	}
	if _, err := r.cron.Every(r.dailyEvery).StartImmediately().SingletonMode().Do(r.runDailyCheck); err != nil {
		r.cancel()
		return errors.Wrap(err, "schedule daily review check")
	}

	r.cron.StartAsync()
	logger.Log.Info("Background schedulers started",
		zap.Duration("timeoutScanEvery", r.timeoutEvery),
		zap.Duration("dailyCheckEvery", r.dailyEvery))
	return nil
}

// Stop 取消进行中的任务并停止调度
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.cron.Stop()
	logger.Log.Info("Background schedulers stopped")
}

func (r *Runner) runTimeoutScan() {
	if _, err := r.timeout.Scan(r.ctx); err != nil {
		logger.Log.Error("Timeout scan failed", zap.Error(err))
	}
}

func (r *Runner) runDailyCheck() {
	if _, _, err := r.daily.Tick(r.ctx); err != nil {
		logger.Log.Error("Daily review check failed", zap.Error(err))
	}
}
