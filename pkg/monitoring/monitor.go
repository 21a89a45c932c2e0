package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AnswersJudged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answers_judged_total",
			Help: "Submitted answers by question type, attempt type and outcome",
		},
		[]string{"question_type", "attempt_type", "outcome"},
	)

	GradingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_task_transitions_total",
			Help: "Manual grading task state transitions",
		},
		[]string{"to"},
	)

	SchedulerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Background scheduler runs by job and result",
		},
		[]string{"job", "result"},
	)

	SchedulerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_run_duration_seconds",
			Help:    "Duration of background scheduler runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"job"},
	)

	AttemptsTimedOut = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_attempts_timed_out_total",
			Help: "Exam attempts finalized by the timeout scanner",
		},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
		[]string{"endpoint"},
	)

	DailyReviewTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "review_daily_tasks_generated",
			Help: "Review tasks generated by the last daily run",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AnswersJudged,
			GradingTransitions,
			SchedulerRuns,
			SchedulerDuration,
			AttemptsTimedOut,
			RateLimited,
			DailyReviewTasks,
		)
	})
}

// ObserveSchedulerRun 记录一次后台任务的结果和耗时
func ObserveSchedulerRun(job, result string, started time.Time) {
	SchedulerRuns.WithLabelValues(job, result).Inc()
	SchedulerDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
