package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exam_practice_backend/internal/config"
	"exam_practice_backend/internal/event"
	"exam_practice_backend/internal/middleware"
	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/retry"
	"exam_practice_backend/internal/scheduler"
	"exam_practice_backend/internal/service"
	"exam_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testSecret = "controller-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))

	clock := util.SystemClock{}
	questions := repository.NewQuestionRepository(db)
	practice := repository.NewPracticeRepository(db)
	wrongBooks := repository.NewWrongBookRepository(db)
	reviewTasks := repository.NewReviewTaskRepository(db)
	exams := repository.NewExamRepository(db)

	bus := event.NewBus()
	wrongBookSvc := service.NewWrongBookService(wrongBooks, reviewTasks, db, clock)
	bus.Subscribe(wrongBookSvc)
	reviewTaskSvc := service.NewReviewTaskService(wrongBooks, reviewTasks, db)
	gradingSvc := service.NewGradingService(repository.NewGradingRepository(db), practice, questions, exams, db, clock)
	practiceSvc := service.NewPracticeService(practice, questions, wrongBooks, reviewTasks, gradingSvc, bus, db, clock)
	examSvc := service.NewExamService(exams, questions, nil, gradingSvc, bus, db, clock)

	policy := retry.NewPolicy(nil)
	policy.Sleep = func(_ context.Context, _ time.Duration) error { return nil }
	timeout := scheduler.NewTimeoutScanner(exams, examSvc, clock)
	daily := scheduler.NewDailyReviewGenerator(reviewTaskSvc, clock, policy)

	pc := NewPracticeController(practiceSvc)
	ec := NewExamController(examSvc, timeout)
	rc := NewReviewController(practiceSvc, wrongBookSvc, daily)
	gc := NewGradingController(gradingSvc)
	hc := NewHealthController(db, nil)

	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret}}
	r := gin.New()
	r.GET("/api/health", hc.HealthCheck)
	api := r.Group("/api", middleware.AuthMiddleware(cfg))
	api.POST("/practice/sessions", pc.CreateSession)
	api.GET("/practice/sessions/:id", pc.GetSession)
	api.POST("/practice/sessions/:id/items/:itemId/submit", pc.SubmitItem)
	api.GET("/review/wrong-book", rc.ListWrongBook)
	api.GET("/exam/attempts/:id/report", ec.GetAttemptReport)
	api.GET("/grading/tasks", middleware.RoleMiddleware(model.Teacher), gc.ListTasks)
	admin := api.Group("/admin", middleware.RoleMiddleware(model.Admin))
	admin.POST("/review/daily-tasks/generate", rc.GenerateDailyTasks)
	admin.GET("/review/daily-tasks/summary", rc.DailyTaskSummary)
	admin.GET("/exam/timeout-summary", ec.TimeoutSummary)

	return &testServer{t: t, db: db, router: r}
}

func (s *testServer) do(method, path string, userID uint, role model.UserRole, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := util.GenerateJWT(userID, role, testSecret, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestPracticeFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	q := &model.Question{CategoryID: 1, Type: model.SingleChoice, Content: "1+1", Answer: `"B"`, Score: 5}
	require.NoError(t, s.db.Create(q).Error)

	code, env := s.do(http.MethodPost, "/api/practice/sessions", 1, model.Student, gin.H{"mode": "random", "count": 1})
	require.Equal(t, http.StatusCreated, code, env.Message)

	var detail struct {
		Session struct {
			ID uint `json:"id"`
		} `json:"session"`
		Items []struct {
			ID uint `json:"id"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	require.Len(t, detail.Items, 1)

	path := fmt.Sprintf("/api/practice/sessions/%d/items/%d/submit", detail.Session.ID, detail.Items[0].ID)
	code, env = s.do(http.MethodPost, path, 1, model.Student, gin.H{"answer": "A", "durationSeconds": 12})
	require.Equal(t, http.StatusOK, code, env.Message)

	var result struct {
		Outcome          string `json:"outcome"`
		IsCorrect        *bool  `json:"isCorrect"`
		SessionCompleted bool   `json:"sessionCompleted"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, string(model.OutcomeIncorrect), result.Outcome)
	require.NotNil(t, result.IsCorrect)
	assert.False(t, *result.IsCorrect)
	assert.True(t, result.SessionCompleted)

	// 重复提交为冲突
	code, _ = s.do(http.MethodPost, path, 1, model.Student, gin.H{"answer": "B"})
	assert.Equal(t, http.StatusConflict, code)

	// 答错进入错题本
	code, env = s.do(http.MethodGet, "/api/review/wrong-book", 1, model.Student, nil)
	require.Equal(t, http.StatusOK, code)
	var page util.PageResult
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.Total)

	// 其他学生看不到该会话
	code, _ = s.do(http.MethodGet, fmt.Sprintf("/api/practice/sessions/%d", detail.Session.ID), 2, model.Student, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodPost, "/api/practice/sessions", 0, "", gin.H{"mode": "random"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodPost, "/api/practice/sessions", 1, model.Student, gin.H{"mode": "lottery"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/api/practice/sessions", 1, model.Student, gin.H{"mode": "category"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodGet, "/api/practice/sessions/abc", 1, model.Student, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodGet, "/api/exam/attempts/999/report", 1, model.Student, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdminEndpointsRequireRole(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodPost, "/api/admin/review/daily-tasks/generate", 1, model.Student, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/api/grading/tasks", 1, model.Student, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/api/grading/tasks", 5, model.Teacher, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, "/api/admin/review/daily-tasks/generate", 9, model.Admin, gin.H{"runDate": "2026-13-01"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := s.do(http.MethodPost, "/api/admin/review/daily-tasks/generate", 9, model.Admin, gin.H{"runDate": "2026-02-01"})
	require.Equal(t, http.StatusOK, code, env.Message)
	var res service.GenerateResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "2026-02-01", res.RunDate)
	assert.Zero(t, res.GeneratedCount)

	// 不带 runDate 时生成当天任务并记录
	code, env = s.do(http.MethodPost, "/api/admin/review/daily-tasks/generate", 9, model.Admin, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.NotEmpty(t, res.RunDate)

	code, env = s.do(http.MethodGet, "/api/admin/review/daily-tasks/summary?runDate="+res.RunDate, 9, model.Admin, nil)
	require.Equal(t, http.StatusOK, code)
	var summary scheduler.DailySummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, res.RunDate, summary.LastGeneratedRunDate)

	code, _ = s.do(http.MethodGet, "/api/admin/exam/timeout-summary", 9, model.Admin, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(http.MethodGet, "/api/health", 0, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"cache":"disabled"`)
}
