package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"exam_practice_backend/internal/event"
	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/util"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	clock *util.FixedClock

	questions   *repository.QuestionRepository
	practice    *repository.PracticeRepository
	wrongBooks  *repository.WrongBookRepository
	reviewTasks *repository.ReviewTaskRepository
	exams       *repository.ExamRepository
	gradingRepo *repository.GradingRepository

	wrongBookSvc  *WrongBookService
	reviewTaskSvc *ReviewTaskService
	gradingSvc    *GradingService
	practiceSvc   *PracticeService
	examSvc       *ExamService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库只存在于单个连接上
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		db:          db,
		clock:       &util.FixedClock{T: testNow},
		questions:   repository.NewQuestionRepository(db),
		practice:    repository.NewPracticeRepository(db),
		wrongBooks:  repository.NewWrongBookRepository(db),
		reviewTasks: repository.NewReviewTaskRepository(db),
		exams:       repository.NewExamRepository(db),
		gradingRepo: repository.NewGradingRepository(db),
	}
	bus := event.NewBus()
	f.wrongBookSvc = NewWrongBookService(f.wrongBooks, f.reviewTasks, db, f.clock)
	bus.Subscribe(f.wrongBookSvc)
	f.reviewTaskSvc = NewReviewTaskService(f.wrongBooks, f.reviewTasks, db)
	f.gradingSvc = NewGradingService(f.gradingRepo, f.practice, f.questions, f.exams, db, f.clock)
	f.practiceSvc = NewPracticeService(f.practice, f.questions, f.wrongBooks, f.reviewTasks, f.gradingSvc, bus, db, f.clock)
	f.examSvc = NewExamService(f.exams, f.questions, nil, f.gradingSvc, bus, db, f.clock)
	return f
}

func (f *fixture) ctx() context.Context {
	return context.Background()
}

func (f *fixture) addQuestion(t *testing.T, qType model.QuestionType, answer interface{}, score float64) *model.Question {
	t.Helper()
	raw, err := json.Marshal(answer)
	require.NoError(t, err)
	q := &model.Question{
		CategoryID: 1,
		Type:       qType,
		Difficulty: 1,
		Content:    "question",
		Answer:     string(raw),
		Score:      score,
	}
	require.NoError(t, f.db.Create(q).Error)
	return q
}

func (f *fixture) addKnowledgePoint(t *testing.T, name string, questionIDs ...uint) *model.KnowledgePoint {
	t.Helper()
	kp := &model.KnowledgePoint{Name: name}
	require.NoError(t, f.db.Create(kp).Error)
	for _, qid := range questionIDs {
		require.NoError(t, f.db.Create(&model.QuestionKnowledgePoint{QuestionID: qid, KnowledgePointID: kp.ID}).Error)
	}
	return kp
}

func answer(v interface{}) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}
