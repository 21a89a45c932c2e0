package repository

import (
	"context"
	"testing"
	"time"

	"exam_practice_backend/internal/model"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var repoNow = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return db
}

func TestRunInTxRollsBackAndReusesOuterTx(t *testing.T) {
	db := newTestDB(t)
	repo := NewWrongBookRepository(db)
	ctx := context.Background()

	err := RunInTx(ctx, db, func(ctx context.Context) error {
		require.NoError(t, repo.Create(ctx, &model.WrongBook{StudentID: 1, QuestionID: 1}))
		// 嵌套调用复用外层事务，一起回滚
		inner := RunInTx(ctx, db, func(ctx context.Context) error {
			return repo.Create(ctx, &model.WrongBook{StudentID: 1, QuestionID: 2})
		})
		require.NoError(t, inner)
		return errors.New("abort")
	})
	require.Error(t, err)

	var n int64
	require.NoError(t, db.Model(&model.WrongBook{}).Count(&n).Error)
	assert.Zero(t, n)

	require.NoError(t, RunInTx(ctx, db, func(ctx context.Context) error {
		return repo.Create(ctx, &model.WrongBook{StudentID: 1, QuestionID: 3})
	}))
	require.NoError(t, db.Model(&model.WrongBook{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestMarkItemAnsweredOnlyOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewPracticeRepository(db)
	ctx := context.Background()

	session := &model.PracticeSession{StudentID: 1, Mode: model.ModeRandom, Status: model.SessionActive, TotalCount: 1, StartedAt: repoNow}
	items := []model.PracticeSessionItem{{QuestionID: 10, Seq: 1, SourceType: model.SourceNormal, Status: model.ItemPending}}
	require.NoError(t, repo.CreateSession(ctx, session, items))

	stored, err := repo.ListItems(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	ok, err := repo.MarkItemAnswered(ctx, stored[0].ID, 7, repoNow)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkItemAnswered(ctx, stored[0].ID, 8, repoNow)
	require.NoError(t, err)
	assert.False(t, ok)

	item, err := repo.FindItem(ctx, stored[0].ID)
	require.NoError(t, err)
	require.NotNil(t, item.PracticeRecordID)
	assert.Equal(t, uint(7), *item.PracticeRecordID)

	require.NoError(t, repo.IncrementProgress(ctx, session.ID, true))
	done, err := repo.CompleteIfFinished(ctx, session.ID, repoNow)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = repo.CompleteSession(ctx, session.ID, repoNow)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestGradingConditionalTransitions(t *testing.T) {
	db := newTestDB(t)
	repo := NewGradingRepository(db)
	ctx := context.Background()

	task := &model.ManualGradingTask{PracticeRecordID: 1, StudentID: 1, QuestionID: 10, Status: model.GradingPending}
	require.NoError(t, repo.Create(ctx, task))

	ok, err := repo.Claim(ctx, task.ID, 100, repoNow)
	require.NoError(t, err)
	assert.True(t, ok)

	// 已被他人领取
	ok, err = repo.Claim(ctx, task.ID, 200, repoNow)
	require.NoError(t, err)
	assert.False(t, ok)

	score := 6.0
	passed := true
	result := &model.ManualGradingTask{
		BaseModel:   model.BaseModel{ID: task.ID},
		AssignedAt:  &repoNow,
		Score:       &score,
		Feedback:    "ok",
		Tags:        model.StringList{"logic"},
		IsPassed:    &passed,
		SubmittedAt: &repoNow,
	}
	ok, err = repo.SubmitResult(ctx, result, 200)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.SubmitResult(ctx, result, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SubmitResult(ctx, result, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GradingDone, got.Status)
	require.NotNil(t, got.Score)
	assert.Equal(t, 6.0, *got.Score)
	assert.Equal(t, model.StringList{"logic"}, got.Tags)

	ok, err = repo.Reopen(ctx, task.ID, "score too high")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Reopen(ctx, task.ID, "again")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GradingReopen, got.Status)
	assert.Nil(t, got.AssigneeID)
	assert.Nil(t, got.Score)
	assert.Equal(t, "score too high", got.Feedback)

	// 重新打开后任何阅卷人都可以领取
	ok, err = repo.Claim(ctx, task.ID, 200, repoNow)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPaperCacheWithoutRedisIsNoop(t *testing.T) {
	ctx := context.Background()
	c := NewPaperCache(nil, 0)

	require.NoError(t, c.Set(ctx, &model.ExamPaper{BaseModel: model.BaseModel{ID: 1}, Status: model.PaperPublished}))
	_, ok := c.Get(ctx, 1)
	assert.False(t, ok)

	var nilCache *PaperCache
	_, ok = nilCache.Get(ctx, 1)
	assert.False(t, ok)
}

func TestActiveAttemptTimeoutAt(t *testing.T) {
	a := ActiveAttempt{StartedAt: repoNow, DurationMinutes: 45}
	assert.True(t, repoNow.Add(45*time.Minute).Equal(a.TimeoutAt()))
}
