package service

import (
	"errors"
	"testing"
	"time"

	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func assertSameTime(t *testing.T, want time.Time, got *time.Time) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got), "want %s, got %s", want, *got)
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: "daily"})
	assert.ErrorIs(t, err, util.ErrInvalidMode)

	_, err = f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeCategory})
	assert.ErrorIs(t, err, util.ErrCategoryRequired)
	assert.ErrorIs(t, err, util.ErrBadRequest)

	_, err = f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeKnowledge})
	assert.ErrorIs(t, err, util.ErrKnowledgePointRequired)

	_, err = f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeRandom})
	assert.ErrorIs(t, err, util.ErrNoCandidateQuestions)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestCreateSessionFiltersAndLimits(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.addQuestion(t, model.SingleChoice, "A", 5)
	}
	short := f.addQuestion(t, model.ShortAnswer, "", 10)
	kp := f.addKnowledgePoint(t, "recursion", short.ID)

	detail, err := f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{
		Mode:  model.ModeRandom,
		Count: 3,
		Types: []model.QuestionType{model.SingleChoice},
	})
	require.NoError(t, err)
	require.Len(t, detail.Items, 3)
	assert.Equal(t, 3, detail.Session.TotalCount)
	assert.Equal(t, model.SessionActive, detail.Session.Status)
	for i, item := range detail.Items {
		assert.Equal(t, i+1, item.Seq)
		assert.Equal(t, model.ItemPending, item.Status)
		assert.Equal(t, model.SourceNormal, item.SourceType)
		assert.NotEqual(t, short.ID, item.QuestionID)
	}

	detail, err = f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{
		Mode:              model.ModeKnowledge,
		KnowledgePointIDs: []uint{kp.ID},
	})
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, short.ID, detail.Items[0].QuestionID)
}

func TestSubmitSingleChoiceCorrect(t *testing.T) {
	f := newFixture(t)
	f.addQuestion(t, model.SingleChoice, "A", 5)

	detail, err := f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeRandom})
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)

	res, err := f.practiceSvc.SubmitItem(f.ctx(), 1, detail.Session.ID, detail.Items[0].ID,
		SubmitAnswerRequest{Answer: answer("A"), DurationSeconds: 30})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCorrect, res.Outcome)
	require.NotNil(t, res.IsCorrect)
	assert.True(t, *res.IsCorrect)
	require.NotNil(t, res.Record.Score)
	assert.Equal(t, 5.0, *res.Record.Score)
	assert.True(t, res.SessionCompleted)
	assert.Equal(t, 1, res.AnsweredCount)
	assert.Nil(t, res.NextItemID)

	session, err := f.practice.FindSession(f.ctx(), detail.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, session.Status)
	assert.Equal(t, 1, session.CorrectCount)
	assert.NotNil(t, session.EndedAt)

	var wrong int64
	require.NoError(t, f.db.Model(&model.WrongBook{}).Count(&wrong).Error)
	assert.Zero(t, wrong)

	_, err = f.practiceSvc.SubmitItem(f.ctx(), 1, detail.Session.ID, detail.Items[0].ID, SubmitAnswerRequest{Answer: answer("A")})
	assert.ErrorIs(t, err, util.ErrSessionNotActive)
}

func TestSubmitItemRejections(t *testing.T) {
	f := newFixture(t)
	f.addQuestion(t, model.SingleChoice, "A", 5)
	f.addQuestion(t, model.SingleChoice, "B", 5)

	first, err := f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeRandom})
	require.NoError(t, err)
	second, err := f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeRandom})
	require.NoError(t, err)

	item := first.Items[0]
	res, err := f.practiceSvc.SubmitItem(f.ctx(), 1, first.Session.ID, item.ID, SubmitAnswerRequest{Answer: answer("Z")})
	require.NoError(t, err)
	assert.False(t, res.SessionCompleted)
	require.NotNil(t, res.NextItemID)
	assert.Equal(t, first.Items[1].ID, *res.NextItemID)

	_, err = f.practiceSvc.SubmitItem(f.ctx(), 1, first.Session.ID, item.ID, SubmitAnswerRequest{Answer: answer("A")})
	assert.ErrorIs(t, err, util.ErrSessionItemAnswered)
	assert.ErrorIs(t, err, util.ErrConflict)

	_, err = f.practiceSvc.SubmitItem(f.ctx(), 1, first.Session.ID, second.Items[0].ID, SubmitAnswerRequest{Answer: answer("A")})
	assert.ErrorIs(t, err, util.ErrSessionItemNotFound)

	_, err = f.practiceSvc.SubmitItem(f.ctx(), 2, first.Session.ID, first.Items[1].ID, SubmitAnswerRequest{Answer: answer("A")})
	assert.ErrorIs(t, err, util.ErrSessionNotFound)

	session, err := f.practice.FindSession(f.ctx(), first.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, session.AnsweredCount)
	assert.Equal(t, 0, session.CorrectCount)
}

func TestSubmitShortAnswerCreatesGradingTask(t *testing.T) {
	f := newFixture(t)
	f.addQuestion(t, model.ShortAnswer, "reference", 10)

	detail, err := f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeRandom})
	require.NoError(t, err)

	res, err := f.practiceSvc.SubmitItem(f.ctx(), 1, detail.Session.ID, detail.Items[0].ID,
		SubmitAnswerRequest{Answer: answer("reference")})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePendingManual, res.Outcome)
	assert.Nil(t, res.IsCorrect)
	assert.Nil(t, res.Record.Score)

	task, err := f.gradingRepo.FindByRecordID(f.ctx(), res.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GradingPending, task.Status)
	assert.Equal(t, uint(1), task.StudentID)

	var wrong int64
	require.NoError(t, f.db.Model(&model.WrongBook{}).Count(&wrong).Error)
	assert.Zero(t, wrong)
}

func TestSubmitPracticeWrongAnswerUpsertsWrongBook(t *testing.T) {
	f := newFixture(t)
	q := f.addQuestion(t, model.MultipleChoice, []string{"A", "C"}, 5)

	rec, err := f.practiceSvc.SubmitPractice(f.ctx(), 1, SubmitPracticeRequest{QuestionID: q.ID, Answer: answer([]string{"A"})})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeIncorrect, rec.Outcome)
	assert.Nil(t, rec.SessionID)

	wb, err := f.wrongBooks.FindByStudentQuestion(f.ctx(), 1, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, wb.WrongCount)
	assert.Equal(t, 0, wb.ReviewLevel)
	assertSameTime(t, testNow.Add(24*time.Hour), wb.NextReviewAt)

	wb.ReviewLevel = 2
	wb.IsMastered = true
	require.NoError(t, f.wrongBooks.Save(f.ctx(), wb))

	f.clock.Advance(time.Hour)
	_, err = f.practiceSvc.SubmitPractice(f.ctx(), 1, SubmitPracticeRequest{QuestionID: q.ID, Answer: answer([]string{"B"})})
	require.NoError(t, err)

	wb, err = f.wrongBooks.FindByStudentQuestion(f.ctx(), 1, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, wb.WrongCount)
	assert.Equal(t, 0, wb.ReviewLevel)
	assert.False(t, wb.IsMastered)
	assert.JSONEq(t, `["B"]`, wb.LastWrongAnswer)
	assertSameTime(t, testNow.Add(25*time.Hour), wb.NextReviewAt)

	rec, err = f.practiceSvc.SubmitPractice(f.ctx(), 1, SubmitPracticeRequest{QuestionID: q.ID, Answer: answer([]string{"C", "A"})})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCorrect, rec.Outcome)

	_, err = f.practiceSvc.SubmitPractice(f.ctx(), 1, SubmitPracticeRequest{QuestionID: 999, Answer: answer("A")})
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestReviewSessionFromDailyTasks(t *testing.T) {
	f := newFixture(t)
	q := f.addQuestion(t, model.SingleChoice, "A", 5)
	due := testNow.Add(-time.Hour)
	wb := &model.WrongBook{StudentID: 1, QuestionID: q.ID, WrongCount: 1, NextReviewAt: &due}
	require.NoError(t, f.wrongBooks.Create(f.ctx(), wb))

	gen, err := f.reviewTaskSvc.GenerateForDate(f.ctx(), "2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, 1, gen.GeneratedCount)

	detail, err := f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeReview})
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, model.SourceReview, detail.Items[0].SourceType)

	res, err := f.practiceSvc.SubmitReviewItem(f.ctx(), 1, detail.Items[0].ID, SubmitAnswerRequest{Answer: answer("A")})
	require.NoError(t, err)
	assert.Equal(t, model.AttemptReview, res.Record.AttemptType)

	wb, err = f.wrongBooks.FindByStudentQuestion(f.ctx(), 1, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, wb.ReviewLevel)
	assert.Equal(t, string(model.OutcomeCorrect), wb.LastReviewResult)
	assertSameTime(t, testNow.Add(3*24*time.Hour), wb.NextReviewAt)

	summary, err := f.reviewTaskSvc.Summary(f.ctx(), "2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Done)
	assert.Equal(t, int64(0), summary.Pending)
}

func TestReviewSessionFallsBackToDueWrongBook(t *testing.T) {
	f := newFixture(t)
	q1 := f.addQuestion(t, model.SingleChoice, "A", 5)
	q2 := f.addQuestion(t, model.SingleChoice, "A", 5)
	q3 := f.addQuestion(t, model.SingleChoice, "A", 5)
	later := testNow.Add(48 * time.Hour)
	earlier := testNow.Add(-48 * time.Hour)
	require.NoError(t, f.wrongBooks.Create(f.ctx(), &model.WrongBook{StudentID: 1, QuestionID: q1.ID, NextReviewAt: &earlier}))
	require.NoError(t, f.wrongBooks.Create(f.ctx(), &model.WrongBook{StudentID: 1, QuestionID: q2.ID}))
	require.NoError(t, f.wrongBooks.Create(f.ctx(), &model.WrongBook{StudentID: 1, QuestionID: q3.ID, NextReviewAt: &later}))

	detail, err := f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeReview})
	require.NoError(t, err)
	require.Len(t, detail.Items, 2)
	assert.Equal(t, q2.ID, detail.Items[0].QuestionID)
	assert.Equal(t, q1.ID, detail.Items[1].QuestionID)

	_, err = f.practiceSvc.CreateSession(f.ctx(), 2, CreateSessionRequest{Mode: model.ModeReview})
	assert.ErrorIs(t, err, util.ErrNoCandidateQuestions)
}

func TestCurrentItemAndCompletion(t *testing.T) {
	f := newFixture(t)
	f.addQuestion(t, model.TrueFalse, true, 2)
	f.addQuestion(t, model.TrueFalse, false, 2)

	detail, err := f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeRandom})
	require.NoError(t, err)
	sid := detail.Session.ID

	current, err := f.practiceSvc.GetCurrentItem(f.ctx(), 1, sid)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 1, current.Item.Seq)
	assert.Equal(t, current.Item.QuestionID, current.Question.ID)

	_, err = f.practiceSvc.SubmitItem(f.ctx(), 1, sid, current.Item.ID, SubmitAnswerRequest{Answer: answer(true)})
	require.NoError(t, err)

	current, err = f.practiceSvc.GetCurrentItem(f.ctx(), 1, sid)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, 2, current.Item.Seq)

	session, err := f.practiceSvc.CompleteSession(f.ctx(), 1, sid)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, session.Status)
	require.NotNil(t, session.EndedAt)

	session, err = f.practiceSvc.CompleteSession(f.ctx(), 1, sid)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, session.Status)

	current, err = f.practiceSvc.GetCurrentItem(f.ctx(), 1, sid)
	require.NoError(t, err)
	assert.Nil(t, current)

	_, err = f.practiceSvc.SubmitItem(f.ctx(), 1, sid, detail.Items[1].ID, SubmitAnswerRequest{Answer: answer(false)})
	assert.ErrorIs(t, err, util.ErrSessionNotActive)

	page, err := f.practiceSvc.ListSessions(f.ctx(), repository.SessionListFilter{StudentID: 1}, util.PageQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestSessionMetrics(t *testing.T) {
	f := newFixture(t)
	q1 := f.addQuestion(t, model.SingleChoice, "A", 5)
	q2 := f.addQuestion(t, model.SingleChoice, "A", 5)
	q3 := f.addQuestion(t, model.SingleChoice, "A", 5)
	loops := f.addKnowledgePoint(t, "loops", q1.ID, q2.ID)
	f.addKnowledgePoint(t, "arrays", q3.ID)

	detail, err := f.practiceSvc.CreateSession(f.ctx(), 1, CreateSessionRequest{Mode: model.ModeRandom})
	require.NoError(t, err)
	require.Len(t, detail.Items, 3)
	assert.Zero(t, detail.Metrics.TotalDurationSeconds)

	for _, item := range detail.Items {
		ans := "A"
		if item.QuestionID == q2.ID {
			ans = "B"
		}
		_, err := f.practiceSvc.SubmitItem(f.ctx(), 1, detail.Session.ID, item.ID,
			SubmitAnswerRequest{Answer: answer(ans), DurationSeconds: 20})
		require.NoError(t, err)
	}

	got, err := f.practiceSvc.GetSession(f.ctx(), 1, detail.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Metrics.TotalDurationSeconds)
	require.Len(t, got.Metrics.WeakKnowledgePoints, 1)
	weak := got.Metrics.WeakKnowledgePoints[0]
	assert.Equal(t, loops.ID, weak.KnowledgePointID)
	assert.Equal(t, int64(2), weak.Attempts)
	assert.Equal(t, 0.5, weak.CorrectRate)
}

func TestRankWeakKnowledgePoints(t *testing.T) {
	rows := []repository.KnowledgePointOutcome{
		{KnowledgePointID: 1, Name: "full", Attempts: 4, Correct: 4},
		{KnowledgePointID: 2, Name: "half", Attempts: 4, Correct: 2},
		{KnowledgePointID: 3, Name: "low", Attempts: 5, Correct: 1},
	}
	weak := RankWeakKnowledgePoints(rows)
	require.Len(t, weak, 2)
	assert.Equal(t, uint(3), weak[0].KnowledgePointID)
	assert.InDelta(t, 0.2, weak[0].CorrectRate, 1e-9)
	assert.Equal(t, uint(2), weak[1].KnowledgePointID)
	assert.InDelta(t, 0.5, weak[1].CorrectRate, 1e-9)
}

func TestRankWeakKnowledgePointsTieBreakAndLimit(t *testing.T) {
	rows := []repository.KnowledgePointOutcome{
		{KnowledgePointID: 1, Name: "b", Attempts: 2, Correct: 1},
		{KnowledgePointID: 2, Name: "a", Attempts: 2, Correct: 1},
		{KnowledgePointID: 3, Name: "c", Attempts: 4, Correct: 2},
		{KnowledgePointID: 4, Name: "d", Attempts: 1, Correct: 0},
		{KnowledgePointID: 5, Name: "e", Attempts: 3, Correct: 0},
		{KnowledgePointID: 6, Name: "f", Attempts: 10, Correct: 9},
		{KnowledgePointID: 7, Name: "g", Attempts: 0, Correct: 0},
	}
	weak := RankWeakKnowledgePoints(rows)
	require.Len(t, weak, 5)
	var ids []uint
	for _, w := range weak {
		ids = append(ids, w.KnowledgePointID)
	}
	assert.Equal(t, []uint{5, 4, 3, 2, 1}, ids)
}

func TestNotFoundAs(t *testing.T) {
	boom := errors.New("boom")
	assert.Equal(t, boom, notFoundAs(boom, util.ErrSessionNotFound))
	assert.ErrorIs(t, notFoundAs(gorm.ErrRecordNotFound, util.ErrSessionNotFound), util.ErrNotFound)
}
