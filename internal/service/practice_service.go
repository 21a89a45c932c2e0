package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sort"
	"time"

	"exam_practice_backend/internal/event"
	"exam_practice_backend/internal/judge"
	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/util"
	"exam_practice_backend/pkg/logger"
	"exam_practice_backend/pkg/monitoring"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const maxWeakKnowledgePoints = 5

type PracticeService struct {
	PracticeRepo   *repository.PracticeRepository
	QuestionRepo   *repository.QuestionRepository
	WrongBookRepo  *repository.WrongBookRepository
	ReviewTaskRepo *repository.ReviewTaskRepository
	Grading        *GradingService
	Events         *event.Bus
	DB             *gorm.DB
	Clock          util.Clock

	DefaultSize int
	MaxSize     int
}

func NewPracticeService(
	practiceRepo *repository.PracticeRepository,
	questionRepo *repository.QuestionRepository,
	wrongBookRepo *repository.WrongBookRepository,
	reviewTaskRepo *repository.ReviewTaskRepository,
	grading *GradingService,
	events *event.Bus,
	db *gorm.DB,
	clock util.Clock,
) *PracticeService {
	return &PracticeService{
		PracticeRepo:   practiceRepo,
		QuestionRepo:   questionRepo,
		WrongBookRepo:  wrongBookRepo,
		ReviewTaskRepo: reviewTaskRepo,
		Grading:        grading,
		Events:         events,
		DB:             db,
		Clock:          clock,
		DefaultSize:    10,
		MaxSize:        100,
	}
}

type CreateSessionRequest struct {
	Mode              model.PracticeMode   `json:"mode" binding:"required"`
	Count             int                  `json:"count"`
	CategoryID        *uint                `json:"categoryId,omitempty"`
	Types             []model.QuestionType `json:"types,omitempty"`
	Difficulty        *int                 `json:"difficulty,omitempty"`
	TagIDs            []uint               `json:"tagIds,omitempty"`
	KnowledgePointIDs []uint               `json:"knowledgePointIds,omitempty"`
}

type SubmitAnswerRequest struct {
	Answer          json.RawMessage `json:"answer" swaggertype:"object"`
	DurationSeconds int             `json:"durationSeconds"`
}

type SubmitPracticeRequest struct {
	QuestionID      uint            `json:"questionId" binding:"required"`
	Answer          json.RawMessage `json:"answer" swaggertype:"object"`
	DurationSeconds int             `json:"durationSeconds"`
}

type WeakKnowledgePoint struct {
	KnowledgePointID uint    `json:"knowledgePointId"`
	Name             string  `json:"name"`
	Attempts         int64   `json:"attempts"`
	Correct          int64   `json:"correct"`
	CorrectRate      float64 `json:"correctRate"`
}

type SessionMetrics struct {
	TotalDurationSeconds int64                `json:"totalDurationSeconds"`
	WeakKnowledgePoints  []WeakKnowledgePoint `json:"weakKnowledgePoints"`
}

type SessionDetail struct {
	Session *model.PracticeSession      `json:"session"`
	Items   []model.PracticeSessionItem `json:"items"`
	Metrics SessionMetrics              `json:"metrics"`
}

type CurrentItem struct {
	Item     *model.PracticeSessionItem `json:"item"`
	Question *model.Question            `json:"question"`
}

type SubmitItemResult struct {
	Record           *model.PracticeRecord `json:"record"`
	Outcome          model.AnswerOutcome   `json:"outcome"`
	IsCorrect        *bool                 `json:"isCorrect"`
	AnsweredCount    int                   `json:"answeredCount"`
	TotalCount       int                   `json:"totalCount"`
	SessionCompleted bool                  `json:"sessionCompleted"`
	NextItemID       *uint                 `json:"nextItemId"`
}

// answerInput 独立练习和会话作答共用的提交参数
type answerInput struct {
	StudentID       uint
	QuestionID      uint
	Answer          json.RawMessage
	DurationSeconds int
	AttemptType     model.AttemptType
	SessionID       *uint
	SessionItemID   *uint
}

func (s *PracticeService) sessionSize(requested int) int {
	size := requested
	if size <= 0 {
		size = s.DefaultSize
	}
	if s.MaxSize > 0 && size > s.MaxSize {
		size = s.MaxSize
	}
	if size <= 0 {
		size = 10
	}
	return size
}

func (s *PracticeService) CreateSession(ctx context.Context, studentID uint, req CreateSessionRequest) (*SessionDetail, error) {
	if !req.Mode.Valid() {
		return nil, util.ErrInvalidMode
	}
	if req.Mode == model.ModeCategory && req.CategoryID == nil {
		return nil, util.ErrCategoryRequired
	}
	if req.Mode == model.ModeKnowledge && len(req.KnowledgePointIDs) == 0 {
		return nil, util.ErrKnowledgePointRequired
	}

	now := nowOf(s.Clock)
	count := s.sessionSize(req.Count)

	var (
		questionIDs []uint
		source      = model.SourceNormal
		err         error
	)
	if req.Mode == model.ModeReview {
		source = model.SourceReview
		questionIDs, err = s.reviewCandidates(ctx, studentID, now, count)
	} else {
		questionIDs, err = s.randomCandidates(ctx, req, count)
	}
	if err != nil {
		return nil, err
	}
	if len(questionIDs) == 0 {
		return nil, util.ErrNoCandidateQuestions
	}

	cfg, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	session := &model.PracticeSession{
		StudentID:  studentID,
		Mode:       req.Mode,
		Config:     string(cfg),
		Status:     model.SessionActive,
		TotalCount: len(questionIDs),
		StartedAt:  now,
	}
	items := make([]model.PracticeSessionItem, 0, len(questionIDs))
	for i, qid := range questionIDs {
		items = append(items, model.PracticeSessionItem{
			QuestionID: qid,
			Seq:        i + 1,
			SourceType: source,
			Status:     model.ItemPending,
		})
	}
	if err := s.PracticeRepo.CreateSession(ctx, session, items); err != nil {
		return nil, err
	}

	logger.Log.Info("Practice session created",
		zap.Uint("sessionID", session.ID),
		zap.Uint("studentID", studentID),
		zap.String("mode", string(req.Mode)),
		zap.Int("items", len(items)))
	return s.GetSession(ctx, studentID, session.ID)
}

// reviewCandidates 优先取当天待办复习任务，没有时回退到已到期的错题
func (s *PracticeService) reviewCandidates(ctx context.Context, studentID uint, now time.Time, count int) ([]uint, error) {
	tasks, err := s.ReviewTaskRepo.PendingForStudent(ctx, studentID, util.RunDate(now), count)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]bool)
	var ids []uint
	for _, t := range tasks {
		if !seen[t.QuestionID] {
			seen[t.QuestionID] = true
			ids = append(ids, t.QuestionID)
		}
	}
	if len(ids) > 0 {
		return ids, nil
	}

	due, err := s.WrongBookRepo.DueForStudent(ctx, studentID, now, count)
	if err != nil {
		return nil, err
	}
	for _, wb := range due {
		ids = append(ids, wb.QuestionID)
	}
	return ids, nil
}

func (s *PracticeService) randomCandidates(ctx context.Context, req CreateSessionRequest, count int) ([]uint, error) {
	ids, err := s.QuestionRepo.FindCandidateIDs(ctx, repository.QuestionFilter{
		CategoryID:        req.CategoryID,
		Types:             req.Types,
		Difficulty:        req.Difficulty,
		TagIDs:            req.TagIDs,
		KnowledgePointIDs: req.KnowledgePointIDs,
	})
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) > count {
		ids = ids[:count]
	}
	return ids, nil
}

// loadSession 会话不存在或不属于该学生都视为不存在
func (s *PracticeService) loadSession(ctx context.Context, studentID, sessionID uint) (*model.PracticeSession, error) {
	session, err := s.PracticeRepo.FindSession(ctx, sessionID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrSessionNotFound)
	}
	if session.StudentID != studentID {
		return nil, util.ErrSessionNotFound
	}
	return session, nil
}

func (s *PracticeService) ListSessions(ctx context.Context, f repository.SessionListFilter, page util.PageQuery) (util.PageResult, error) {
	page = page.Normalize()
	sessions, total, err := s.PracticeRepo.ListSessions(ctx, f, page)
	if err != nil {
		return util.PageResult{}, err
	}
	return util.NewPageResult(sessions, total, page), nil
}

func (s *PracticeService) GetSession(ctx context.Context, studentID, sessionID uint) (*SessionDetail, error) {
	session, err := s.loadSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	items, err := s.PracticeRepo.ListItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	metrics, err := s.sessionMetrics(ctx, session)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: session, Items: items, Metrics: metrics}, nil
}

func (s *PracticeService) sessionMetrics(ctx context.Context, session *model.PracticeSession) (SessionMetrics, error) {
	var (
		total, records int64
		outcomes       []repository.KnowledgePointOutcome
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, records, err = s.PracticeRepo.SumDurations(gctx, session.ID)
		return err
	})
	g.Go(func() error {
		var err error
		outcomes, err = s.PracticeRepo.KnowledgePointOutcomes(gctx, session.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return SessionMetrics{}, err
	}

	if records == 0 && session.EndedAt != nil {
		total = int64(elapsedSeconds(session.StartedAt, *session.EndedAt))
	}
	return SessionMetrics{
		TotalDurationSeconds: total,
		WeakKnowledgePoints:  RankWeakKnowledgePoints(outcomes),
	}, nil
}

// RankWeakKnowledgePoints 正确率低于 1 的知识点按正确率升序、作答数降序、名称排序，最多取 5 个
func RankWeakKnowledgePoints(rows []repository.KnowledgePointOutcome) []WeakKnowledgePoint {
	weak := make([]WeakKnowledgePoint, 0, len(rows))
	for _, r := range rows {
		if r.Attempts <= 0 || r.Correct >= r.Attempts {
			continue
		}
		weak = append(weak, WeakKnowledgePoint{
			KnowledgePointID: r.KnowledgePointID,
			Name:             r.Name,
			Attempts:         r.Attempts,
			Correct:          r.Correct,
			CorrectRate:      float64(r.Correct) / float64(r.Attempts),
		})
	}
	sort.SliceStable(weak, func(i, j int) bool {
		a, b := weak[i], weak[j]
		if a.CorrectRate != b.CorrectRate {
			return a.CorrectRate < b.CorrectRate
		}
		if a.Attempts != b.Attempts {
			return a.Attempts > b.Attempts
		}
		return a.Name < b.Name
	})
	if len(weak) > maxWeakKnowledgePoints {
		weak = weak[:maxWeakKnowledgePoints]
	}
	return weak
}

// GetCurrentItem 返回序号最小的未作答题目；全部作答后把会话置为完成并返回 nil
func (s *PracticeService) GetCurrentItem(ctx context.Context, studentID, sessionID uint) (*CurrentItem, error) {
	session, err := s.loadSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionActive {
		return nil, nil
	}

	item, err := s.PracticeRepo.FirstPendingItem(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if _, err := s.PracticeRepo.CompleteSession(ctx, sessionID, nowOf(s.Clock)); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	q, err := s.QuestionRepo.FindByID(ctx, item.QuestionID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrQuestionNotFound)
	}
	return &CurrentItem{Item: item, Question: q}, nil
}

func (s *PracticeService) SubmitItem(ctx context.Context, studentID, sessionID, itemID uint, req SubmitAnswerRequest) (*SubmitItemResult, error) {
	session, err := s.loadSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case model.SessionActive:
	case model.SessionAbandoned:
		return nil, util.ErrSessionAbandoned
	default:
		return nil, util.ErrSessionNotActive
	}

	item, err := s.PracticeRepo.FindItem(ctx, itemID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrSessionItemNotFound)
	}
	if item.SessionID != session.ID {
		return nil, util.ErrSessionItemNotFound
	}
	if item.Status == model.ItemAnswered {
		return nil, util.ErrSessionItemAnswered
	}

	attemptType := model.AttemptPractice
	if item.SourceType == model.SourceReview || session.Mode == model.ModeReview {
		attemptType = model.AttemptReview
	}

	var (
		rec       *model.PracticeRecord
		completed bool
	)
	err = repository.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		var err error
		rec, err = s.submitAnswer(ctx, answerInput{
			StudentID:       studentID,
			QuestionID:      item.QuestionID,
			Answer:          req.Answer,
			DurationSeconds: req.DurationSeconds,
			AttemptType:     attemptType,
			SessionID:       uintPtr(session.ID),
			SessionItemID:   uintPtr(item.ID),
		})
		if err != nil {
			return err
		}
		ok, err := s.PracticeRepo.MarkItemAnswered(ctx, item.ID, rec.ID, rec.CreatedAt)
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrSessionItemAnswered
		}
		if err := s.PracticeRepo.IncrementProgress(ctx, session.ID, rec.Outcome == model.OutcomeCorrect); err != nil {
			return err
		}
		completed, err = s.PracticeRepo.CompleteIfFinished(ctx, session.ID, nowOf(s.Clock))
		return err
	})
	if err != nil {
		return nil, err
	}

	latest, err := s.PracticeRepo.FindSession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	result := &SubmitItemResult{
		Record:           rec,
		Outcome:          rec.Outcome,
		IsCorrect:        rec.Outcome.IsCorrect(),
		AnsweredCount:    latest.AnsweredCount,
		TotalCount:       latest.TotalCount,
		SessionCompleted: completed || latest.Status == model.SessionCompleted,
	}
	next, err := s.PracticeRepo.FirstPendingItem(ctx, session.ID)
	switch {
	case err == nil:
		result.NextItemID = uintPtr(next.ID)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return result, nil
}

// SubmitReviewItem 通过题目反查会话后按普通会话作答处理
func (s *PracticeService) SubmitReviewItem(ctx context.Context, studentID, itemID uint, req SubmitAnswerRequest) (*SubmitItemResult, error) {
	item, err := s.PracticeRepo.FindItem(ctx, itemID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrSessionItemNotFound)
	}
	return s.SubmitItem(ctx, studentID, item.SessionID, itemID, req)
}

// SubmitPractice 不属于任何会话的单题练习
func (s *PracticeService) SubmitPractice(ctx context.Context, studentID uint, req SubmitPracticeRequest) (*model.PracticeRecord, error) {
	var rec *model.PracticeRecord
	err := repository.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		var err error
		rec, err = s.submitAnswer(ctx, answerInput{
			StudentID:       studentID,
			QuestionID:      req.QuestionID,
			Answer:          req.Answer,
			DurationSeconds: req.DurationSeconds,
			AttemptType:     model.AttemptPractice,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// submitAnswer 判题、落库、发布作答事件，简答题同时创建阅卷任务
func (s *PracticeService) submitAnswer(ctx context.Context, in answerInput) (*model.PracticeRecord, error) {
	q, err := s.QuestionRepo.FindByID(ctx, in.QuestionID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrQuestionNotFound)
	}

	now := nowOf(s.Clock)
	answer := rawAnswer(in.Answer)
	outcome := judge.Judge(q.Type, q.Answer, answer).Outcome()

	duration := in.DurationSeconds
	if duration < 0 {
		duration = 0
	}
	rec := &model.PracticeRecord{
		StudentID:       in.StudentID,
		QuestionID:      q.ID,
		SessionID:       in.SessionID,
		SessionItemID:   in.SessionItemID,
		AttemptType:     in.AttemptType,
		SubmittedAnswer: answer,
		Outcome:         outcome,
		DurationSeconds: duration,
	}
	rec.CreatedAt = now
	switch outcome {
	case model.OutcomeCorrect:
		rec.Score = floatPtr(q.Score)
	case model.OutcomeIncorrect:
		rec.Score = floatPtr(0)
	}
	if err := s.PracticeRepo.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}
	monitoring.AnswersJudged.WithLabelValues(string(q.Type), string(in.AttemptType), string(outcome)).Inc()

	if outcome == model.OutcomePendingManual {
		if _, err := s.Grading.CreateTask(ctx, rec); err != nil {
			return nil, err
		}
	}

	if s.Events != nil {
		if err := s.Events.PublishAnswerSubmitted(ctx, event.AnswerSubmitted{
			StudentID:       in.StudentID,
			QuestionID:      q.ID,
			QuestionType:    q.Type,
			AttemptType:     in.AttemptType,
			Outcome:         outcome,
			SubmittedAnswer: answer,
			SessionID:       in.SessionID,
			SessionItemID:   in.SessionItemID,
			At:              now,
		}); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// CompleteSession 显式结束会话，已完成时直接返回
func (s *PracticeService) CompleteSession(ctx context.Context, studentID, sessionID uint) (*model.PracticeSession, error) {
	session, err := s.loadSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case model.SessionCompleted:
		return session, nil
	case model.SessionAbandoned:
		return nil, util.ErrSessionAbandoned
	}
	if _, err := s.PracticeRepo.CompleteSession(ctx, sessionID, nowOf(s.Clock)); err != nil {
		return nil, err
	}
	return s.PracticeRepo.FindSession(ctx, sessionID)
}
