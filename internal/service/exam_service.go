package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"exam_practice_backend/internal/event"
	"exam_practice_backend/internal/judge"
	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/util"
	"exam_practice_backend/pkg/logger"
	"exam_practice_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ExamService struct {
	ExamRepo     *repository.ExamRepository
	QuestionRepo *repository.QuestionRepository
	Cache        *repository.PaperCache
	Grading      *GradingService
	Events       *event.Bus
	DB           *gorm.DB
	Clock        util.Clock
}

func NewExamService(examRepo *repository.ExamRepository, questionRepo *repository.QuestionRepository, cache *repository.PaperCache, grading *GradingService, events *event.Bus, db *gorm.DB, clock util.Clock) *ExamService {
	return &ExamService{
		ExamRepo:     examRepo,
		QuestionRepo: questionRepo,
		Cache:        cache,
		Grading:      grading,
		Events:       events,
		DB:           db,
		Clock:        clock,
	}
}

type PaperItemRequest struct {
	QuestionID uint    `json:"questionId" binding:"required"`
	Score      float64 `json:"score"`
}

type PaperRequest struct {
	Title           string             `json:"title" binding:"required"`
	Description     string             `json:"description"`
	DurationMinutes int                `json:"durationMinutes" binding:"required"`
	Items           []PaperItemRequest `json:"items"`
}

type AttemptSubmitResult struct {
	Item        *model.ExamAttemptItem `json:"item"`
	Outcome     model.AnswerOutcome    `json:"outcome"`
	IsCorrect   *bool                  `json:"isCorrect"`
	IsCompleted bool                   `json:"isCompleted"`
	NextItemID  *uint                  `json:"nextItemId"`
}

type GradeItemRequest struct {
	Score     float64 `json:"score"`
	IsCorrect *bool   `json:"isCorrect,omitempty"`
}

// AttemptReport 作答报告：主观分在人工评分全部完成前为 null
type AttemptReport struct {
	Attempt            *model.ExamAttempt      `json:"attempt"`
	PaperTitle         string                  `json:"paperTitle"`
	PaperTotalScore    float64                 `json:"paperTotalScore"`
	Items              []model.ExamAttemptItem `json:"items"`
	PendingManualCount int                     `json:"pendingManualCount"`
}

func (s *ExamService) buildPaperItems(ctx context.Context, reqs []PaperItemRequest) ([]model.ExamPaperItem, float64, error) {
	seen := make(map[uint]bool, len(reqs))
	ids := make([]uint, 0, len(reqs))
	for _, it := range reqs {
		if seen[it.QuestionID] {
			return nil, 0, util.ErrDuplicateQuestion
		}
		if it.Score < 0 {
			return nil, 0, util.ErrNegativeScore
		}
		seen[it.QuestionID] = true
		ids = append(ids, it.QuestionID)
	}
	questions, err := s.QuestionRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	if len(questions) != len(ids) {
		return nil, 0, util.ErrUnknownQuestion
	}

	var total float64
	items := make([]model.ExamPaperItem, 0, len(reqs))
	for i, it := range reqs {
		items = append(items, model.ExamPaperItem{
			QuestionID: it.QuestionID,
			Seq:        i + 1,
			Score:      it.Score,
		})
		total += it.Score
	}
	return items, total, nil
}

func validatePaper(req PaperRequest) error {
	if strings.TrimSpace(req.Title) == "" || req.DurationMinutes <= 0 {
		return util.ErrInvalidPaper
	}
	return nil
}

func (s *ExamService) CreatePaper(ctx context.Context, adminID uint, req PaperRequest) (*model.ExamPaper, error) {
	if err := validatePaper(req); err != nil {
		return nil, err
	}
	items, total, err := s.buildPaperItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	paper := &model.ExamPaper{
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		TotalScore:      total,
		Status:          model.PaperDraft,
		CreatedBy:       adminID,
		Items:           items,
	}
	if err := s.ExamRepo.CreatePaper(ctx, paper); err != nil {
		return nil, err
	}
	return s.ExamRepo.FindPaper(ctx, paper.ID, true)
}

// UpdatePaper 只有草稿可以修改，题目整体替换
func (s *ExamService) UpdatePaper(ctx context.Context, paperID uint, req PaperRequest) (*model.ExamPaper, error) {
	paper, err := s.ExamRepo.FindPaper(ctx, paperID, false)
	if err != nil {
		return nil, notFoundAs(err, util.ErrPaperNotFound)
	}
	if paper.Status == model.PaperPublished {
		return nil, util.ErrPaperPublished
	}
	if err := validatePaper(req); err != nil {
		return nil, err
	}
	items, total, err := s.buildPaperItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	paper.Title = strings.TrimSpace(req.Title)
	paper.Description = req.Description
	paper.DurationMinutes = req.DurationMinutes
	paper.TotalScore = total
	paper.Items = items
	if err := s.ExamRepo.ReplacePaper(ctx, paper); err != nil {
		return nil, err
	}
	return s.ExamRepo.FindPaper(ctx, paperID, true)
}

// PublishPaper 已发布的试卷重复发布直接返回当前状态
func (s *ExamService) PublishPaper(ctx context.Context, paperID uint) (*model.ExamPaper, error) {
	paper, err := s.ExamRepo.FindPaper(ctx, paperID, true)
	if err != nil {
		return nil, notFoundAs(err, util.ErrPaperNotFound)
	}
	if paper.Status == model.PaperPublished {
		return paper, nil
	}
	if len(paper.Items) == 0 {
		return nil, util.ErrEmptyPaper
	}
	if _, err := s.ExamRepo.PublishPaper(ctx, paperID, nowOf(s.Clock)); err != nil {
		return nil, err
	}
	published, err := s.ExamRepo.FindPaper(ctx, paperID, true)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.Set(ctx, published); err != nil {
		logger.Log.Warn("Failed to cache published paper", zap.Uint("paperID", paperID), zap.Error(err))
	}
	return published, nil
}

// ListPapers 学生只能看到已发布试卷
func (s *ExamService) ListPapers(ctx context.Context, role model.UserRole, status model.PaperStatus, page util.PageQuery) (util.PageResult, error) {
	if role == model.Student {
		status = model.PaperPublished
	}
	page = page.Normalize()
	papers, total, err := s.ExamRepo.ListPapers(ctx, status, page)
	if err != nil {
		return util.PageResult{}, err
	}
	return util.NewPageResult(papers, total, page), nil
}

func (s *ExamService) GetPaper(ctx context.Context, role model.UserRole, paperID uint) (*model.ExamPaper, error) {
	if cached, ok := s.Cache.Get(ctx, paperID); ok {
		return cached, nil
	}
	paper, err := s.ExamRepo.FindPaper(ctx, paperID, true)
	if err != nil {
		return nil, notFoundAs(err, util.ErrPaperNotFound)
	}
	if paper.Status != model.PaperPublished {
		if role == model.Student {
			return nil, util.ErrPaperNotFound
		}
		return paper, nil
	}
	if err := s.Cache.Set(ctx, paper); err != nil {
		logger.Log.Warn("Failed to cache published paper", zap.Uint("paperID", paperID), zap.Error(err))
	}
	return paper, nil
}

// StartAttempt 开考时快照试卷题目，简答题预先标记为人工评分
func (s *ExamService) StartAttempt(ctx context.Context, studentID, paperID uint) (*model.ExamAttempt, error) {
	paper, err := s.ExamRepo.FindPaper(ctx, paperID, true)
	if err != nil {
		return nil, notFoundAs(err, util.ErrPaperNotFound)
	}
	if paper.Status != model.PaperPublished {
		return nil, util.ErrPaperNotFound
	}

	var attempt *model.ExamAttempt
	err = repository.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		if err := s.ExamRepo.LockPaper(ctx, paperID); err != nil {
			return notFoundAs(err, util.ErrPaperNotFound)
		}
		_, err := s.ExamRepo.FindActiveAttempt(ctx, paperID, studentID)
		if err == nil {
			return util.ErrAttemptAlreadyActive
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		ids := make([]uint, 0, len(paper.Items))
		for _, it := range paper.Items {
			ids = append(ids, it.QuestionID)
		}
		questions, err := s.QuestionRepo.FindByIDs(ctx, ids)
		if err != nil {
			return err
		}

		items := make([]model.ExamAttemptItem, 0, len(paper.Items))
		for _, it := range paper.Items {
			qType := questions[it.QuestionID].Type
			items = append(items, model.ExamAttemptItem{
				PaperItemID:        it.ID,
				QuestionID:         it.QuestionID,
				QuestionType:       qType,
				Seq:                it.Seq,
				FullScore:          it.Score,
				Outcome:            model.OutcomeUnanswered,
				NeedsManualGrading: qType == model.ShortAnswer,
			})
		}
		attempt = &model.ExamAttempt{
			PaperID:   paperID,
			StudentID: studentID,
			Status:    model.AttemptActive,
			StartedAt: nowOf(s.Clock),
			Items:     items,
		}
		return s.ExamRepo.CreateAttempt(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Exam attempt started",
		zap.Uint("attemptID", attempt.ID),
		zap.Uint("paperID", paperID),
		zap.Uint("studentID", studentID))
	return s.ExamRepo.FindAttempt(ctx, attempt.ID, true)
}

func (s *ExamService) loadAttempt(ctx context.Context, studentID, attemptID uint) (*model.ExamAttempt, error) {
	attempt, err := s.ExamRepo.FindAttempt(ctx, attemptID, false)
	if err != nil {
		return nil, notFoundAs(err, util.ErrAttemptNotFound)
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *ExamService) SubmitAttemptItem(ctx context.Context, studentID, attemptID, itemID uint, answer json.RawMessage) (*AttemptSubmitResult, error) {
	attempt, err := s.loadAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptActive {
		return nil, util.ErrAttemptNotActive
	}

	paper, err := s.ExamRepo.FindPaper(ctx, attempt.PaperID, false)
	if err != nil {
		return nil, notFoundAs(err, util.ErrPaperNotFound)
	}
	now := nowOf(s.Clock)
	deadline := attempt.StartedAt.Add(time.Duration(paper.DurationMinutes) * time.Minute)
	if !now.Before(deadline) {
		if _, err := s.FinalizeAttempt(ctx, attemptID, model.AttemptTimeout); err != nil {
			return nil, err
		}
		return nil, util.ErrAttemptTimedOut
	}

	item, err := s.ExamRepo.FindAttemptItem(ctx, attemptID, itemID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrAttemptItemNotFound)
	}
	if item.SubmittedAt != nil {
		return nil, util.ErrItemAlreadySubmitted
	}
	q, err := s.QuestionRepo.FindByID(ctx, item.QuestionID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrQuestionNotFound)
	}

	raw := rawAnswer(answer)
	outcome := judge.Judge(q.Type, q.Answer, raw).Outcome()
	item.SubmittedAnswer = raw
	item.Outcome = outcome
	item.SubmittedAt = &now
	switch outcome {
	case model.OutcomePendingManual:
		item.NeedsManualGrading = true
		item.Score = nil
	case model.OutcomeCorrect:
		item.Score = floatPtr(item.FullScore)
	default:
		item.Score = floatPtr(0)
	}

	err = repository.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		ok, err := s.ExamRepo.SubmitItem(ctx, item)
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrItemAlreadySubmitted
		}
		if outcome == model.OutcomePendingManual && s.Grading != nil {
			if err := s.Grading.openForExamItem(ctx, studentID, item, now); err != nil {
				return err
			}
		}
		if s.Events == nil {
			return nil
		}
		return s.Events.PublishAnswerSubmitted(ctx, event.AnswerSubmitted{
			StudentID:       studentID,
			QuestionID:      item.QuestionID,
			QuestionType:    q.Type,
			AttemptType:     model.AttemptExam,
			Outcome:         outcome,
			SubmittedAnswer: raw,
			At:              now,
		})
	})
	if err != nil {
		return nil, err
	}
	monitoring.AnswersJudged.WithLabelValues(string(q.Type), string(model.AttemptExam), string(outcome)).Inc()

	items, err := s.ExamRepo.ListAttemptItems(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	result := &AttemptSubmitResult{
		Item:        item,
		Outcome:     outcome,
		IsCorrect:   outcome.IsCorrect(),
		IsCompleted: true,
	}
	for _, it := range items {
		if it.SubmittedAt == nil {
			result.IsCompleted = false
			result.NextItemID = uintPtr(it.ID)
			break
		}
	}
	return result, nil
}

// FinishAttempt 对已结束的作答直接返回报告
func (s *ExamService) FinishAttempt(ctx context.Context, studentID, attemptID uint) (*AttemptReport, error) {
	attempt, err := s.loadAttempt(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status == model.AttemptActive {
		if _, err := s.FinalizeAttempt(ctx, attemptID, model.AttemptCompleted); err != nil {
			return nil, err
		}
	}
	return s.report(ctx, attemptID)
}

// FinalizeAttempt 交卷和超时共用：条件更新保证只结束一次，之后重算成绩
func (s *ExamService) FinalizeAttempt(ctx context.Context, attemptID uint, status model.AttemptStatus) (*model.ExamAttempt, error) {
	attempt, _, err := s.finalize(ctx, attemptID, status)
	return attempt, err
}

// TimeoutAttempt 返回本次调用是否真正把作答切换为 timeout，被交卷抢先时为 false
func (s *ExamService) TimeoutAttempt(ctx context.Context, attemptID uint) (bool, error) {
	_, changed, err := s.finalize(ctx, attemptID, model.AttemptTimeout)
	return changed, err
}

func (s *ExamService) finalize(ctx context.Context, attemptID uint, status model.AttemptStatus) (*model.ExamAttempt, bool, error) {
	attempt, err := s.ExamRepo.FindAttempt(ctx, attemptID, false)
	if err != nil {
		return nil, false, notFoundAs(err, util.ErrAttemptNotFound)
	}
	if attempt.Status.Terminal() {
		return attempt, false, nil
	}

	now := nowOf(s.Clock)
	var changed bool
	err = repository.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		ok, err := s.ExamRepo.FinalizeAttempt(ctx, attemptID, status, now, elapsedSeconds(attempt.StartedAt, now))
		if err != nil || !ok {
			return err
		}
		changed = true
		if err := s.ExamRepo.StampUnanswered(ctx, attemptID); err != nil {
			return err
		}
		_, err = s.RecomputeScore(ctx, attemptID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		logger.Log.Info("Exam attempt finalized",
			zap.Uint("attemptID", attemptID),
			zap.String("status", string(status)))
	}
	latest, err := s.ExamRepo.FindAttempt(ctx, attemptID, false)
	if err != nil {
		return nil, false, err
	}
	return latest, changed, nil
}

func (s *ExamService) RecomputeScore(ctx context.Context, attemptID uint) (repository.ScoreSummary, error) {
	return recomputeAttemptScore(ctx, s.ExamRepo, attemptID)
}

// recomputeAttemptScore 每次都从已落库的题目重新汇总
func recomputeAttemptScore(ctx context.Context, repo *repository.ExamRepository, attemptID uint) (repository.ScoreSummary, error) {
	items, err := repo.ListAttemptItems(ctx, attemptID)
	if err != nil {
		return repository.ScoreSummary{}, err
	}
	summary := SummarizeAttempt(items)
	if err := repo.SaveScoreSummary(ctx, attemptID, summary); err != nil {
		return repository.ScoreSummary{}, err
	}
	return summary, nil
}

// SummarizeAttempt 客观分为非人工题得分之和；主观分只在没有待评分题目时给出
func SummarizeAttempt(items []model.ExamAttemptItem) repository.ScoreSummary {
	var (
		summary    repository.ScoreSummary
		subjective float64
	)
	for _, it := range items {
		var score float64
		if it.Score != nil {
			score = *it.Score
		}
		if it.NeedsManualGrading {
			if it.PendingManual() {
				summary.PendingManualCount++
			}
			subjective += score
			continue
		}
		summary.ObjectiveScore += score
	}
	summary.NeedsManualGrading = summary.PendingManualCount > 0
	summary.TotalScore = summary.ObjectiveScore
	if !summary.NeedsManualGrading {
		summary.SubjectiveScore = floatPtr(subjective)
		summary.TotalScore += subjective
	}
	return summary
}

// GetAttemptReport 学生只能查看自己的作答，阅卷角色可以查看全部
func (s *ExamService) GetAttemptReport(ctx context.Context, requesterID uint, role model.UserRole, attemptID uint) (*AttemptReport, error) {
	if !role.CanGrade() {
		if _, err := s.loadAttempt(ctx, requesterID, attemptID); err != nil {
			return nil, err
		}
	}
	return s.report(ctx, attemptID)
}

func (s *ExamService) report(ctx context.Context, attemptID uint) (*AttemptReport, error) {
	attempt, err := s.ExamRepo.FindAttempt(ctx, attemptID, true)
	if err != nil {
		return nil, notFoundAs(err, util.ErrAttemptNotFound)
	}
	report := &AttemptReport{Attempt: attempt, Items: attempt.Items}
	for _, it := range attempt.Items {
		if it.PendingManual() {
			report.PendingManualCount++
		}
	}
	paper, err := s.ExamRepo.FindPaper(ctx, attempt.PaperID, false)
	switch {
	case err == nil:
		report.PaperTitle = paper.Title
		report.PaperTotalScore = paper.TotalScore
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return report, nil
}

// GradeAttemptItem 只能在作答结束后给已提交的人工题评分，对应的阅卷任务一并完成
func (s *ExamService) GradeAttemptItem(ctx context.Context, graderID, attemptID, itemID uint, req GradeItemRequest) (*AttemptReport, error) {
	attempt, err := s.ExamRepo.FindAttempt(ctx, attemptID, false)
	if err != nil {
		return nil, notFoundAs(err, util.ErrAttemptNotFound)
	}
	if attempt.Status == model.AttemptActive {
		return nil, util.ErrAttemptStillActive
	}
	item, err := s.ExamRepo.FindAttemptItem(ctx, attemptID, itemID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrAttemptItemNotFound)
	}
	if !item.NeedsManualGrading {
		return nil, util.ErrItemNotManual
	}
	if item.SubmittedAt == nil {
		return nil, util.ErrItemNotSubmitted
	}
	if req.Score < 0 {
		return nil, util.ErrNegativeScore
	}
	if req.Score > item.FullScore {
		return nil, util.ErrScoreExceedsFull
	}

	correct := req.Score == item.FullScore
	if req.IsCorrect != nil {
		correct = *req.IsCorrect
	}
	now := nowOf(s.Clock)
	item.Score = floatPtr(req.Score)
	item.Outcome = model.OutcomeFromBool(correct)
	item.GradedAt = &now
	item.GradedBy = uintPtr(graderID)

	err = repository.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		if err := s.ExamRepo.GradeItem(ctx, item); err != nil {
			return err
		}
		if s.Grading != nil {
			if err := s.Grading.closeForExamItem(ctx, item, graderID, correct, now); err != nil {
				return err
			}
		}
		_, err := s.RecomputeScore(ctx, attemptID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.report(ctx, attemptID)
}
