package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/util"
	"exam_practice_backend/pkg/logger"
	"exam_practice_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GradingService 简答题人工阅卷：pending → assigned → done，done 可被管理员 reopen
type GradingService struct {
	GradingRepo  *repository.GradingRepository
	PracticeRepo *repository.PracticeRepository
	QuestionRepo *repository.QuestionRepository
	ExamRepo     *repository.ExamRepository
	DB           *gorm.DB
	Clock        util.Clock
}

func NewGradingService(gradingRepo *repository.GradingRepository, practiceRepo *repository.PracticeRepository, questionRepo *repository.QuestionRepository, examRepo *repository.ExamRepository, db *gorm.DB, clock util.Clock) *GradingService {
	return &GradingService{
		GradingRepo:  gradingRepo,
		PracticeRepo: practiceRepo,
		QuestionRepo: questionRepo,
		ExamRepo:     examRepo,
		DB:           db,
		Clock:        clock,
	}
}

type GradingSubmitRequest struct {
	Score    float64  `json:"score"`
	Feedback string   `json:"feedback"`
	Tags     []string `json:"tags"`
	IsPassed bool     `json:"isPassed"`
}

type ReopenRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type GradingTaskDetail struct {
	Task     *model.ManualGradingTask `json:"task"`
	Record   *model.PracticeRecord    `json:"record"`
	Question *model.Question          `json:"question,omitempty"`
}

// CreateTask 每条练习记录只有一个阅卷任务，重复创建返回已有任务
func (s *GradingService) CreateTask(ctx context.Context, rec *model.PracticeRecord) (*model.ManualGradingTask, error) {
	existing, err := s.GradingRepo.FindByRecordID(ctx, rec.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	task := &model.ManualGradingTask{
		PracticeRecordID: rec.ID,
		StudentID:        rec.StudentID,
		QuestionID:       rec.QuestionID,
		Status:           model.GradingPending,
	}
	if err := s.GradingRepo.Create(ctx, task); err != nil {
		return nil, err
	}
	monitoring.GradingTransitions.WithLabelValues(string(model.GradingPending)).Inc()
	return task, nil
}

func (s *GradingService) ListTasks(ctx context.Context, f repository.GradingTaskFilter, page util.PageQuery) (util.PageResult, error) {
	page = page.Normalize()
	tasks, total, err := s.GradingRepo.List(ctx, f, page)
	if err != nil {
		return util.PageResult{}, err
	}
	return util.NewPageResult(tasks, total, page), nil
}

func (s *GradingService) GetTask(ctx context.Context, id uint) (*GradingTaskDetail, error) {
	task, err := s.GradingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, util.ErrGradingTaskNotFound)
	}
	rec, err := s.PracticeRepo.FindRecord(ctx, task.PracticeRecordID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrPracticeRecordMissing)
	}
	detail := &GradingTaskDetail{Task: task, Record: rec}
	q, err := s.QuestionRepo.FindByID(ctx, task.QuestionID)
	switch {
	case err == nil:
		detail.Question = q
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return detail, nil
}

// ClaimTask 先到先得，同一阅卷人重复领取不做修改
func (s *GradingService) ClaimTask(ctx context.Context, id, graderID uint) (*model.ManualGradingTask, error) {
	task, err := s.GradingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, util.ErrGradingTaskNotFound)
	}
	if err := checkOwnership(task, graderID); err != nil {
		return nil, err
	}
	if task.Status == model.GradingAssigned {
		return task, nil
	}

	ok, err := s.GradingRepo.Claim(ctx, id, graderID, nowOf(s.Clock))
	if err != nil {
		return nil, err
	}
	latest, err := s.GradingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, util.ErrGradingTaskNotFound)
	}
	if !ok {
		if err := checkOwnership(latest, graderID); err != nil {
			return nil, err
		}
		return nil, util.ErrTaskOwnedByOther
	}
	monitoring.GradingTransitions.WithLabelValues(string(model.GradingAssigned)).Inc()
	return latest, nil
}

func checkOwnership(task *model.ManualGradingTask, graderID uint) error {
	if task.Status == model.GradingDone {
		return util.ErrTaskDone
	}
	if task.AssigneeID != nil && *task.AssigneeID != graderID {
		return util.ErrTaskOwnedByOther
	}
	return nil
}

// SubmitTask 任务、练习记录和来源题目在同一事务中写入
func (s *GradingService) SubmitTask(ctx context.Context, id, graderID uint, req GradingSubmitRequest) (*model.ManualGradingTask, error) {
	if req.Score < 0 {
		return nil, util.ErrNegativeScore
	}
	task, err := s.GradingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, util.ErrGradingTaskNotFound)
	}
	if err := checkOwnership(task, graderID); err != nil {
		return nil, err
	}
	rec, err := s.PracticeRepo.FindRecord(ctx, task.PracticeRecordID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrPracticeRecordMissing)
	}
	q, err := s.QuestionRepo.FindByID(ctx, task.QuestionID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrQuestionNotFound)
	}
	item, err := s.linkedExamItem(ctx, rec)
	if err != nil {
		return nil, err
	}
	switch {
	case item != nil && req.Score > item.FullScore:
		return nil, util.ErrScoreExceedsFull
	case item == nil && q.Score > 0 && req.Score > q.Score:
		return nil, util.ErrScoreExceedsFull
	}

	now := nowOf(s.Clock)
	if task.AssigneeID == nil {
		task.AssignedAt = &now
	}
	task.AssigneeID = uintPtr(graderID)
	task.Status = model.GradingDone
	task.Score = floatPtr(req.Score)
	task.Feedback = req.Feedback
	task.Tags = model.StringList(req.Tags)
	task.IsPassed = &req.IsPassed
	task.SubmittedAt = &now

	rec.Outcome = model.OutcomeFromBool(req.IsPassed)
	rec.Score = floatPtr(req.Score)
	rec.Feedback = req.Feedback
	rec.Tags = model.StringList(req.Tags)
	rec.IsPassed = &req.IsPassed
	rec.GradedBy = uintPtr(graderID)
	rec.GradedAt = &now

	err = repository.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		ok, err := s.GradingRepo.SubmitResult(ctx, task, graderID)
		if err != nil {
			return err
		}
		if !ok {
			latest, err := s.GradingRepo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if err := checkOwnership(latest, graderID); err != nil {
				return err
			}
			return util.ErrTaskOwnedByOther
		}
		if item != nil {
			item.Score = rec.Score
			item.Outcome = rec.Outcome
			item.GradedAt = &now
			item.GradedBy = uintPtr(graderID)
		}
		return s.writeBack(ctx, rec, item)
	})
	if err != nil {
		return nil, err
	}

	monitoring.GradingTransitions.WithLabelValues(string(model.GradingDone)).Inc()
	logger.Log.Info("Grading task submitted",
		zap.Uint("taskID", id),
		zap.Uint("graderID", graderID),
		zap.Float64("score", req.Score),
		zap.Bool("isPassed", req.IsPassed))
	return s.GradingRepo.FindByID(ctx, id)
}

// ReopenTask 清空任务和记录上的阅卷结果，原因写入任务 feedback
func (s *GradingService) ReopenTask(ctx context.Context, id, adminID uint, reason string) (*model.ManualGradingTask, error) {
	task, err := s.GradingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, util.ErrGradingTaskNotFound)
	}
	if task.Status != model.GradingDone {
		return nil, util.ErrTaskNotDone
	}
	rec, err := s.PracticeRepo.FindRecord(ctx, task.PracticeRecordID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrPracticeRecordMissing)
	}

	rec.Outcome = model.OutcomePendingManual
	rec.Score = nil
	rec.Feedback = ""
	rec.Tags = nil
	rec.IsPassed = nil
	rec.GradedBy = nil
	rec.GradedAt = nil
	item, err := s.linkedExamItem(ctx, rec)
	if err != nil {
		return nil, err
	}
	if item != nil {
		item.Score = nil
		item.Outcome = model.OutcomePendingManual
		item.GradedAt = nil
		item.GradedBy = nil
	}

	err = repository.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		ok, err := s.GradingRepo.Reopen(ctx, id, strings.TrimSpace(reason))
		if err != nil {
			return err
		}
		if !ok {
			return util.ErrTaskNotDone
		}
		return s.writeBack(ctx, rec, item)
	})
	if err != nil {
		return nil, err
	}

	monitoring.GradingTransitions.WithLabelValues(string(model.GradingReopen)).Inc()
	logger.Log.Info("Grading task reopened", zap.Uint("taskID", id), zap.Uint("adminID", adminID))
	return s.GradingRepo.FindByID(ctx, id)
}

// writeBack 阅卷结果回写到来源：练习会话重算正确数，考试题目重算作答成绩
func (s *GradingService) writeBack(ctx context.Context, rec *model.PracticeRecord, item *model.ExamAttemptItem) error {
	if err := s.PracticeRepo.UpdateRecordGrading(ctx, rec); err != nil {
		return err
	}
	if rec.SessionID != nil {
		if err := s.PracticeRepo.RecountCorrect(ctx, *rec.SessionID); err != nil {
			return err
		}
	}
	if item == nil {
		return nil
	}
	if err := s.ExamRepo.GradeItem(ctx, item); err != nil {
		return err
	}
	_, err := recomputeAttemptScore(ctx, s.ExamRepo, item.AttemptID)
	return err
}

// linkedExamItem 记录来自考试时返回对应题目；作答未结束的题目不能评分
func (s *GradingService) linkedExamItem(ctx context.Context, rec *model.PracticeRecord) (*model.ExamAttemptItem, error) {
	if rec.ExamItemID == nil || s.ExamRepo == nil {
		return nil, nil
	}
	item, err := s.ExamRepo.FindAttemptItemByID(ctx, *rec.ExamItemID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrAttemptItemNotFound)
	}
	attempt, err := s.ExamRepo.FindAttempt(ctx, item.AttemptID, false)
	if err != nil {
		return nil, notFoundAs(err, util.ErrAttemptNotFound)
	}
	if attempt.Status == model.AttemptActive {
		return nil, util.ErrAttemptStillActive
	}
	return item, nil
}

// openForExamItem 考试简答题提交后生成 exam 类型的练习记录并进入阅卷队列
func (s *GradingService) openForExamItem(ctx context.Context, studentID uint, item *model.ExamAttemptItem, at time.Time) error {
	rec := &model.PracticeRecord{
		StudentID:       studentID,
		QuestionID:      item.QuestionID,
		ExamItemID:      uintPtr(item.ID),
		AttemptType:     model.AttemptExam,
		SubmittedAnswer: item.SubmittedAnswer,
		Outcome:         model.OutcomePendingManual,
	}
	rec.CreatedAt = at
	if err := s.PracticeRepo.CreateRecord(ctx, rec); err != nil {
		return err
	}
	_, err := s.CreateTask(ctx, rec)
	return err
}

// closeForExamItem 管理员直接给考试题评分时同步练习记录和阅卷任务
func (s *GradingService) closeForExamItem(ctx context.Context, item *model.ExamAttemptItem, graderID uint, passed bool, at time.Time) error {
	rec, err := s.PracticeRepo.FindRecordByExamItem(ctx, item.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rec.Outcome = item.Outcome
	rec.Score = item.Score
	rec.IsPassed = &passed
	rec.GradedBy = uintPtr(graderID)
	rec.GradedAt = &at
	if err := s.PracticeRepo.UpdateRecordGrading(ctx, rec); err != nil {
		return err
	}

	task, err := s.GradingRepo.FindByRecordID(ctx, rec.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if task.AssigneeID == nil || *task.AssigneeID != graderID {
		task.AssignedAt = &at
	}
	task.AssigneeID = uintPtr(graderID)
	task.Score = item.Score
	task.IsPassed = &passed
	task.SubmittedAt = &at
	if err := s.GradingRepo.Override(ctx, task); err != nil {
		return err
	}
	monitoring.GradingTransitions.WithLabelValues(string(model.GradingDone)).Inc()
	return nil
}
