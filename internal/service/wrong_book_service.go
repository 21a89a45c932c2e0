package service

import (
	"context"
	"errors"

	"exam_practice_backend/internal/event"
	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/srs"
	"exam_practice_backend/internal/util"
	"exam_practice_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WrongBookService 订阅作答事件，维护错题本和当天的复习任务
type WrongBookService struct {
	WrongBookRepo  *repository.WrongBookRepository
	ReviewTaskRepo *repository.ReviewTaskRepository
	DB             *gorm.DB
	Clock          util.Clock
}

func NewWrongBookService(wrongBookRepo *repository.WrongBookRepository, reviewTaskRepo *repository.ReviewTaskRepository, db *gorm.DB, clock util.Clock) *WrongBookService {
	return &WrongBookService{
		WrongBookRepo:  wrongBookRepo,
		ReviewTaskRepo: reviewTaskRepo,
		DB:             db,
		Clock:          clock,
	}
}

var _ event.AnswerSubmittedHandler = (*WrongBookService)(nil)

func (s *WrongBookService) HandleAnswerSubmitted(ctx context.Context, ev event.AnswerSubmitted) error {
	// 待人工评阅和未作答都不影响错题本
	if !ev.Outcome.Graded() {
		return nil
	}
	correct := ev.Outcome == model.OutcomeCorrect

	return repository.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		if ev.AttemptType == model.AttemptReview {
			return s.applyReview(ctx, ev, correct)
		}
		if correct {
			return nil
		}
		return s.recordWrong(ctx, ev)
	})
}

func (s *WrongBookService) recordWrong(ctx context.Context, ev event.AnswerSubmitted) error {
	at := ev.At.UTC()
	plan := srs.PlanAfterWrongAnswer(at)

	wb, err := s.WrongBookRepo.FindByStudentQuestion(ctx, ev.StudentID, ev.QuestionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.WrongBookRepo.Create(ctx, &model.WrongBook{
			StudentID:       ev.StudentID,
			QuestionID:      ev.QuestionID,
			WrongCount:      1,
			LastWrongAt:     &at,
			LastWrongAnswer: ev.SubmittedAnswer,
			ReviewLevel:     plan.Level,
			NextReviewAt:    timePtr(plan.NextReviewAt),
		})
	}
	if err != nil {
		return err
	}

	wb.WrongCount++
	wb.LastWrongAt = &at
	wb.LastWrongAnswer = ev.SubmittedAnswer
	wb.IsMastered = false
	wb.ReviewLevel = plan.Level
	wb.NextReviewAt = timePtr(plan.NextReviewAt)
	return s.WrongBookRepo.Save(ctx, wb)
}

func (s *WrongBookService) applyReview(ctx context.Context, ev event.AnswerSubmitted, correct bool) error {
	at := ev.At.UTC()

	wb, err := s.WrongBookRepo.FindByStudentQuestion(ctx, ev.StudentID, ev.QuestionID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !correct {
			plan := srs.PlanAfterWrongAnswer(at)
			if err := s.WrongBookRepo.Create(ctx, &model.WrongBook{
				StudentID:        ev.StudentID,
				QuestionID:       ev.QuestionID,
				WrongCount:       1,
				LastWrongAt:      &at,
				LastWrongAnswer:  ev.SubmittedAnswer,
				ReviewLevel:      plan.Level,
				NextReviewAt:     timePtr(plan.NextReviewAt),
				LastReviewResult: string(ev.Outcome),
				LastReviewedAt:   &at,
			}); err != nil {
				return err
			}
		}
	case err != nil:
		return err
	default:
		plan := srs.PlanAfterReview(wb.ReviewLevel, correct, at)
		wb.ReviewLevel = plan.Level
		wb.NextReviewAt = timePtr(plan.NextReviewAt)
		wb.LastReviewResult = string(ev.Outcome)
		wb.LastReviewedAt = &at
		if correct {
			wb.IsMastered = srs.ShouldAutoMaster(plan.Level)
		} else {
			wb.IsMastered = false
			wb.WrongCount++
			wb.LastWrongAt = &at
			wb.LastWrongAnswer = ev.SubmittedAnswer
		}
		if err := s.WrongBookRepo.Save(ctx, wb); err != nil {
			return err
		}
	}

	done, err := s.ReviewTaskRepo.MarkDone(ctx, ev.StudentID, ev.QuestionID, util.RunDate(at), at)
	if err != nil {
		return err
	}
	logger.Log.Debug("Review answer applied",
		zap.Uint("studentID", ev.StudentID),
		zap.Uint("questionID", ev.QuestionID),
		zap.Bool("correct", correct),
		zap.Int64("tasksDone", done))
	return nil
}

// ListWrongBook 分页查询学生错题，mastered 为 nil 时不过滤
func (s *WrongBookService) ListWrongBook(ctx context.Context, studentID uint, mastered *bool, page util.PageQuery) (util.PageResult, error) {
	page = page.Normalize()
	items, total, err := s.WrongBookRepo.ListByStudent(ctx, studentID, mastered, page)
	if err != nil {
		return util.PageResult{}, err
	}
	return util.NewPageResult(items, total, page), nil
}

// SetMastered 学生手动标记掌握状态；取消掌握时立即进入待复习
func (s *WrongBookService) SetMastered(ctx context.Context, studentID, wrongBookID uint, mastered bool) (*model.WrongBook, error) {
	wb, err := s.WrongBookRepo.FindByIDForStudent(ctx, wrongBookID, studentID)
	if err != nil {
		return nil, notFoundAs(err, util.ErrWrongBookNotFound)
	}
	if wb.IsMastered == mastered {
		return wb, nil
	}
	wb.IsMastered = mastered
	if !mastered {
		wb.NextReviewAt = timePtr(nowOf(s.Clock))
	}
	if err := s.WrongBookRepo.Save(ctx, wb); err != nil {
		return nil, err
	}
	return wb, nil
}
