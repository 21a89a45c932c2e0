package service

import (
	"context"

	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/util"

	"gorm.io/gorm"
)

type ReviewTaskService struct {
	WrongBookRepo  *repository.WrongBookRepository
	ReviewTaskRepo *repository.ReviewTaskRepository
	DB             *gorm.DB
}

func NewReviewTaskService(wrongBookRepo *repository.WrongBookRepository, reviewTaskRepo *repository.ReviewTaskRepository, db *gorm.DB) *ReviewTaskService {
	return &ReviewTaskService{
		WrongBookRepo:  wrongBookRepo,
		ReviewTaskRepo: reviewTaskRepo,
		DB:             db,
	}
}

type GenerateResult struct {
	RunDate        string `json:"runDate"`
	DeletedCount   int64  `json:"deletedCount"`
	GeneratedCount int    `json:"generatedCount"`
}

// GenerateForDate 在一个事务内删除当天任务并按当天结束前到期的未掌握错题重建
func (s *ReviewTaskService) GenerateForDate(ctx context.Context, runDate string) (GenerateResult, error) {
	day, err := util.ParseRunDate(runDate)
	if err != nil {
		return GenerateResult{}, err
	}
	result := GenerateResult{RunDate: runDate}
	cutoff := util.EndOfDay(day)

	err = repository.RunInTx(ctx, s.DB, func(ctx context.Context) error {
		due, err := s.WrongBookRepo.DueBy(ctx, cutoff)
		if err != nil {
			return err
		}
		tasks := make([]model.ReviewDailyTask, 0, len(due))
		for _, wb := range due {
			tasks = append(tasks, model.ReviewDailyTask{
				RunDate:     runDate,
				StudentID:   wb.StudentID,
				WrongBookID: wb.ID,
				QuestionID:  wb.QuestionID,
				DueAt:       wb.NextReviewAt,
				Status:      model.ReviewTaskPending,
			})
		}
		deleted, err := s.ReviewTaskRepo.ReplaceForDate(ctx, runDate, tasks)
		if err != nil {
			return err
		}
		result.DeletedCount = deleted
		result.GeneratedCount = len(tasks)
		return nil
	})
	if err != nil {
		return GenerateResult{}, err
	}
	return result, nil
}

func (s *ReviewTaskService) Summary(ctx context.Context, runDate string) (repository.ReviewTaskSummary, error) {
	if _, err := util.ParseRunDate(runDate); err != nil {
		return repository.ReviewTaskSummary{}, err
	}
	return s.ReviewTaskRepo.Summary(ctx, runDate)
}
