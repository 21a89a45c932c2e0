package repository

import (
	"context"
	"time"

	"exam_practice_backend/internal/model"

	"gorm.io/gorm"
)

type ReviewTaskRepository struct {
	DB *gorm.DB
}

func NewReviewTaskRepository(db *gorm.DB) *ReviewTaskRepository {
	return &ReviewTaskRepository{DB: db}
}

// ReplaceForDate 删除运行日的全部任务并重建，整体在一个事务内
func (r *ReviewTaskRepository) ReplaceForDate(ctx context.Context, runDate string, tasks []model.ReviewDailyTask) (int64, error) {
	var deleted int64
	err := RunInTx(ctx, r.DB, func(ctx context.Context) error {
		tx := conn(ctx, r.DB)
		res := tx.Unscoped().Where("run_date = ?", runDate).Delete(&model.ReviewDailyTask{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		if len(tasks) == 0 {
			return nil
		}
		return tx.CreateInBatches(&tasks, 200).Error
	})
	return deleted, err
}

// PendingForStudent 当天待复习任务，排序与错题到期顺序一致
func (r *ReviewTaskRepository) PendingForStudent(ctx context.Context, studentID uint, runDate string, limit int) ([]model.ReviewDailyTask, error) {
	var tasks []model.ReviewDailyTask
	err := conn(ctx, r.DB).
		Select("review_daily_tasks.*").
		Joins("JOIN wrong_books ON wrong_books.id = review_daily_tasks.wrong_book_id").
		Where("review_daily_tasks.student_id = ? AND review_daily_tasks.run_date = ? AND review_daily_tasks.status = ?",
			studentID, runDate, model.ReviewTaskPending).
		Order("wrong_books.next_review_at IS NULL DESC, wrong_books.next_review_at ASC, wrong_books.last_wrong_at DESC, review_daily_tasks.id ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// MarkDone 把同一天同一题的待办任务标记完成
func (r *ReviewTaskRepository) MarkDone(ctx context.Context, studentID, questionID uint, runDate string, at time.Time) (int64, error) {
	res := conn(ctx, r.DB).Model(&model.ReviewDailyTask{}).
		Where("student_id = ? AND question_id = ? AND run_date = ? AND status = ?",
			studentID, questionID, runDate, model.ReviewTaskPending).
		Updates(map[string]interface{}{"status": model.ReviewTaskDone, "done_at": at})
	return res.RowsAffected, res.Error
}

type ReviewTaskSummary struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Done    int64 `json:"done"`
}

func (r *ReviewTaskRepository) Summary(ctx context.Context, runDate string) (ReviewTaskSummary, error) {
	var s ReviewTaskSummary
	err := conn(ctx, r.DB).Model(&model.ReviewDailyTask{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS done",
			model.ReviewTaskPending, model.ReviewTaskDone).
		Where("run_date = ?", runDate).
		Scan(&s).Error
	return s, err
}
