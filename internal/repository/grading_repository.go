package repository

import (
	"context"
	"time"

	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/util"

	"gorm.io/gorm"
)

type GradingRepository struct {
	DB *gorm.DB
}

func NewGradingRepository(db *gorm.DB) *GradingRepository {
	return &GradingRepository{DB: db}
}

func (r *GradingRepository) Create(ctx context.Context, task *model.ManualGradingTask) error {
	return conn(ctx, r.DB).Create(task).Error
}

func (r *GradingRepository) FindByID(ctx context.Context, id uint) (*model.ManualGradingTask, error) {
	var t model.ManualGradingTask
	if err := conn(ctx, r.DB).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GradingRepository) FindByRecordID(ctx context.Context, recordID uint) (*model.ManualGradingTask, error) {
	var t model.ManualGradingTask
	if err := conn(ctx, r.DB).Where("practice_record_id = ?", recordID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

type GradingTaskFilter struct {
	Status     model.GradingTaskStatus
	AssigneeID *uint
	StudentID  *uint
}

func (r *GradingRepository) List(ctx context.Context, f GradingTaskFilter, page util.PageQuery) ([]model.ManualGradingTask, int64, error) {
	query := conn(ctx, r.DB).Model(&model.ManualGradingTask{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.AssigneeID != nil {
		query = query.Where("assignee_id = ?", *f.AssigneeID)
	}
	if f.StudentID != nil {
		query = query.Where("student_id = ?", *f.StudentID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var tasks []model.ManualGradingTask
	p := page.Normalize()
	err := query.Order("id ASC").Offset(p.Offset()).Limit(p.PageSize).Find(&tasks).Error
	return tasks, total, err
}

// Claim 先到先得：只有未被他人领取的 pending/reopen 任务可以被领取
func (r *GradingRepository) Claim(ctx context.Context, id, graderID uint, at time.Time) (bool, error) {
	res := conn(ctx, r.DB).Model(&model.ManualGradingTask{}).
		Where("id = ? AND status IN ?", id, []model.GradingTaskStatus{model.GradingPending, model.GradingReopen}).
		Where("(assignee_id IS NULL OR assignee_id = ?)", graderID).
		Updates(map[string]interface{}{
			"status":      model.GradingAssigned,
			"assignee_id": graderID,
			"assigned_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

// SubmitResult 写入阅卷结果；任务已完成或被他人领取时不写入
func (r *GradingRepository) SubmitResult(ctx context.Context, task *model.ManualGradingTask, graderID uint) (bool, error) {
	res := conn(ctx, r.DB).Model(&model.ManualGradingTask{}).
		Where("id = ? AND status <> ?", task.ID, model.GradingDone).
		Where("(assignee_id IS NULL OR assignee_id = ?)", graderID).
		Updates(map[string]interface{}{
			"status":       model.GradingDone,
			"assignee_id":  graderID,
			"assigned_at":  task.AssignedAt,
			"score":        task.Score,
			"feedback":     task.Feedback,
			"tags":         task.Tags,
			"is_passed":    task.IsPassed,
			"submitted_at": task.SubmittedAt,
		})
	return res.RowsAffected > 0, res.Error
}

// Override 管理员直接评分，不检查领取人
func (r *GradingRepository) Override(ctx context.Context, task *model.ManualGradingTask) error {
	return conn(ctx, r.DB).Model(&model.ManualGradingTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":       model.GradingDone,
			"assignee_id":  task.AssigneeID,
			"assigned_at":  task.AssignedAt,
			"score":        task.Score,
			"is_passed":    task.IsPassed,
			"submitted_at": task.SubmittedAt,
		}).Error
}

// Reopen 清空阅卷结果，把原因记录在 feedback 中
func (r *GradingRepository) Reopen(ctx context.Context, id uint, reason string) (bool, error) {
	res := conn(ctx, r.DB).Model(&model.ManualGradingTask{}).
		Where("id = ? AND status = ?", id, model.GradingDone).
		Updates(map[string]interface{}{
			"status":       model.GradingReopen,
			"assignee_id":  nil,
			"assigned_at":  nil,
			"score":        nil,
			"feedback":     reason,
			"tags":         nil,
			"is_passed":    nil,
			"submitted_at": nil,
		})
	return res.RowsAffected > 0, res.Error
}
