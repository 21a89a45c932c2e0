package repository

import (
	"context"
	"time"

	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

// CreatePaper 试卷与题目一起写入
func (r *ExamRepository) CreatePaper(ctx context.Context, paper *model.ExamPaper) error {
	return conn(ctx, r.DB).Create(paper).Error
}

func (r *ExamRepository) FindPaper(ctx context.Context, id uint, withItems bool) (*model.ExamPaper, error) {
	var p model.ExamPaper
	query := conn(ctx, r.DB)
	if withItems {
		query = query.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("seq") })
	}
	if err := query.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ReplacePaper 覆盖草稿试卷的字段和题目
func (r *ExamRepository) ReplacePaper(ctx context.Context, paper *model.ExamPaper) error {
	return RunInTx(ctx, r.DB, func(ctx context.Context) error {
		tx := conn(ctx, r.DB)
		res := tx.Model(&model.ExamPaper{}).
			Where("id = ? AND status = ?", paper.ID, model.PaperDraft).
			Updates(map[string]interface{}{
				"title":            paper.Title,
				"description":      paper.Description,
				"duration_minutes": paper.DurationMinutes,
				"total_score":      paper.TotalScore,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrPaperPublished
		}
		if err := tx.Unscoped().Where("paper_id = ?", paper.ID).Delete(&model.ExamPaperItem{}).Error; err != nil {
			return err
		}
		for i := range paper.Items {
			paper.Items[i].ID = 0
			paper.Items[i].PaperID = paper.ID
		}
		if len(paper.Items) == 0 {
			return nil
		}
		return tx.Create(&paper.Items).Error
	})
}

// PublishPaper 草稿到发布的单向切换，返回是否发生了切换
func (r *ExamRepository) PublishPaper(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := conn(ctx, r.DB).Model(&model.ExamPaper{}).
		Where("id = ? AND status = ?", id, model.PaperDraft).
		Updates(map[string]interface{}{"status": model.PaperPublished, "published_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *ExamRepository) ListPapers(ctx context.Context, status model.PaperStatus, page util.PageQuery) ([]model.ExamPaper, int64, error) {
	query := conn(ctx, r.DB).Model(&model.ExamPaper{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var papers []model.ExamPaper
	p := page.Normalize()
	err := query.Order("id DESC").Offset(p.Offset()).Limit(p.PageSize).Find(&papers).Error
	return papers, total, err
}

// LockPaper 在当前事务中对试卷行加写锁，同一试卷的开考因此串行执行
func (r *ExamRepository) LockPaper(ctx context.Context, id uint) error {
	var p model.ExamPaper
	return conn(ctx, r.DB).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&p, id).Error
}

func (r *ExamRepository) FindActiveAttempt(ctx context.Context, paperID, studentID uint) (*model.ExamAttempt, error) {
	var a model.ExamAttempt
	err := conn(ctx, r.DB).
		Where("paper_id = ? AND student_id = ? AND status = ?", paperID, studentID, model.AttemptActive).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAttempt 作答与题目快照一起写入
func (r *ExamRepository) CreateAttempt(ctx context.Context, attempt *model.ExamAttempt) error {
	return conn(ctx, r.DB).Create(attempt).Error
}

func (r *ExamRepository) FindAttempt(ctx context.Context, id uint, withItems bool) (*model.ExamAttempt, error) {
	var a model.ExamAttempt
	query := conn(ctx, r.DB)
	if withItems {
		query = query.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("seq") })
	}
	if err := query.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ExamRepository) FindAttemptItem(ctx context.Context, attemptID, itemID uint) (*model.ExamAttemptItem, error) {
	var item model.ExamAttemptItem
	err := conn(ctx, r.DB).Where("id = ? AND attempt_id = ?", itemID, attemptID).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ExamRepository) FindAttemptItemByID(ctx context.Context, itemID uint) (*model.ExamAttemptItem, error) {
	var item model.ExamAttemptItem
	if err := conn(ctx, r.DB).First(&item, itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ExamRepository) ListAttemptItems(ctx context.Context, attemptID uint) ([]model.ExamAttemptItem, error) {
	var items []model.ExamAttemptItem
	err := conn(ctx, r.DB).Where("attempt_id = ?", attemptID).Order("seq").Find(&items).Error
	return items, err
}

// SubmitItem 只有尚未提交的题目会被写入，返回是否写入成功
func (r *ExamRepository) SubmitItem(ctx context.Context, item *model.ExamAttemptItem) (bool, error) {
	res := conn(ctx, r.DB).Model(&model.ExamAttemptItem{}).
		Where("id = ? AND submitted_at IS NULL", item.ID).
		Updates(map[string]interface{}{
			"submitted_answer":     item.SubmittedAnswer,
			"outcome":              item.Outcome,
			"score":                item.Score,
			"needs_manual_grading": item.NeedsManualGrading,
			"submitted_at":         item.SubmittedAt,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *ExamRepository) GradeItem(ctx context.Context, item *model.ExamAttemptItem) error {
	return conn(ctx, r.DB).Model(item).
		Select("outcome", "score", "graded_at", "graded_by").
		Updates(item).Error
}

// StampUnanswered 结束时把未提交的题目记为 0 分
func (r *ExamRepository) StampUnanswered(ctx context.Context, attemptID uint) error {
	return conn(ctx, r.DB).Model(&model.ExamAttemptItem{}).
		Where("attempt_id = ? AND submitted_at IS NULL AND score IS NULL", attemptID).
		Updates(map[string]interface{}{"score": 0, "outcome": model.OutcomeUnanswered}).Error
}

// FinalizeAttempt 仅当作答仍为 active 时切换到终态
func (r *ExamRepository) FinalizeAttempt(ctx context.Context, id uint, status model.AttemptStatus, finishedAt time.Time, durationSeconds int) (bool, error) {
	res := conn(ctx, r.DB).Model(&model.ExamAttempt{}).
		Where("id = ? AND status = ?", id, model.AttemptActive).
		Updates(map[string]interface{}{
			"status":           status,
			"finished_at":      finishedAt,
			"duration_seconds": durationSeconds,
		})
	return res.RowsAffected > 0, res.Error
}

type ScoreSummary struct {
	ObjectiveScore     float64  `json:"objectiveScore"`
	SubjectiveScore    *float64 `json:"subjectiveScore"`
	TotalScore         float64  `json:"totalScore"`
	NeedsManualGrading bool     `json:"needsManualGrading"`
	PendingManualCount int      `json:"pendingManualCount"`
}

func (r *ExamRepository) SaveScoreSummary(ctx context.Context, attemptID uint, s ScoreSummary) error {
	return conn(ctx, r.DB).Model(&model.ExamAttempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]interface{}{
			"objective_score":      s.ObjectiveScore,
			"subjective_score":     s.SubjectiveScore,
			"total_score":          s.TotalScore,
			"needs_manual_grading": s.NeedsManualGrading,
		}).Error
}

// ActiveAttempt 超时扫描所需的最小视图
type ActiveAttempt struct {
	AttemptID       uint
	PaperID         uint
	StudentID       uint
	StartedAt       time.Time
	DurationMinutes int
}

func (a ActiveAttempt) TimeoutAt() time.Time {
	return a.StartedAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (r *ExamRepository) ListActiveAttempts(ctx context.Context) ([]ActiveAttempt, error) {
	var rows []ActiveAttempt
	err := conn(ctx, r.DB).
		Table("exam_attempts AS a").
		Select("a.id AS attempt_id, a.paper_id, a.student_id, a.started_at, p.duration_minutes").
		Joins("JOIN exam_papers p ON p.id = a.paper_id").
		Where("a.status = ? AND a.deleted_at IS NULL", model.AttemptActive).
		Order("a.id").
		Scan(&rows).Error
	return rows, err
}
