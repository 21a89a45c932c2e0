package repository

import (
	"context"
	"time"

	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/util"

	"gorm.io/gorm"
)

// 到期排序：未排期的优先，其次按到期时间，再按最近答错时间倒序
const dueOrder = "next_review_at IS NULL DESC, next_review_at ASC, last_wrong_at DESC, id ASC"

type WrongBookRepository struct {
	DB *gorm.DB
}

func NewWrongBookRepository(db *gorm.DB) *WrongBookRepository {
	return &WrongBookRepository{DB: db}
}

func (r *WrongBookRepository) FindByStudentQuestion(ctx context.Context, studentID, questionID uint) (*model.WrongBook, error) {
	var wb model.WrongBook
	err := conn(ctx, r.DB).
		Where("student_id = ? AND question_id = ?", studentID, questionID).
		First(&wb).Error
	if err != nil {
		return nil, err
	}
	return &wb, nil
}

func (r *WrongBookRepository) FindByIDForStudent(ctx context.Context, id, studentID uint) (*model.WrongBook, error) {
	var wb model.WrongBook
	err := conn(ctx, r.DB).Where("id = ? AND student_id = ?", id, studentID).First(&wb).Error
	if err != nil {
		return nil, err
	}
	return &wb, nil
}

func (r *WrongBookRepository) Create(ctx context.Context, wb *model.WrongBook) error {
	return conn(ctx, r.DB).Create(wb).Error
}

func (r *WrongBookRepository) Save(ctx context.Context, wb *model.WrongBook) error {
	return conn(ctx, r.DB).Save(wb).Error
}

func (r *WrongBookRepository) ListByStudent(ctx context.Context, studentID uint, mastered *bool, page util.PageQuery) ([]model.WrongBook, int64, error) {
	query := conn(ctx, r.DB).Model(&model.WrongBook{}).Where("student_id = ?", studentID)
	if mastered != nil {
		query = query.Where("is_mastered = ?", *mastered)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.WrongBook
	p := page.Normalize()
	err := query.Order(dueOrder).Offset(p.Offset()).Limit(p.PageSize).Find(&list).Error
	return list, total, err
}

// DueForStudent 学生当前到期且未掌握的错题
func (r *WrongBookRepository) DueForStudent(ctx context.Context, studentID uint, now time.Time, limit int) ([]model.WrongBook, error) {
	var list []model.WrongBook
	err := conn(ctx, r.DB).
		Where("student_id = ? AND is_mastered = ?", studentID, false).
		Where("(next_review_at IS NULL OR next_review_at <= ?)", now).
		Order(dueOrder).
		Limit(limit).
		Find(&list).Error
	return list, err
}

// DueBy 所有学生在 cutoff 之前到期且未掌握的错题
func (r *WrongBookRepository) DueBy(ctx context.Context, cutoff time.Time) ([]model.WrongBook, error) {
	var list []model.WrongBook
	err := conn(ctx, r.DB).
		Where("is_mastered = ?", false).
		Where("(next_review_at IS NULL OR next_review_at <= ?)", cutoff).
		Order("student_id, " + dueOrder).
		Find(&list).Error
	return list, err
}
