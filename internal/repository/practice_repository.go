package repository

import (
	"context"
	"time"

	"exam_practice_backend/internal/model"
	"exam_practice_backend/internal/util"

	"gorm.io/gorm"
)

type PracticeRepository struct {
	DB *gorm.DB
}

func NewPracticeRepository(db *gorm.DB) *PracticeRepository {
	return &PracticeRepository{DB: db}
}

// CreateSession 会话和题目在同一事务中写入
func (r *PracticeRepository) CreateSession(ctx context.Context, session *model.PracticeSession, items []model.PracticeSessionItem) error {
	return RunInTx(ctx, r.DB, func(ctx context.Context) error {
		tx := conn(ctx, r.DB)
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].SessionID = session.ID
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

func (r *PracticeRepository) FindSession(ctx context.Context, id uint) (*model.PracticeSession, error) {
	var s model.PracticeSession
	if err := conn(ctx, r.DB).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

type SessionListFilter struct {
	StudentID uint
	Status    model.SessionStatus
	Mode      model.PracticeMode
}

func (r *PracticeRepository) ListSessions(ctx context.Context, f SessionListFilter, page util.PageQuery) ([]model.PracticeSession, int64, error) {
	query := conn(ctx, r.DB).Model(&model.PracticeSession{}).Where("student_id = ?", f.StudentID)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Mode != "" {
		query = query.Where("mode = ?", f.Mode)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var sessions []model.PracticeSession
	p := page.Normalize()
	err := query.Order("id DESC").Offset(p.Offset()).Limit(p.PageSize).Find(&sessions).Error
	return sessions, total, err
}

func (r *PracticeRepository) FindItem(ctx context.Context, itemID uint) (*model.PracticeSessionItem, error) {
	var item model.PracticeSessionItem
	if err := conn(ctx, r.DB).First(&item, itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *PracticeRepository) ListItems(ctx context.Context, sessionID uint) ([]model.PracticeSessionItem, error) {
	var items []model.PracticeSessionItem
	err := conn(ctx, r.DB).Where("session_id = ?", sessionID).Order("seq").Find(&items).Error
	return items, err
}

// FirstPendingItem 序号最小的未作答题目，没有时返回 gorm.ErrRecordNotFound
func (r *PracticeRepository) FirstPendingItem(ctx context.Context, sessionID uint) (*model.PracticeSessionItem, error) {
	var item model.PracticeSessionItem
	err := conn(ctx, r.DB).
		Where("session_id = ? AND status = ?", sessionID, model.ItemPending).
		Order("seq").
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// MarkItemAnswered 仅当题目仍为 pending 时生效，返回是否抢到
func (r *PracticeRepository) MarkItemAnswered(ctx context.Context, itemID, recordID uint, at time.Time) (bool, error) {
	res := conn(ctx, r.DB).Model(&model.PracticeSessionItem{}).
		Where("id = ? AND status = ?", itemID, model.ItemPending).
		Updates(map[string]interface{}{
			"status":             model.ItemAnswered,
			"answered_at":        at,
			"practice_record_id": recordID,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *PracticeRepository) IncrementProgress(ctx context.Context, sessionID uint, correct bool) error {
	inc := 0
	if correct {
		inc = 1
	}
	return conn(ctx, r.DB).Model(&model.PracticeSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"answered_count": gorm.Expr("answered_count + 1"),
			"correct_count":  gorm.Expr("correct_count + ?", inc),
		}).Error
}

// CompleteIfFinished 全部作答后把会话置为 completed
func (r *PracticeRepository) CompleteIfFinished(ctx context.Context, sessionID uint, at time.Time) (bool, error) {
	res := conn(ctx, r.DB).Model(&model.PracticeSession{}).
		Where("id = ? AND status = ? AND answered_count >= total_count", sessionID, model.SessionActive).
		Updates(map[string]interface{}{"status": model.SessionCompleted, "ended_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *PracticeRepository) CompleteSession(ctx context.Context, sessionID uint, at time.Time) (bool, error) {
	res := conn(ctx, r.DB).Model(&model.PracticeSession{}).
		Where("id = ? AND status = ?", sessionID, model.SessionActive).
		Updates(map[string]interface{}{"status": model.SessionCompleted, "ended_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *PracticeRepository) CreateRecord(ctx context.Context, rec *model.PracticeRecord) error {
	return conn(ctx, r.DB).Create(rec).Error
}

func (r *PracticeRepository) FindRecord(ctx context.Context, id uint) (*model.PracticeRecord, error) {
	var rec model.PracticeRecord
	if err := conn(ctx, r.DB).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindRecordByExamItem 考试简答题对应的练习记录
func (r *PracticeRepository) FindRecordByExamItem(ctx context.Context, examItemID uint) (*model.PracticeRecord, error) {
	var rec model.PracticeRecord
	if err := conn(ctx, r.DB).Where("exam_item_id = ?", examItemID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRecordGrading 只写阅卷相关字段，nil 值会被写成 NULL
func (r *PracticeRepository) UpdateRecordGrading(ctx context.Context, rec *model.PracticeRecord) error {
	return conn(ctx, r.DB).Model(rec).
		Select("outcome", "score", "feedback", "tags", "is_passed", "graded_by", "graded_at").
		Updates(rec).Error
}

// RecountCorrect 从记录重新汇总会话正确数
func (r *PracticeRepository) RecountCorrect(ctx context.Context, sessionID uint) error {
	var correct int64
	if err := conn(ctx, r.DB).Model(&model.PracticeRecord{}).
		Where("session_id = ? AND outcome = ?", sessionID, model.OutcomeCorrect).
		Count(&correct).Error; err != nil {
		return err
	}
	return conn(ctx, r.DB).Model(&model.PracticeSession{}).
		Where("id = ?", sessionID).
		Update("correct_count", correct).Error
}

// SumDurations 返回会话下记录的总时长和记录数
func (r *PracticeRepository) SumDurations(ctx context.Context, sessionID uint) (int64, int64, error) {
	var row struct {
		Total int64
		Cnt   int64
	}
	err := conn(ctx, r.DB).Model(&model.PracticeRecord{}).
		Select("COALESCE(SUM(duration_seconds), 0) AS total, COUNT(*) AS cnt").
		Where("session_id = ?", sessionID).
		Scan(&row).Error
	return row.Total, row.Cnt, err
}

// KnowledgePointOutcome 会话内某知识点的作答统计
type KnowledgePointOutcome struct {
	KnowledgePointID uint
	Name             string
	Attempts         int64
	Correct          int64
}

// KnowledgePointOutcomes 通过题目-知识点关联聚合会话的已判定作答
func (r *PracticeRepository) KnowledgePointOutcomes(ctx context.Context, sessionID uint) ([]KnowledgePointOutcome, error) {
	var rows []KnowledgePointOutcome
	err := conn(ctx, r.DB).
		Table("practice_records AS pr").
		Select("kp.id AS knowledge_point_id, kp.name AS name, COUNT(*) AS attempts, "+
			"SUM(CASE WHEN pr.outcome = ? THEN 1 ELSE 0 END) AS correct", model.OutcomeCorrect).
		Joins("JOIN question_knowledge_points qkp ON qkp.question_id = pr.question_id").
		Joins("JOIN knowledge_points kp ON kp.id = qkp.knowledge_point_id AND kp.deleted_at IS NULL").
		Where("pr.session_id = ? AND pr.deleted_at IS NULL", sessionID).
		Where("pr.outcome IN ?", []model.AnswerOutcome{model.OutcomeCorrect, model.OutcomeIncorrect}).
		Group("kp.id, kp.name").
		Scan(&rows).Error
	return rows, err
}
