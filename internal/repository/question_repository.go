package repository

import (
	"context"

	"exam_practice_backend/internal/model"

	"gorm.io/gorm"
)

// QuestionFilter 随机/分类/知识点练习的筛选条件
type QuestionFilter struct {
	CategoryID        *uint
	Types             []model.QuestionType
	Difficulty        *int
	TagIDs            []uint
	KnowledgePointIDs []uint
}

// QuestionRepository 题库只读访问，题目的增删改由外部模块负责
type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	if err := conn(ctx, r.DB).First(&q, id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]model.Question, error) {
	out := make(map[uint]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var questions []model.Question
	if err := conn(ctx, r.DB).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}
	for _, q := range questions {
		out[q.ID] = q
	}
	return out, nil
}

// FindCandidateIDs 返回满足筛选条件的题目 ID，随机抽取在服务层完成
func (r *QuestionRepository) FindCandidateIDs(ctx context.Context, f QuestionFilter) ([]uint, error) {
	query := conn(ctx, r.DB).Model(&model.Question{})
	if f.CategoryID != nil {
		query = query.Where("category_id = ?", *f.CategoryID)
	}
	if len(f.Types) > 0 {
		query = query.Where("type IN ?", f.Types)
	}
	if f.Difficulty != nil {
		query = query.Where("difficulty = ?", *f.Difficulty)
	}
	if len(f.TagIDs) > 0 {
		sub := r.DB.Model(&model.QuestionTag{}).Select("question_id").Where("tag_id IN ?", f.TagIDs)
		query = query.Where("id IN (?)", sub)
	}
	if len(f.KnowledgePointIDs) > 0 {
		sub := r.DB.Model(&model.QuestionKnowledgePoint{}).Select("question_id").Where("knowledge_point_id IN ?", f.KnowledgePointIDs)
		query = query.Where("id IN (?)", sub)
	}

	var ids []uint
	err := query.Order("id").Pluck("id", &ids).Error
	return ids, err
}

// KnowledgePointNames 知识点名称查询
func (r *QuestionRepository) KnowledgePointNames(ctx context.Context, ids []uint) (map[uint]string, error) {
	out := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var kps []model.KnowledgePoint
	if err := conn(ctx, r.DB).Where("id IN ?", ids).Find(&kps).Error; err != nil {
		return nil, err
	}
	for _, kp := range kps {
		out[kp.ID] = kp.Name
	}
	return out, nil
}
