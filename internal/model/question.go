package model

// QuestionType 题型
type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	FillBlank      QuestionType = "fill_blank"
	ShortAnswer    QuestionType = "short_answer"
)

// Objective 客观题可以自动判分
func (t QuestionType) Objective() bool {
	switch t {
	case SingleChoice, MultipleChoice, TrueFalse, FillBlank:
		return true
	}
	return false
}

// Question 题库由外部模块维护，这里只读取判题所需字段
// swagger:model Question
type Question struct {
	BaseModel

	CategoryID uint         `gorm:"index;type:bigint unsigned" json:"categoryId"`
	Type       QuestionType `gorm:"size:32;index" json:"type"`
	Difficulty int          `gorm:"default:1" json:"difficulty"`
	Content    string       `gorm:"type:text" json:"content"`
	Answer     string       `gorm:"type:text" json:"-"` // JSON 编码的标准答案
	Score      float64      `gorm:"default:0" json:"score"`
	Analysis   string       `gorm:"type:text" json:"analysis,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

type QuestionTag struct {
	QuestionID uint `gorm:"primaryKey;autoIncrement:false" json:"questionId"`
	TagID      uint `gorm:"primaryKey;autoIncrement:false;index" json:"tagId"`
}

func (QuestionTag) TableName() string {
	return "question_tags"
}

// swagger:model KnowledgePoint
type KnowledgePoint struct {
	BaseModel
	Name string `gorm:"size:100;not null" json:"name"`
}

func (KnowledgePoint) TableName() string {
	return "knowledge_points"
}

type QuestionKnowledgePoint struct {
	QuestionID       uint `gorm:"primaryKey;autoIncrement:false" json:"questionId"`
	KnowledgePointID uint `gorm:"primaryKey;autoIncrement:false;index" json:"knowledgePointId"`
}

func (QuestionKnowledgePoint) TableName() string {
	return "question_knowledge_points"
}
