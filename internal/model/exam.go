package model

import "time"

type PaperStatus string

const (
	PaperDraft     PaperStatus = "draft"
	PaperPublished PaperStatus = "published"
)

// swagger:model ExamPaper
type ExamPaper struct {
	BaseModel

	Title           string          `gorm:"size:200;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	DurationMinutes int             `json:"durationMinutes"`
	TotalScore      float64         `json:"totalScore"`
	Status          PaperStatus     `gorm:"size:20;index;default:'draft'" json:"status"`
	PublishedAt     *time.Time      `json:"publishedAt,omitempty"`
	CreatedBy       uint            `gorm:"type:bigint unsigned" json:"createdBy"`
	Items           []ExamPaperItem `gorm:"foreignKey:PaperID" json:"items,omitempty"`
}

func (ExamPaper) TableName() string {
	return "exam_papers"
}

// swagger:model ExamPaperItem
type ExamPaperItem struct {
	BaseModel

	PaperID    uint    `gorm:"index;type:bigint unsigned" json:"paperId"`
	QuestionID uint    `gorm:"type:bigint unsigned" json:"questionId"`
	Seq        int     `json:"seq"`
	Score      float64 `json:"score"`
}

func (ExamPaperItem) TableName() string {
	return "exam_paper_items"
}

type AttemptStatus string

const (
	AttemptActive    AttemptStatus = "active"
	AttemptCompleted AttemptStatus = "completed"
	AttemptTimeout   AttemptStatus = "timeout"
)

func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptTimeout
}

// ExamAttempt 一名学生对一张试卷的一次限时作答
// swagger:model ExamAttempt
type ExamAttempt struct {
	BaseModel

	PaperID            uint              `gorm:"index;type:bigint unsigned" json:"paperId"`
	StudentID          uint              `gorm:"index;type:bigint unsigned" json:"studentId"`
	Status             AttemptStatus     `gorm:"size:20;index;default:'active'" json:"status"`
	StartedAt          time.Time         `json:"startedAt"`
	FinishedAt         *time.Time        `json:"finishedAt,omitempty"`
	DurationSeconds    int               `json:"durationSeconds"`
	TotalScore         float64           `json:"totalScore"`
	ObjectiveScore     float64           `json:"objectiveScore"`
	SubjectiveScore    *float64          `json:"subjectiveScore"`
	NeedsManualGrading bool              `gorm:"default:false" json:"needsManualGrading"`
	Items              []ExamAttemptItem `gorm:"foreignKey:AttemptID" json:"items,omitempty"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}

// ExamAttemptItem 开考时对试卷题目的快照
// swagger:model ExamAttemptItem
type ExamAttemptItem struct {
	BaseModel

	AttemptID          uint          `gorm:"index;type:bigint unsigned" json:"attemptId"`
	PaperItemID        uint          `gorm:"type:bigint unsigned" json:"paperItemId"`
	QuestionID         uint          `gorm:"type:bigint unsigned" json:"questionId"`
	QuestionType       QuestionType  `gorm:"size:32" json:"questionType"`
	Seq                int           `json:"seq"`
	FullScore          float64       `json:"fullScore"`
	SubmittedAnswer    string        `gorm:"type:text" json:"submittedAnswer,omitempty"`
	Outcome            AnswerOutcome `gorm:"size:20;default:'unanswered'" json:"outcome"`
	Score              *float64      `json:"score"`
	NeedsManualGrading bool          `gorm:"default:false" json:"needsManualGrading"`
	SubmittedAt        *time.Time    `json:"submittedAt,omitempty"`
	GradedAt           *time.Time    `json:"gradedAt,omitempty"`
	GradedBy           *uint         `json:"gradedBy,omitempty"`
}

func (ExamAttemptItem) TableName() string {
	return "exam_attempt_items"
}

// PendingManual 需要人工评分且尚未给分
func (i ExamAttemptItem) PendingManual() bool {
	return i.NeedsManualGrading && i.Score == nil
}
