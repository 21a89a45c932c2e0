package model

import "time"

type PracticeMode string

const (
	ModeRandom    PracticeMode = "random"
	ModeCategory  PracticeMode = "category"
	ModeKnowledge PracticeMode = "knowledge"
	ModeReview    PracticeMode = "review"
)

func (m PracticeMode) Valid() bool {
	switch m {
	case ModeRandom, ModeCategory, ModeKnowledge, ModeReview:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

type ItemSource string

const (
	SourceNormal ItemSource = "normal"
	SourceReview ItemSource = "review"
)

type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemAnswered ItemStatus = "answered"
)

type AttemptType string

const (
	AttemptPractice AttemptType = "practice"
	AttemptReview   AttemptType = "review"
	AttemptExam     AttemptType = "exam"
)

// swagger:model PracticeSession
type PracticeSession struct {
	BaseModel

	StudentID     uint          `gorm:"index;type:bigint unsigned" json:"studentId"`
	Mode          PracticeMode  `gorm:"size:20" json:"mode"`
	Config        string        `gorm:"type:text" json:"config"` // JSON 编码的筛选条件
	Status        SessionStatus `gorm:"size:20;index;default:'active'" json:"status"`
	TotalCount    int           `json:"totalCount"`
	AnsweredCount int           `json:"answeredCount"`
	CorrectCount  int           `json:"correctCount"`
	StartedAt     time.Time     `json:"startedAt"`
	EndedAt       *time.Time    `json:"endedAt,omitempty"`
}

func (PracticeSession) TableName() string {
	return "practice_sessions"
}

// swagger:model PracticeSessionItem
type PracticeSessionItem struct {
	BaseModel

	SessionID        uint       `gorm:"index;type:bigint unsigned" json:"sessionId"`
	QuestionID       uint       `gorm:"index;type:bigint unsigned" json:"questionId"`
	Seq              int        `json:"seq"`
	SourceType       ItemSource `gorm:"size:20;default:'normal'" json:"sourceType"`
	Status           ItemStatus `gorm:"size:20;default:'pending'" json:"status"`
	AnsweredAt       *time.Time `json:"answeredAt,omitempty"`
	PracticeRecordID *uint      `json:"practiceRecordId,omitempty"`
}

func (PracticeSessionItem) TableName() string {
	return "practice_session_items"
}

// PracticeRecord 每次作答一行，只有阅卷回写会修改
// swagger:model PracticeRecord
type PracticeRecord struct {
	BaseModel

	StudentID       uint          `gorm:"index;type:bigint unsigned" json:"studentId"`
	QuestionID      uint          `gorm:"index;type:bigint unsigned" json:"questionId"`
	SessionID       *uint         `gorm:"index" json:"sessionId,omitempty"`
	SessionItemID   *uint         `json:"sessionItemId,omitempty"`
	ExamItemID      *uint         `gorm:"index" json:"examItemId,omitempty"` // 考试简答题对应的作答题目
	AttemptType     AttemptType   `gorm:"size:20" json:"attemptType"`
	SubmittedAnswer string        `gorm:"type:text" json:"submittedAnswer"`
	Outcome         AnswerOutcome `gorm:"size:20;index" json:"outcome"`
	DurationSeconds int           `json:"durationSeconds"`
	Score           *float64      `json:"score,omitempty"`
	Feedback        string        `gorm:"type:text" json:"feedback,omitempty"`
	Tags            StringList    `gorm:"type:text" json:"tags,omitempty"`
	IsPassed        *bool         `json:"isPassed,omitempty"`
	GradedBy        *uint         `json:"gradedBy,omitempty"`
	GradedAt        *time.Time    `json:"gradedAt,omitempty"`
}

func (PracticeRecord) TableName() string {
	return "practice_records"
}
