package model

import "time"

type GradingTaskStatus string

const (
	GradingPending  GradingTaskStatus = "pending"
	GradingAssigned GradingTaskStatus = "assigned"
	GradingDone     GradingTaskStatus = "done"
	GradingReopen   GradingTaskStatus = "reopen"
)

// ManualGradingTask 与练习记录一一对应的人工阅卷任务
// swagger:model ManualGradingTask
type ManualGradingTask struct {
	BaseModel

	PracticeRecordID uint              `gorm:"uniqueIndex;type:bigint unsigned" json:"practiceRecordId"`
	StudentID        uint              `gorm:"index;type:bigint unsigned" json:"studentId"`
	QuestionID       uint              `gorm:"type:bigint unsigned" json:"questionId"`
	Status           GradingTaskStatus `gorm:"size:20;index;default:'pending'" json:"status"`
	AssigneeID       *uint             `gorm:"index" json:"assigneeId,omitempty"`
	AssignedAt       *time.Time        `json:"assignedAt,omitempty"`
	Score            *float64          `json:"score,omitempty"`
	Feedback         string            `gorm:"type:text" json:"feedback,omitempty"`
	Tags             StringList        `gorm:"type:text" json:"tags,omitempty"`
	IsPassed         *bool             `json:"isPassed,omitempty"`
	SubmittedAt      *time.Time        `json:"submittedAt,omitempty"`
}

func (ManualGradingTask) TableName() string {
	return "manual_grading_tasks"
}
