package model

import "time"

// swagger:model WrongBook
type WrongBook struct {
	BaseModel

	StudentID        uint       `gorm:"uniqueIndex:idx_wrong_book_student_question;type:bigint unsigned" json:"studentId"`
	QuestionID       uint       `gorm:"uniqueIndex:idx_wrong_book_student_question;type:bigint unsigned" json:"questionId"`
	WrongCount       int        `json:"wrongCount"`
	LastWrongAt      *time.Time `gorm:"index" json:"lastWrongAt,omitempty"`
	LastWrongAnswer  string     `gorm:"type:text" json:"lastWrongAnswer"`
	IsMastered       bool       `gorm:"default:false;index" json:"isMastered"`
	ReviewLevel      int        `gorm:"default:0" json:"reviewLevel"`
	NextReviewAt     *time.Time `gorm:"index" json:"nextReviewAt,omitempty"`
	LastReviewResult string     `gorm:"size:20" json:"lastReviewResult,omitempty"`
	LastReviewedAt   *time.Time `json:"lastReviewedAt,omitempty"`
}

func (WrongBook) TableName() string {
	return "wrong_books"
}

type ReviewTaskStatus string

const (
	ReviewTaskPending ReviewTaskStatus = "pending"
	ReviewTaskDone    ReviewTaskStatus = "done"
)

// ReviewDailyTask 某个运行日应复习的错题快照
// swagger:model ReviewDailyTask
type ReviewDailyTask struct {
	BaseModel

	RunDate     string           `gorm:"size:10;uniqueIndex:idx_review_task_date_student_wb" json:"runDate"`
	StudentID   uint             `gorm:"uniqueIndex:idx_review_task_date_student_wb;type:bigint unsigned" json:"studentId"`
	WrongBookID uint             `gorm:"uniqueIndex:idx_review_task_date_student_wb;type:bigint unsigned" json:"wrongBookId"`
	QuestionID  uint             `gorm:"index;type:bigint unsigned" json:"questionId"`
	DueAt       *time.Time       `json:"dueAt,omitempty"`
	Status      ReviewTaskStatus `gorm:"size:20;index;default:'pending'" json:"status"`
	DoneAt      *time.Time       `json:"doneAt,omitempty"`
}

func (ReviewDailyTask) TableName() string {
	return "review_daily_tasks"
}
