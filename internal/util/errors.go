package util

import (
	"errors"
	"net/http"
)

// 错误分类：请求链路直接返回给调用方，后台任务只记录日志
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")
	ErrTransient  = errors.New("transient failure")
)

// AppError 携带分类和面向调用方的提示信息
type AppError struct {
	Kind    error
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Kind
}

func NewNotFound(msg string) *AppError   { return &AppError{Kind: ErrNotFound, Message: msg} }
func NewConflict(msg string) *AppError   { return &AppError{Kind: ErrConflict, Message: msg} }
func NewBadRequest(msg string) *AppError { return &AppError{Kind: ErrBadRequest, Message: msg} }

var (
	ErrPermissionDenied = errors.New("permission denied")

	ErrQuestionNotFound      = NewNotFound("question not found")
	ErrSessionNotFound       = NewNotFound("practice session not found")
	ErrSessionItemNotFound   = NewNotFound("practice session item not found")
	ErrNoCandidateQuestions  = NewNotFound("no questions match the practice filters")
	ErrPaperNotFound         = NewNotFound("exam paper not found")
	ErrAttemptNotFound       = NewNotFound("attempt not found")
	ErrAttemptItemNotFound   = NewNotFound("attempt item not found")
	ErrGradingTaskNotFound   = NewNotFound("grading task not found")
	ErrWrongBookNotFound     = NewNotFound("wrong book entry not found")
	ErrPracticeRecordMissing = NewNotFound("practice record not found")

	ErrSessionNotActive     = NewConflict("practice session is not active")
	ErrSessionItemAnswered  = NewConflict("practice item already answered")
	ErrAttemptNotActive     = NewConflict("attempt is not active")
	ErrAttemptTimedOut      = NewConflict("attempt time limit exceeded")
	ErrAttemptAlreadyActive = NewConflict("an active attempt already exists for this paper")
	ErrItemAlreadySubmitted = NewConflict("attempt item already submitted")
	ErrAttemptStillActive   = NewConflict("attempt is still in progress")
	ErrPaperPublished       = NewConflict("published paper cannot be modified")
	ErrTaskDone             = NewConflict("grading task already done")
	ErrTaskOwnedByOther     = NewConflict("grading task is assigned to another grader")
	ErrTaskNotDone          = NewConflict("only done tasks can be reopened")
	ErrGenerationInProgress = NewConflict("daily task generation already running")
	ErrSessionAbandoned     = NewConflict("practice session was abandoned")

	ErrCategoryRequired       = NewBadRequest("categoryId is required for category mode")
	ErrKnowledgePointRequired = NewBadRequest("knowledgePointIds are required for knowledge mode")
	ErrInvalidMode            = NewBadRequest("unknown practice mode")
	ErrEmptyPaper             = NewBadRequest("paper must contain at least one item")
	ErrScoreExceedsFull       = NewBadRequest("score exceeds the full score")
	ErrNegativeScore          = NewBadRequest("score must not be negative")
	ErrInvalidRunDate         = NewBadRequest("runDate must be formatted as YYYY-MM-DD")
	ErrDuplicateQuestion      = NewBadRequest("paper contains duplicate questions")
	ErrUnknownQuestion        = NewBadRequest("paper references unknown questions")
	ErrItemNotManual          = NewBadRequest("item does not require manual grading")
	ErrItemNotSubmitted       = NewBadRequest("item has not been submitted")
	ErrInvalidPaper           = NewBadRequest("title and a positive durationMinutes are required")
)

const (
	ReasonNotFound         = "not_found"
	ReasonConflict         = "conflict"
	ReasonBadRequest       = "bad_request"
	ReasonPermissionDenied = "permission_denied"
	ReasonTransient        = "transient"
)

// ReasonOf 返回错误分类名，未分类的错误返回空串
func ReasonOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrConflict):
		return ReasonConflict
	case errors.Is(err, ErrBadRequest):
		return ReasonBadRequest
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrTransient):
		return ReasonTransient
	}
	return ""
}

// StatusOf 将错误分类映射为 HTTP 状态码
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
