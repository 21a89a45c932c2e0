// Package event 进程内同步领域事件
package event

import (
	"context"
	"sync"
	"time"

	"exam_practice_backend/internal/model"
)

// AnswerSubmitted 一次作答被判定后发布，错题本订阅
type AnswerSubmitted struct {
	StudentID       uint
	QuestionID      uint
	QuestionType    model.QuestionType
	AttemptType     model.AttemptType
	Outcome         model.AnswerOutcome
	SubmittedAnswer string
	SessionID       *uint
	SessionItemID   *uint
	At              time.Time
}

type AnswerSubmittedHandler interface {
	HandleAnswerSubmitted(ctx context.Context, ev AnswerSubmitted) error
}

type HandlerFunc func(ctx context.Context, ev AnswerSubmitted) error

func (f HandlerFunc) HandleAnswerSubmitted(ctx context.Context, ev AnswerSubmitted) error {
	return f(ctx, ev)
}

// Bus 按订阅顺序同步投递，任一订阅者失败即返回错误
type Bus struct {
	mu       sync.RWMutex
	handlers []AnswerSubmittedHandler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h AnswerSubmittedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) PublishAnswerSubmitted(ctx context.Context, ev AnswerSubmitted) error {
	b.mu.RLock()
	handlers := append([]AnswerSubmittedHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.HandleAnswerSubmitted(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
