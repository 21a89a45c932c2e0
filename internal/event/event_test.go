package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()
	var seen []string
	bus.Subscribe(HandlerFunc(func(ctx context.Context, ev AnswerSubmitted) error {
		seen = append(seen, "first")
		return nil
	}))
	bus.Subscribe(HandlerFunc(func(ctx context.Context, ev AnswerSubmitted) error {
		seen = append(seen, "second")
		return nil
	}))

	err := bus.PublishAnswerSubmitted(context.Background(), AnswerSubmitted{StudentID: 1})
	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestBusStopsOnError(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")
	called := false
	bus.Subscribe(HandlerFunc(func(ctx context.Context, ev AnswerSubmitted) error { return boom }))
	bus.Subscribe(HandlerFunc(func(ctx context.Context, ev AnswerSubmitted) error {
		called = true
		return nil
	}))

	err := bus.PublishAnswerSubmitted(context.Background(), AnswerSubmitted{})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}
