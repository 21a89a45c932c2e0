package srs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var feb1 = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func TestIntervalDays(t *testing.T) {
	for level, want := range []int{1, 3, 7, 15} {
		assert.Equal(t, want, IntervalDays(level))
	}
	assert.Equal(t, 1, IntervalDays(-4))
	assert.Equal(t, 15, IntervalDays(9))
}

func TestPlanAfterWrongAnswer(t *testing.T) {
	p := PlanAfterWrongAnswer(feb1)
	assert.Equal(t, 0, p.Level)
	assert.Equal(t, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), p.NextReviewAt)
}

func TestPlanAfterReview(t *testing.T) {
	tests := []struct {
		name     string
		level    int
		correct  bool
		wantLvl  int
		wantNext time.Time
	}{
		{"correct from zero", 0, true, 1, time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)},
		{"correct at max stays capped", 3, true, 3, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)},
		{"wrong at zero floors", 0, false, 0, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)},
		{"wrong steps down", 2, false, 1, time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)},
		{"out of range input is clamped first", 10, false, 2, time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PlanAfterReview(tt.level, tt.correct, feb1)
			assert.Equal(t, tt.wantLvl, p.Level)
			assert.Equal(t, tt.wantNext, p.NextReviewAt)
		})
	}
}

func TestShouldAutoMaster(t *testing.T) {
	assert.False(t, ShouldAutoMaster(0))
	assert.False(t, ShouldAutoMaster(2))
	assert.True(t, ShouldAutoMaster(3))
	assert.True(t, ShouldAutoMaster(4))
}
