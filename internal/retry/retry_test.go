package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	rec := &recordingSleeper{}
	p := NewPolicy(nil)
	p.Sleep = rec.sleep

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("db down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, rec.waits)
}

func TestDoExhaustsAllAttempts(t *testing.T) {
	rec := &recordingSleeper{}
	p := FromMillis([]int{0, 1000, 3000})
	p.Sleep = rec.sleep

	var failures []int
	p.OnError = func(attempt int, err error) { failures = append(failures, attempt) }

	last := errors.New("third failure")
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt == 3 {
			return last
		}
		return errors.New("failure")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2, 3}, failures)
	assert.Equal(t, last, errors.Cause(err))
}

func TestDoStopsOnCancelledSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPolicy([]time.Duration{0, time.Hour})
	calls := 0
	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "boom")
}

func TestMaxAttempts(t *testing.T) {
	assert.Equal(t, 1, Policy{}.MaxAttempts())
	assert.Equal(t, 3, NewPolicy(nil).MaxAttempts())
}
