// Package retry 固定延迟表的重试策略
package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// DefaultDelays 三次尝试：立即、1s、3s
var DefaultDelays = []time.Duration{0, time.Second, 3 * time.Second}

// SleepFunc 可替换的等待函数，ctx 取消时提前返回
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy 第 i 次尝试前等待 Delays[i]，尝试次数等于 len(Delays)
type Policy struct {
	Delays []time.Duration
	Sleep  SleepFunc
	// OnError 每次失败后回调，attempt 从 1 开始
	OnError func(attempt int, err error)
}

func NewPolicy(delays []time.Duration) Policy {
	if len(delays) == 0 {
		delays = DefaultDelays
	}
	return Policy{Delays: delays, Sleep: ContextSleep}
}

// FromMillis 由配置中的毫秒数组构造策略
func FromMillis(ms []int) Policy {
	delays := make([]time.Duration, 0, len(ms))
	for _, m := range ms {
		if m < 0 {
			m = 0
		}
		delays = append(delays, time.Duration(m)*time.Millisecond)
	}
	return NewPolicy(delays)
}

func (p Policy) MaxAttempts() int {
	if len(p.Delays) == 0 {
		return 1
	}
	return len(p.Delays)
}

// Do 执行 fn 直到成功或用完重试预算，返回最后一次错误
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}

	var lastErr error
	for i := 0; i < p.MaxAttempts(); i++ {
		if i < len(p.Delays) && p.Delays[i] > 0 {
			if err := sleep(ctx, p.Delays[i]); err != nil {
				if lastErr == nil {
					return err
				}
				return errors.Wrapf(lastErr, "retry aborted after %d attempts", i)
			}
		}
		err := fn(ctx, i+1)
		if err == nil {
			return nil
		}
		lastErr = err
		if p.OnError != nil {
			p.OnError(i+1, err)
		}
	}
	return errors.Wrapf(lastErr, "gave up after %d attempts", p.MaxAttempts())
}

func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
