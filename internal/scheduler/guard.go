// Package scheduler 后台定时任务：考试超时扫描和每日复习任务生成
package scheduler

import "sync/atomic"

// Guard 单飞保护，同一时刻只允许一次执行
type Guard struct {
	running atomic.Bool
}

// TryAcquire 已有执行在进行时返回 false
func (g *Guard) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

func (g *Guard) Release() {
	g.running.Store(false)
}

func (g *Guard) Running() bool {
	return g.running.Load()
}
