// Package srs 错题复习的间隔重复计划，四级间隔表 0..3
package srs

import "time"

const (
	MinLevel = 0
	MaxLevel = 3
)

// 各等级对应的复习间隔（天）
var intervalDays = [MaxLevel + 1]int{1, 3, 7, 15}

// Plan 一次计划的结果
type Plan struct {
	Level        int
	NextReviewAt time.Time
}

// NormalizeLevel 把任意等级收敛到 [0,3]
func NormalizeLevel(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

func IntervalDays(level int) int {
	return intervalDays[NormalizeLevel(level)]
}

// PlanAfterWrongAnswer 答错后重置为 0 级，次日复习
func PlanAfterWrongAnswer(now time.Time) Plan {
	return Plan{Level: MinLevel, NextReviewAt: now.AddDate(0, 0, IntervalDays(MinLevel))}
}

// PlanAfterReview 复习答对升一级，答错降一级
func PlanAfterReview(currentLevel int, correct bool, now time.Time) Plan {
	level := NormalizeLevel(currentLevel)
	if correct {
		level = NormalizeLevel(level + 1)
	} else {
		level = NormalizeLevel(level - 1)
	}
	return Plan{Level: level, NextReviewAt: now.AddDate(0, 0, IntervalDays(level))}
}

// ShouldAutoMaster 到达最高级即视为掌握
func ShouldAutoMaster(level int) bool {
	return level >= MaxLevel
}
