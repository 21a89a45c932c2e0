package service

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"exam_practice_backend/internal/util"

	"gorm.io/gorm"
)

// notFoundAs 把 gorm 的记录不存在转换为领域错误
func notFoundAs(err error, domainErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainErr
	}
	return err
}

func nowOf(c util.Clock) time.Time {
	if c == nil {
		return util.SystemClock{}.Now()
	}
	return c.Now()
}

// rawAnswer 空提交按 JSON null 保存
func rawAnswer(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}

func elapsedSeconds(from, to time.Time) int {
	secs := math.Floor(float64(to.Sub(from).Milliseconds()) / 1000)
	if secs < 0 {
		return 0
	}
	return int(secs)
}

func floatPtr(v float64) *float64 { return &v }

func uintPtr(v uint) *uint { return &v }

func timePtr(t time.Time) *time.Time { return &t }
