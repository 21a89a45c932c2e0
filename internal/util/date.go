package util

import "time"

// RunDate 返回 UTC 日历日期 YYYY-MM-DD
func RunDate(t time.Time) string {
	return t.UTC().Format(DateFormat)
}

// ParseRunDate 校验并解析 YYYY-MM-DD，返回当天 UTC 零点
func ParseRunDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidRunDate
	}
	return d, nil
}

// EndOfDay 返回当天 UTC 23:59:59.999
func EndOfDay(day time.Time) time.Time {
	d := day.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start.Add(24*time.Hour - time.Millisecond)
}
