// Package timeutil 提供日历日边界计算（两套报警机制共用）。
package timeutil

import (
	"time"
)

// LastMidnight 返回 base 所在日历日（按 loc 时区）的零点。
// base 为零值时取当前时间。传入的时刻先换算到 loc 再截断，
// 因此跨时区的时刻也能得到正确的当日零点。
func LastMidnight(base time.Time, loc *time.Location) time.Time {
	if base.IsZero() {
		base = time.Now()
	}
	local := base.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// MidnightPlusDays 返回 LastMidnight(base, loc) 偏移 days 天后的零点（days 可为负）。
// 用 AddDate 而不是加 24h，夏令时切换日也落在零点。
func MidnightPlusDays(base time.Time, loc *time.Location, days int) time.Time {
	return LastMidnight(base, loc).AddDate(0, 0, days)
}
