package models

import (
	"time"
)

// Timestamp 测量时间戳（绝对时刻 + 原始 UTC 偏移）
// 数据库拆分存储为 timestamptz + 偏移分钟两列；比较永远基于绝对时刻，
// 偏移只用于还原录入时的本地时间展示。
type Timestamp struct {
	Time            time.Time `json:"time" db:"measured_at"`
	TZOffsetMinutes int       `json:"tz_offset_minutes" db:"measured_tz_offset"`
}

// NewTimestamp 从绝对时刻和偏移分钟构建时间戳
func NewTimestamp(t time.Time, offsetMinutes int) Timestamp {
	return Timestamp{Time: t.UTC(), TZOffsetMinutes: offsetMinutes}
}

// SplitTimestamp 拆分一个带时区的时刻为（绝对时刻, 偏移分钟）
func SplitTimestamp(t time.Time) Timestamp {
	_, offsetSec := t.Zone()
	return Timestamp{Time: t.UTC(), TZOffsetMinutes: offsetSec / 60}
}

// Local 还原录入时的本地时间（join）
func (ts Timestamp) Local() time.Time {
	return ts.Time.In(time.FixedZone("", ts.TZOffsetMinutes*60))
}

// Before 基于绝对时刻比较
func (ts Timestamp) Before(other Timestamp) bool {
	return ts.Time.Before(other.Time)
}

// After 基于绝对时刻比较
func (ts Timestamp) After(other Timestamp) bool {
	return ts.Time.After(other.Time)
}

// Equal 基于绝对时刻比较
func (ts Timestamp) Equal(other Timestamp) bool {
	return ts.Time.Equal(other.Time)
}

// IsZero 零值判断
func (ts Timestamp) IsZero() bool {
	return ts.Time.IsZero()
}
