package evaluator

import (
	"time"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/timeutil"
)

// SnoozeManager 判断读数/患者是否处于抑制窗口内
// 窗口由确认告警时一次性写入患者记录，随时间自然失效，没有显式退出事件。
type SnoozeManager struct {
	loc *time.Location
}

// NewSnoozeManager 创建抑制窗口管理器
func NewSnoozeManager(loc *time.Location) *SnoozeManager {
	return &SnoozeManager{loc: loc}
}

// IsReadingInSnoozePeriod 读数测量时刻是否落在患者抑制窗口内（两端闭区间）
// 任一边界未设置时返回 false。
func (m *SnoozeManager) IsReadingInSnoozePeriod(reading *models.Reading, patient *models.Patient) bool {
	if patient.SuppressFrom == nil || patient.SuppressUntil == nil {
		return false
	}
	measured := reading.Measured
	if measured.Before(*patient.SuppressFrom) {
		return false
	}
	if measured.After(*patient.SuppressUntil) {
		return false
	}
	return true
}

// IsPatientInSnoozePeriod 给定时刻患者是否处于抑制窗口内（两端闭区间）
func (m *SnoozeManager) IsPatientInSnoozePeriod(patient *models.Patient, at time.Time) bool {
	if patient.SuppressFrom == nil || patient.SuppressUntil == nil {
		return false
	}
	if at.Before(patient.SuppressFrom.Time) {
		return false
	}
	if at.After(patient.SuppressUntil.Time) {
		return false
	}
	return true
}

// ComputeSnoozeWindow 计算新的抑制窗口：[now, lastMidnight(now) + days]
func (m *SnoozeManager) ComputeSnoozeWindow(now time.Time, days int) (models.Timestamp, models.Timestamp) {
	from := models.SplitTimestamp(now.In(m.loc))
	until := models.SplitTimestamp(timeutil.MidnightPlusDays(now, m.loc, days))
	return from, until
}
