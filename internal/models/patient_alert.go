package models

import (
	"time"
)

// AlertType 患者级报警类型
// COUNTS_* 仅用于通知与审计（计数报警本体挂在读数上），
// PERCENTAGES_* / ACTIVITY_GREY 对应 patient_alerts 记录生命周期。
type AlertType string

const (
	AlertTypeCountsRed        AlertType = "COUNTS_RED"
	AlertTypeCountsAmber      AlertType = "COUNTS_AMBER"
	AlertTypePercentagesRed   AlertType = "PERCENTAGES_RED"
	AlertTypePercentagesAmber AlertType = "PERCENTAGES_AMBER"
	AlertTypeActivityGrey     AlertType = "ACTIVITY_GREY"
)

// PatientAlert 患者级报警记录（对应 patient_alerts 表）
// 不变式：同一 (patient_id, alert_type) 任意时刻至多一条 ended_at IS NULL 的记录。
type PatientAlert struct {
	ID          string     `json:"id" db:"alert_id"`
	PatientID   string     `json:"patient_id" db:"patient_id"`
	AlertType   AlertType  `json:"alert_type" db:"alert_type"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty" db:"dismissed_at"`
}

// Active 记录是否仍处于活动状态
func (a *PatientAlert) Active() bool {
	return a.EndedAt == nil
}
