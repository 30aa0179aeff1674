package models

// Patient 患者（对应 patients 表）
// 三个 current_* 布尔由计数引擎 / 百分比引擎维护，
// 抑制窗口两端由 snooze 管理器维护。
type Patient struct {
	ID                   string     `json:"id" db:"patient_id"`
	SuppressFrom         *Timestamp `json:"suppress_alerts_from,omitempty"`
	SuppressUntil        *Timestamp `json:"suppress_alerts_until,omitempty"`
	CurrentRedAlert      bool       `json:"current_red_alert" db:"current_red_alert"`
	CurrentAmberAlert    bool       `json:"current_amber_alert" db:"current_amber_alert"`
	CurrentActivityAlert bool       `json:"current_activity_alert" db:"current_activity_alert"`
}
