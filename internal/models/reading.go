package models

import (
	"time"
)

// Banding 血糖读数分级（有序：LOW < NORMAL < HIGH）
type Banding int

const (
	BandingLow Banding = iota
	BandingNormal
	BandingHigh
)

// String 返回分级描述
func (b Banding) String() string {
	switch b {
	case BandingLow:
		return "LOW"
	case BandingNormal:
		return "NORMAL"
	case BandingHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// PrandialTag 餐段标签（有序枚举，用于把读数分组为可比较的序列）
type PrandialTag int

const (
	PrandialTagNone PrandialTag = iota
	PrandialTagBeforeBreakfast
	PrandialTagAfterBreakfast
	PrandialTagBeforeLunch
	PrandialTagAfterLunch
	PrandialTagBeforeDinner
	PrandialTagAfterDinner
	PrandialTagOther
)

// String 返回餐段标签描述
func (p PrandialTag) String() string {
	switch p {
	case PrandialTagNone:
		return "NONE"
	case PrandialTagBeforeBreakfast:
		return "BEFORE_BREAKFAST"
	case PrandialTagAfterBreakfast:
		return "AFTER_BREAKFAST"
	case PrandialTagBeforeLunch:
		return "BEFORE_LUNCH"
	case PrandialTagAfterLunch:
		return "AFTER_LUNCH"
	case PrandialTagBeforeDinner:
		return "BEFORE_DINNER"
	case PrandialTagAfterDinner:
		return "AFTER_DINNER"
	case PrandialTagOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// AlertMarker 挂在单条读数上的报警标记（红/琥珀）
// 被后续评估取代时置 dismissed，不删除。
type AlertMarker struct {
	ID        string `json:"id" db:"id"`
	Dismissed bool   `json:"dismissed" db:"dismissed"`
}

// Reading 血糖读数（对应 readings 表）
// 创建后只有 banding、prandial_tag 和两个报警标记会被修改。
type Reading struct {
	ID                string       `json:"id" db:"reading_id"`
	PatientID         string       `json:"patient_id" db:"patient_id"`
	BloodGlucoseValue float64      `json:"blood_glucose_value" db:"blood_glucose_value"`
	Units             string       `json:"units" db:"units"`
	Measured          Timestamp    `json:"measured"`
	Banding           Banding      `json:"banding" db:"banding"`
	PrandialTag       PrandialTag  `json:"prandial_tag" db:"prandial_tag"`
	Snoozed           bool         `json:"snoozed" db:"snoozed"`
	RedAlert          *AlertMarker `json:"red_alert,omitempty"`
	AmberAlert        *AlertMarker `json:"amber_alert,omitempty"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
}

// HasActiveRedAlert 是否持有未解除的红色标记
func (r *Reading) HasActiveRedAlert() bool {
	return r.RedAlert != nil && !r.RedAlert.Dismissed
}

// HasActiveAmberAlert 是否持有未解除的琥珀色标记
func (r *Reading) HasActiveAmberAlert() bool {
	return r.AmberAlert != nil && !r.AmberAlert.Dismissed
}
