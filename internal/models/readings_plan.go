package models

import (
	"time"
)

// ReadingsPlan 读数计划（外部输入，描述期望的测量频率，本服务不持久化）
type ReadingsPlan struct {
	Created        time.Time `json:"created"`
	ReadingsPerDay int       `json:"readings_per_day"`
	DaysPerWeek    int       `json:"days_per_week_to_take_readings"`
}

// ReadingsPerWeek 每周期望读数（readings_per_day * days_per_week）
func (p ReadingsPlan) ReadingsPerWeek() float64 {
	return float64(p.ReadingsPerDay * p.DaysPerWeek)
}
