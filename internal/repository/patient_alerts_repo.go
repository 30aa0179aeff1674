package repository

import (
	"context"
	"time"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// PatientAlertsRepository 患者级报警记录仓库接口
type PatientAlertsRepository interface {
	// ListActive 列出 (patient_id, alert_type) 的活动记录（ended_at IS NULL）
	// 正常情况下至多一条，但调用方必须容忍多条
	ListActive(ctx context.Context, patientID string, alertType models.AlertType) ([]*models.PatientAlert, error)

	// CreateAlert 创建报警记录
	CreateAlert(ctx context.Context, alert *models.PatientAlert) error

	// CloseActive 关闭该类型全部活动记录（ended_at = endedAt）；返回关闭条数
	CloseActive(ctx context.Context, patientID string, alertType models.AlertType, endedAt time.Time) (int, error)

	// DismissActive 将指定类型的活动记录标记 dismissed_at（不触碰 ended_at）；返回条数
	DismissActive(ctx context.Context, patientID string, alertTypes []models.AlertType, dismissedAt time.Time) (int, error)
}
