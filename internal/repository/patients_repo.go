package repository

import (
	"context"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// PatientsRepository 患者仓库接口
type PatientsRepository interface {
	// GetPatient 根据 patient_id 获取患者；不存在返回 ErrNotFound
	GetPatient(ctx context.Context, patientID string) (*models.Patient, error)

	// EnsurePatient 幂等创建患者空记录
	EnsurePatient(ctx context.Context, patientID string) error

	// FilterExisting 返回 ids 中实际存在的患者 ID 集合（批量存在性预检）
	FilterExisting(ctx context.Context, ids []string) (map[string]bool, error)

	// SetCurrentAlerts 更新红/琥珀当前报警布尔
	SetCurrentAlerts(ctx context.Context, patientID string, red, amber bool) error

	// SetActivityAlert 更新活动报警布尔
	SetActivityAlert(ctx context.Context, patientID string, active bool) error

	// SetSnoozeWindow 设置抑制窗口两端
	SetSnoozeWindow(ctx context.Context, patientID string, from, until models.Timestamp) error
}
