package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/publisher"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/repository"
)

// AlertRecordStore 患者告警记录生命周期管理
// 约束：同一 (patient, alert_type) 任一时刻最多一条 ended_at = null 的活动记录。
type AlertRecordStore struct {
	alerts repository.PatientAlertsRepository
	pub    publisher.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewAlertRecordStore 创建告警记录管理器
func NewAlertRecordStore(alerts repository.PatientAlertsRepository, pub publisher.Publisher, logger *zap.Logger) *AlertRecordStore {
	return &AlertRecordStore{
		alerts: alerts,
		pub:    pub,
		logger: logger,
		now:    time.Now,
	}
}

// UpdateAlertRecord 按当前状态推进告警记录：
// - activeNow 且无活动记录：新建一条并（notify 时）发布通知
// - activeNow 且已有活动记录：不重复创建
// - 非 activeNow：关闭该类型全部活动记录（容忍历史上多条并存）
func (s *AlertRecordStore) UpdateAlertRecord(ctx context.Context, patientID string, alertType models.AlertType, activeNow bool, notify bool) error {
	active, err := s.alerts.ListActive(ctx, patientID, alertType)
	if err != nil {
		return fmt.Errorf("failed to list active alerts: %w", err)
	}

	if activeNow {
		if len(active) > 0 {
			return nil
		}

		record := &models.PatientAlert{
			ID:        uuid.New().String(),
			PatientID: patientID,
			AlertType: alertType,
			StartedAt: s.now(),
		}
		if err := s.alerts.CreateAlert(ctx, record); err != nil {
			return fmt.Errorf("failed to create alert record: %w", err)
		}

		s.logger.Info("Opened patient alert record",
			zap.String("patient_id", patientID),
			zap.String("alert_type", string(alertType)),
		)

		if notify {
			// 发布失败只记录，不影响评估结果
			if err := s.pub.PublishPatientAlert(ctx, patientID, alertType); err != nil {
				s.logger.Warn("Failed to publish patient alert",
					zap.String("patient_id", patientID),
					zap.String("alert_type", string(alertType)),
					zap.Error(err),
				)
			}
		}
		return nil
	}

	if len(active) == 0 {
		return nil
	}

	closed, err := s.alerts.CloseActive(ctx, patientID, alertType, s.now())
	if err != nil {
		return fmt.Errorf("failed to close alert records: %w", err)
	}

	s.logger.Info("Closed patient alert records",
		zap.String("patient_id", patientID),
		zap.String("alert_type", string(alertType)),
		zap.Int("closed", closed),
	)
	return nil
}

// DismissActive 将指定类型的未解除记录标记为已解除，不改动 ended_at
func (s *AlertRecordStore) DismissActive(ctx context.Context, patientID string, alertTypes []models.AlertType) (int, error) {
	affected, err := s.alerts.DismissActive(ctx, patientID, alertTypes, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to dismiss alert records: %w", err)
	}
	return affected, nil
}
