package publisher

import (
	"context"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// Stream 名称
const (
	StreamPatientAlerts    = "glucose:alerts"
	StreamAbnormalReadings = "glucose:readings:abnormal"
	StreamAudit            = "glucose:audit"
)

// 审计事件类型
const (
	AuditEventDuplicateReading = "duplicate_reading_submitted"
	AuditEventAlertsCleared    = "patient_alerts_cleared"
)

// Publisher 下游通知发布接口
// 评估结果不直接触达临床人员，而是发布到消息流由通知服务消费。
type Publisher interface {
	// PublishPatientAlert 发布患者级告警事件
	PublishPatientAlert(ctx context.Context, patientID string, alertType models.AlertType) error

	// PublishAbnormalReading 发布异常读数事件
	PublishAbnormalReading(ctx context.Context, reading *models.Reading) error

	// PublishAuditEvent 发布审计事件
	PublishAuditEvent(ctx context.Context, eventType string, data map[string]interface{}) error
}
