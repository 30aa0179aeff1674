package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// RedisPublisher 基于 Redis Streams 的发布器
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisPublisher 创建发布器
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// PublishPatientAlert 发布患者级告警事件到 glucose:alerts
func (p *RedisPublisher) PublishPatientAlert(ctx context.Context, patientID string, alertType models.AlertType) error {
	if patientID == "" {
		return fmt.Errorf("patient_id is required")
	}

	payload := map[string]interface{}{
		"patient_id": patientID,
		"alert_type": string(alertType),
	}

	if err := p.publish(ctx, StreamPatientAlerts, payload); err != nil {
		return fmt.Errorf("failed to publish patient alert: %w", err)
	}

	p.logger.Info("Published patient alert",
		zap.String("patient_id", patientID),
		zap.String("alert_type", string(alertType)),
	)
	return nil
}

// PublishAbnormalReading 发布异常读数事件到 glucose:readings:abnormal
func (p *RedisPublisher) PublishAbnormalReading(ctx context.Context, reading *models.Reading) error {
	if reading == nil {
		return fmt.Errorf("reading is required")
	}

	payload := map[string]interface{}{
		"reading_id":          reading.ID,
		"patient_id":          reading.PatientID,
		"blood_glucose_value": reading.BloodGlucoseValue,
		"units":               reading.Units,
		"measured_at":         reading.Measured.Local().Format(time.RFC3339),
		"banding":             reading.Banding.String(),
		"prandial_tag":        reading.PrandialTag.String(),
	}

	if err := p.publish(ctx, StreamAbnormalReadings, payload); err != nil {
		return fmt.Errorf("failed to publish abnormal reading: %w", err)
	}

	p.logger.Info("Published abnormal reading",
		zap.String("reading_id", reading.ID),
		zap.String("patient_id", reading.PatientID),
	)
	return nil
}

// PublishAuditEvent 发布审计事件到 glucose:audit
func (p *RedisPublisher) PublishAuditEvent(ctx context.Context, eventType string, data map[string]interface{}) error {
	if eventType == "" {
		return fmt.Errorf("event_type is required")
	}

	payload := map[string]interface{}{
		"event_type": eventType,
		"event_data": data,
	}

	if err := p.publish(ctx, StreamAudit, payload); err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	return nil
}

func (p *RedisPublisher) publish(ctx context.Context, stream string, payload map[string]interface{}) error {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": p.now().Unix(),
		},
	}).Err()
}
