package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/evaluator"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/publisher"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/repository"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/trustomer"
)

// AlertsConfig 客户侧告警配置（由 trustomer 客户端提供，每次调用现取）
type AlertsConfig interface {
	AlertsSystem(ctx context.Context) (string, error)
	SnoozeDurationDays(ctx context.Context) (int, error)
}

// SnoozeWindow 一次确认产生的抑制窗口
type SnoozeWindow struct {
	SuppressFrom  models.Timestamp `json:"suppress_from"`
	SuppressUntil models.Timestamp `json:"suppress_until"`
}

// GlucoseService 血糖读数业务服务层
// 职责：
// 1. 读数创建与修改（抑制窗口盖章、重复提交处理）
// 2. 告警评估编排（按客户制式路由到 counts / percentages 引擎）
// 3. 告警确认（清旗标、开抑制窗口、解除历史标记）
type GlucoseService struct {
	readings repository.ReadingsRepository
	patients repository.PatientsRepository
	counts   *evaluator.CountsEngine
	perc     *evaluator.PercentagesEngine
	snooze   *evaluator.SnoozeManager
	config   AlertsConfig
	pub      publisher.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewGlucoseService 创建血糖业务服务
func NewGlucoseService(
	readings repository.ReadingsRepository,
	patients repository.PatientsRepository,
	counts *evaluator.CountsEngine,
	perc *evaluator.PercentagesEngine,
	snooze *evaluator.SnoozeManager,
	config AlertsConfig,
	pub publisher.Publisher,
	logger *zap.Logger,
) *GlucoseService {
	return &GlucoseService{
		readings: readings,
		patients: patients,
		counts:   counts,
		perc:     perc,
		snooze:   snooze,
		config:   config,
		pub:      pub,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateReading 创建读数
// 业务规则：
// - 创建时刻一次性盖章 snoozed，之后窗口变化不回溯
// - 重复提交（同患者、同值、同单位、同测量时刻）返回已存在的读数并记审计
// - 异常分级的读数发布到下游消息流
func (s *GlucoseService) CreateReading(ctx context.Context, reading *models.Reading) (*models.Reading, error) {
	if reading == nil {
		return nil, fmt.Errorf("reading is required")
	}
	if reading.PatientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	if reading.Units == "" {
		return nil, fmt.Errorf("units is required")
	}
	if reading.Measured.IsZero() {
		return nil, fmt.Errorf("measured timestamp is required")
	}
	if reading.ID == "" {
		reading.ID = uuid.New().String()
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = s.now()
	}

	if err := s.patients.EnsurePatient(ctx, reading.PatientID); err != nil {
		return nil, err
	}
	patient, err := s.patients.GetPatient(ctx, reading.PatientID)
	if err != nil {
		return nil, err
	}

	reading.Snoozed = s.snooze.IsReadingInSnoozePeriod(reading, patient)

	if err := s.readings.CreateReading(ctx, reading); err != nil {
		if errors.Is(err, repository.ErrDuplicateReading) {
			return s.handleDuplicateReading(ctx, reading)
		}
		return nil, err
	}

	s.logger.Info("Created reading",
		zap.String("reading_id", reading.ID),
		zap.String("patient_id", reading.PatientID),
		zap.String("banding", reading.Banding.String()),
		zap.Bool("snoozed", reading.Snoozed),
	)

	// snoozed 读数不参与告警，也不对下游广播
	if !reading.Snoozed && reading.Banding != models.BandingNormal {
		if err := s.pub.PublishAbnormalReading(ctx, reading); err != nil {
			s.logger.Warn("Failed to publish abnormal reading",
				zap.String("reading_id", reading.ID),
				zap.Error(err),
			)
		}
	}
	return reading, nil
}

// handleDuplicateReading 重复提交：记审计事件并返回已存在的读数
func (s *GlucoseService) handleDuplicateReading(ctx context.Context, reading *models.Reading) (*models.Reading, error) {
	existing, err := s.readings.FindReadingByMeasurement(ctx,
		reading.PatientID, reading.BloodGlucoseValue, reading.Units, reading.Measured.Time)
	if err != nil {
		return nil, err
	}

	s.logger.Warn("Duplicate reading submitted",
		zap.String("patient_id", reading.PatientID),
		zap.String("existing_reading_id", existing.ID),
	)

	if err := s.pub.PublishAuditEvent(ctx, publisher.AuditEventDuplicateReading, map[string]interface{}{
		"patient_id": reading.PatientID,
		"reading_id": existing.ID,
	}); err != nil {
		s.logger.Warn("Failed to publish audit event", zap.Error(err))
	}
	return existing, nil
}

// UpdateReading 修改读数的分级/餐段标签
// 分级改为 NORMAL 时清除该读数上的红色标记。
func (s *GlucoseService) UpdateReading(ctx context.Context, readingID string, banding *models.Banding, tag *models.PrandialTag) (*models.Reading, error) {
	if readingID == "" {
		return nil, fmt.Errorf("reading_id is required")
	}

	if banding != nil {
		if err := s.readings.SetBanding(ctx, readingID, *banding); err != nil {
			return nil, err
		}
		if *banding == models.BandingNormal {
			if err := s.readings.SetRedAlert(ctx, readingID, nil); err != nil {
				return nil, err
			}
		}
	}
	if tag != nil {
		if err := s.readings.SetPrandialTag(ctx, readingID, *tag); err != nil {
			return nil, err
		}
	}

	updated, err := s.readings.GetReading(ctx, readingID)
	if err != nil {
		return nil, err
	}

	// 任一字段被修改且修改后的读数仍可参与告警时重新广播
	if (banding != nil || tag != nil) && !updated.Snoozed && updated.Banding != models.BandingNormal {
		if err := s.pub.PublishAbnormalReading(ctx, updated); err != nil {
			s.logger.Warn("Failed to publish abnormal reading",
				zap.String("reading_id", updated.ID),
				zap.Error(err),
			)
		}
	}
	return updated, nil
}

// EvaluateCounts 评估一条读数的 counts 告警
// 客户制式为 percentages 时不评估，直接返回空结果。
func (s *GlucoseService) EvaluateCounts(ctx context.Context, readingID string) (*evaluator.EvaluationResult, error) {
	system, err := s.config.AlertsSystem(ctx)
	if err != nil {
		return nil, err
	}
	if system != trustomer.AlertsSystemCounts {
		return &evaluator.EvaluationResult{}, nil
	}
	return s.counts.Evaluate(ctx, readingID)
}

// ReconcilePercentages 按批对账 percentages 告警
func (s *GlucoseService) ReconcilePercentages(ctx context.Context, batch map[string]evaluator.ThresholdFlags) error {
	return s.perc.ReconcileAlerts(ctx, batch)
}

// EvaluateActivity 评估患者活动告警
func (s *GlucoseService) EvaluateActivity(ctx context.Context, patientID string, plans []models.ReadingsPlan) (bool, error) {
	return s.perc.EvaluateActivity(ctx, patientID, plans)
}

// ClearAlerts 确认并清除患者全部告警，开启新的抑制窗口
// 患者不存在时失败且不做任何变更。
func (s *GlucoseService) ClearAlerts(ctx context.Context, patientID string) (*SnoozeWindow, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	days, err := s.config.SnoozeDurationDays(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	from, until := s.snooze.ComputeSnoozeWindow(now, days)

	if err := s.patients.SetCurrentAlerts(ctx, patientID, false, false); err != nil {
		return nil, err
	}
	if err := s.patients.SetSnoozeWindow(ctx, patientID, from, until); err != nil {
		return nil, err
	}
	if err := s.perc.DismissActiveAlerts(ctx, patientID); err != nil {
		return nil, err
	}
	if err := s.counts.DismissActiveAlertsForPatient(ctx, patientID); err != nil {
		return nil, err
	}

	s.logger.Info("Cleared patient alerts",
		zap.String("patient_id", patientID),
		zap.Time("suppress_from", from.Time),
		zap.Time("suppress_until", until.Time),
	)

	if err := s.pub.PublishAuditEvent(ctx, publisher.AuditEventAlertsCleared, map[string]interface{}{
		"patient_id":     patientID,
		"suppress_from":  from.Time.Format(time.RFC3339),
		"suppress_until": until.Time.Format(time.RFC3339),
	}); err != nil {
		s.logger.Warn("Failed to publish audit event", zap.Error(err))
	}

	return &SnoozeWindow{SuppressFrom: from, SuppressUntil: until}, nil
}

// GetPatient 获取患者告警状态
func (s *GlucoseService) GetPatient(ctx context.Context, patientID string) (*models.Patient, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	return s.patients.GetPatient(ctx, patientID)
}

// LatestReading 获取患者最新读数
func (s *GlucoseService) LatestReading(ctx context.Context, patientID string) (*models.Reading, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	return s.readings.LatestReading(ctx, patientID)
}
