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
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/timeutil"
)

// 红色告警链检测的邻域宽度与最小链长
const (
	redNeighbourCount = 2
	redChainLength    = 3
)

// EvaluationResult 单条读数评估结果
type EvaluationResult struct {
	RedTriggered   bool `json:"red_triggered"`
	AmberTriggered bool `json:"amber_triggered"`
}

// CountsEngine counts 制式告警引擎
// 引擎本身无状态，所有状态都落在 Reading/Patient/PatientAlert 记录上；
// 同一患者的评估由调用方串行化。
type CountsEngine struct {
	readings repository.ReadingsRepository
	patients repository.PatientsRepository
	records  *AlertRecordStore
	pub      publisher.Publisher
	logger   *zap.Logger
	loc      *time.Location
}

// NewCountsEngine 创建 counts 告警引擎
func NewCountsEngine(
	readings repository.ReadingsRepository,
	patients repository.PatientsRepository,
	records *AlertRecordStore,
	pub publisher.Publisher,
	loc *time.Location,
	logger *zap.Logger,
) *CountsEngine {
	return &CountsEngine{
		readings: readings,
		patients: patients,
		records:  records,
		pub:      pub,
		logger:   logger,
		loc:      loc,
	}
}

// couldTriggerAlert 读数是否可参与告警：snoozed 或 NORMAL 分级不参与
func couldTriggerAlert(reading *models.Reading) bool {
	if reading.Snoozed {
		return false
	}
	return reading.Banding != models.BandingNormal
}

// couldTriggerRedAlert 读数是否可参与红色告警链：
// 已被解除过红色标记的读数不再参与，避免确认后的读数反复触发
func couldTriggerRedAlert(reading *models.Reading) bool {
	if !couldTriggerAlert(reading) {
		return false
	}
	if reading.RedAlert != nil && reading.RedAlert.Dismissed {
		return false
	}
	return true
}

// Evaluate 评估一条读数，依次执行红色告警链检测和琥珀色两日窗口检测
func (e *CountsEngine) Evaluate(ctx context.Context, readingID string) (*EvaluationResult, error) {
	reading, err := e.readings.GetReading(ctx, readingID)
	if err != nil {
		return nil, err
	}

	result := &EvaluationResult{}

	// 抑制窗口内创建的读数永远不参与评估
	if reading.Snoozed {
		return result, nil
	}

	patient, err := e.patients.GetPatient(ctx, reading.PatientID)
	if err != nil {
		return nil, err
	}

	redTriggered, err := e.processRedAlerts(ctx, reading)
	if err != nil {
		return nil, err
	}
	result.RedTriggered = redTriggered

	amberTriggered, err := e.processAmberAlerts(ctx, reading)
	if err != nil {
		return nil, err
	}
	result.AmberTriggered = amberTriggered

	if redTriggered || amberTriggered {
		red := patient.CurrentRedAlert || redTriggered
		amber := patient.CurrentAmberAlert || amberTriggered
		if err := e.patients.SetCurrentAlerts(ctx, patient.ID, red, amber); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// processRedAlerts 红色告警：同餐段标签的连续异常读数链检测
// 窗口为 [前2条(升序), R, 后2条(升序)]，出现连续 3 条可告警读数即成链，
// 成链后沿后续连续可告警读数贪婪延伸。
func (e *CountsEngine) processRedAlerts(ctx context.Context, reading *models.Reading) (bool, error) {
	window, evaluatedIdx, err := e.buildRedWindow(ctx, reading)
	if err != nil {
		return false, err
	}

	alertable := findAlertChain(window)
	if alertable == nil {
		return false, nil
	}

	evaluatedTriggered := false
	for idx := range alertable {
		marker := &models.AlertMarker{ID: uuid.New().String()}
		if err := e.readings.SetRedAlert(ctx, window[idx].ID, marker); err != nil {
			return false, fmt.Errorf("failed to attach red alert: %w", err)
		}
		if idx == evaluatedIdx {
			evaluatedTriggered = true
		}
	}

	if !evaluatedTriggered {
		return false, nil
	}

	if err := e.records.UpdateAlertRecord(ctx, reading.PatientID, models.AlertTypeCountsRed, true, false); err != nil {
		return false, err
	}

	// 每次评估最多发布一条通知，不按读数逐条发布
	if err := e.pub.PublishPatientAlert(ctx, reading.PatientID, models.AlertTypeCountsRed); err != nil {
		e.logger.Warn("Failed to publish red alert",
			zap.String("patient_id", reading.PatientID),
			zap.Error(err),
		)
	}

	e.logger.Info("Red alert chain detected",
		zap.String("patient_id", reading.PatientID),
		zap.String("reading_id", reading.ID),
		zap.Int("marked", len(alertable)),
	)
	return true, nil
}

// buildRedWindow 构建以 R 为中心的同餐段读数窗口，返回窗口和 R 的下标
func (e *CountsEngine) buildRedWindow(ctx context.Context, reading *models.Reading) ([]*models.Reading, int, error) {
	past, err := e.readings.ListBefore(ctx, reading.PatientID, reading.PrandialTag, reading.Measured.Time, redNeighbourCount)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch preceding readings: %w", err)
	}
	future, err := e.readings.ListAfter(ctx, reading.PatientID, reading.PrandialTag, reading.Measured.Time, redNeighbourCount)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch following readings: %w", err)
	}

	window := make([]*models.Reading, 0, len(past)+1+len(future))
	// past 按时间降序返回，反转为升序
	for i := len(past) - 1; i >= 0; i-- {
		window = append(window, past[i])
	}
	evaluatedIdx := len(window)
	window = append(window, reading)
	window = append(window, future...)
	return window, evaluatedIdx, nil
}

// findAlertChain 在窗口中找第一个连续 3 条可告警读数构成的链，
// 并沿其后的连续可告警读数延伸；返回命中下标集合，无链返回 nil
func findAlertChain(window []*models.Reading) map[int]bool {
	flags := make([]bool, len(window))
	for i, r := range window {
		flags[i] = couldTriggerRedAlert(r)
	}

	chainStart := -1
	for i := 0; i+redChainLength <= len(flags); i++ {
		if flags[i] && flags[i+1] && flags[i+2] {
			chainStart = i
			break
		}
	}
	if chainStart < 0 {
		return nil
	}

	alertable := map[int]bool{}
	for i := chainStart; i < len(flags) && flags[i]; i++ {
		alertable[i] = true
	}
	return alertable
}

// processAmberAlerts 琥珀色告警：最近两个含读数的自然日窗口内
// 超过一条可告警读数即触发
func (e *CountsEngine) processAmberAlerts(ctx context.Context, reading *models.Reading) (bool, error) {
	latest, err := e.readings.LatestReading(ctx, reading.PatientID)
	if err != nil {
		return false, err
	}

	end := timeutil.MidnightPlusDays(latest.Measured.Time, e.loc, 1)
	latestMidnight := timeutil.LastMidnight(latest.Measured.Time, e.loc)

	previous, err := e.readings.LatestReadingBefore(ctx, reading.PatientID, latestMidnight)
	if err != nil {
		return false, err
	}

	start := latestMidnight
	if previous != nil {
		start = timeutil.LastMidnight(previous.Measured.Time, e.loc)
	}

	// 被评估读数不在窗口 [start, end) 内则跳过
	measured := reading.Measured.Time
	if measured.Before(start) || !measured.Before(end) {
		return false, nil
	}

	window, err := e.readings.ListBetween(ctx, reading.PatientID, start, end)
	if err != nil {
		return false, err
	}

	candidates := []*models.Reading{}
	for _, r := range window {
		if couldTriggerAlert(r) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) <= 1 {
		return false, nil
	}

	for _, r := range candidates {
		// 已持有未解除琥珀标记的读数跳过，挂接是幂等的
		if r.HasActiveAmberAlert() {
			continue
		}
		marker := &models.AlertMarker{ID: uuid.New().String()}
		if err := e.readings.SetAmberAlert(ctx, r.ID, marker); err != nil {
			return false, fmt.Errorf("failed to attach amber alert: %w", err)
		}
	}

	if err := e.records.UpdateAlertRecord(ctx, reading.PatientID, models.AlertTypeCountsAmber, true, false); err != nil {
		return false, err
	}

	if err := e.pub.PublishPatientAlert(ctx, reading.PatientID, models.AlertTypeCountsAmber); err != nil {
		e.logger.Warn("Failed to publish amber alert",
			zap.String("patient_id", reading.PatientID),
			zap.Error(err),
		)
	}

	e.logger.Info("Amber alert window triggered",
		zap.String("patient_id", reading.PatientID),
		zap.String("reading_id", reading.ID),
		zap.Int("candidates", len(candidates)),
	)
	return true, nil
}

// DismissActiveAlertsForPatient 解除患者全部读数上未解除的红/琥珀标记（幂等）
func (e *CountsEngine) DismissActiveAlertsForPatient(ctx context.Context, patientID string) error {
	affected, err := e.readings.DismissActiveAlerts(ctx, patientID)
	if err != nil {
		return fmt.Errorf("failed to dismiss reading alerts: %w", err)
	}
	if affected > 0 {
		e.logger.Info("Dismissed reading alert markers",
			zap.String("patient_id", patientID),
			zap.Int("affected", affected),
		)
	}
	return nil
}
