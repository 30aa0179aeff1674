package evaluator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/repository"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/timeutil"
)

// 活动告警回看天数与达标比例
const (
	activityLookbackDays = 7
	activityRatio        = 2.0 / 3.0
)

// ThresholdFlags 外部阈值计算得到的患者级红/琥珀布尔值
type ThresholdFlags struct {
	RedNow   bool `json:"red_now"`
	AmberNow bool `json:"amber_now"`
}

// PercentagesEngine percentages 制式告警引擎
// 红/琥珀由外部阈值计算结果对账得到，活动告警由加权预期读数模型推导。
type PercentagesEngine struct {
	patients repository.PatientsRepository
	readings repository.ReadingsRepository
	records  *AlertRecordStore
	snooze   *SnoozeManager
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewPercentagesEngine 创建 percentages 告警引擎
func NewPercentagesEngine(
	patients repository.PatientsRepository,
	readings repository.ReadingsRepository,
	records *AlertRecordStore,
	snooze *SnoozeManager,
	loc *time.Location,
	logger *zap.Logger,
) *PercentagesEngine {
	return &PercentagesEngine{
		patients: patients,
		readings: readings,
		records:  records,
		snooze:   snooze,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

// ReconcileAlerts 按批对账患者级红/琥珀告警
// 整批先做存在性检查，任一患者不存在即失败且不做任何变更；
// 检查通过后逐患者独立提交，后续失败不回滚已处理的患者。
func (e *PercentagesEngine) ReconcileAlerts(ctx context.Context, batch map[string]ThresholdFlags) error {
	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	existing, err := e.patients.FilterExisting(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to check patient existence: %w", err)
	}
	for _, id := range ids {
		if !existing[id] {
			return fmt.Errorf("patient not found: patient_id=%s: %w", id, repository.ErrNotFound)
		}
	}

	for _, id := range ids {
		flags := batch[id]
		if err := e.reconcilePatient(ctx, id, flags); err != nil {
			return err
		}
	}
	return nil
}

func (e *PercentagesEngine) reconcilePatient(ctx context.Context, patientID string, flags ThresholdFlags) error {
	patient, err := e.patients.GetPatient(ctx, patientID)
	if err != nil {
		return err
	}

	red, amber := flags.RedNow, flags.AmberNow
	// 抑制窗口内强制清零患者旗标，但告警记录仍按真实状态推进
	if e.snooze.IsPatientInSnoozePeriod(patient, e.now()) {
		red, amber = false, false
	}

	if err := e.patients.SetCurrentAlerts(ctx, patientID, red, amber); err != nil {
		return err
	}

	if err := e.records.UpdateAlertRecord(ctx, patientID, models.AlertTypePercentagesRed, flags.RedNow, true); err != nil {
		return err
	}
	if err := e.records.UpdateAlertRecord(ctx, patientID, models.AlertTypePercentagesAmber, flags.AmberNow, true); err != nil {
		return err
	}
	return nil
}

// EvaluateActivity 活动告警：近 7 个自然日实际读数少于预期的 2/3 即触发
func (e *PercentagesEngine) EvaluateActivity(ctx context.Context, patientID string, plans []models.ReadingsPlan) (bool, error) {
	if _, err := e.patients.GetPatient(ctx, patientID); err != nil {
		return false, err
	}

	end := timeutil.LastMidnight(e.now(), e.loc)
	start := timeutil.MidnightPlusDays(e.now(), e.loc, -activityLookbackDays)

	actual, err := e.readings.CountSince(ctx, patientID, start)
	if err != nil {
		return false, err
	}

	expected, err := ExpectedReadingCount(plans, start, end)
	if err != nil {
		return false, err
	}

	activeNow := float64(actual) < expected*activityRatio

	if err := e.records.UpdateAlertRecord(ctx, patientID, models.AlertTypeActivityGrey, activeNow, true); err != nil {
		return false, err
	}
	if err := e.patients.SetActivityAlert(ctx, patientID, activeNow); err != nil {
		return false, err
	}

	e.logger.Info("Evaluated activity alert",
		zap.String("patient_id", patientID),
		zap.Int("actual_count", actual),
		zap.Float64("expected_count", expected),
		zap.Bool("active", activeNow),
	)
	return activeNow, nil
}

// DismissActiveAlerts 解除患者 percentages 类告警记录；活动告警不受影响
func (e *PercentagesEngine) DismissActiveAlerts(ctx context.Context, patientID string) error {
	types := []models.AlertType{models.AlertTypePercentagesRed, models.AlertTypePercentagesAmber}
	affected, err := e.records.DismissActive(ctx, patientID, types)
	if err != nil {
		return err
	}
	if affected > 0 {
		e.logger.Info("Dismissed percentages alert records",
			zap.String("patient_id", patientID),
			zap.Int("affected", affected),
		)
	}
	return nil
}

// ExpectedReadingCount 按时间加权的预期读数（7 日周率）
// 步骤：按 created 升序排序；丢弃在 start 之前已被后续计划取代的计划；
// 每个计划以 readings_per_day * days_per_week 为周率，按其覆盖时长加权平均。
// 首个留存计划即使 created 晚于 start，左边界也取 start，与历史行为保持一致。
func ExpectedReadingCount(plans []models.ReadingsPlan, start, end time.Time) (float64, error) {
	if len(plans) == 0 {
		return 0, nil
	}

	sorted := make([]models.ReadingsPlan, len(plans))
	copy(sorted, plans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Created.Before(sorted[j].Created)
	})

	kept := filterSupersededPlans(sorted, start)

	var totalValue float64
	var totalWeight int64
	for i, plan := range kept {
		periodStart := start
		if i > 0 {
			periodStart = plan.Created
		}
		periodEnd := end
		if i+1 < len(kept) {
			periodEnd = kept[i+1].Created
		}

		duration := int64(periodEnd.Sub(periodStart) / time.Second)
		if duration < 0 {
			return 0, fmt.Errorf("plan %d starts after its period ends: %w", i, ErrPlanOrder)
		}

		totalValue += plan.ReadingsPerWeek() * float64(duration)
		totalWeight += duration
	}

	if totalWeight == 0 {
		return 0, ErrZeroPlanWeight
	}
	return totalValue / float64(totalWeight), nil
}

// filterSupersededPlans 保留计划 i 当且仅当：它是最后一个，
// 或其创建时刻 >= start，或下一个计划的创建时刻 >= start
func filterSupersededPlans(sorted []models.ReadingsPlan, start time.Time) []models.ReadingsPlan {
	kept := []models.ReadingsPlan{}
	for i, plan := range sorted {
		if i == len(sorted)-1 {
			kept = append(kept, plan)
			continue
		}
		if !plan.Created.Before(start) || !sorted[i+1].Created.Before(start) {
			kept = append(kept, plan)
		}
	}
	return kept
}
