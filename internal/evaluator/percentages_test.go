package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/repository"
)

var percNow = time.Date(2023, 4, 10, 12, 0, 0, 0, time.UTC)

func newPercentagesFixture() *testFixture {
	f := newTestFixture()
	f.perc.now = func() time.Time { return percNow }
	f.records.now = func() time.Time { return percNow }
	return f
}

func TestReconcileAlerts_SetsPatientFlags(t *testing.T) {
	f := newPercentagesFixture()
	ctx := context.Background()
	require.NoError(t, f.patients.EnsurePatient(ctx, "patient-1"))

	err := f.perc.ReconcileAlerts(ctx, map[string]ThresholdFlags{
		"patient-1": {RedNow: true, AmberNow: false},
	})
	require.NoError(t, err)

	patient, err := f.patients.GetPatient(ctx, "patient-1")
	require.NoError(t, err)
	assert.True(t, patient.CurrentRedAlert)
	assert.False(t, patient.CurrentAmberAlert)

	active, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypePercentagesRed)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, 1, f.pub.alertCount(models.AlertTypePercentagesRed))
}

func TestReconcileAlerts_UnknownPatient_NoMutation(t *testing.T) {
	f := newPercentagesFixture()
	ctx := context.Background()
	require.NoError(t, f.patients.EnsurePatient(ctx, "patient-1"))

	err := f.perc.ReconcileAlerts(ctx, map[string]ThresholdFlags{
		"patient-1": {RedNow: true},
		"missing":   {RedNow: true},
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// 存在性检查先于任何变更
	patient, err := f.patients.GetPatient(ctx, "patient-1")
	require.NoError(t, err)
	assert.False(t, patient.CurrentRedAlert)

	active, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypePercentagesRed)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestReconcileAlerts_SnoozeForcesFlagsFalse(t *testing.T) {
	f := newPercentagesFixture()
	ctx := context.Background()
	require.NoError(t, f.patients.EnsurePatient(ctx, "patient-1"))

	from := models.NewTimestamp(percNow.Add(-time.Hour), 0)
	until := models.NewTimestamp(percNow.Add(time.Hour), 0)
	require.NoError(t, f.patients.SetSnoozeWindow(ctx, "patient-1", from, until))

	err := f.perc.ReconcileAlerts(ctx, map[string]ThresholdFlags{
		"patient-1": {RedNow: true, AmberNow: true},
	})
	require.NoError(t, err)

	patient, err := f.patients.GetPatient(ctx, "patient-1")
	require.NoError(t, err)
	assert.False(t, patient.CurrentRedAlert)
	assert.False(t, patient.CurrentAmberAlert)

	// 抑制只作用于患者旗标，告警记录仍按真实状态推进
	active, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypePercentagesRed)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestReconcileAlerts_DeactivationClosesAllActive(t *testing.T) {
	f := newPercentagesFixture()
	ctx := context.Background()
	require.NoError(t, f.patients.EnsurePatient(ctx, "patient-1"))

	// 历史遗留的两条并存活动记录必须全部被关闭
	for _, id := range []string{"alert-a", "alert-b"} {
		require.NoError(t, f.alerts.CreateAlert(ctx, &models.PatientAlert{
			ID:        id,
			PatientID: "patient-1",
			AlertType: models.AlertTypePercentagesAmber,
			StartedAt: percNow.Add(-24 * time.Hour),
		}))
	}

	err := f.perc.ReconcileAlerts(ctx, map[string]ThresholdFlags{
		"patient-1": {AmberNow: false},
	})
	require.NoError(t, err)

	active, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypePercentagesAmber)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestEvaluateActivity_BelowExpected_Triggers(t *testing.T) {
	f := newPercentagesFixture()
	ctx := context.Background()
	require.NoError(t, f.patients.EnsurePatient(ctx, "patient-1"))

	// 预期 21 条/周，实际只有 2 条
	f.addReading("patient-1", 1, percNow.Add(-48*time.Hour), 5.0, models.BandingNormal, models.PrandialTagBeforeBreakfast)
	f.addReading("patient-1", 2, percNow.Add(-24*time.Hour), 5.0, models.BandingNormal, models.PrandialTagBeforeBreakfast)

	plans := []models.ReadingsPlan{
		{Created: percNow.AddDate(0, 0, -30), ReadingsPerDay: 3, DaysPerWeek: 7},
	}

	active, err := f.perc.EvaluateActivity(ctx, "patient-1", plans)
	require.NoError(t, err)
	assert.True(t, active)

	patient, err := f.patients.GetPatient(ctx, "patient-1")
	require.NoError(t, err)
	assert.True(t, patient.CurrentActivityAlert)

	records, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypeActivityGrey)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestEvaluateActivity_MeetsExpected_ClearsAlert(t *testing.T) {
	f := newPercentagesFixture()
	ctx := context.Background()
	require.NoError(t, f.patients.EnsurePatient(ctx, "patient-1"))

	require.NoError(t, f.alerts.CreateAlert(ctx, &models.PatientAlert{
		ID:        "alert-a",
		PatientID: "patient-1",
		AlertType: models.AlertTypeActivityGrey,
		StartedAt: percNow.Add(-24 * time.Hour),
	}))

	// 预期 7 条/周，实际 14 条
	for i := 0; i < 14; i++ {
		f.addReading("patient-1", i+1, percNow.Add(-time.Duration(i+1)*6*time.Hour), 5.0, models.BandingNormal, models.PrandialTagNone)
	}

	plans := []models.ReadingsPlan{
		{Created: percNow.AddDate(0, 0, -30), ReadingsPerDay: 1, DaysPerWeek: 7},
	}

	active, err := f.perc.EvaluateActivity(ctx, "patient-1", plans)
	require.NoError(t, err)
	assert.False(t, active)

	patient, err := f.patients.GetPatient(ctx, "patient-1")
	require.NoError(t, err)
	assert.False(t, patient.CurrentActivityAlert)

	records, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypeActivityGrey)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEvaluateActivity_UnknownPatient(t *testing.T) {
	f := newPercentagesFixture()

	_, err := f.perc.EvaluateActivity(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDismissActiveAlerts_LeavesActivityUntouched(t *testing.T) {
	f := newPercentagesFixture()
	ctx := context.Background()
	require.NoError(t, f.patients.EnsurePatient(ctx, "patient-1"))

	for _, alertType := range []models.AlertType{
		models.AlertTypePercentagesRed,
		models.AlertTypePercentagesAmber,
		models.AlertTypeActivityGrey,
	} {
		require.NoError(t, f.alerts.CreateAlert(ctx, &models.PatientAlert{
			ID:        string(alertType),
			PatientID: "patient-1",
			AlertType: alertType,
			StartedAt: percNow,
		}))
	}

	require.NoError(t, f.perc.DismissActiveAlerts(ctx, "patient-1"))

	red, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypePercentagesRed)
	require.NoError(t, err)
	require.Len(t, red, 1)
	assert.NotNil(t, red[0].DismissedAt)

	grey, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypeActivityGrey)
	require.NoError(t, err)
	require.Len(t, grey, 1)
	assert.Nil(t, grey[0].DismissedAt)
}

func TestExpectedReadingCount_EmptyPlans(t *testing.T) {
	count, err := ExpectedReadingCount(nil, percNow.AddDate(0, 0, -7), percNow)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExpectedReadingCount_SinglePlanFullWeek(t *testing.T) {
	start := time.Date(2023, 4, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	plans := []models.ReadingsPlan{
		{Created: start.AddDate(0, 0, -10), ReadingsPerDay: 3, DaysPerWeek: 5},
	}

	count, err := ExpectedReadingCount(plans, start, end)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, count, 1e-9)
}

func TestExpectedReadingCount_TwoPlansWeightedByDuration(t *testing.T) {
	start := time.Date(2023, 4, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	// 边界把 7 天窗口按 2:5 切分，(10*2 + 20*5) / 7 ≈ 17.14
	plans := []models.ReadingsPlan{
		{Created: start.AddDate(0, 0, -10), ReadingsPerDay: 2, DaysPerWeek: 5},
		{Created: start.AddDate(0, 0, 2), ReadingsPerDay: 4, DaysPerWeek: 5},
	}

	count, err := ExpectedReadingCount(plans, start, end)
	require.NoError(t, err)
	assert.InDelta(t, 120.0/7.0, count, 1e-9)
	assert.Equal(t, 17, int(count+0.5))
}

func TestExpectedReadingCount_SupersededPlansDropped(t *testing.T) {
	start := time.Date(2023, 4, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	// 前两个计划在窗口开始前就被第三个取代，不参与加权
	plans := []models.ReadingsPlan{
		{Created: start.AddDate(0, 0, -30), ReadingsPerDay: 9, DaysPerWeek: 7},
		{Created: start.AddDate(0, 0, -20), ReadingsPerDay: 9, DaysPerWeek: 7},
		{Created: start.AddDate(0, 0, -10), ReadingsPerDay: 3, DaysPerWeek: 5},
	}

	count, err := ExpectedReadingCount(plans, start, end)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, count, 1e-9)
}

func TestExpectedReadingCount_ZeroWeight(t *testing.T) {
	start := time.Date(2023, 4, 3, 0, 0, 0, 0, time.UTC)

	plans := []models.ReadingsPlan{
		{Created: start.AddDate(0, 0, -10), ReadingsPerDay: 3, DaysPerWeek: 5},
	}

	_, err := ExpectedReadingCount(plans, start, start)
	assert.ErrorIs(t, err, ErrZeroPlanWeight)
}

func TestExpectedReadingCount_PlanOrderViolation(t *testing.T) {
	start := time.Date(2023, 4, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	// 第二个计划创建于窗口结束之后，其覆盖区间为负
	plans := []models.ReadingsPlan{
		{Created: start, ReadingsPerDay: 3, DaysPerWeek: 5},
		{Created: end.AddDate(0, 0, 3), ReadingsPerDay: 4, DaysPerWeek: 5},
	}

	_, err := ExpectedReadingCount(plans, start, end)
	assert.ErrorIs(t, err, ErrPlanOrder)
}

// 已知边缘行为：窗口完全早于首个计划的创建时刻时，首个计划仍以 start
// 为左边界参与加权，结果与计划在窗口内时相同。保持历史行为，不要修正。
func TestExpectedReadingCount_WindowBeforeEarliestPlan(t *testing.T) {
	start := time.Date(2023, 4, 3, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)

	plans := []models.ReadingsPlan{
		{Created: end.AddDate(0, 0, 30), ReadingsPerDay: 3, DaysPerWeek: 5},
	}

	count, err := ExpectedReadingCount(plans, start, end)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, count, 1e-9)
}
