package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

func TestUpdateAlertRecord_ActiveTwice_CreatesOne(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	require.NoError(t, f.records.UpdateAlertRecord(ctx, "patient-1", models.AlertTypePercentagesRed, true, true))
	require.NoError(t, f.records.UpdateAlertRecord(ctx, "patient-1", models.AlertTypePercentagesRed, true, true))

	active, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypePercentagesRed)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// 重复激活不再发布
	assert.Equal(t, 1, f.pub.alertCount(models.AlertTypePercentagesRed))
}

func TestUpdateAlertRecord_InactiveWithoutRecord_NoOp(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	require.NoError(t, f.records.UpdateAlertRecord(ctx, "patient-1", models.AlertTypePercentagesRed, false, true))

	active, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypePercentagesRed)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Empty(t, f.pub.alerts)
}

func TestUpdateAlertRecord_DeactivateClosesRecord(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	endedAt := time.Date(2023, 4, 10, 12, 0, 0, 0, time.UTC)
	f.records.now = func() time.Time { return endedAt }

	require.NoError(t, f.records.UpdateAlertRecord(ctx, "patient-1", models.AlertTypeActivityGrey, true, false))
	require.NoError(t, f.records.UpdateAlertRecord(ctx, "patient-1", models.AlertTypeActivityGrey, false, false))

	active, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypeActivityGrey)
	require.NoError(t, err)
	assert.Empty(t, active)
	// notify=false 时不发布
	assert.Empty(t, f.pub.alerts)
}

func TestUpdateAlertRecord_NotifyFlagSuppressesPublish(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	require.NoError(t, f.records.UpdateAlertRecord(ctx, "patient-1", models.AlertTypeCountsRed, true, false))

	active, err := f.alerts.ListActive(ctx, "patient-1", models.AlertTypeCountsRed)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Empty(t, f.pub.alerts)
}
