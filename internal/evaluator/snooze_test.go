package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

func snoozedPatient(from, until time.Time) *models.Patient {
	fromTS := models.NewTimestamp(from, 0)
	untilTS := models.NewTimestamp(until, 0)
	return &models.Patient{
		ID:            "patient-1",
		SuppressFrom:  &fromTS,
		SuppressUntil: &untilTS,
	}
}

func readingAt(at time.Time) *models.Reading {
	return &models.Reading{
		ID:       "reading-1",
		Measured: models.NewTimestamp(at, 0),
	}
}

func TestIsReadingInSnoozePeriod_InclusiveBounds(t *testing.T) {
	m := NewSnoozeManager(time.UTC)

	from := time.Date(2023, 4, 1, 9, 0, 0, 0, time.UTC)
	until := time.Date(2023, 4, 4, 0, 0, 0, 0, time.UTC)
	patient := snoozedPatient(from, until)

	// 两端都是闭区间
	assert.True(t, m.IsReadingInSnoozePeriod(readingAt(from), patient))
	assert.True(t, m.IsReadingInSnoozePeriod(readingAt(until), patient))
	assert.True(t, m.IsReadingInSnoozePeriod(readingAt(from.Add(time.Hour)), patient))

	assert.False(t, m.IsReadingInSnoozePeriod(readingAt(from.Add(-time.Second)), patient))
	assert.False(t, m.IsReadingInSnoozePeriod(readingAt(until.Add(time.Second)), patient))
}

func TestIsReadingInSnoozePeriod_UnsetBounds(t *testing.T) {
	m := NewSnoozeManager(time.UTC)

	at := time.Date(2023, 4, 2, 12, 0, 0, 0, time.UTC)
	fromTS := models.NewTimestamp(at.Add(-time.Hour), 0)

	assert.False(t, m.IsReadingInSnoozePeriod(readingAt(at), &models.Patient{ID: "patient-1"}))
	assert.False(t, m.IsReadingInSnoozePeriod(readingAt(at), &models.Patient{ID: "patient-1", SuppressFrom: &fromTS}))
	assert.False(t, m.IsReadingInSnoozePeriod(readingAt(at), &models.Patient{ID: "patient-1", SuppressUntil: &fromTS}))
}

func TestIsPatientInSnoozePeriod(t *testing.T) {
	m := NewSnoozeManager(time.UTC)

	from := time.Date(2023, 4, 1, 9, 0, 0, 0, time.UTC)
	until := time.Date(2023, 4, 4, 0, 0, 0, 0, time.UTC)
	patient := snoozedPatient(from, until)

	assert.True(t, m.IsPatientInSnoozePeriod(patient, from))
	assert.True(t, m.IsPatientInSnoozePeriod(patient, until))
	assert.False(t, m.IsPatientInSnoozePeriod(patient, until.Add(time.Minute)))
	assert.False(t, m.IsPatientInSnoozePeriod(&models.Patient{ID: "patient-1"}, from))
}

func TestComputeSnoozeWindow(t *testing.T) {
	m := NewSnoozeManager(time.UTC)

	now := time.Date(2023, 4, 1, 9, 30, 0, 0, time.UTC)
	from, until := m.ComputeSnoozeWindow(now, 2)

	assert.True(t, from.Time.Equal(now))
	assert.True(t, until.Time.Equal(time.Date(2023, 4, 3, 0, 0, 0, 0, time.UTC)))
}
