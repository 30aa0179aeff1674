package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
	"github.com/polaris-foundation/polaris-bg-readings-api/internal/repository"
)

// fakePublisher records published events for assertions.
type fakePublisher struct {
	mu       sync.Mutex
	alerts   []publishedAlert
	readings []string
	audits   []string
}

type publishedAlert struct {
	PatientID string
	AlertType models.AlertType
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (p *fakePublisher) PublishPatientAlert(_ context.Context, patientID string, alertType models.AlertType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, publishedAlert{PatientID: patientID, AlertType: alertType})
	return nil
}

func (p *fakePublisher) PublishAbnormalReading(_ context.Context, reading *models.Reading) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readings = append(p.readings, reading.ID)
	return nil
}

func (p *fakePublisher) PublishAuditEvent(_ context.Context, eventType string, _ map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audits = append(p.audits, eventType)
	return nil
}

func (p *fakePublisher) alertCount(alertType models.AlertType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, a := range p.alerts {
		if a.AlertType == alertType {
			count++
		}
	}
	return count
}

type testFixture struct {
	readings *repository.MemoryReadingsRepo
	patients *repository.MemoryPatientsRepo
	alerts   *repository.MemoryPatientAlertsRepo
	records  *AlertRecordStore
	pub      *fakePublisher
	counts   *CountsEngine
	perc     *PercentagesEngine
	snooze   *SnoozeManager
}

func newTestFixture() *testFixture {
	readings := repository.NewMemoryReadingsRepo()
	patients := repository.NewMemoryPatientsRepo()
	alerts := repository.NewMemoryPatientAlertsRepo()
	pub := newFakePublisher()
	logger := zap.NewNop()

	records := NewAlertRecordStore(alerts, pub, logger)
	snooze := NewSnoozeManager(time.UTC)
	counts := NewCountsEngine(readings, patients, records, pub, time.UTC, logger)
	perc := NewPercentagesEngine(patients, readings, records, snooze, time.UTC, logger)

	return &testFixture{
		readings: readings,
		patients: patients,
		alerts:   alerts,
		records:  records,
		pub:      pub,
		counts:   counts,
		perc:     perc,
		snooze:   snooze,
	}
}

func (f *testFixture) addReading(patientID string, seq int, measuredAt time.Time, value float64, banding models.Banding, tag models.PrandialTag) *models.Reading {
	reading := &models.Reading{
		ID:                fmt.Sprintf("reading-%d", seq),
		PatientID:         patientID,
		BloodGlucoseValue: value,
		Units:             "mmol/L",
		Measured:          models.NewTimestamp(measuredAt, 0),
		Banding:           banding,
		PrandialTag:       tag,
		CreatedAt:         measuredAt,
	}
	if err := f.readings.CreateReading(context.Background(), reading); err != nil {
		panic(err)
	}
	return reading
}
