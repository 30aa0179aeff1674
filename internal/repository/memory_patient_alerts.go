package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// MemoryPatientAlertsRepo keeps patient alert records in process memory.
type MemoryPatientAlertsRepo struct {
	mu     sync.RWMutex
	alerts []*models.PatientAlert
}

func NewMemoryPatientAlertsRepo() *MemoryPatientAlertsRepo {
	return &MemoryPatientAlertsRepo{}
}

func (r *MemoryPatientAlertsRepo) ListActive(_ context.Context, patientID string, alertType models.AlertType) ([]*models.PatientAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.PatientAlert{}
	for _, alert := range r.alerts {
		if alert.PatientID == patientID && alert.AlertType == alertType && alert.EndedAt == nil {
			copied := *alert
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (r *MemoryPatientAlertsRepo) CreateAlert(_ context.Context, alert *models.PatientAlert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *alert
	r.alerts = append(r.alerts, &copied)
	return nil
}

func (r *MemoryPatientAlertsRepo) CloseActive(_ context.Context, patientID string, alertType models.AlertType, endedAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	affected := 0
	for _, alert := range r.alerts {
		if alert.PatientID == patientID && alert.AlertType == alertType && alert.EndedAt == nil {
			t := endedAt
			alert.EndedAt = &t
			affected++
		}
	}
	return affected, nil
}

func (r *MemoryPatientAlertsRepo) DismissActive(_ context.Context, patientID string, alertTypes []models.AlertType, dismissedAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[models.AlertType]bool, len(alertTypes))
	for _, t := range alertTypes {
		wanted[t] = true
	}

	affected := 0
	for _, alert := range r.alerts {
		if alert.PatientID == patientID && wanted[alert.AlertType] && alert.EndedAt == nil && alert.DismissedAt == nil {
			t := dismissedAt
			alert.DismissedAt = &t
			affected++
		}
	}
	return affected, nil
}
