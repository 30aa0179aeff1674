package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// MemoryPatientsRepo keeps patient alert state in process memory.
type MemoryPatientsRepo struct {
	mu       sync.RWMutex
	patients map[string]*models.Patient
}

func NewMemoryPatientsRepo() *MemoryPatientsRepo {
	return &MemoryPatientsRepo{
		patients: map[string]*models.Patient{},
	}
}

func (r *MemoryPatientsRepo) GetPatient(_ context.Context, patientID string) (*models.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patient, ok := r.patients[patientID]
	if !ok {
		return nil, fmt.Errorf("patient not found: patient_id=%s: %w", patientID, ErrNotFound)
	}
	copied := *patient
	return &copied, nil
}

func (r *MemoryPatientsRepo) EnsurePatient(_ context.Context, patientID string) error {
	if patientID == "" {
		return fmt.Errorf("patient_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.patients[patientID]; !ok {
		r.patients[patientID] = &models.Patient{ID: patientID}
	}
	return nil
}

func (r *MemoryPatientsRepo) FilterExisting(_ context.Context, ids []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := r.patients[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

func (r *MemoryPatientsRepo) SetCurrentAlerts(_ context.Context, patientID string, red, amber bool) error {
	return r.mutate(patientID, func(p *models.Patient) {
		p.CurrentRedAlert = red
		p.CurrentAmberAlert = amber
	})
}

func (r *MemoryPatientsRepo) SetActivityAlert(_ context.Context, patientID string, active bool) error {
	return r.mutate(patientID, func(p *models.Patient) {
		p.CurrentActivityAlert = active
	})
}

func (r *MemoryPatientsRepo) SetSnoozeWindow(_ context.Context, patientID string, from, until models.Timestamp) error {
	return r.mutate(patientID, func(p *models.Patient) {
		f, u := from, until
		p.SuppressFrom = &f
		p.SuppressUntil = &u
	})
}

func (r *MemoryPatientsRepo) mutate(patientID string, fn func(*models.Patient)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	patient, ok := r.patients[patientID]
	if !ok {
		return fmt.Errorf("patient not found: patient_id=%s: %w", patientID, ErrNotFound)
	}
	fn(patient)
	return nil
}
