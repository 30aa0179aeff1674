package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// MemoryReadingsRepo keeps readings in process memory. Used by tests and
// by local runs when the DB is disabled.
type MemoryReadingsRepo struct {
	mu       sync.RWMutex
	readings []*models.Reading // insertion order preserved
	byID     map[string]*models.Reading
}

func NewMemoryReadingsRepo() *MemoryReadingsRepo {
	return &MemoryReadingsRepo{
		byID: map[string]*models.Reading{},
	}
}

func (r *MemoryReadingsRepo) GetReading(_ context.Context, readingID string) (*models.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reading, ok := r.byID[readingID]
	if !ok {
		return nil, fmt.Errorf("reading not found: reading_id=%s: %w", readingID, ErrNotFound)
	}
	copied := *reading
	return &copied, nil
}

func (r *MemoryReadingsRepo) FindReadingByMeasurement(_ context.Context, patientID string, value float64, units string, measuredAt time.Time) (*models.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reading := range r.readings {
		if reading.PatientID == patientID &&
			reading.BloodGlucoseValue == value &&
			reading.Units == units &&
			reading.Measured.Time.Equal(measuredAt) {
			copied := *reading
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("reading not found for patient %s: %w", patientID, ErrNotFound)
}

func (r *MemoryReadingsRepo) LatestReading(_ context.Context, patientID string) (*models.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.sortedDesc(patientID)
	if len(sorted) == 0 {
		return nil, fmt.Errorf("no readings for patient %s: %w", patientID, ErrNotFound)
	}
	copied := *sorted[0]
	return &copied, nil
}

func (r *MemoryReadingsRepo) LatestReadingBefore(_ context.Context, patientID string, before time.Time) (*models.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reading := range r.sortedDesc(patientID) {
		if reading.Measured.Time.Before(before) {
			copied := *reading
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *MemoryReadingsRepo) ListBefore(_ context.Context, patientID string, tag models.PrandialTag, before time.Time, limit int) ([]*models.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Reading{}
	for _, reading := range r.sortedDesc(patientID) {
		if reading.PrandialTag != tag || !reading.Measured.Time.Before(before) {
			continue
		}
		copied := *reading
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryReadingsRepo) ListAfter(_ context.Context, patientID string, tag models.PrandialTag, after time.Time, limit int) ([]*models.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Reading{}
	for _, reading := range r.sortedAsc(patientID) {
		if reading.PrandialTag != tag || !reading.Measured.Time.After(after) {
			continue
		}
		copied := *reading
		out = append(out, &copied)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryReadingsRepo) ListBetween(_ context.Context, patientID string, start, end time.Time) ([]*models.Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Reading{}
	for _, reading := range r.sortedDesc(patientID) {
		if reading.Measured.Time.After(start) && reading.Measured.Time.Before(end) {
			copied := *reading
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *MemoryReadingsRepo) CountSince(_ context.Context, patientID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, reading := range r.readings {
		if reading.PatientID == patientID && !reading.Measured.Time.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryReadingsRepo) CreateReading(_ context.Context, reading *models.Reading) error {
	if reading == nil {
		return fmt.Errorf("reading is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.readings {
		if existing.PatientID == reading.PatientID &&
			existing.BloodGlucoseValue == reading.BloodGlucoseValue &&
			existing.Units == reading.Units &&
			existing.Measured.Time.Equal(reading.Measured.Time) {
			return fmt.Errorf("reading already exists for patient %s: %w", reading.PatientID, ErrDuplicateReading)
		}
	}

	copied := *reading
	r.readings = append(r.readings, &copied)
	r.byID[copied.ID] = &copied
	return nil
}

func (r *MemoryReadingsRepo) SetBanding(_ context.Context, readingID string, banding models.Banding) error {
	return r.mutate(readingID, func(reading *models.Reading) {
		reading.Banding = banding
	})
}

func (r *MemoryReadingsRepo) SetPrandialTag(_ context.Context, readingID string, tag models.PrandialTag) error {
	return r.mutate(readingID, func(reading *models.Reading) {
		reading.PrandialTag = tag
	})
}

func (r *MemoryReadingsRepo) SetRedAlert(_ context.Context, readingID string, marker *models.AlertMarker) error {
	return r.mutate(readingID, func(reading *models.Reading) {
		if marker == nil {
			reading.RedAlert = nil
			return
		}
		copied := *marker
		reading.RedAlert = &copied
	})
}

func (r *MemoryReadingsRepo) SetAmberAlert(_ context.Context, readingID string, marker *models.AlertMarker) error {
	return r.mutate(readingID, func(reading *models.Reading) {
		if marker == nil {
			reading.AmberAlert = nil
			return
		}
		copied := *marker
		reading.AmberAlert = &copied
	})
}

func (r *MemoryReadingsRepo) DismissActiveAlerts(_ context.Context, patientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	affected := 0
	for _, reading := range r.readings {
		if reading.PatientID != patientID {
			continue
		}
		touched := false
		if reading.RedAlert != nil && !reading.RedAlert.Dismissed {
			reading.RedAlert.Dismissed = true
			touched = true
		}
		if reading.AmberAlert != nil && !reading.AmberAlert.Dismissed {
			reading.AmberAlert.Dismissed = true
			touched = true
		}
		if touched {
			affected++
		}
	}
	return affected, nil
}

func (r *MemoryReadingsRepo) mutate(readingID string, fn func(*models.Reading)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reading, ok := r.byID[readingID]
	if !ok {
		return fmt.Errorf("reading not found: reading_id=%s: %w", readingID, ErrNotFound)
	}
	fn(reading)
	return nil
}

// sortedDesc returns the patient's readings newest first. Stable sort keeps
// insertion order for identical measurement times.
func (r *MemoryReadingsRepo) sortedDesc(patientID string) []*models.Reading {
	out := []*models.Reading{}
	for _, reading := range r.readings {
		if reading.PatientID == patientID {
			out = append(out, reading)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Measured.Time.After(out[j].Measured.Time)
	})
	return out
}

func (r *MemoryReadingsRepo) sortedAsc(patientID string) []*models.Reading {
	out := []*models.Reading{}
	for _, reading := range r.readings {
		if reading.PatientID == patientID {
			out = append(out, reading)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Measured.Time.Before(out[j].Measured.Time)
	})
	return out
}
