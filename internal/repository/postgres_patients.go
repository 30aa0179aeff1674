package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// PostgresPatientsRepository 患者仓库 PostgreSQL 实现
type PostgresPatientsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPatientsRepository 创建患者仓库
func NewPostgresPatientsRepository(db *sql.DB, logger *zap.Logger) *PostgresPatientsRepository {
	return &PostgresPatientsRepository{
		db:     db,
		logger: logger,
	}
}

// GetPatient 获取患者告警状态
func (r *PostgresPatientsRepository) GetPatient(ctx context.Context, patientID string) (*models.Patient, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := `
		SELECT
			patient_id,
			suppress_alerts_from,
			suppress_from_tz_offset,
			suppress_alerts_until,
			suppress_until_tz_offset,
			current_red_alert,
			current_amber_alert,
			current_activity_alert
		FROM patients
		WHERE patient_id = $1`

	var p models.Patient
	var suppressFrom, suppressUntil sql.NullTime
	var fromOffset, untilOffset sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, patientID).Scan(
		&p.ID,
		&suppressFrom,
		&fromOffset,
		&suppressUntil,
		&untilOffset,
		&p.CurrentRedAlert,
		&p.CurrentAmberAlert,
		&p.CurrentActivityAlert,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("patient not found: patient_id=%s: %w", patientID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get patient: %w", mapPQError(err))
	}

	if suppressFrom.Valid {
		ts := models.NewTimestamp(suppressFrom.Time, int(fromOffset.Int64))
		p.SuppressFrom = &ts
	}
	if suppressUntil.Valid {
		ts := models.NewTimestamp(suppressUntil.Time, int(untilOffset.Int64))
		p.SuppressUntil = &ts
	}
	return &p, nil
}

// EnsurePatient 幂等创建患者记录
func (r *PostgresPatientsRepository) EnsurePatient(ctx context.Context, patientID string) error {
	if patientID == "" {
		return fmt.Errorf("patient_id is required")
	}

	query := `
		INSERT INTO patients (patient_id)
		VALUES ($1)
		ON CONFLICT (patient_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, patientID); err != nil {
		return fmt.Errorf("failed to ensure patient: %w", mapPQError(err))
	}
	return nil
}

// FilterExisting 返回给定 ID 中实际存在的患者集合
func (r *PostgresPatientsRepository) FilterExisting(ctx context.Context, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	query := `SELECT patient_id FROM patients WHERE patient_id = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to filter patients: %w", mapPQError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan patient_id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patients: %w", err)
	}
	return existing, nil
}

// SetCurrentAlerts 更新患者红/琥珀旗标
func (r *PostgresPatientsRepository) SetCurrentAlerts(ctx context.Context, patientID string, red, amber bool) error {
	return r.execOnPatient(ctx, patientID,
		`UPDATE patients SET current_red_alert = $1, current_amber_alert = $2, updated_at = NOW() WHERE patient_id = $3`,
		red, amber)
}

// SetActivityAlert 更新患者活动告警旗标
func (r *PostgresPatientsRepository) SetActivityAlert(ctx context.Context, patientID string, active bool) error {
	return r.execOnPatient(ctx, patientID,
		`UPDATE patients SET current_activity_alert = $1, updated_at = NOW() WHERE patient_id = $2`,
		active)
}

// SetSnoozeWindow 设置抑制窗口
func (r *PostgresPatientsRepository) SetSnoozeWindow(ctx context.Context, patientID string, from, until models.Timestamp) error {
	return r.execOnPatient(ctx, patientID,
		`UPDATE patients SET
			suppress_alerts_from = $1,
			suppress_from_tz_offset = $2,
			suppress_alerts_until = $3,
			suppress_until_tz_offset = $4,
			updated_at = NOW()
		WHERE patient_id = $5`,
		from.Time, from.TZOffsetMinutes, until.Time, until.TZOffsetMinutes)
}

func (r *PostgresPatientsRepository) execOnPatient(ctx context.Context, patientID, query string, args ...interface{}) error {
	if patientID == "" {
		return fmt.Errorf("patient_id is required")
	}

	args = append(args, patientID)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", mapPQError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("patient not found: patient_id=%s: %w", patientID, ErrNotFound)
	}
	return nil
}
