package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// PostgresPatientAlertsRepository 患者告警记录仓库 PostgreSQL 实现
type PostgresPatientAlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPatientAlertsRepository 创建告警记录仓库
func NewPostgresPatientAlertsRepository(db *sql.DB, logger *zap.Logger) *PostgresPatientAlertsRepository {
	return &PostgresPatientAlertsRepository{
		db:     db,
		logger: logger,
	}
}

// ListActive 列出患者某类型的未结束告警记录（按开始时间升序）
func (r *PostgresPatientAlertsRepository) ListActive(ctx context.Context, patientID string, alertType models.AlertType) ([]*models.PatientAlert, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := `
		SELECT alert_id, patient_id, alert_type, started_at, ended_at, dismissed_at
		FROM patient_alerts
		WHERE patient_id = $1
		  AND alert_type = $2
		  AND ended_at IS NULL
		ORDER BY started_at ASC`

	rows, err := r.db.QueryContext(ctx, query, patientID, string(alertType))
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", mapPQError(err))
	}
	defer rows.Close()

	alerts := []*models.PatientAlert{}
	for rows.Next() {
		var a models.PatientAlert
		var endedAt, dismissedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.PatientID, &a.AlertType, &a.StartedAt, &endedAt, &dismissedAt); err != nil {
			return nil, fmt.Errorf("failed to scan patient alert: %w", err)
		}
		if endedAt.Valid {
			a.EndedAt = &endedAt.Time
		}
		if dismissedAt.Valid {
			a.DismissedAt = &dismissedAt.Time
		}
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patient alerts: %w", err)
	}
	return alerts, nil
}

// CreateAlert 创建告警记录
func (r *PostgresPatientAlertsRepository) CreateAlert(ctx context.Context, alert *models.PatientAlert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.ID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if alert.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}

	query := `
		INSERT INTO patient_alerts (alert_id, patient_id, alert_type, started_at, ended_at, dismissed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	var endedAt, dismissedAt sql.NullTime
	if alert.EndedAt != nil {
		endedAt = sql.NullTime{Time: *alert.EndedAt, Valid: true}
	}
	if alert.DismissedAt != nil {
		dismissedAt = sql.NullTime{Time: *alert.DismissedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.PatientID, string(alert.AlertType), alert.StartedAt, endedAt, dismissedAt)
	if err != nil {
		return fmt.Errorf("failed to create patient alert: %w", mapPQError(err))
	}
	return nil
}

// CloseActive 结束患者某类型的全部未结束告警，返回受影响条数
func (r *PostgresPatientAlertsRepository) CloseActive(ctx context.Context, patientID string, alertType models.AlertType, endedAt time.Time) (int, error) {
	if patientID == "" {
		return 0, fmt.Errorf("patient_id is required")
	}

	query := `
		UPDATE patient_alerts
		SET ended_at = $1
		WHERE patient_id = $2
		  AND alert_type = $3
		  AND ended_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, endedAt, patientID, string(alertType))
	if err != nil {
		return 0, fmt.Errorf("failed to close active alerts: %w", mapPQError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// DismissActive 将患者指定类型的未解除告警标记为已解除，返回受影响条数
func (r *PostgresPatientAlertsRepository) DismissActive(ctx context.Context, patientID string, alertTypes []models.AlertType, dismissedAt time.Time) (int, error) {
	if patientID == "" {
		return 0, fmt.Errorf("patient_id is required")
	}
	if len(alertTypes) == 0 {
		return 0, nil
	}

	types := make([]string, len(alertTypes))
	for i, t := range alertTypes {
		types[i] = string(t)
	}

	query := `
		UPDATE patient_alerts
		SET dismissed_at = $1
		WHERE patient_id = $2
		  AND alert_type = ANY($3)
		  AND ended_at IS NULL
		  AND dismissed_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, dismissedAt, patientID, pq.Array(types))
	if err != nil {
		return 0, fmt.Errorf("failed to dismiss alerts: %w", mapPQError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}
