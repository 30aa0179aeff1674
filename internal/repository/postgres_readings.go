package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// PostgresReadingsRepository 读数仓库 PostgreSQL 实现
type PostgresReadingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresReadingsRepository 创建读数仓库
func NewPostgresReadingsRepository(db *sql.DB, logger *zap.Logger) *PostgresReadingsRepository {
	return &PostgresReadingsRepository{
		db:     db,
		logger: logger,
	}
}

const readingColumns = `
	reading_id,
	patient_id,
	blood_glucose_value,
	units,
	measured_at,
	measured_tz_offset,
	banding,
	prandial_tag,
	snoozed,
	red_alert_id,
	red_alert_dismissed,
	amber_alert_id,
	amber_alert_dismissed,
	created_at`

// rowScanner 兼容 *sql.Row 和 *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReading(row rowScanner) (*models.Reading, error) {
	var r models.Reading
	var redID, amberID sql.NullString
	var redDismissed, amberDismissed sql.NullBool

	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.BloodGlucoseValue,
		&r.Units,
		&r.Measured.Time,
		&r.Measured.TZOffsetMinutes,
		&r.Banding,
		&r.PrandialTag,
		&r.Snoozed,
		&redID,
		&redDismissed,
		&amberID,
		&amberDismissed,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if redID.Valid {
		r.RedAlert = &models.AlertMarker{ID: redID.String, Dismissed: redDismissed.Bool}
	}
	if amberID.Valid {
		r.AmberAlert = &models.AlertMarker{ID: amberID.String, Dismissed: amberDismissed.Bool}
	}
	return &r, nil
}

func collectReadings(rows *sql.Rows) ([]*models.Reading, error) {
	defer rows.Close()

	readings := []*models.Reading{}
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return readings, nil
}

// GetReading 根据 reading_id 获取读数
func (r *PostgresReadingsRepository) GetReading(ctx context.Context, readingID string) (*models.Reading, error) {
	if readingID == "" {
		return nil, fmt.Errorf("reading_id is required")
	}

	query := fmt.Sprintf(`SELECT %s FROM readings WHERE reading_id = $1`, readingColumns)

	reading, err := scanReading(r.db.QueryRowContext(ctx, query, readingID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("reading not found: reading_id=%s: %w", readingID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reading: %w", mapPQError(err))
	}
	return reading, nil
}

// FindReadingByMeasurement 按自然键查找读数
func (r *PostgresReadingsRepository) FindReadingByMeasurement(ctx context.Context, patientID string, value float64, units string, measuredAt time.Time) (*models.Reading, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM readings
		WHERE patient_id = $1
		  AND blood_glucose_value = $2
		  AND units = $3
		  AND measured_at = $4
		LIMIT 1`, readingColumns)

	reading, err := scanReading(r.db.QueryRowContext(ctx, query, patientID, value, units, measuredAt))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("reading not found for patient %s: %w", patientID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find reading: %w", mapPQError(err))
	}
	return reading, nil
}

// LatestReading 患者最新一条读数
func (r *PostgresReadingsRepository) LatestReading(ctx context.Context, patientID string) (*models.Reading, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM readings
		WHERE patient_id = $1
		ORDER BY measured_at DESC
		LIMIT 1`, readingColumns)

	reading, err := scanReading(r.db.QueryRowContext(ctx, query, patientID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no readings for patient %s: %w", patientID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest reading: %w", mapPQError(err))
	}
	return reading, nil
}

// LatestReadingBefore 严格早于 before 的最新读数；不存在时返回 (nil, nil)
func (r *PostgresReadingsRepository) LatestReadingBefore(ctx context.Context, patientID string, before time.Time) (*models.Reading, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM readings
		WHERE patient_id = $1
		  AND measured_at < $2
		ORDER BY measured_at DESC
		LIMIT 1`, readingColumns)

	reading, err := scanReading(r.db.QueryRowContext(ctx, query, patientID, before))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest reading before: %w", mapPQError(err))
	}
	return reading, nil
}

// ListBefore 同餐段标签、严格早于 before 的至多 limit 条读数（时间降序）
func (r *PostgresReadingsRepository) ListBefore(ctx context.Context, patientID string, tag models.PrandialTag, before time.Time, limit int) ([]*models.Reading, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM readings
		WHERE patient_id = $1
		  AND prandial_tag = $2
		  AND measured_at < $3
		ORDER BY measured_at DESC
		LIMIT $4`, readingColumns)

	rows, err := r.db.QueryContext(ctx, query, patientID, int(tag), before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings before: %w", mapPQError(err))
	}
	return collectReadings(rows)
}

// ListAfter 同餐段标签、严格晚于 after 的至多 limit 条读数（时间升序）
func (r *PostgresReadingsRepository) ListAfter(ctx context.Context, patientID string, tag models.PrandialTag, after time.Time, limit int) ([]*models.Reading, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM readings
		WHERE patient_id = $1
		  AND prandial_tag = $2
		  AND measured_at > $3
		ORDER BY measured_at ASC
		LIMIT $4`, readingColumns)

	rows, err := r.db.QueryContext(ctx, query, patientID, int(tag), after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings after: %w", mapPQError(err))
	}
	return collectReadings(rows)
}

// ListBetween 开区间 (start, end) 内患者全部读数（时间降序）
func (r *PostgresReadingsRepository) ListBetween(ctx context.Context, patientID string, start, end time.Time) ([]*models.Reading, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM readings
		WHERE patient_id = $1
		  AND measured_at > $2
		  AND measured_at < $3
		ORDER BY measured_at DESC`, readingColumns)

	rows, err := r.db.QueryContext(ctx, query, patientID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings between: %w", mapPQError(err))
	}
	return collectReadings(rows)
}

// CountSince 测量时刻 >= since 的读数条数
func (r *PostgresReadingsRepository) CountSince(ctx context.Context, patientID string, since time.Time) (int, error) {
	if patientID == "" {
		return 0, fmt.Errorf("patient_id is required")
	}

	query := `SELECT COUNT(*) FROM readings WHERE patient_id = $1 AND measured_at >= $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, patientID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", mapPQError(err))
	}
	return count, nil
}

// CreateReading 创建读数
func (r *PostgresReadingsRepository) CreateReading(ctx context.Context, reading *models.Reading) error {
	if reading == nil {
		return fmt.Errorf("reading is required")
	}
	if reading.ID == "" {
		return fmt.Errorf("reading_id is required")
	}
	if reading.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}

	query := `
		INSERT INTO readings (
			reading_id,
			patient_id,
			blood_glucose_value,
			units,
			measured_at,
			measured_tz_offset,
			banding,
			prandial_tag,
			snoozed,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := r.db.ExecContext(ctx, query,
		reading.ID,
		reading.PatientID,
		reading.BloodGlucoseValue,
		reading.Units,
		reading.Measured.Time,
		reading.Measured.TZOffsetMinutes,
		int(reading.Banding),
		int(reading.PrandialTag),
		reading.Snoozed,
		reading.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reading: %w", mapPQError(err))
	}
	return nil
}

// SetBanding 更新分级
func (r *PostgresReadingsRepository) SetBanding(ctx context.Context, readingID string, banding models.Banding) error {
	return r.execOnReading(ctx, readingID,
		`UPDATE readings SET banding = $1 WHERE reading_id = $2`, int(banding))
}

// SetPrandialTag 更新餐段标签
func (r *PostgresReadingsRepository) SetPrandialTag(ctx context.Context, readingID string, tag models.PrandialTag) error {
	return r.execOnReading(ctx, readingID,
		`UPDATE readings SET prandial_tag = $1 WHERE reading_id = $2`, int(tag))
}

// SetRedAlert 挂接/替换红色报警标记；marker 为 nil 时清除
func (r *PostgresReadingsRepository) SetRedAlert(ctx context.Context, readingID string, marker *models.AlertMarker) error {
	if marker == nil {
		return r.execOnReading(ctx, readingID,
			`UPDATE readings SET red_alert_id = NULL, red_alert_dismissed = NULL WHERE reading_id = $1`)
	}
	return r.execOnReading(ctx, readingID,
		`UPDATE readings SET red_alert_id = $1, red_alert_dismissed = $2 WHERE reading_id = $3`,
		marker.ID, marker.Dismissed)
}

// SetAmberAlert 挂接/替换琥珀色报警标记；marker 为 nil 时清除
func (r *PostgresReadingsRepository) SetAmberAlert(ctx context.Context, readingID string, marker *models.AlertMarker) error {
	if marker == nil {
		return r.execOnReading(ctx, readingID,
			`UPDATE readings SET amber_alert_id = NULL, amber_alert_dismissed = NULL WHERE reading_id = $1`)
	}
	return r.execOnReading(ctx, readingID,
		`UPDATE readings SET amber_alert_id = $1, amber_alert_dismissed = $2 WHERE reading_id = $3`,
		marker.ID, marker.Dismissed)
}

// DismissActiveAlerts 将患者所有未解除的红/琥珀标记置为 dismissed（幂等）
func (r *PostgresReadingsRepository) DismissActiveAlerts(ctx context.Context, patientID string) (int, error) {
	if patientID == "" {
		return 0, fmt.Errorf("patient_id is required")
	}

	query := `
		UPDATE readings
		SET red_alert_dismissed   = CASE WHEN red_alert_id   IS NOT NULL THEN TRUE ELSE red_alert_dismissed END,
		    amber_alert_dismissed = CASE WHEN amber_alert_id IS NOT NULL THEN TRUE ELSE amber_alert_dismissed END
		WHERE patient_id = $1
		  AND (
			(red_alert_id IS NOT NULL AND red_alert_dismissed = FALSE)
			OR (amber_alert_id IS NOT NULL AND amber_alert_dismissed = FALSE)
		  )`

	result, err := r.db.ExecContext(ctx, query, patientID)
	if err != nil {
		return 0, fmt.Errorf("failed to dismiss active alerts: %w", mapPQError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// execOnReading 针对单条读数执行更新；0 行受影响视为 not found
func (r *PostgresReadingsRepository) execOnReading(ctx context.Context, readingID, query string, args ...interface{}) error {
	if readingID == "" {
		return fmt.Errorf("reading_id is required")
	}

	args = append(args, readingID)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update reading: %w", mapPQError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("reading not found: reading_id=%s: %w", readingID, ErrNotFound)
	}
	return nil
}
