package repository

import (
	"context"
	"time"

	"github.com/polaris-foundation/polaris-bg-readings-api/internal/models"
)

// ReadingsRepository 读数仓库接口（存储端口）
// 使用强类型领域模型，所有权用外键 ID 表达，不返回对象图。
// 设计原则：从底层（数据库）向上设计，Repository 层只负责数据访问。
type ReadingsRepository interface {
	// ========== 查询（单个）==========
	// GetReading 根据 reading_id 获取读数（含报警标记）
	GetReading(ctx context.Context, readingID string) (*models.Reading, error)

	// FindReadingByMeasurement 按自然键（患者+值+单位+测量时刻）查找读数
	// 用于唯一索引冲突后的重复读数定位
	FindReadingByMeasurement(ctx context.Context, patientID string, value float64, units string, measuredAt time.Time) (*models.Reading, error)

	// LatestReading 患者最新一条读数（按测量时刻）
	LatestReading(ctx context.Context, patientID string) (*models.Reading, error)

	// LatestReadingBefore 严格早于 before 的最新读数；不存在时返回 (nil, nil)
	LatestReadingBefore(ctx context.Context, patientID string, before time.Time) (*models.Reading, error)

	// ========== 查询（窗口）==========
	// 注意：窗口查询只按测量时刻排序；时刻相同的读数落回插入顺序，
	// 不加次级排序键（外部行为依赖该顺序，保持原样）。

	// ListBefore 同餐段标签、严格早于 before 的至多 limit 条读数（时间降序）
	ListBefore(ctx context.Context, patientID string, tag models.PrandialTag, before time.Time, limit int) ([]*models.Reading, error)

	// ListAfter 同餐段标签、严格晚于 after 的至多 limit 条读数（时间升序）
	ListAfter(ctx context.Context, patientID string, tag models.PrandialTag, after time.Time, limit int) ([]*models.Reading, error)

	// ListBetween 开区间 (start, end) 内患者全部读数（时间降序）
	ListBetween(ctx context.Context, patientID string, start, end time.Time) ([]*models.Reading, error)

	// CountSince 测量时刻 >= since 的读数条数
	CountSince(ctx context.Context, patientID string, since time.Time) (int, error)

	// ========== 创建 ==========
	// CreateReading 创建读数；命中唯一索引返回 ErrDuplicateReading
	CreateReading(ctx context.Context, reading *models.Reading) error

	// ========== 更新 ==========
	// SetBanding 更新分级
	SetBanding(ctx context.Context, readingID string, banding models.Banding) error

	// SetPrandialTag 更新餐段标签
	SetPrandialTag(ctx context.Context, readingID string, tag models.PrandialTag) error

	// SetRedAlert 挂接/替换红色报警标记；marker 为 nil 时清除
	SetRedAlert(ctx context.Context, readingID string, marker *models.AlertMarker) error

	// SetAmberAlert 挂接/替换琥珀色报警标记；marker 为 nil 时清除
	SetAmberAlert(ctx context.Context, readingID string, marker *models.AlertMarker) error

	// DismissActiveAlerts 将患者所有未解除的红/琥珀标记置为 dismissed
	// 幂等；返回受影响的读数条数
	DismissActiveAlerts(ctx context.Context, patientID string) (int, error)
}
