package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound 引用的患者/读数不存在
var ErrNotFound = errors.New("entity not found")

// ErrConflict 存储层检测到并发修改冲突（由调用方在事务边界重试）
var ErrConflict = errors.New("transient store conflict")

// ErrDuplicateReading 读数命中唯一索引（同患者、同值、同测量时刻）
var ErrDuplicateReading = errors.New("duplicate reading")

// mapPQError 将 lib/pq 错误码映射到仓库哨兵错误
// 40001 serialization_failure / 40P01 deadlock_detected → ErrConflict
// 23505 unique_violation → ErrDuplicateReading
func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return ErrConflict
		case "23505":
			return ErrDuplicateReading
		}
	}
	return err
}
