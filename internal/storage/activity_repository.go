package storage

import (
	"context"

	"gorm.io/gorm"

	"kvision-go/internal/models"
)

// ActivityRepository 定义了审计日志数据操作的接口。
type ActivityRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	// ListRecent 返回最近的审计记录，按时间倒序，最多 limit 条。
	ListRecent(ctx context.Context, limit int) ([]models.ActivityLog, error)
}

// gormActivityRepository 使用 GORM 实现 ActivityRepository。
type gormActivityRepository struct {
	db *gorm.DB
}

// NewGormActivityRepository 创建一个新的基于 GORM 的 ActivityRepository。
func NewGormActivityRepository(db *gorm.DB) ActivityRepository {
	return &gormActivityRepository{db: db}
}

func (r *gormActivityRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormActivityRepository) ListRecent(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	var entries []models.ActivityLog
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&entries).Error
	return entries, err
}
