package storage

import (
	"context"

	"gorm.io/gorm"

	"kvision-go/internal/models"
)

// NotificationRepository 定义了通知数据操作的接口。
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	// ListForTarget 返回面向指定角色（含 "all"）的通知，按日期倒序。
	ListForTarget(ctx context.Context, role models.UserRole) ([]models.Notification, error)
	Update(ctx context.Context, notification *models.Notification) error
	Delete(ctx context.Context, id string) error
}

// gormNotificationRepository 使用 GORM 实现 NotificationRepository。
type gormNotificationRepository struct {
	db *gorm.DB
}

// NewGormNotificationRepository 创建一个新的基于 GORM 的 NotificationRepository。
func NewGormNotificationRepository(db *gorm.DB) NotificationRepository {
	return &gormNotificationRepository{db: db}
}

func (r *gormNotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *gormNotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&notification).Error
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *gormNotificationRepository) ListForTarget(ctx context.Context, role models.UserRole) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.WithContext(ctx).
		Where("target = ? OR target = ?", "all", string(role)).
		Order("date DESC").
		Find(&notifications).Error
	return notifications, err
}

func (r *gormNotificationRepository) Update(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Save(notification).Error
}

func (r *gormNotificationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Notification{}).Error
}
