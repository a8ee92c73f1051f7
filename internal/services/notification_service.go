package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kvision-go/internal/models"
	"kvision-go/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("通知未找到")

// NotificationService 定义了校园通知服务的接口。
type NotificationService interface {
	Publish(ctx context.Context, title, content string, target models.NotificationTarget) (*models.Notification, error)
	ListFor(ctx context.Context, role models.UserRole) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID string) error
	Delete(ctx context.Context, notificationID string) error
}

// notificationService 是 NotificationService 的实现。
type notificationService struct {
	repo storage.NotificationRepository
	now  func() time.Time
}

// NewNotificationService 创建一个新的 NotificationService 实例。
func NewNotificationService(repo storage.NotificationRepository) NotificationService {
	return &notificationService{repo: repo, now: time.Now}
}

// Publish 发布一条面向指定目标（全体或单一角色）的通知。
func (s *notificationService) Publish(ctx context.Context, title, content string, target models.NotificationTarget) (*models.Notification, error) {
	if title == "" || content == "" {
		return nil, fmt.Errorf("通知标题和内容不能为空")
	}
	if !target.Valid() {
		return nil, fmt.Errorf("无效的通知目标: %q", target)
	}

	notification := &models.Notification{
		ID:      fmt.Sprintf("notif-%s", uuid.NewString()[:8]),
		Title:   title,
		Content: content,
		Date:    s.now().UTC(),
		Target:  target,
	}
	if err := notification.SetReadBy(nil); err != nil {
		return nil, fmt.Errorf("初始化通知已读列表失败: %w", err)
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, fmt.Errorf("创建通知失败: %w", err)
	}
	return notification, nil
}

// ListFor 返回指定角色可见的通知（目标为 "all" 或该角色），按日期倒序。
func (s *notificationService) ListFor(ctx context.Context, role models.UserRole) ([]models.Notification, error) {
	notifications, err := s.repo.ListForTarget(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("获取通知列表失败: %w", err)
	}
	return notifications, nil
}

// MarkRead 将用户加入通知的已读列表。重复标记不产生写入。
func (s *notificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	notification, err := s.repo.GetByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("获取通知 %s 失败: %w", notificationID, err)
	}

	readBy, err := notification.ReadBy()
	if err != nil {
		return fmt.Errorf("解析通知 %s 的已读列表失败: %w", notificationID, err)
	}
	for _, id := range readBy {
		if id == userID {
			return nil
		}
	}
	if err := notification.SetReadBy(append(readBy, userID)); err != nil {
		return fmt.Errorf("更新通知 %s 的已读列表失败: %w", notificationID, err)
	}
	if err := s.repo.Update(ctx, notification); err != nil {
		return fmt.Errorf("保存通知 %s 失败: %w", notificationID, err)
	}
	return nil
}

// Delete 删除一条通知。
func (s *notificationService) Delete(ctx context.Context, notificationID string) error {
	if err := s.repo.Delete(ctx, notificationID); err != nil {
		return fmt.Errorf("删除通知 %s 失败: %w", notificationID, err)
	}
	return nil
}
