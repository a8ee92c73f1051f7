package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"kvision-go/internal/config"
	"kvision-go/internal/kafka"
	kafkahandlers "kvision-go/internal/kafka/handlers"
	"kvision-go/internal/models"
	"kvision-go/internal/storage"
)

// ActivityService 定义了操作审计服务的接口。
// 记录经由 Kafka 异步投递，消费端落库，写入方不阻塞在数据库上。
type ActivityService interface {
	// Record 发布一条审计事件。投递失败只记录日志，不影响主流程。
	Record(ctx context.Context, action, performedBy string, activityType models.ActivityType)
	// ListRecent 返回最近的审计记录。
	ListRecent(ctx context.Context, limit int) ([]models.ActivityLog, error)
}

// activityService 是 ActivityService 的实现。
type activityService struct {
	producer kafka.MessageProducer
	repo     storage.ActivityRepository
	topic    string
}

// NewActivityService 创建一个新的 ActivityService 实例。
func NewActivityService(producer kafka.MessageProducer, repo storage.ActivityRepository, kafkaCfg config.KafkaConfig) ActivityService {
	return &activityService{
		producer: producer,
		repo:     repo,
		topic:    kafkaCfg.ActivityTopic,
	}
}

// Record 将审计事件序列化后发布到活动主题。
func (s *activityService) Record(ctx context.Context, action, performedBy string, activityType models.ActivityType) {
	event := kafkahandlers.ActivityEvent{
		Action:      action,
		PerformedBy: performedBy,
		Type:        activityType,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ActivityService: 序列化审计事件失败: %v", err)
		return
	}
	if err := s.producer.SendMessage(ctx, s.topic, []byte(performedBy), payload); err != nil {
		log.Printf("ActivityService: 发布审计事件失败: %v", err)
	}
}

// ListRecent 返回最近的审计记录，按时间倒序。
func (s *activityService) ListRecent(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	entries, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("获取审计记录失败: %w", err)
	}
	return entries, nil
}
