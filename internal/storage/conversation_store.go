package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kvision-go/internal/models"
	"kvision-go/internal/msgtypes"
)

// ConversationStore 定义了消息核心对会话存储的全部要求。
// 只有两个操作：全量快照读取，和按 ID 整条替换的幂等写入。
// 不假设删除、服务端过滤或事务。
type ConversationStore interface {
	// FetchAll 返回所有会话记录的完整快照，没有增量模式。
	FetchAll(ctx context.Context) ([]msgtypes.ConversationRecord, error)
	// Upsert 按 ID 创建或整条替换一条会话记录，消息列表整体随写。
	Upsert(ctx context.Context, record msgtypes.ConversationRecord) error
}

// gormConversationStore 使用 GORM 实现 ConversationStore。
type gormConversationStore struct {
	db *gorm.DB
}

// NewGormConversationStore 创建一个新的基于 GORM 的 ConversationStore。
func NewGormConversationStore(db *gorm.DB) ConversationStore {
	return &gormConversationStore{db: db}
}

// FetchAll 读取所有会话记录。
func (s *gormConversationStore) FetchAll(ctx context.Context) ([]msgtypes.ConversationRecord, error) {
	var rows []models.Conversation
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取会话快照失败: %w", err)
	}

	records := make([]msgtypes.ConversationRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].ToRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Upsert 按主键整条替换会话记录。
func (s *gormConversationStore) Upsert(ctx context.Context, record msgtypes.ConversationRecord) error {
	row, err := models.ConversationFromRecord(record)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"messages_raw", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("写入会话 %s 失败: %w", record.ID, err)
	}
	return nil
}
