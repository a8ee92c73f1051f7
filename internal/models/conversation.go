package models

import (
	"encoding/json"
	"fmt"

	"kvision-go/internal/msgtypes"
)

// Conversation 是会话在数据库中的持久化形态。
// 存储端被当作"笨"键值存储使用：整条消息列表以 JSONB 随记录整体替换，
// 没有增量写入，也没有服务端过滤。参与者对在创建后不变。
type Conversation struct {
	ID           string          `gorm:"type:varchar(160);primaryKey" json:"id"`
	ParticipantA string          `gorm:"type:varchar(64);index;not null" json:"participantA"`
	ParticipantB string          `gorm:"type:varchar(64);index;not null" json:"participantB"`
	MessagesRaw  json.RawMessage `gorm:"type:jsonb" json:"messages"`
	Timestamps
}

// TableName 指定 Conversation 模型的表名。
func (Conversation) TableName() string {
	return "conversations"
}

// ToRecord 将持久化形态转换为消息核心使用的会话记录。
func (c *Conversation) ToRecord() (msgtypes.ConversationRecord, error) {
	rec := msgtypes.ConversationRecord{
		ID:           c.ID,
		Participants: [2]string{c.ParticipantA, c.ParticipantB},
	}
	if len(c.MessagesRaw) > 0 {
		if err := json.Unmarshal(c.MessagesRaw, &rec.Messages); err != nil {
			return msgtypes.ConversationRecord{}, fmt.Errorf("解析会话 %s 的消息列表失败: %w", c.ID, err)
		}
	}
	return rec, nil
}

// ConversationFromRecord 将会话记录转换为持久化形态。
func ConversationFromRecord(rec msgtypes.ConversationRecord) (*Conversation, error) {
	messages := rec.Messages
	if messages == nil {
		messages = []msgtypes.Message{}
	}
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("序列化会话 %s 的消息列表失败: %w", rec.ID, err)
	}
	return &Conversation{
		ID:           rec.ID,
		ParticipantA: rec.Participants[0],
		ParticipantB: rec.Participants[1],
		MessagesRaw:  raw,
	}, nil
}
