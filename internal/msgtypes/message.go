package msgtypes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageStatus 定义了消息的投递状态。
// 状态只会向前推进 (sent -> delivered -> read)，客户端永远不会回退状态。
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// CanAdvanceTo 报告状态是否允许从当前值推进到 next。
// 同值转换视为允许（幂等写入）。
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	cur, ok1 := statusRank[s]
	nxt, ok2 := statusRank[next]
	return ok1 && ok2 && nxt >= cur
}

// ContentType 定义了消息内容的类型（标签联合的标签部分）。
type ContentType string

const (
	TextContent ContentType = "text"
	FileContent ContentType = "file"
)

// MessageContent 是消息内容的标签联合: text 携带字符串，file 携带 UploadedFile。
// 线上格式与存储格式保持 {"type": ..., "value": ...} 的形状。
type MessageContent struct {
	Type ContentType
	Text string
	File *UploadedFile
}

// NewTextContent 构造一个文本内容。
func NewTextContent(value string) MessageContent {
	return MessageContent{Type: TextContent, Text: value}
}

// NewFileContent 构造一个文件附件内容。
func NewFileContent(file UploadedFile) MessageContent {
	return MessageContent{Type: FileContent, File: &file}
}

// Validate 校验内容是否为良构的联合值。
// maxFileBytes 是附件允许的最大字节数；超限的文件在构造 Message 之前就被拒绝。
func (c MessageContent) Validate(maxFileBytes int64) error {
	switch c.Type {
	case TextContent:
		if c.Text == "" {
			return fmt.Errorf("%w: 文本内容为空", ErrInvalidContent)
		}
		return nil
	case FileContent:
		if c.File == nil {
			return fmt.Errorf("%w: 缺少文件载荷", ErrInvalidContent)
		}
		return c.File.Validate(maxFileBytes)
	default:
		return fmt.Errorf("%w: 未知内容类型 %q", ErrInvalidContent, c.Type)
	}
}

type contentEnvelope struct {
	Type  ContentType     `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	var value interface{}
	switch c.Type {
	case TextContent:
		value = c.Text
	case FileContent:
		value = c.File
	default:
		return nil, fmt.Errorf("无法序列化未知内容类型 %q", c.Type)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contentEnvelope{Type: c.Type, Value: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var env contentEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Type {
	case TextContent:
		var text string
		if err := json.Unmarshal(env.Value, &text); err != nil {
			return fmt.Errorf("解析文本内容失败: %w", err)
		}
		*c = MessageContent{Type: TextContent, Text: text}
		return nil
	case FileContent:
		var file UploadedFile
		if err := json.Unmarshal(env.Value, &file); err != nil {
			return fmt.Errorf("解析文件内容失败: %w", err)
		}
		*c = MessageContent{Type: FileContent, File: &file}
		return nil
	default:
		return fmt.Errorf("未知内容类型 %q", env.Type)
	}
}

// Message 代表会话中的一条消息。
// ID 在本地生成（时间戳加随机尾部），避免为取回存储端分配的 ID 做一次往返。
type Message struct {
	ID         string         `json:"id"`
	Content    MessageContent `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	SenderID   string         `json:"senderId"`
	ReceiverID string         `json:"receiverId"`
	Status     MessageStatus  `json:"status"`
}

// NewMessageID 生成一个本地消息 ID，形如 msg-<unix毫秒>-<随机尾部>。
func NewMessageID(now time.Time) string {
	return fmt.Sprintf("msg-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}
