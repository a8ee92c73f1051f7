package models

import (
	"encoding/json"
	"time"
)

// NotificationTarget 指定通知的可见范围："all" 或某个具体角色。
type NotificationTarget string

// TargetAll 表示面向全体用户的通知。
const TargetAll NotificationTarget = "all"

// Valid 报告 t 是否为合法的通知目标。
func (t NotificationTarget) Valid() bool {
	return t == TargetAll || UserRole(t).Valid()
}

// Notification 代表一条面向角色的通知（"all" 或某个具体角色）。
type Notification struct {
	ID        string             `gorm:"type:varchar(64);primaryKey" json:"id"`
	Title     string             `gorm:"type:varchar(255);not null" json:"title"`
	Content   string             `gorm:"type:text" json:"content"`
	Date      time.Time          `gorm:"not null;index" json:"date"`
	Target    NotificationTarget `gorm:"type:varchar(20);not null" json:"target"`
	ReadByRaw json.RawMessage    `gorm:"type:jsonb" json:"readBy"` // 已读用户 ID 列表
	Timestamps
}

// TableName 指定 Notification 模型的表名。
func (Notification) TableName() string {
	return "notifications"
}

// ReadBy 返回已读用户 ID 列表。
func (n *Notification) ReadBy() ([]string, error) {
	if len(n.ReadByRaw) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(n.ReadByRaw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetReadBy 覆盖已读用户 ID 列表。
func (n *Notification) SetReadBy(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	n.ReadByRaw = raw
	return nil
}
