package models

import "time"

// ActivityType 定义了审计条目的级别。
type ActivityType string

const (
	ActivityInfo     ActivityType = "info"
	ActivityWarning  ActivityType = "warning"
	ActivityCritical ActivityType = "critical"
	ActivitySuccess  ActivityType = "success"
)

// Valid 报告 t 是否为已知的审计级别。
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityInfo, ActivityWarning, ActivityCritical, ActivitySuccess:
		return true
	}
	return false
}

// ActivityLog 代表一条管理端操作审计记录，例如 "Broadcasted message to 5 users"。
// 记录经由 Kafka 投递后落库，写入方不等待持久化完成。
type ActivityLog struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Action      string       `gorm:"type:varchar(255);not null" json:"action"`
	PerformedBy string       `gorm:"type:varchar(100);not null" json:"performedBy"`
	Type        ActivityType `gorm:"type:varchar(20);not null" json:"type"`
	CreatedAt   time.Time    `json:"timestamp"`
}

// TableName 指定 ActivityLog 模型的表名。
func (ActivityLog) TableName() string {
	return "activity_logs"
}
