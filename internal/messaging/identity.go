package messaging

import (
	"strings"

	"kvision-go/internal/models"
	"kvision-go/internal/msgtypes"
)

// VirtualAdminID 是管理端共享收件箱的虚拟参与者标识。
// 它与真实用户 ID 处于同一个 ID 空间，但永远不会作为用户记录落库：
// 所有管理员会话都以这一个标识作为己方，无论当时是哪位管理员在操作。
const VirtualAdminID = "kvision_admin_inbox"

// VirtualAdminName 是虚拟管理员条目在非管理员一侧展示的名称。
const VirtualAdminName = "KVISION Admin"

// idSeparator 连接两个参与者 ID；参与者 ID 本身不允许包含它。
const idSeparator = "--"

// ConversationID 为一对参与者派生确定性的会话 ID：
// 两个 ID 按字典序排序后用固定分隔符连接。交换参数不影响结果，
// 任意一方都可以在无需查询的情况下重新计算出同一个 ID。
func ConversationID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + idSeparator + b
}

// IdentityFor 返回用户的消息身份：
// 普通角色就是用户自己的 ID，管理员角色统一映射到虚拟管理员标识。
func IdentityFor(userID string, role models.UserRole) string {
	if role == models.RoleAdmin {
		return VirtualAdminID
	}
	return userID
}

// VirtualAdminEntry 返回为虚拟管理员合成的目录条目。
func VirtualAdminEntry() msgtypes.DirectoryEntry {
	return msgtypes.DirectoryEntry{
		ID:   VirtualAdminID,
		Name: VirtualAdminName,
		Role: string(models.RoleAdmin),
	}
}

// ValidParticipantID 报告 id 是否可以用作会话参与者。
func ValidParticipantID(id string) bool {
	return id != "" && !strings.Contains(id, idSeparator)
}
