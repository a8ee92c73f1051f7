package msgtypes

// ConversationRecord 是会话在存储端的完整记录。
// participants 对在创建后不变；每对无序参与者 ID 恰好对应一条记录。
type ConversationRecord struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"`
	Messages     []Message `json:"messages"`
}

// Has 报告 id 是否是该会话的参与者之一。
func (r *ConversationRecord) Has(id string) bool {
	return r.Participants[0] == id || r.Participants[1] == id
}

// Other 返回 id 对面的参与者；id 不是参与者时返回空字符串。
func (r *ConversationRecord) Other(id string) string {
	switch id {
	case r.Participants[0]:
		return r.Participants[1]
	case r.Participants[1]:
		return r.Participants[0]
	}
	return ""
}

// Clone 返回记录的深拷贝，消息切片独立。
func (r *ConversationRecord) Clone() ConversationRecord {
	out := ConversationRecord{ID: r.ID, Participants: r.Participants}
	if r.Messages != nil {
		out.Messages = make([]Message, len(r.Messages))
		copy(out.Messages, r.Messages)
	}
	return out
}

// DirectoryEntry 是用户目录中的一个条目，消息核心只关心这三个字段。
type DirectoryEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// ConversationView 是面向展示层的会话视图：
// 对方用户信息、按序消息和针对当前查看者的未读计数。
type ConversationView struct {
	ID          string         `json:"id"`
	OtherUser   DirectoryEntry `json:"otherUser"`
	Messages    []Message      `json:"messages"`
	UnreadCount int            `json:"unreadCount"`
}

// LastTimestamp 返回最后一条消息的时间戳；空会话返回零值。
func (v *ConversationView) LastTimestamp() (ts int64, ok bool) {
	if len(v.Messages) == 0 {
		return 0, false
	}
	return v.Messages[len(v.Messages)-1].Timestamp.UnixNano(), true
}
