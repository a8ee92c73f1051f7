package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"kvision-go/internal/models"
	"kvision-go/internal/msgtypes"
	"kvision-go/internal/storage"
)

var (
	ErrInvalidParticipant   = errors.New("参与者 ID 无效")
	ErrSelfConversation     = errors.New("不能与自己创建会话")
	ErrConversationNotFound = errors.New("会话不存在")
)

// Directory 提供消息核心需要的用户目录视图：真实用户的枚举。
// 虚拟管理员条目由核心自己合成，目录实现永远不会返回它。
type Directory interface {
	ListEntries(ctx context.Context) ([]msgtypes.DirectoryEntry, error)
}

// BroadcastTarget 是广播的目标过滤器："all" 或一个具体角色。
type BroadcastTarget string

const BroadcastAll BroadcastTarget = "all"

// Matches 报告条目是否落在目标过滤器内。管理员账号永远被排除，
// 避免广播发给虚拟收件箱"自己"。
func (t BroadcastTarget) Matches(entry msgtypes.DirectoryEntry) bool {
	if entry.Role == string(models.RoleAdmin) {
		return false
	}
	return t == BroadcastAll || string(t) == entry.Role
}

// Service 实现消息核心的业务操作：发送、删除、标记已读和广播，
// 以及面向展示层的会话视图派生。
// 写操作之间互相串行；每次写先乐观更新内存快照，存储写入失败时回滚。
type Service struct {
	sync      *Synchronizer
	store     storage.ConversationStore
	directory Directory

	maxAttachmentBytes int64
	now                func() time.Time

	writeMu sync.Mutex
}

// NewService 创建一个新的消息核心服务。
func NewService(sync *Synchronizer, store storage.ConversationStore, directory Directory, maxAttachmentBytes int64) *Service {
	return &Service{
		sync:               sync,
		store:              store,
		directory:          directory,
		maxAttachmentBytes: maxAttachmentBytes,
		now:                time.Now,
	}
}

// Send 发送一条消息：计算会话 ID，构造 status=sent 的新消息，
// 追加到已有会话或惰性创建新会话，乐观更新本地快照后整条写回存储。
// 发送方无需等下一轮轮询就能看到自己的消息。
func (s *Service) Send(ctx context.Context, senderID, receiverID string, content msgtypes.MessageContent) (msgtypes.Message, error) {
	if !ValidParticipantID(senderID) || !ValidParticipantID(receiverID) {
		return msgtypes.Message{}, ErrInvalidParticipant
	}
	if senderID == receiverID {
		return msgtypes.Message{}, ErrSelfConversation
	}
	if err := content.Validate(s.maxAttachmentBytes); err != nil {
		return msgtypes.Message{}, err
	}

	now := s.now().UTC()
	message := msgtypes.Message{
		ID:         msgtypes.NewMessageID(now),
		Content:    content,
		Timestamp:  now,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     msgtypes.StatusSent,
	}

	conversationID := ConversationID(senderID, receiverID)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.sync.BeginWrite()
	defer s.sync.EndWrite()

	prev, existed := s.sync.Record(conversationID)
	var updated msgtypes.ConversationRecord
	if existed {
		updated = prev.Clone()
		updated.Messages = append(updated.Messages, message)
	} else {
		updated = msgtypes.ConversationRecord{
			ID:           conversationID,
			Participants: [2]string{senderID, receiverID},
			Messages:     []msgtypes.Message{message},
		}
	}

	s.sync.Apply(updated)
	if err := s.store.Upsert(ctx, updated); err != nil {
		// 回滚乐观更新，快照回到 last-known-good
		if existed {
			s.sync.Apply(prev)
		} else {
			s.sync.Discard(conversationID)
		}
		return msgtypes.Message{}, fmt.Errorf("发送消息失败: %w", err)
	}
	return message, nil
}

// Delete 从会话中真删除一条消息（无墓碑），保持其余消息的相对顺序，
// 然后把缩短后的消息列表整条写回。消息不存在时删除本身是 no-op。
func (s *Service) Delete(ctx context.Context, conversationID, messageID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.sync.BeginWrite()
	defer s.sync.EndWrite()

	prev, ok := s.sync.Record(conversationID)
	if !ok {
		return ErrConversationNotFound
	}

	updated := prev.Clone()
	kept := updated.Messages[:0]
	for _, m := range updated.Messages {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	updated.Messages = kept

	s.sync.Apply(updated)
	if err := s.store.Upsert(ctx, updated); err != nil {
		s.sync.Apply(prev)
		return fmt.Errorf("删除消息失败: %w", err)
	}
	return nil
}

// MarkRead 把会话中所有发给 reader 消息身份、状态还不是 read 的消息标记为已读。
// 没有未读消息时不产生任何写入，因此操作幂等。
func (s *Service) MarkRead(ctx context.Context, conversationID, readerID string, role models.UserRole) error {
	identity := IdentityFor(readerID, role)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.sync.BeginWrite()
	defer s.sync.EndWrite()

	prev, ok := s.sync.Record(conversationID)
	if !ok {
		return ErrConversationNotFound
	}

	updated := prev.Clone()
	changed := false
	for i := range updated.Messages {
		m := &updated.Messages[i]
		if m.ReceiverID == identity && m.Status != msgtypes.StatusRead {
			m.Status = msgtypes.StatusRead
			changed = true
		}
	}
	if !changed {
		return nil // 避免冗余写入
	}

	s.sync.Apply(updated)
	if err := s.store.Upsert(ctx, updated); err != nil {
		s.sync.Apply(prev)
		return fmt.Errorf("标记会话已读失败: %w", err)
	}
	return nil
}

// Broadcast 以虚拟管理员身份向目录中匹配过滤器的每个真实用户各发一条消息，
// 逐个顺序进行。操作不是原子的：中途失败会让部分接收者收到消息而其余没有；
// 调用方只拿到成功计数，单个接收者的失败只记日志。
func (s *Service) Broadcast(ctx context.Context, target BroadcastTarget, content msgtypes.MessageContent) (int, error) {
	entries, err := s.directory.ListEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("枚举广播目标失败: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if !target.Matches(entry) {
			continue
		}
		if _, err := s.Send(ctx, VirtualAdminID, entry.ID, content); err != nil {
			log.Printf("广播发送给用户 %s 失败: %v", entry.ID, err)
			continue
		}
		count++
	}
	return count, nil
}

// ConversationsFor 为查看者派生会话视图列表：
// 过滤到包含其消息身份的会话，对面参与者按目录（加合成的虚拟管理员条目）解析，
// 未读数为发给该身份且状态不是 read 的消息数，按最近消息时间倒序，空会话排最后。
func (s *Service) ConversationsFor(ctx context.Context, viewerID string, role models.UserRole) ([]msgtypes.ConversationView, error) {
	identity := IdentityFor(viewerID, role)

	entries, err := s.directory.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取用户目录失败: %w", err)
	}
	byID := make(map[string]msgtypes.DirectoryEntry, len(entries)+1)
	for _, e := range entries {
		byID[e.ID] = e
	}
	admin := VirtualAdminEntry()
	byID[admin.ID] = admin

	views := make([]msgtypes.ConversationView, 0)
	for _, rec := range s.sync.Snapshot() {
		if !rec.Has(identity) {
			continue
		}
		other, ok := byID[rec.Other(identity)]
		if !ok {
			continue // 对面的用户已不在目录里，整个会话在列表中不可见
		}

		unread := 0
		for _, m := range rec.Messages {
			if m.ReceiverID == identity && m.Status != msgtypes.StatusRead {
				unread++
			}
		}
		views = append(views, msgtypes.ConversationView{
			ID:          rec.ID,
			OtherUser:   other,
			Messages:    rec.Messages,
			UnreadCount: unread,
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		ti, iok := views[i].LastTimestamp()
		tj, jok := views[j].LastTimestamp()
		if iok != jok {
			return iok // 空会话排在最后
		}
		return ti > tj
	})
	return views, nil
}
