package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"kvision-go/internal/models"
	"kvision-go/internal/msgtypes"
)

// fakeStore 是一个内存版的会话存储，可按需注入写入失败。
type fakeStore struct {
	mu       sync.Mutex
	records  map[string]msgtypes.ConversationRecord
	failNext error
	upserts  int
	fetchErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]msgtypes.ConversationRecord)}
}

func (f *fakeStore) FetchAll(ctx context.Context) ([]msgtypes.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]msgtypes.ConversationRecord, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *fakeStore) Upsert(ctx context.Context, record msgtypes.ConversationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.records[record.ID] = record.Clone()
	return nil
}

// fakeDirectory 返回固定的用户目录。
type fakeDirectory struct {
	entries []msgtypes.DirectoryEntry
	err     error
}

func (f *fakeDirectory) ListEntries(ctx context.Context) ([]msgtypes.DirectoryEntry, error) {
	return f.entries, f.err
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{entries: []msgtypes.DirectoryEntry{
		{ID: "admin-1", Name: "Principal Zhang", Role: string(models.RoleAdmin)},
		{ID: "teacher-1", Name: "Ms. Li", Role: string(models.RoleTeacher)},
		{ID: "stu-1", Name: "Wang Xiaoming", Role: string(models.RoleStudent)},
		{ID: "stu-2", Name: "Chen Mei", Role: string(models.RoleStudent)},
	}}
}

func newTestService(store *fakeStore, dir Directory) (*Service, *Synchronizer) {
	sync := NewSynchronizer(store, time.Hour) // 测试里不跑轮询循环，手动 Refresh
	svc := NewService(sync, store, dir, 5<<20)
	return svc, sync
}

func TestSendCreatesConversationOptimistically(t *testing.T) {
	store := newFakeStore()
	svc, sync := newTestService(store, testDirectory())
	ctx := context.Background()

	msg, err := svc.Send(ctx, "stu-1", "teacher-1", msgtypes.NewTextContent("你好，李老师"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Status != msgtypes.StatusSent {
		t.Fatalf("新消息 status = %q, want %q", msg.Status, msgtypes.StatusSent)
	}

	// 不经过任何轮询，发送方立即能在快照里看到消息
	rec, ok := sync.Record("stu-1--teacher-1")
	if !ok {
		t.Fatalf("快照中找不到会话 stu-1--teacher-1")
	}
	if len(rec.Messages) != 1 || rec.Messages[0].ID != msg.ID {
		t.Fatalf("快照中的消息 = %+v, want 1 条 ID %q", rec.Messages, msg.ID)
	}

	// 存储端也应收到整条会话
	if _, ok := store.records[rec.ID]; !ok {
		t.Fatalf("存储端缺少会话 %s", rec.ID)
	}
}

func TestSendAppendsToExistingConversation(t *testing.T) {
	store := newFakeStore()
	svc, sync := newTestService(store, testDirectory())
	ctx := context.Background()

	first, err := svc.Send(ctx, "stu-1", "teacher-1", msgtypes.NewTextContent("第一条"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	second, err := svc.Send(ctx, "teacher-1", "stu-1", msgtypes.NewTextContent("第二条"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	rec, _ := sync.Record("stu-1--teacher-1")
	if len(rec.Messages) != 2 {
		t.Fatalf("会话消息数 = %d, want 2", len(rec.Messages))
	}
	if rec.Messages[0].ID != first.ID || rec.Messages[1].ID != second.ID {
		t.Fatalf("消息顺序错误: %q, %q", rec.Messages[0].ID, rec.Messages[1].ID)
	}
}

func TestSendValidation(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, testDirectory())
	ctx := context.Background()

	if _, err := svc.Send(ctx, "", "stu-1", msgtypes.NewTextContent("hi")); !errors.Is(err, ErrInvalidParticipant) {
		t.Fatalf("空发送方 error = %v, want ErrInvalidParticipant", err)
	}
	if _, err := svc.Send(ctx, "a--b", "stu-1", msgtypes.NewTextContent("hi")); !errors.Is(err, ErrInvalidParticipant) {
		t.Fatalf("含分隔符的 ID error = %v, want ErrInvalidParticipant", err)
	}
	if _, err := svc.Send(ctx, "stu-1", "stu-1", msgtypes.NewTextContent("hi")); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("自会话 error = %v, want ErrSelfConversation", err)
	}
	if _, err := svc.Send(ctx, "stu-1", "stu-2", msgtypes.NewTextContent("")); !errors.Is(err, msgtypes.ErrInvalidContent) {
		t.Fatalf("空文本 error = %v, want ErrInvalidContent", err)
	}
	if store.upserts != 0 {
		t.Fatalf("校验失败不应触达存储，upserts = %d", store.upserts)
	}
}

func TestSendRollsBackOnStoreFailure(t *testing.T) {
	store := newFakeStore()
	svc, sync := newTestService(store, testDirectory())
	ctx := context.Background()

	store.failNext = fmt.Errorf("store down")
	if _, err := svc.Send(ctx, "stu-1", "teacher-1", msgtypes.NewTextContent("会失败")); err == nil {
		t.Fatalf("Send() 应返回存储错误")
	}

	// 乐观创建的会话必须被回滚
	if _, ok := sync.Record("stu-1--teacher-1"); ok {
		t.Fatalf("写入失败后快照仍残留乐观创建的会话")
	}

	// 已有会话上的失败回到写入前的状态
	if _, err := svc.Send(ctx, "stu-1", "teacher-1", msgtypes.NewTextContent("成功")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	store.failNext = fmt.Errorf("store down again")
	if _, err := svc.Send(ctx, "stu-1", "teacher-1", msgtypes.NewTextContent("又失败")); err == nil {
		t.Fatalf("Send() 应返回存储错误")
	}
	rec, _ := sync.Record("stu-1--teacher-1")
	if len(rec.Messages) != 1 {
		t.Fatalf("回滚后消息数 = %d, want 1", len(rec.Messages))
	}
}

func TestDeletePreservesOrder(t *testing.T) {
	store := newFakeStore()
	svc, sync := newTestService(store, testDirectory())
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		msg, err := svc.Send(ctx, "stu-1", "teacher-1", msgtypes.NewTextContent(fmt.Sprintf("第 %d 条", i)))
		if err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		ids = append(ids, msg.ID)
	}

	if err := svc.Delete(ctx, "stu-1--teacher-1", ids[1]); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	rec, _ := sync.Record("stu-1--teacher-1")
	if len(rec.Messages) != 2 {
		t.Fatalf("删除后消息数 = %d, want 2", len(rec.Messages))
	}
	if rec.Messages[0].ID != ids[0] || rec.Messages[1].ID != ids[2] {
		t.Fatalf("删除破坏了剩余消息的顺序: %q, %q", rec.Messages[0].ID, rec.Messages[1].ID)
	}

	// 删除不存在的消息是 no-op，但依然写回
	if err := svc.Delete(ctx, "stu-1--teacher-1", "msg-does-not-exist"); err != nil {
		t.Fatalf("Delete(不存在的消息) error = %v", err)
	}
	rec, _ = sync.Record("stu-1--teacher-1")
	if len(rec.Messages) != 2 {
		t.Fatalf("no-op 删除改变了消息数: %d", len(rec.Messages))
	}

	if err := svc.Delete(ctx, "no--such", "msg-1"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Delete(未知会话) error = %v, want ErrConversationNotFound", err)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	store := newFakeStore()
	svc, sync := newTestService(store, testDirectory())
	ctx := context.Background()

	if _, err := svc.Send(ctx, "teacher-1", "stu-1", msgtypes.NewTextContent("作业写完了吗")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := svc.Send(ctx, "stu-1", "teacher-1", msgtypes.NewTextContent("写完了")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	upsertsBefore := store.upserts

	// 学生标记已读：只影响发给学生的那条
	if err := svc.MarkRead(ctx, "stu-1--teacher-1", "stu-1", models.RoleStudent); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if store.upserts != upsertsBefore+1 {
		t.Fatalf("MarkRead 应产生一次写入, upserts = %d, want %d", store.upserts, upsertsBefore+1)
	}

	rec, _ := sync.Record("stu-1--teacher-1")
	for _, m := range rec.Messages {
		if m.ReceiverID == "stu-1" && m.Status != msgtypes.StatusRead {
			t.Fatalf("发给 stu-1 的消息未标记已读: %+v", m)
		}
		if m.ReceiverID == "teacher-1" && m.Status == msgtypes.StatusRead {
			t.Fatalf("发给 teacher-1 的消息被错误标记已读: %+v", m)
		}
	}

	// 重复标记没有未读消息，不应产生新的写入
	if err := svc.MarkRead(ctx, "stu-1--teacher-1", "stu-1", models.RoleStudent); err != nil {
		t.Fatalf("MarkRead() 重复调用 error = %v", err)
	}
	if store.upserts != upsertsBefore+1 {
		t.Fatalf("幂等 MarkRead 不应产生写入, upserts = %d", store.upserts)
	}

	if err := svc.MarkRead(ctx, "no--such", "stu-1", models.RoleStudent); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("MarkRead(未知会话) error = %v, want ErrConversationNotFound", err)
	}
}

func TestMarkReadUsesAdminIdentity(t *testing.T) {
	store := newFakeStore()
	svc, sync := newTestService(store, testDirectory())
	ctx := context.Background()

	// 学生写给虚拟管理员收件箱
	if _, err := svc.Send(ctx, "stu-1", VirtualAdminID, msgtypes.NewTextContent("校长您好")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	conversationID := ConversationID("stu-1", VirtualAdminID)

	// 任意一位管理员标记已读都作用于同一个收件箱身份
	if err := svc.MarkRead(ctx, conversationID, "admin-1", models.RoleAdmin); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	rec, _ := sync.Record(conversationID)
	if rec.Messages[0].Status != msgtypes.StatusRead {
		t.Fatalf("消息 status = %q, want %q", rec.Messages[0].Status, msgtypes.StatusRead)
	}
}

func TestBroadcastExcludesAdmins(t *testing.T) {
	store := newFakeStore()
	svc, sync := newTestService(store, testDirectory())
	ctx := context.Background()

	count, err := svc.Broadcast(ctx, BroadcastAll, msgtypes.NewTextContent("明天放假"))
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	// 目录里 4 个账号，1 个是管理员，应触达 3 个
	if count != 3 {
		t.Fatalf("Broadcast 触达 %d 人, want 3", count)
	}

	// 每个接收者各有一条与虚拟管理员的独立会话
	for _, id := range []string{"teacher-1", "stu-1", "stu-2"} {
		rec, ok := sync.Record(ConversationID(VirtualAdminID, id))
		if !ok {
			t.Fatalf("缺少与 %s 的广播会话", id)
		}
		if len(rec.Messages) != 1 {
			t.Fatalf("与 %s 的会话消息数 = %d, want 1", id, len(rec.Messages))
		}
		if rec.Messages[0].SenderID != VirtualAdminID {
			t.Fatalf("广播消息发送方 = %q, want %q", rec.Messages[0].SenderID, VirtualAdminID)
		}
	}
}

func TestBroadcastByRole(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, testDirectory())
	ctx := context.Background()

	count, err := svc.Broadcast(ctx, BroadcastTarget(models.RoleStudent), msgtypes.NewTextContent("学生注意"))
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("Broadcast(student) 触达 %d 人, want 2", count)
	}
}

func TestBroadcastContinuesAfterFailure(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, testDirectory())
	ctx := context.Background()

	// 第一个接收者的写入失败，其余应继续
	store.failNext = fmt.Errorf("store hiccup")
	count, err := svc.Broadcast(ctx, BroadcastAll, msgtypes.NewTextContent("部分失败"))
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("Broadcast 触达 %d 人, want 2 (一个失败)", count)
	}
}

func TestConversationsForViews(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, testDirectory())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	svc.now = func() time.Time { tm := clock; clock = clock.Add(time.Minute); return tm }

	if _, err := svc.Send(ctx, "teacher-1", "stu-1", msgtypes.NewTextContent("早")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := svc.Send(ctx, "stu-2", "stu-1", msgtypes.NewTextContent("放学打球吗")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	views, err := svc.ConversationsFor(ctx, "stu-1", models.RoleStudent)
	if err != nil {
		t.Fatalf("ConversationsFor() error = %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("会话视图数 = %d, want 2", len(views))
	}
	// 最近的消息在最前
	if views[0].OtherUser.ID != "stu-2" || views[1].OtherUser.ID != "teacher-1" {
		t.Fatalf("视图排序错误: %q, %q", views[0].OtherUser.ID, views[1].OtherUser.ID)
	}
	for _, v := range views {
		if v.UnreadCount != 1 {
			t.Fatalf("会话 %s 未读数 = %d, want 1", v.ID, v.UnreadCount)
		}
	}

	// 已读后未读数归零
	if err := svc.MarkRead(ctx, views[0].ID, "stu-1", models.RoleStudent); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	views, _ = svc.ConversationsFor(ctx, "stu-1", models.RoleStudent)
	if views[0].UnreadCount != 0 {
		t.Fatalf("已读后未读数 = %d, want 0", views[0].UnreadCount)
	}

	// 自己发送的消息不计入未读
	if _, err := svc.Send(ctx, "stu-1", "teacher-1", msgtypes.NewTextContent("老师早")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	views, _ = svc.ConversationsFor(ctx, "stu-1", models.RoleStudent)
	if views[0].OtherUser.ID != "teacher-1" {
		t.Fatalf("最新会话应排最前, got %q", views[0].OtherUser.ID)
	}
}

func TestConversationsForAdminSeesVirtualInbox(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, testDirectory())
	ctx := context.Background()

	if _, err := svc.Send(ctx, "stu-1", VirtualAdminID, msgtypes.NewTextContent("反馈")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// 两位不同的管理员看到的是同一个收件箱
	for _, adminID := range []string{"admin-1", "admin-2"} {
		views, err := svc.ConversationsFor(ctx, adminID, models.RoleAdmin)
		if err != nil {
			t.Fatalf("ConversationsFor(%s) error = %v", adminID, err)
		}
		if len(views) != 1 {
			t.Fatalf("管理员 %s 会话数 = %d, want 1", adminID, len(views))
		}
		if views[0].OtherUser.ID != "stu-1" {
			t.Fatalf("对面用户 = %q, want stu-1", views[0].OtherUser.ID)
		}
		if views[0].UnreadCount != 1 {
			t.Fatalf("收件箱未读数 = %d, want 1", views[0].UnreadCount)
		}
	}

	// 学生一侧看到的对面是合成的虚拟管理员条目
	views, _ := svc.ConversationsFor(ctx, "stu-1", models.RoleStudent)
	if len(views) != 1 {
		t.Fatalf("学生会话数 = %d, want 1", len(views))
	}
	if views[0].OtherUser.Name != VirtualAdminName {
		t.Fatalf("对面名称 = %q, want %q", views[0].OtherUser.Name, VirtualAdminName)
	}
}

func TestConversationsForSkipsUnknownParticipants(t *testing.T) {
	store := newFakeStore()
	svc, sync := newTestService(store, testDirectory())
	ctx := context.Background()

	// 会话的对面不在目录里（比如账号已删除）
	sync.Apply(msgtypes.ConversationRecord{
		ID:           ConversationID("stu-1", "ghost-1"),
		Participants: [2]string{"stu-1", "ghost-1"},
	})

	views, err := svc.ConversationsFor(ctx, "stu-1", models.RoleStudent)
	if err != nil {
		t.Fatalf("ConversationsFor() error = %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("不在目录里的对面不应出现在视图中, got %d", len(views))
	}
}

func TestEmptyConversationsSortLast(t *testing.T) {
	store := newFakeStore()
	svc, sync := newTestService(store, testDirectory())
	ctx := context.Background()

	sync.Apply(msgtypes.ConversationRecord{
		ID:           ConversationID("stu-1", "stu-2"),
		Participants: [2]string{"stu-1", "stu-2"},
	})
	if _, err := svc.Send(ctx, "teacher-1", "stu-1", msgtypes.NewTextContent("有消息")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	views, _ := svc.ConversationsFor(ctx, "stu-1", models.RoleStudent)
	if len(views) != 2 {
		t.Fatalf("会话视图数 = %d, want 2", len(views))
	}
	if views[0].OtherUser.ID != "teacher-1" {
		t.Fatalf("有消息的会话应排最前, got %q", views[0].OtherUser.ID)
	}
	if views[1].OtherUser.ID != "stu-2" {
		t.Fatalf("空会话应排最后, got %q", views[1].OtherUser.ID)
	}
}
