package messaging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"kvision-go/internal/msgtypes"
)

func record(id string, participants [2]string, texts ...string) msgtypes.ConversationRecord {
	rec := msgtypes.ConversationRecord{ID: id, Participants: participants}
	for i, text := range texts {
		rec.Messages = append(rec.Messages, msgtypes.Message{
			ID:         fmt.Sprintf("msg-%d", i),
			Content:    msgtypes.NewTextContent(text),
			Timestamp:  time.Date(2026, 3, 1, 9, i, 0, 0, time.UTC),
			SenderID:   participants[0],
			ReceiverID: participants[1],
			Status:     msgtypes.StatusSent,
		})
	}
	return rec
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	store := newFakeStore()
	sync := NewSynchronizer(store, time.Hour)
	ctx := context.Background()

	if sync.Synced() {
		t.Fatalf("未拉取过的同步器不应处于 synced 状态")
	}

	store.records["a--b"] = record("a--b", [2]string{"a", "b"}, "hi")
	if err := sync.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !sync.Synced() {
		t.Fatalf("成功拉取后应处于 synced 状态")
	}
	if _, ok := sync.Record("a--b"); !ok {
		t.Fatalf("快照中缺少 a--b")
	}

	// 远端删除后，下一次拉取整体替换快照
	delete(store.records, "a--b")
	store.records["c--d"] = record("c--d", [2]string{"c", "d"})
	if err := sync.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if _, ok := sync.Record("a--b"); ok {
		t.Fatalf("整体替换后旧会话仍在快照中")
	}
	if _, ok := sync.Record("c--d"); !ok {
		t.Fatalf("快照中缺少 c--d")
	}
}

func TestRefreshKeepsSnapshotOnError(t *testing.T) {
	store := newFakeStore()
	sync := NewSynchronizer(store, time.Hour)
	ctx := context.Background()

	store.records["a--b"] = record("a--b", [2]string{"a", "b"})
	if err := sync.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	store.fetchErr = fmt.Errorf("network down")
	if err := sync.Refresh(ctx); err == nil {
		t.Fatalf("Refresh() 应返回拉取错误")
	}
	// last-known-good 保留
	if _, ok := sync.Record("a--b"); !ok {
		t.Fatalf("拉取失败后快照丢失")
	}
}

func TestRefreshDiscardedDuringPendingWrite(t *testing.T) {
	store := newFakeStore()
	sync := NewSynchronizer(store, time.Hour)
	ctx := context.Background()

	// 乐观应用一条尚未到达存储端的记录
	optimistic := record("a--b", [2]string{"a", "b"}, "optimistic")
	sync.BeginWrite()
	sync.Apply(optimistic)

	// 与写入赛跑的轮询看不到这条消息，结果必须被丢弃
	if err := sync.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	rec, ok := sync.Record("a--b")
	if !ok || len(rec.Messages) != 1 {
		t.Fatalf("在途写入期间的轮询覆盖了乐观更新: %+v", rec)
	}

	// 写入完成后轮询恢复生效
	store.records["a--b"] = optimistic
	sync.EndWrite()
	if err := sync.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if _, ok := sync.Record("a--b"); !ok {
		t.Fatalf("写入完成后快照缺少 a--b")
	}
}

func TestApplyAndDiscard(t *testing.T) {
	store := newFakeStore()
	sync := NewSynchronizer(store, time.Hour)

	rec := record("a--b", [2]string{"a", "b"}, "hi")
	sync.Apply(rec)
	got, ok := sync.Record("a--b")
	if !ok || len(got.Messages) != 1 {
		t.Fatalf("Apply 后 Record = %+v, ok = %v", got, ok)
	}

	// 替换语义
	rec2 := record("a--b", [2]string{"a", "b"}, "hi", "again")
	sync.Apply(rec2)
	got, _ = sync.Record("a--b")
	if len(got.Messages) != 2 {
		t.Fatalf("Apply 替换后消息数 = %d, want 2", len(got.Messages))
	}

	sync.Discard("a--b")
	if _, ok := sync.Record("a--b"); ok {
		t.Fatalf("Discard 后记录仍存在")
	}
	// 丢弃不存在的记录是 no-op
	sync.Discard("no--such")
}

func TestRecordReturnsCopy(t *testing.T) {
	store := newFakeStore()
	sync := NewSynchronizer(store, time.Hour)
	sync.Apply(record("a--b", [2]string{"a", "b"}, "hi"))

	got, _ := sync.Record("a--b")
	got.Messages[0].Status = msgtypes.StatusRead

	again, _ := sync.Record("a--b")
	if again.Messages[0].Status != msgtypes.StatusSent {
		t.Fatalf("Record 返回的不是拷贝，外部修改泄漏进了快照")
	}
}

func TestSubscribeCoalesces(t *testing.T) {
	store := newFakeStore()
	sync := NewSynchronizer(store, time.Hour)

	ch := sync.Subscribe()
	defer sync.Unsubscribe(ch)

	// 连续多次变化合并成一次通知
	sync.Apply(record("a--b", [2]string{"a", "b"}))
	sync.Apply(record("c--d", [2]string{"c", "d"}))

	select {
	case <-ch:
	default:
		t.Fatalf("快照变化后未收到通知")
	}
	select {
	case <-ch:
		t.Fatalf("通知应被合并，收到了第二次")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	store := newFakeStore()
	sync := NewSynchronizer(store, time.Hour)

	ch := sync.Subscribe()
	sync.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatalf("Unsubscribe 后通道应已关闭")
	}
	// 重复取消订阅是 no-op
	sync.Unsubscribe(ch)
}
