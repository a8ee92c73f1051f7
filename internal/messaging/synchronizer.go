package messaging

import (
	"context"
	"log"
	"sync"
	"time"

	"kvision-go/internal/msgtypes"
	"kvision-go/internal/storage"
)

// Synchronizer 按固定间隔轮询会话存储，把远端状态对账进内存快照。
// 存储端对本客户端没有推送原语，轮询是感知对方新消息的唯一手段，
// 因此陈旧窗口最长为一个轮询间隔。
//
// 快照要么处于 Stale（尚未成功拉取过），要么处于 Synced（持有上次拉取结果）。
// 每次成功拉取整体替换快照（last-fetch-wins）。为了避免一次与在途写入
// 赛跑的轮询把乐观更新"冲掉"，写操作通过 BeginWrite/EndWrite 声明在途状态，
// 在途写入存在期间拉取到的快照会被直接丢弃，下一轮再取。
type Synchronizer struct {
	store    storage.ConversationStore
	interval time.Duration

	mu      sync.Mutex
	records []msgtypes.ConversationRecord
	synced  bool
	pending int // 在途写操作计数；大于 0 时轮询结果直接丢弃
	subs    map[chan struct{}]struct{}
}

// NewSynchronizer 创建一个新的会话同步器。interval 不合法时退回 5 秒。
func NewSynchronizer(store storage.ConversationStore, interval time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Synchronizer{
		store:    store,
		interval: interval,
		subs:     make(map[chan struct{}]struct{}),
	}
}

// Start 立即做一次拉取，然后按固定间隔轮询，直到 ctx 取消。
// 阻塞运行，调用方通常在独立的 goroutine 中启动它。
func (s *Synchronizer) Start(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		log.Printf("会话同步器首次拉取失败: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				log.Printf("会话同步器轮询失败: %v", err)
			}
		}
	}
}

// Refresh 执行一次完整拉取并替换内存快照。
// 拉取失败时保留上一次的快照（last-known-good）。
func (s *Synchronizer) Refresh(ctx context.Context) error {
	records, err := s.store.FetchAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending > 0 {
		// 有写操作在途：这份快照可能还看不到那次写入，应用它会把
		// 乐观更新暂时"取消发送"。丢弃，等下一轮。
		return nil
	}
	s.records = records
	s.synced = true
	s.notifyLocked()
	return nil
}

// Synced 报告同步器是否已经成功拉取过至少一次。
func (s *Synchronizer) Synced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

// BeginWrite 声明一次写操作开始，在途期间轮询结果会被丢弃。
func (s *Synchronizer) BeginWrite() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

// EndWrite 声明一次写操作结束。
func (s *Synchronizer) EndWrite() {
	s.mu.Lock()
	if s.pending > 0 {
		s.pending--
	}
	s.mu.Unlock()
}

// Record 返回指定 ID 的会话记录的拷贝。
func (s *Synchronizer) Record(id string) (msgtypes.ConversationRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			return s.records[i].Clone(), true
		}
	}
	return msgtypes.ConversationRecord{}, false
}

// Apply 把一条记录乐观地写进内存快照：已存在则整条替换，否则追加。
func (s *Synchronizer) Apply(record msgtypes.ConversationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == record.ID {
			s.records[i] = record
			s.notifyLocked()
			return
		}
	}
	s.records = append(s.records, record)
	s.notifyLocked()
}

// Discard 从内存快照移除一条记录，用于回滚失败的乐观创建。
func (s *Synchronizer) Discard(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.notifyLocked()
			return
		}
	}
}

// Snapshot 返回当前全部会话记录的拷贝。
func (s *Synchronizer) Snapshot() []msgtypes.ConversationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]msgtypes.ConversationRecord, 0, len(s.records))
	for i := range s.records {
		out = append(out, s.records[i].Clone())
	}
	return out
}

// Subscribe 返回一个在快照变化时收到通知的通道。
// 通知是合并语义：通道容量为 1，堆积的变化合并成一次通知。
func (s *Synchronizer) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe 取消订阅并关闭通道。
func (s *Synchronizer) Unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Synchronizer) notifyLocked() {
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
