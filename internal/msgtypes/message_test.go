package msgtypes

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStatusCanAdvanceTo(t *testing.T) {
	cases := []struct {
		from, to MessageStatus
		want     bool
	}{
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusRead, true},
		{StatusDelivered, StatusRead, true},
		{StatusRead, StatusRead, true}, // 幂等
		{StatusRead, StatusSent, false},
		{StatusDelivered, StatusSent, false},
		{StatusSent, MessageStatus("bogus"), false},
	}
	for _, c := range cases {
		if got := c.from.CanAdvanceTo(c.to); got != c.want {
			t.Errorf("%s.CanAdvanceTo(%s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTextContentValidate(t *testing.T) {
	if err := NewTextContent("hello").Validate(0); err != nil {
		t.Fatalf("合法文本 Validate() error = %v", err)
	}
	if err := NewTextContent("").Validate(0); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("空文本 Validate() error = %v, want ErrInvalidContent", err)
	}
	bad := MessageContent{Type: ContentType("sticker")}
	if err := bad.Validate(0); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("未知类型 Validate() error = %v, want ErrInvalidContent", err)
	}
}

func TestFileContentValidate(t *testing.T) {
	valid := UploadedFile{Name: "report.pdf", MimeType: "application/pdf", Size: 1024, URL: "/uploads/report.pdf"}

	if err := NewFileContent(valid).Validate(5 << 20); err != nil {
		t.Fatalf("合法附件 Validate() error = %v", err)
	}

	tooBig := valid
	tooBig.Size = 6 << 20
	if err := NewFileContent(tooBig).Validate(5 << 20); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("超限附件 Validate() error = %v, want ErrInvalidContent", err)
	}

	badType := valid
	badType.MimeType = "application/x-msdownload"
	if err := NewFileContent(badType).Validate(5 << 20); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("类型不在白名单 Validate() error = %v, want ErrInvalidContent", err)
	}

	noURL := valid
	noURL.URL = ""
	if err := NewFileContent(noURL).Validate(5 << 20); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("缺少 URL Validate() error = %v, want ErrInvalidContent", err)
	}

	missing := MessageContent{Type: FileContent}
	if err := missing.Validate(5 << 20); !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("缺少文件载荷 Validate() error = %v, want ErrInvalidContent", err)
	}
}

func TestMimeTypeAllowed(t *testing.T) {
	allowed := []string{"image/png", "image/jpeg", "application/pdf", "text/plain"}
	for _, m := range allowed {
		if !MimeTypeAllowed(m) {
			t.Errorf("MimeTypeAllowed(%q) = false, want true", m)
		}
	}
	denied := []string{"application/x-sh", "video/mp4", ""}
	for _, m := range denied {
		if MimeTypeAllowed(m) {
			t.Errorf("MimeTypeAllowed(%q) = true, want false", m)
		}
	}
}

func TestContentJSONEnvelope(t *testing.T) {
	raw, err := json.Marshal(NewTextContent("你好"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `{"type":"text","value":"你好"}` {
		t.Fatalf("文本内容线上格式 = %s", raw)
	}

	var decoded MessageContent
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Type != TextContent || decoded.Text != "你好" {
		t.Fatalf("解码结果 = %+v", decoded)
	}

	fileRaw, err := json.Marshal(NewFileContent(UploadedFile{
		Name: "a.png", MimeType: "image/png", Size: 10, URL: "/uploads/a.png",
	}))
	if err != nil {
		t.Fatalf("Marshal(file) error = %v", err)
	}
	var fileDecoded MessageContent
	if err := json.Unmarshal(fileRaw, &fileDecoded); err != nil {
		t.Fatalf("Unmarshal(file) error = %v", err)
	}
	if fileDecoded.Type != FileContent || fileDecoded.File == nil || fileDecoded.File.Name != "a.png" {
		t.Fatalf("文件内容解码结果 = %+v", fileDecoded)
	}

	if err := json.Unmarshal([]byte(`{"type":"sticker","value":1}`), &decoded); err == nil {
		t.Fatalf("未知类型应解码失败")
	}
}

func TestNewMessageID(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id := NewMessageID(now)
	if !strings.HasPrefix(id, "msg-1772355600000-") {
		t.Fatalf("消息 ID 格式错误: %q", id)
	}
	if id == NewMessageID(now) {
		t.Fatalf("同一时刻生成的消息 ID 不应相同")
	}
}

func TestConversationRecordHelpers(t *testing.T) {
	rec := ConversationRecord{
		ID:           "a--b",
		Participants: [2]string{"a", "b"},
		Messages:     []Message{{ID: "m1", Status: StatusSent}},
	}

	if !rec.Has("a") || !rec.Has("b") || rec.Has("c") {
		t.Fatalf("Has 结果错误")
	}
	if rec.Other("a") != "b" || rec.Other("b") != "a" || rec.Other("c") != "" {
		t.Fatalf("Other 结果错误")
	}

	clone := rec.Clone()
	clone.Messages[0].Status = StatusRead
	if rec.Messages[0].Status != StatusSent {
		t.Fatalf("Clone 不是深拷贝，消息被共享")
	}
}

func TestLastTimestamp(t *testing.T) {
	empty := ConversationView{}
	if _, ok := empty.LastTimestamp(); ok {
		t.Fatalf("空会话 LastTimestamp ok = true, want false")
	}

	view := ConversationView{Messages: []Message{
		{Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
	}}
	ts, ok := view.LastTimestamp()
	if !ok || ts != view.Messages[1].Timestamp.UnixNano() {
		t.Fatalf("LastTimestamp = %d, ok = %v", ts, ok)
	}
}
