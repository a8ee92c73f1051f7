package msgtypes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidContent 表示消息内容未通过提交前校验。
var ErrInvalidContent = errors.New("消息内容无效")

// UploadedFile 是文件附件的载荷。
// 字节内容不内联进会话记录，URL 指向 blob 存储中的对象；
// 会话记录因此不会随附件体积无界增长。
type UploadedFile struct {
	Name     string `json:"name"`
	MimeType string `json:"type"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// allowedMimePrefixes 是附件允许的 MIME 类型前缀。
var allowedMimePrefixes = []string{
	"image/",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument",
	"text/plain",
}

// Validate 校验附件载荷：大小上限与类型白名单。
func (f *UploadedFile) Validate(maxBytes int64) error {
	if f.Name == "" {
		return fmt.Errorf("%w: 附件缺少文件名", ErrInvalidContent)
	}
	if f.Size <= 0 {
		return fmt.Errorf("%w: 附件大小无效", ErrInvalidContent)
	}
	if maxBytes > 0 && f.Size > maxBytes {
		return fmt.Errorf("%w: 附件过大 (%d 字节，上限 %d)", ErrInvalidContent, f.Size, maxBytes)
	}
	if !MimeTypeAllowed(f.MimeType) {
		return fmt.Errorf("%w: 不允许的附件类型 %q", ErrInvalidContent, f.MimeType)
	}
	if f.URL == "" {
		return fmt.Errorf("%w: 附件缺少内容引用", ErrInvalidContent)
	}
	return nil
}

// MimeTypeAllowed 报告 MIME 类型是否在附件白名单内。
func MimeTypeAllowed(mimeType string) bool {
	for _, prefix := range allowedMimePrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}

// FileInfo 包含上传文件的基本信息和访问路径。
type FileInfo struct {
	URL      string `json:"url"`      // 可公开访问的文件 URL
	Path     string `json:"path"`     // 文件在存储系统中的路径或标识符
	Size     int64  `json:"size"`     // 文件大小 (字节)
	MimeType string `json:"mimeType"` // 文件的 MIME 类型
	FileName string `json:"fileName"` // 原始文件名
}

// StorageService 定义了附件 blob 存储操作的接口。
// 接口定义放在 msgtypes 中以打破 storage 和 services 之间的循环依赖。
type StorageService interface {
	// UploadFile 将读取器中的内容上传到存储系统，返回包含访问 URL 的 FileInfo。
	UploadFile(ctx context.Context, reader io.Reader, fileSize int64, fileName string, mimeType string) (*FileInfo, error)
}
