package apiserver

import (
	"fmt"
	"log"
	"net/http"

	"kvision-go/internal/config"
	"kvision-go/internal/msgtypes"
)

const defaultMaxMemory = 32 << 20 // multipart 表单非文件部分的内存上限

// UploadHandler 封装了附件上传相关的 HTTP 处理器方法。
// 附件先落存储，消息中只携带返回的 URL 引用。
type UploadHandler struct {
	storageService msgtypes.StorageService
	maxBytes       int64
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(storageService msgtypes.StorageService, msgCfg config.MessagingConfig) *UploadHandler {
	return &UploadHandler{
		storageService: storageService,
		maxBytes:       msgCfg.MaxAttachmentBytes,
	}
}

// UploadFile 处理附件上传请求。
func (h *UploadHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	maxUploadSize := h.maxBytes
	if maxUploadSize <= 0 {
		maxUploadSize = 5 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+defaultMaxMemory)

	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		if err.Error() == "http: request body too large" {
			msg := fmt.Sprintf("上传文件过大，最大允许 %d MB", maxUploadSize>>20)
			writeJSONError(w, msg, http.StatusRequestEntityTooLarge)
		} else {
			writeJSONError(w, fmt.Sprintf("解析表单失败: %v", err), http.StatusBadRequest)
		}
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			writeJSONError(w, "请求中缺少 'file' 字段", http.StatusBadRequest)
		} else {
			writeJSONError(w, fmt.Sprintf("获取文件失败: %v", err), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	if handler.Size > maxUploadSize {
		msg := fmt.Sprintf("上传文件过大，最大允许 %d MB", maxUploadSize>>20)
		writeJSONError(w, msg, http.StatusRequestEntityTooLarge)
		return
	}

	mimeType := handler.Header.Get("Content-Type")
	if !msgtypes.MimeTypeAllowed(mimeType) {
		writeJSONError(w, fmt.Sprintf("不支持的文件类型: %s", mimeType), http.StatusUnsupportedMediaType)
		return
	}

	fileInfo, err := h.storageService.UploadFile(r.Context(), file, handler.Size, handler.Filename, mimeType)
	if err != nil {
		log.Printf("存储文件失败: %v", err)
		writeJSONError(w, "存储文件失败", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, fileInfo)
}
