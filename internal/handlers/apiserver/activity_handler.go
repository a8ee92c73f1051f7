package apiserver

import (
	"net/http"
	"strconv"

	"kvision-go/internal/services"
)

const defaultActivityLimit = 50

// ActivityHandler 封装了审计日志查询的 HTTP 处理器方法。
type ActivityHandler struct {
	ActivityService services.ActivityService
}

// NewActivityHandler 创建一个新的 ActivityHandler 实例。
func NewActivityHandler(activityService services.ActivityService) *ActivityHandler {
	return &ActivityHandler{ActivityService: activityService}
}

// ListActivities 返回最近的审计记录，支持 ?limit= 参数，仅管理员可用。
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, "无效的 limit 参数", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := h.ActivityService.ListRecent(r.Context(), limit)
	if err != nil {
		writeJSONError(w, "获取审计记录失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, entries)
}
