package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"kvision-go/internal/middleware"
	"kvision-go/internal/models"
	"kvision-go/internal/services"

	"github.com/gorilla/mux"
)

// NotificationHandler 封装了校园通知相关的 HTTP 处理器方法。
type NotificationHandler struct {
	NotificationService services.NotificationService
	ActivityService     services.ActivityService
}

// NewNotificationHandler 创建一个新的 NotificationHandler 实例。
func NewNotificationHandler(notificationService services.NotificationService, activityService services.ActivityService) *NotificationHandler {
	return &NotificationHandler{NotificationService: notificationService, ActivityService: activityService}
}

// PublishNotificationRequest 是发布通知请求的结构体。
type PublishNotificationRequest struct {
	Title   string                    `json:"title"`
	Content string                    `json:"content"`
	Target  models.NotificationTarget `json:"target"`
}

// ListNotifications 返回当前用户角色可见的通知。
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	role, ok := middleware.UserRoleFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户角色", http.StatusInternalServerError)
		return
	}

	notifications, err := h.NotificationService.ListFor(r.Context(), role)
	if err != nil {
		writeJSONError(w, "获取通知列表失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, notifications)
}

// PublishNotification 发布一条通知，仅管理员可用。
func (h *NotificationHandler) PublishNotification(w http.ResponseWriter, r *http.Request) {
	var req PublishNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	notification, err := h.NotificationService.Publish(r.Context(), req.Title, req.Content, req.Target)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if performer, ok := middleware.UserIDFromContext(r.Context()); ok {
		h.ActivityService.Record(r.Context(), "Published notification: "+notification.Title, performer, models.ActivityInfo)
	}
	writeJSONResponse(w, http.StatusCreated, notification)
}

// MarkNotificationRead 将当前用户加入通知的已读列表。
func (h *NotificationHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusInternalServerError)
		return
	}
	notificationID := mux.Vars(r)["notificationID"]

	if err := h.NotificationService.MarkRead(r.Context(), notificationID, userID); err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			writeJSONError(w, "通知未找到", http.StatusNotFound)
			return
		}
		writeJSONError(w, "标记通知已读失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "已标记为已读"})
}

// DeleteNotification 删除一条通知，仅管理员可用。
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	notificationID := mux.Vars(r)["notificationID"]
	if err := h.NotificationService.Delete(r.Context(), notificationID); err != nil {
		writeJSONError(w, "删除通知失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "通知已删除"})
}
