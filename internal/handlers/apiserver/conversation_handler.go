package apiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"kvision-go/internal/messaging"
	"kvision-go/internal/middleware"
	"kvision-go/internal/models"
	"kvision-go/internal/msgtypes"
	"kvision-go/internal/services"

	"github.com/gorilla/mux"
)

// ConversationHandler 封装了会话与消息相关的 HTTP 处理器方法。
type ConversationHandler struct {
	Messaging       *messaging.Service
	ActivityService services.ActivityService
}

// NewConversationHandler 创建一个新的 ConversationHandler 实例。
func NewConversationHandler(messagingService *messaging.Service, activityService services.ActivityService) *ConversationHandler {
	return &ConversationHandler{Messaging: messagingService, ActivityService: activityService}
}

// SendMessageRequest 是发送消息请求的结构体。
type SendMessageRequest struct {
	ReceiverID string                  `json:"receiverId"`
	Content    msgtypes.MessageContent `json:"content"`
}

// BroadcastRequest 是管理员广播请求的结构体。
type BroadcastRequest struct {
	Target  messaging.BroadcastTarget `json:"target"` // "all" 或某个角色
	Content msgtypes.MessageContent   `json:"content"`
}

// BroadcastResponse 返回广播实际触达的用户数。
type BroadcastResponse struct {
	Recipients int `json:"recipients"`
}

// viewerIdentity 从请求上下文解析出当前用户的 ID 与角色。
func viewerIdentity(r *http.Request) (string, models.UserRole, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return "", "", false
	}
	role, ok := middleware.UserRoleFromContext(r.Context())
	if !ok {
		return "", "", false
	}
	return userID, role, ok
}

// ListConversations 返回当前用户视角下的全部会话视图，
// 按最后一条消息时间倒序，含未读数。
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := viewerIdentity(r)
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusInternalServerError)
		return
	}

	views, err := h.Messaging.ConversationsFor(r.Context(), userID, role)
	if err != nil {
		writeJSONError(w, "获取会话列表失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, views)
}

// SendMessage 以当前用户的消息身份向指定用户发送一条消息。
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := viewerIdentity(r)
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusInternalServerError)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	senderIdentity := messaging.IdentityFor(userID, role)
	message, err := h.Messaging.Send(r.Context(), senderIdentity, req.ReceiverID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, messaging.ErrInvalidParticipant), errors.Is(err, messaging.ErrSelfConversation), errors.Is(err, msgtypes.ErrInvalidContent):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			writeJSONError(w, "发送消息失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusCreated, message)
}

// DeleteMessage 从会话中删除一条消息。
func (h *ConversationHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	conversationID := vars["conversationID"]
	messageID := vars["messageID"]

	if err := h.Messaging.Delete(r.Context(), conversationID, messageID); err != nil {
		if errors.Is(err, messaging.ErrConversationNotFound) {
			writeJSONError(w, "会话不存在", http.StatusNotFound)
			return
		}
		writeJSONError(w, "删除消息失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "消息已删除"})
}

// MarkRead 将会话中发给当前用户消息身份的全部消息标记为已读。
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := viewerIdentity(r)
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusInternalServerError)
		return
	}
	conversationID := mux.Vars(r)["conversationID"]

	if err := h.Messaging.MarkRead(r.Context(), conversationID, userID, role); err != nil {
		if errors.Is(err, messaging.ErrConversationNotFound) {
			writeJSONError(w, "会话不存在", http.StatusNotFound)
			return
		}
		writeJSONError(w, "标记已读失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "已标记为已读"})
}

// Broadcast 以虚拟管理员身份向目标范围内的所有用户逐一发送消息，
// 仅管理员可用。部分失败不会中断，响应返回成功触达的人数。
func (h *ConversationHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := viewerIdentity(r)
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusInternalServerError)
		return
	}

	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	count, err := h.Messaging.Broadcast(r.Context(), req.Target, req.Content)
	if err != nil {
		if errors.Is(err, msgtypes.ErrInvalidContent) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSONError(w, "广播失败", http.StatusInternalServerError)
		return
	}

	h.ActivityService.Record(r.Context(), fmt.Sprintf("Broadcasted message to %d users", count), userID, models.ActivityInfo)
	writeJSONResponse(w, http.StatusOK, BroadcastResponse{Recipients: count})
}
