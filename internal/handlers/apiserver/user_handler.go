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

// UserHandler 封装了用户目录相关的 HTTP 处理器方法。
type UserHandler struct {
	UserService     services.UserService
	ActivityService services.ActivityService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService services.UserService, activityService services.ActivityService) *UserHandler {
	return &UserHandler{UserService: userService, ActivityService: activityService}
}

// CreateUserRequest 是创建账号请求的结构体。
type CreateUserRequest struct {
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Password  string          `json:"password"`
	Role      models.UserRole `json:"role"`
	ClassName string          `json:"className,omitempty"`
}

// GetMyProfile 返回当前登录用户的资料。
func (h *UserHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID，请确保请求已通过认证", http.StatusInternalServerError)
		return
	}

	user, err := h.UserService.GetUser(r.Context(), userID)
	if err != nil {
		writeJSONError(w, "获取用户信息失败", http.StatusNotFound)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// ListUsers 返回用户列表，支持 ?role= 过滤。
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	roleParam := r.URL.Query().Get("role")
	if roleParam != "" {
		role := models.UserRole(roleParam)
		if !role.Valid() {
			writeJSONError(w, "无效的角色参数", http.StatusBadRequest)
			return
		}
		users, err := h.UserService.ListUsersByRole(r.Context(), role)
		if err != nil {
			writeJSONError(w, "获取用户列表失败", http.StatusInternalServerError)
			return
		}
		writeJSONResponse(w, http.StatusOK, users)
		return
	}

	users, err := h.UserService.ListUsers(r.Context())
	if err != nil {
		writeJSONError(w, "获取用户列表失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, users)
}

// GetUser 返回指定 ID 的用户资料。
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["userID"]
	if id == "" {
		writeJSONError(w, "请求路径中缺少 userID", http.StatusBadRequest)
		return
	}

	user, err := h.UserService.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeJSONError(w, "用户未找到", http.StatusNotFound)
			return
		}
		writeJSONError(w, "获取用户信息失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// CreateUser 创建一个新账号，仅管理员可用。
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeJSONError(w, "姓名、邮箱和密码不能为空", http.StatusBadRequest)
		return
	}

	user, err := h.UserService.CreateUser(r.Context(), req.Name, req.Email, req.Password, req.Role, req.ClassName)
	if err != nil {
		if errors.Is(err, services.ErrUserAlreadyExists) {
			writeJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSONError(w, "创建用户失败", http.StatusInternalServerError)
		return
	}

	if performer, ok := middleware.UserIDFromContext(r.Context()); ok {
		h.ActivityService.Record(r.Context(), "Created account for "+user.Name, performer, models.ActivitySuccess)
	}
	writeJSONResponse(w, http.StatusCreated, user)
}

// SetBlockedRequest 是更新账号禁用状态的请求体。
type SetBlockedRequest struct {
	Blocked bool `json:"blocked"`
}

// SetBlocked 更新指定账号的禁用状态，仅管理员可用。
func (h *UserHandler) SetBlocked(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["userID"]

	var req SetBlockedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	user, err := h.UserService.SetBlocked(r.Context(), id, req.Blocked)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeJSONError(w, "用户未找到", http.StatusNotFound)
			return
		}
		writeJSONError(w, "更新用户失败", http.StatusInternalServerError)
		return
	}

	if performer, ok := middleware.UserIDFromContext(r.Context()); ok {
		action := "Unblocked account " + user.Name
		activityType := models.ActivityInfo
		if req.Blocked {
			action = "Blocked account " + user.Name
			activityType = models.ActivityWarning
		}
		h.ActivityService.Record(r.Context(), action, performer, activityType)
	}
	writeJSONResponse(w, http.StatusOK, user)
}

// DeleteUser 删除指定账号，仅管理员可用。
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["userID"]
	if err := h.UserService.DeleteUser(r.Context(), id); err != nil {
		writeJSONError(w, "删除用户失败", http.StatusInternalServerError)
		return
	}
	if performer, ok := middleware.UserIDFromContext(r.Context()); ok {
		h.ActivityService.Record(r.Context(), "Deleted account "+id, performer, models.ActivityCritical)
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "用户已删除"})
}
