package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"kvision-go/internal/auth"
	"kvision-go/internal/models"

	"github.com/gorilla/mux"
)

type contextKey string

const (
	// UserIDKey 是请求上下文中当前用户 ID 的键。
	UserIDKey contextKey = "userID"
	// UserRoleKey 是请求上下文中当前用户角色的键。
	UserRoleKey contextKey = "userRole"
	// UserNameKey 是请求上下文中当前用户姓名的键。
	UserNameKey contextKey = "userName"
	// ClaimsKey 保存完整的 JWT Claims，供登出等需要 jti 的处理器使用。
	ClaimsKey contextKey = "claims"
)

// AuthMiddleware 创建一个校验 Bearer Token 的 mux 中间件。
// 校验通过后将用户身份注入请求上下文。
func AuthMiddleware(jwtKey string, blacklist auth.TokenBlacklist) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "缺少 Authorization 请求头", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Authorization 请求头格式无效，应为 Bearer {token}", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateToken(r.Context(), parts[1], jwtKey, blacklist)
			if err != nil {
				log.Printf("Token 验证失败: %v", err)
				http.Error(w, "无效或已过期的 Token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, UserRoleKey, claims.Role)
			ctx = context.WithValue(ctx, UserNameKey, claims.Name)
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole 在 AuthMiddleware 之后使用，限制仅指定角色可访问。
func RequireRole(roles ...models.UserRole) mux.MiddlewareFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := UserRoleFromContext(r.Context())
			if !ok {
				http.Error(w, "未认证", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[role]; !ok {
				http.Error(w, "没有权限执行此操作", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext 从请求上下文中取出当前用户 ID。
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok
}

// UserRoleFromContext 从请求上下文中取出当前用户角色。
func UserRoleFromContext(ctx context.Context) (models.UserRole, bool) {
	role, ok := ctx.Value(UserRoleKey).(models.UserRole)
	return role, ok
}

// ClaimsFromContext 从请求上下文中取出完整的 JWT Claims。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}
