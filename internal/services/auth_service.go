package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kvision-go/internal/auth"
	"kvision-go/internal/config"
	"kvision-go/internal/models"
	"kvision-go/internal/storage"

	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("无效的邮箱或密码")
	ErrUserNotFound       = errors.New("用户未找到")
	ErrUserBlocked        = errors.New("账号已被禁用")
)

// AuthService 定义了用户认证服务的接口。
type AuthService interface {
	Login(ctx context.Context, email, password string) (token string, user *models.User, err error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

// authService 是 AuthService 的实现。
type authService struct {
	userRepo  storage.UserRepository
	blacklist auth.TokenBlacklist
	cfg       config.Config // 包含 AuthConfig
}

// NewAuthService 创建一个新的 AuthService 实例。
func NewAuthService(userRepo storage.UserRepository, blacklist auth.TokenBlacklist, cfg config.Config) AuthService {
	return &authService{
		userRepo:  userRepo,
		blacklist: blacklist,
		cfg:       cfg,
	}
}

// Login 处理用户登录逻辑：按邮箱查找用户、校验密码、签发 JWT。
// 未知邮箱与密码错误返回同一个错误，避免泄露账号是否存在。
func (s *authService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("查找用户时出错: %w", err)
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}
	if user.Blocked {
		return "", nil, ErrUserBlocked
	}

	token, err := auth.GenerateToken(user, s.cfg.Auth)
	if err != nil {
		return "", nil, fmt.Errorf("生成 Token 失败: %w", err)
	}

	user.PasswordHash = ""
	return token, user, nil
}

// Logout 将当前 Token 的 jti 加入黑名单，使其立即失效。
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("token 缺少 JTI，无法登出")
	}
	expiresAt := time.Now().Add(s.cfg.Auth.JWTExpiry)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.blacklist.Add(ctx, claims.ID, expiresAt); err != nil {
		return fmt.Errorf("登出失败: %w", err)
	}
	return nil
}
