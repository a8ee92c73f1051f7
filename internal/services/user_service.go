package services

import (
	"context"
	"errors"
	"fmt"

	"kvision-go/internal/auth"
	"kvision-go/internal/messaging"
	"kvision-go/internal/models"
	"kvision-go/internal/msgtypes"
	"kvision-go/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrUserAlreadyExists = errors.New("该邮箱已被注册")

// UserService 定义了用户目录服务的接口。
// 它同时实现 messaging.Directory，为消息核心提供可聊天对象列表。
type UserService interface {
	messaging.Directory

	CreateUser(ctx context.Context, name, email, password string, role models.UserRole, className string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
	SetBlocked(ctx context.Context, id string, blocked bool) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// userService 是 UserService 的实现。
type userService struct {
	userRepo storage.UserRepository
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo storage.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

// CreateUser 创建一个新账号。ID 由服务端生成，密码以 bcrypt 哈希存储。
func (s *userService) CreateUser(ctx context.Context, name, email, password string, role models.UserRole, className string) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("无效的用户角色: %q", role)
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("检查邮箱时出错: %w", err)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %w", err)
	}

	newUser := &models.User{
		ID:           fmt.Sprintf("%s-%s", role, uuid.NewString()[:8]),
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
		ClassName:    className,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	newUser.PasswordHash = ""
	return newUser, nil
}

// GetUser 获取单个用户资料。
func (s *userService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("获取用户 %s 失败: %w", id, err)
	}
	user.PasswordHash = ""
	return user, nil
}

// ListUsers 返回全部用户。
func (s *userService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取用户列表失败: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// ListUsersByRole 返回指定角色的全部用户。
func (s *userService) ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	users, err := s.userRepo.ListByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("按角色获取用户列表失败: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// SetBlocked 更新账号的禁用状态。
func (s *userService) SetBlocked(ctx context.Context, id string, blocked bool) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("获取用户 %s 失败: %w", id, err)
	}
	if user.Blocked == blocked {
		user.PasswordHash = ""
		return user, nil
	}
	user.Blocked = blocked
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("更新用户 %s 失败: %w", id, err)
	}
	user.PasswordHash = ""
	return user, nil
}

// DeleteUser 删除一个账号。
func (s *userService) DeleteUser(ctx context.Context, id string) error {
	if err := s.userRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("删除用户 %s 失败: %w", id, err)
	}
	return nil
}

// ListEntries 返回消息目录条目：所有真实账号的 ID、姓名与角色。
// 虚拟管理员收件箱不落库，由消息核心按需合成，这里永远不会返回它。
func (s *userService) ListEntries(ctx context.Context) ([]msgtypes.DirectoryEntry, error) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取消息目录失败: %w", err)
	}
	entries := make([]msgtypes.DirectoryEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, msgtypes.DirectoryEntry{
			ID:   u.ID,
			Name: u.Name,
			Role: string(u.Role),
		})
	}
	return entries, nil
}
