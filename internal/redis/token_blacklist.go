package redis

import (
	"context"
	"fmt"
	"time"

	"kvision-go/internal/config"

	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "jwt_blacklist:"

// TokenBlacklist 基于 Redis 实现 auth.TokenBlacklist。
// 键随令牌的原始过期时间自动过期，无需额外清理任务。
type TokenBlacklist struct {
	client *redis.Client
}

// NewClient 根据配置创建并验证一个 Redis 客户端连接。
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return client, nil
}

// NewTokenBlacklist 创建一个由给定 Redis 客户端支撑的黑名单。
func NewTokenBlacklist(client *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{client: client}
}

// Add 将 jti 写入黑名单，TTL 对齐令牌的剩余有效期。
// 已过期的令牌无需入黑名单。
func (b *TokenBlacklist) Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error {
	ttl := time.Until(originalTokenExpTime)
	if ttl <= 0 {
		return nil
	}
	key := blacklistKeyPrefix + jti
	if err := b.client.Set(ctx, key, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("写入 Token 黑名单失败: %w", err)
	}
	return nil
}

// IsBlacklisted 检查 jti 是否在黑名单中。
func (b *TokenBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	key := blacklistKeyPrefix + jti
	n, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("查询 Token 黑名单失败: %w", err)
	}
	return n > 0, nil
}
