package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func testBlacklist(t *testing.T) (*TokenBlacklist, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTokenBlacklist(client), mr
}

func TestBlacklistAddAndCheck(t *testing.T) {
	bl, _ := testBlacklist(t)
	ctx := context.Background()

	ok, err := bl.IsBlacklisted(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsBlacklisted() error = %v", err)
	}
	if ok {
		t.Fatalf("未加入的 jti 不应在黑名单中")
	}

	if err := bl.Add(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	ok, err = bl.IsBlacklisted(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsBlacklisted() error = %v", err)
	}
	if !ok {
		t.Fatalf("已加入的 jti 应在黑名单中")
	}
}

func TestBlacklistExpiry(t *testing.T) {
	bl, mr := testBlacklist(t)
	ctx := context.Background()

	if err := bl.Add(ctx, "jti-2", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// 快进超过令牌的剩余有效期，键应自动过期
	mr.FastForward(2 * time.Minute)

	ok, err := bl.IsBlacklisted(ctx, "jti-2")
	if err != nil {
		t.Fatalf("IsBlacklisted() error = %v", err)
	}
	if ok {
		t.Fatalf("过期后的 jti 不应仍在黑名单中")
	}
}

func TestBlacklistSkipsExpiredToken(t *testing.T) {
	bl, mr := testBlacklist(t)
	ctx := context.Background()

	// 已过期的令牌无需入黑名单
	if err := bl.Add(ctx, "jti-3", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if mr.Exists(blacklistKeyPrefix + "jti-3") {
		t.Fatalf("已过期令牌不应写入黑名单")
	}
}
