package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"gorm.io/gorm"

	"kvision-go/internal/auth"
	"kvision-go/internal/config"
	"kvision-go/internal/models"
	"kvision-go/internal/storage"
)

// seed 账号：首次部署时用于初始化管理员与演示账号。
type seedAccount struct {
	ID        string
	Name      string
	Email     string
	Password  string
	Role      models.UserRole
	ClassName string
}

var seedAccounts = []seedAccount{
	{ID: "admin-1", Name: "Principal Zhang", Email: "admin@kvision.edu", Password: "admin123", Role: models.RoleAdmin},
	{ID: "teacher-1", Name: "Ms. Li", Email: "li@kvision.edu", Password: "teach123", Role: models.RoleTeacher, ClassName: "Grade 3-A"},
	{ID: "stu-1", Name: "Wang Xiaoming", Email: "xiaoming@kvision.edu", Password: "study123", Role: models.RoleStudent, ClassName: "Grade 3-A"},
	{ID: "stu-2", Name: "Chen Mei", Email: "mei@kvision.edu", Password: "study123", Role: models.RoleStudent, ClassName: "Grade 3-A"},
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("使用方法:")
		fmt.Println("  ./admin seed            - 初始化管理员与演示账号（已存在则跳过）")
		fmt.Println("  ./admin list-users      - 列出全部账号")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}

	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("数据库表迁移失败: %v", err)
	}

	userRepo := storage.NewGormUserRepository(db)
	ctx := context.Background()

	switch os.Args[1] {
	case "seed":
		seed(ctx, userRepo)
	case "list-users":
		listUsers(ctx, userRepo)
	default:
		log.Fatalf("未知命令: %s", os.Args[1])
	}
}

func seed(ctx context.Context, userRepo storage.UserRepository) {
	for _, account := range seedAccounts {
		_, err := userRepo.GetByID(ctx, account.ID)
		if err == nil {
			log.Printf("账号 %s 已存在，跳过。", account.ID)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Fatalf("检查账号 %s 失败: %v", account.ID, err)
		}

		hash, err := auth.HashPassword(account.Password)
		if err != nil {
			log.Fatalf("为账号 %s 生成密码哈希失败: %v", account.ID, err)
		}
		user := &models.User{
			ID:           account.ID,
			Name:         account.Name,
			Email:        account.Email,
			PasswordHash: hash,
			Role:         account.Role,
			ClassName:    account.ClassName,
		}
		if err := userRepo.Create(ctx, user); err != nil {
			log.Fatalf("创建账号 %s 失败: %v", account.ID, err)
		}
		log.Printf("已创建账号 %s (%s, %s)。", account.ID, account.Name, account.Role)
	}
	log.Println("初始化完成。")
}

func listUsers(ctx context.Context, userRepo storage.UserRepository) {
	users, err := userRepo.ListAll(ctx)
	if err != nil {
		log.Fatalf("获取账号列表失败: %v", err)
	}
	for _, u := range users {
		blocked := ""
		if u.Blocked {
			blocked = " [blocked]"
		}
		fmt.Printf("%-12s %-20s %-28s %-8s %s%s\n", u.ID, u.Name, u.Email, u.Role, u.ClassName, blocked)
	}
}
