package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kvision-go/internal/config"
	"kvision-go/internal/handlers/apiserver"
	appKafka "kvision-go/internal/kafka"
	kafkahandlers "kvision-go/internal/kafka/handlers"
	"kvision-go/internal/messaging"
	"kvision-go/internal/middleware"
	"kvision-go/internal/models"
	"kvision-go/internal/msgtypes"
	appRedis "kvision-go/internal/redis"
	"kvision-go/internal/services"
	"kvision-go/internal/storage"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Println("API 服务器配置加载成功。")

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("API 服务器数据库连接成功。")

	if err := storage.AutoMigrateTables(db); err != nil {
		log.Printf("警告：数据库表迁移可能失败: %v", err)
	}

	// 3. 初始化 Redis 与 Token 黑名单
	redisClient, err := appRedis.NewClient(context.Background(), cfg.Redis)
	if err != nil {
		log.Fatalf("无法连接到 Redis: %v", err)
	}
	tokenBlacklist := appRedis.NewTokenBlacklist(redisClient)
	log.Println("成功连接到 Redis。")

	// 4. 初始化 Repositories
	userRepo := storage.NewGormUserRepository(db)
	conversationStore := storage.NewGormConversationStore(db)
	notificationRepo := storage.NewGormNotificationRepository(db)
	activityRepo := storage.NewGormActivityRepository(db)

	// 5. 初始化 Kafka 生产者
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 生产者: %v", err)
	}
	defer kfkProducer.Close()
	log.Println("Kafka 生产者初始化成功。")

	// 6. 初始化附件存储服务
	var storageService msgtypes.StorageService
	storageBaseURL := "/uploads"
	switch cfg.Storage.Type {
	case "local":
		storageService, err = storage.NewLocalStorageService(cfg.Storage, storageBaseURL)
		if err != nil {
			log.Fatalf("无法初始化本地存储服务: %v", err)
		}
		log.Println("本地存储服务初始化成功。")
	case "s3":
		storageService, err = storage.NewMinioStorageService(cfg.Storage.S3)
		if err != nil {
			log.Fatalf("无法初始化 S3 存储服务: %v", err)
		}
		log.Println("S3 存储服务初始化成功。")
	default:
		log.Fatalf("不支持的存储类型: %s", cfg.Storage.Type)
	}

	// 7. 初始化 Services 与消息核心
	userService := services.NewUserService(userRepo)
	authService := services.NewAuthService(userRepo, tokenBlacklist, cfg)
	notificationService := services.NewNotificationService(notificationRepo)
	activityService := services.NewActivityService(kfkProducer, activityRepo, cfg.Kafka)

	synchronizer := messaging.NewSynchronizer(conversationStore, cfg.Messaging.PollInterval)
	messagingService := messaging.NewService(synchronizer, conversationStore, userService, cfg.Messaging.MaxAttachmentBytes)

	syncCtx, cancelSync := context.WithCancel(context.Background())
	defer cancelSync()
	go synchronizer.Start(syncCtx)
	log.Printf("会话同步器已启动，轮询间隔 %s。", cfg.Messaging.PollInterval)

	// 8. 初始化并启动 Kafka 消费者（审计事件落库）
	activityConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 消费者: %v", err)
	}
	defer activityConsumer.Close()

	activityConsumerHandler := kafkahandlers.NewActivityConsumerHandler(activityRepo)
	go func() {
		topics := []string{cfg.Kafka.ActivityTopic}
		log.Printf("Kafka 审计消费者启动，监听 topic: %s, GroupID: %s", cfg.Kafka.ActivityTopic, cfg.Kafka.ConsumerGroup)
		err := activityConsumer.Consume(syncCtx, topics, cfg.Kafka.ConsumerGroup, activityConsumerHandler.HandleMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Kafka 审计消费者错误: %v", err)
		}
	}()

	// 9. 初始化 Handlers
	authHandler := apiserver.NewAuthHandler(authService)
	userHandler := apiserver.NewUserHandler(userService, activityService)
	conversationHandler := apiserver.NewConversationHandler(messagingService, activityService)
	uploadHandler := apiserver.NewUploadHandler(storageService, cfg.Messaging)
	notificationHandler := apiserver.NewNotificationHandler(notificationService, activityService)
	activityHandler := apiserver.NewActivityHandler(activityService)
	streamHandler := apiserver.NewStreamHandler(messagingService, synchronizer, tokenBlacklist, cfg)

	// 10. 设置 HTTP 路由
	r := mux.NewRouter()

	// 认证路由（无需登录）
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	// WebSocket 推送流（token 经查询参数认证）
	r.HandleFunc("/ws", streamHandler.ServeWS)

	authMW := middleware.AuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklist)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	// 需要认证的 API 子路由
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	apiRouter.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)

	// 用户路由
	apiRouter.HandleFunc("/users/me", userHandler.GetMyProfile).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users", userHandler.ListUsers).Methods(http.MethodGet)
	apiRouter.HandleFunc("/users/{userID}", userHandler.GetUser).Methods(http.MethodGet)

	// 会话与消息路由
	apiRouter.HandleFunc("/conversations", conversationHandler.ListConversations).Methods(http.MethodGet)
	apiRouter.HandleFunc("/conversations/messages", conversationHandler.SendMessage).Methods(http.MethodPost)
	apiRouter.HandleFunc("/conversations/{conversationID}/read", conversationHandler.MarkRead).Methods(http.MethodPost)
	apiRouter.HandleFunc("/conversations/{conversationID}/messages/{messageID}", conversationHandler.DeleteMessage).Methods(http.MethodDelete)

	// 附件上传
	apiRouter.HandleFunc("/upload", uploadHandler.UploadFile).Methods(http.MethodPost)

	// 通知路由
	apiRouter.HandleFunc("/notifications", notificationHandler.ListNotifications).Methods(http.MethodGet)
	apiRouter.HandleFunc("/notifications/{notificationID}/read", notificationHandler.MarkNotificationRead).Methods(http.MethodPost)

	// 管理端路由（需要管理员角色）
	adminRouter := apiRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(adminOnly)
	adminRouter.HandleFunc("/users", userHandler.CreateUser).Methods(http.MethodPost)
	adminRouter.HandleFunc("/users/{userID}/blocked", userHandler.SetBlocked).Methods(http.MethodPut)
	adminRouter.HandleFunc("/users/{userID}", userHandler.DeleteUser).Methods(http.MethodDelete)
	adminRouter.HandleFunc("/broadcast", conversationHandler.Broadcast).Methods(http.MethodPost)
	adminRouter.HandleFunc("/notifications", notificationHandler.PublishNotification).Methods(http.MethodPost)
	adminRouter.HandleFunc("/notifications/{notificationID}", notificationHandler.DeleteNotification).Methods(http.MethodDelete)
	adminRouter.HandleFunc("/activities", activityHandler.ListActivities).Methods(http.MethodGet)

	// 本地存储时提供上传文件的静态访问
	if cfg.Storage.Type == "local" {
		staticPath := strings.TrimSuffix(storageBaseURL, "/") + "/"
		localDir := http.Dir(cfg.Storage.LocalPath)
		r.PathPrefix(staticPath).Handler(http.StripPrefix(staticPath, http.FileServer(localDir)))
		log.Printf("提供静态文件服务于 %s -> %s", staticPath, cfg.Storage.LocalPath)
	}

	// 11. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	corsHandler := handlers.CORS(corsOptions...)(r)

	srv := &http.Server{
		Addr:           serverAddr,
		Handler:        corsHandler,
		ReadTimeout:    cfg.APIServer.ReadTimeout,
		WriteTimeout:   cfg.APIServer.WriteTimeout,
		IdleTimeout:    time.Second * 60,
		MaxHeaderBytes: cfg.APIServer.MaxHeaderBytes,
	}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到退出信号，正在关闭 API 服务器...")

	cancelSync()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("API 服务器关闭失败: %v", err)
	}
	log.Println("API 服务器已退出。")
}
