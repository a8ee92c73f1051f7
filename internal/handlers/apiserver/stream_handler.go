package apiserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"kvision-go/internal/auth"
	"kvision-go/internal/config"
	"kvision-go/internal/messaging"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StreamHandler 通过 WebSocket 向客户端推送会话视图。
// 客户端连接后立即收到一次完整快照，之后每当同步器观察到
// 存储快照变化时再推送一次。推送的永远是全量视图，客户端整体替换。
type StreamHandler struct {
	messaging *messaging.Service
	sync      *messaging.Synchronizer
	blacklist auth.TokenBlacklist
	cfg       config.Config
	upgrader  websocket.Upgrader
}

// NewStreamHandler 创建一个新的 StreamHandler 实例。
func NewStreamHandler(messagingService *messaging.Service, sync *messaging.Synchronizer, blacklist auth.TokenBlacklist, cfg config.Config) *StreamHandler {
	return &StreamHandler{
		messaging: messagingService,
		sync:      sync,
		blacklist: blacklist,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 跨域检查交给外层 CORS 配置
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS 处理传入的 WebSocket 请求。
// WebSocket 无法携带 Authorization 头，认证通过 token 查询参数完成。
func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "缺少认证令牌", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(r.Context(), token, h.cfg.Auth.JWTSecretKey, h.blacklist)
	if err != nil {
		log.Printf("WebSocket 连接尝试失败：令牌无效: %v", err)
		http.Error(w, "令牌无效", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("升级 WebSocket 连接失败: %v", err)
		return
	}

	log.Printf("用户 %s (%s) 已连接会话推送流", claims.Name, claims.UserID)
	go h.stream(conn, claims)
}

// stream 负责单个连接的生命周期：订阅同步器、推送视图、心跳保活。
func (h *StreamHandler) stream(conn *websocket.Conn, claims *auth.Claims) {
	updates := h.sync.Subscribe()
	defer func() {
		h.sync.Unsubscribe(updates)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// 读取泵只用于响应 pong 与感知断连，丢弃一切入站数据
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// 连接建立后先推一次当前视图
	if !h.push(conn, claims) {
		return
	}

	for {
		select {
		case <-done:
			log.Printf("用户 %s 断开会话推送流", claims.UserID)
			return
		case <-updates:
			if !h.push(conn, claims) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push 向连接写出当前用户视角的全量会话视图。返回 false 表示连接应当关闭。
func (h *StreamHandler) push(conn *websocket.Conn, claims *auth.Claims) bool {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	views, err := h.messaging.ConversationsFor(ctx, claims.UserID, claims.Role)
	if err != nil {
		log.Printf("为用户 %s 构建会话视图失败: %v", claims.UserID, err)
		return true
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(views); err != nil {
		log.Printf("向用户 %s 推送会话视图失败: %v", claims.UserID, err)
		return false
	}
	return true
}
