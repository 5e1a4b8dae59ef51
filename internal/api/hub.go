package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"crypto-trading-bot/internal/engine"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait       = 5 * time.Second
	broadcastBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub 把每个决策周期的结果推送给所有 WebSocket 客户端
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	logger    *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, broadcastBuffer),
		logger:    logger,
	}
}

// Run 分发消息直到 ctx 取消，退出时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				_ = c.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					_ = c.Close()
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish 实现 engine.Publisher。队列满时丢弃，不阻塞决策循环
func (h *Hub) Publish(out engine.CycleOutcome) {
	msg, err := json.Marshal(out)
	if err != nil {
		h.logger.Error("Failed to encode cycle outcome", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Telemetry queue full, dropping outcome", zap.String("CycleID", out.ID))
	}
}

// ServeWS 升级连接并注册客户端；客户端断开后注销
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS upgrade failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// 只读取控制帧，出错即视为断开
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				if h.clients[conn] {
					_ = conn.Close()
					delete(h.clients, conn)
				}
				h.mu.Unlock()
				return
			}
		}
	}()
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
