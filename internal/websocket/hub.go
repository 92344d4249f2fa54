package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"legacymigrate/backend/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// ProgressSource 建立连接时读取任务当前进度
type ProgressSource interface {
	Progress(ctx context.Context, migrationID string) (*domain.MigrationProgress, error)
}

// ProgressSourceFunc 把普通函数适配为 ProgressSource
type ProgressSourceFunc func(ctx context.Context, migrationID string) (*domain.MigrationProgress, error)

// Progress 调用 f(ctx, migrationID)
func (f ProgressSourceFunc) Progress(ctx context.Context, migrationID string) (*domain.MigrationProgress, error) {
	return f(ctx, migrationID)
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range allowedOrigins {
				if origin == "*" || origin == requestOrigin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 推送消息类型
type MessageType string

const (
	MessageTypeProgress MessageType = "progress"
	MessageTypeError    MessageType = "error"
)

// Message 推送给客户端的消息
type Message struct {
	Type        MessageType               `json:"type"`
	MigrationID string                    `json:"migrationId"`
	Data        *domain.MigrationProgress `json:"data,omitempty"`
	Error       string                    `json:"error,omitempty"`
	Timestamp   time.Time                 `json:"timestamp"`
}

// Client 一个订阅某个迁移任务的连接
type Client struct {
	ID          string
	MigrationID string
	conn        *websocket.Conn
	send        chan []byte
	hub         *Hub
	once        sync.Once
}

// Hub 按迁移任务管理订阅连接，实现进度账本的 Notifier
//
// 每次账本更新都会推送完整的进度记录；任务进入 failed 或 rolled_back 后推送最后一条消息并关闭该任务的所有连接。
type Hub struct {
	mu             sync.RWMutex
	subscribers    map[string]map[string]*Client // migrationID -> clientID -> Client
	source         ProgressSource
	allowedOrigins []string
	log            *zap.Logger
	closed         bool
}

// NewHub 创建推送 Hub，allowedOrigins 为空时允许所有来源
func NewHub(source ProgressSource, allowedOrigins []string, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subscribers:    make(map[string]map[string]*Client),
		source:         source,
		allowedOrigins: allowedOrigins,
		log:            log,
	}
}

// Publish 推送进度更新，不阻塞调用方；发送缓冲已满的连接跳过这一条
func (h *Hub) Publish(p *domain.MigrationProgress) {
	if p == nil {
		return
	}
	data, err := json.Marshal(&Message{
		Type:        MessageTypeProgress,
		MigrationID: p.MigrationID,
		Data:        p,
		Timestamp:   time.Now(),
	})
	if err != nil {
		h.log.Error("failed to marshal progress", zap.Error(err))
		return
	}

	closing := closesStream(p.Status)

	h.mu.Lock()
	clients := h.subscribers[p.MigrationID]
	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("client_id", client.ID))
		}
		if closing {
			h.detachLocked(client)
		}
	}
	h.mu.Unlock()
}

// Subscribers 某个任务当前的连接数
func (h *Hub) Subscribers(migrationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[migrationID])
}

// Run 阻塞到 ctx 结束，然后关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	h.closed = true
	for _, clients := range h.subscribers {
		for _, client := range clients {
			h.detachLocked(client)
		}
	}
	h.mu.Unlock()
	h.log.Info("websocket hub stopped")
}

// attach 在持有 h.mu 时读取快照并加入订阅
//
// 读取与加入之间不会漏掉 Publish：之前的更新已包含在快照中，之后的更新要等到订阅完成。
func (h *Hub) attach(ctx context.Context, client *Client) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, nil
	}

	current, err := h.source.Progress(ctx, client.MigrationID)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(&Message{
		Type:        MessageTypeProgress,
		MigrationID: client.MigrationID,
		Data:        current,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return false, err
	}

	client.send <- data
	if closesStream(current.Status) {
		client.once.Do(func() { close(client.send) })
		return true, nil
	}
	if h.subscribers[client.MigrationID] == nil {
		h.subscribers[client.MigrationID] = make(map[string]*Client)
	}
	h.subscribers[client.MigrationID][client.ID] = client
	return true, nil
}

// closesStream failed 与 rolled_back 之后不会再有更新；completed 之后还可能回滚
func closesStream(status domain.MigrationStatus) bool {
	return status == domain.MigrationFailed || status == domain.MigrationRolledBack
}

func (h *Hub) detach(client *Client) {
	h.mu.Lock()
	h.detachLocked(client)
	h.mu.Unlock()
}

// detachLocked 移除订阅并关闭发送通道，writePump 随后发送关闭帧
func (h *Hub) detachLocked(client *Client) {
	if clients, ok := h.subscribers[client.MigrationID]; ok {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.subscribers, client.MigrationID)
		}
	}
	client.once.Do(func() { close(client.send) })
}

// HandleProgress GET /api/v1/migrations/:id/ws
func HandleProgress(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		migrationID := c.Param("id")
		if _, err := hub.source.Progress(c.Request.Context(), migrationID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "msg": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:          uuid.NewString(),
			MigrationID: migrationID,
			conn:        conn,
			send:        make(chan []byte, sendBuffer),
			hub:         hub,
		}
		ok, err := hub.attach(c.Request.Context(), client)
		if !ok {
			if err != nil {
				hub.log.Warn("failed to read progress snapshot",
					zap.String("migration_id", migrationID), zap.Error(err))
			}
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()

		hub.log.Debug("progress subscriber attached",
			zap.String("client_id", client.ID),
			zap.String("migration_id", migrationID))
	}
}

// readPump 只处理控制帧，客户端断开后移除订阅
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
