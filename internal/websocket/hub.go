package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codemail/backend/internal/domain"
	"codemail/backend/internal/logger"
	"codemail/backend/internal/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// TokenVerifier 校验会话令牌
type TokenVerifier interface {
	Verify(token string) (*domain.Session, error)
}

// EventType 定义推送事件类型
type EventType string

const (
	EventConnected  EventType = "connected"
	EventNewMessage EventType = "new_message"
	EventPing       EventType = "ping"
	EventPong       EventType = "pong"
	EventError      EventType = "error"
)

// Event 推送给客户端的消息
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessageData 新邮件通知数据
type NewMessageData struct {
	ID         string    `json:"id"`
	ToEmail    string    `json:"to_email"`
	FromEmail  string    `json:"from_email"`
	Subject    string    `json:"subject"`
	Preview    string    `json:"preview,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Client 一个已认证的 WebSocket 连接，归属于一个会话
type Client struct {
	ID        string
	SessionID string
	ExpiresAt time.Time

	conn *websocket.Conn
	hub  *Hub

	// send 从不关闭，关闭连接通过 closed 通知
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

type sessionEvent struct {
	sessionID string
	data      []byte
}

// Hub 按会话管理 WebSocket 连接并推送新邮件
type Hub struct {
	clients  map[string]*Client            // clientID -> Client
	sessions map[string]map[string]*Client // sessionID -> clientID -> Client
	mu       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan sessionEvent
	done       chan struct{}

	verifier       TokenVerifier
	allowedOrigins []string
	metrics        *monitoring.Metrics
	log            *zap.Logger
}

// NewHub 创建 WebSocket Hub
func NewHub(allowedOrigins []string, verifier TokenVerifier, metrics *monitoring.Metrics, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return &Hub{
		clients:        make(map[string]*Client),
		sessions:       make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan sessionEvent, 256),
		done:           make(chan struct{}),
		verifier:       verifier,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
		log:            logger.OrNop(log),
	}
}

// Run 启动 Hub，ctx 取消时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if h.sessions[client.SessionID] == nil {
				h.sessions[client.SessionID] = make(map[string]*Client)
			}
			h.sessions[client.SessionID][client.ID] = client
			h.mu.Unlock()

			h.metrics.WebSocketConnected(1)
			client.sendEvent(&Event{Type: EventConnected, Timestamp: time.Now().UTC()})
			h.log.Debug("client registered",
				zap.String("id", client.ID),
				zap.String("session_id", client.SessionID),
			)

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.broadcast:
			h.broadcastToSession(event.sessionID, event.data)
		}
	}
}

// NotifyNewMessage 通知会话有新邮件。Hub 未运行或队列已满时丢弃。
func (h *Hub) NotifyNewMessage(ctx context.Context, sessionID string, message *domain.Message) {
	preview := message.Body
	if len(preview) > 100 {
		preview = preview[:100]
	}

	data, err := json.Marshal(NewMessageData{
		ID:         message.ID,
		ToEmail:    message.ToAddress,
		FromEmail:  message.FromAddress,
		Subject:    message.Subject,
		Preview:    preview,
		ReceivedAt: message.ReceivedAt,
	})
	if err != nil {
		h.log.Error("failed to marshal new message data", zap.Error(err))
		return
	}

	payload, err := json.Marshal(&Event{
		Type:      EventNewMessage,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.log.Error("failed to marshal event", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- sessionEvent{sessionID: sessionID, data: payload}:
	case <-ctx.Done():
	case <-h.done:
	default:
		h.log.Warn("websocket broadcast queue full, dropping event", zap.String("session_id", sessionID))
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if clients, exists := h.sessions[client.SessionID]; exists {
		delete(clients, client.ID)
		if len(clients) == 0 {
			delete(h.sessions, client.SessionID)
		}
	}
	delete(h.clients, client.ID)
	client.close()
	h.metrics.WebSocketConnected(-1)
	h.log.Debug("client unregistered", zap.String("id", client.ID))
}

func (h *Hub) broadcastToSession(sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.sessions[sessionID] {
		select {
		case <-client.closed:
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("client_id", client.ID))
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.close()
		h.metrics.WebSocketConnected(-1)
	}
	h.clients = make(map[string]*Client)
	h.sessions = make(map[string]map[string]*Client)
}

// authenticate 从查询参数或 Authorization 头读取用户令牌
func (h *Hub) authenticate(c *gin.Context) (*domain.Session, error) {
	token := c.Query("token")
	if token == "" {
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = strings.TrimSpace(parts[1])
		}
	}
	if token == "" {
		return nil, errors.New("missing authentication token")
	}

	session, err := h.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	if session.Role != domain.RoleUser {
		return nil, errors.New("user session required")
	}
	return session, nil
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range h.allowedOrigins {
				if origin == "*" || origin == requestOrigin {
					return true
				}
			}
			return false
		},
	}
}

// Handler 处理 WebSocket 握手
func (h *Hub) Handler() gin.HandlerFunc {
	upgrader := h.upgrader()

	return func(c *gin.Context) {
		session, err := h.authenticate(c)
		if err != nil {
			h.log.Debug("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
			)
			return
		}

		client := &Client{
			ID:        uuid.NewString(),
			SessionID: session.Subject,
			ExpiresAt: session.ExpiresAt,
			conn:      conn,
			hub:       h,
			send:      make(chan []byte, sendBuffer),
			closed:    make(chan struct{}),
		}

		select {
		case h.register <- client:
		case <-h.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var event Event
		if err := c.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		switch event.Type {
		case EventPing:
			c.sendEvent(&Event{Type: EventPong, Timestamp: time.Now().UTC()})
		case EventPong:
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		default:
			c.sendEvent(&Event{Type: EventError, Error: "unsupported event type", Timestamp: time.Now().UTC()})
		}
	}
}

// writePump 写出消息。会话过期时主动关闭连接。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	expiry := time.NewTimer(time.Until(c.ExpiresAt))
	defer func() {
		ticker.Stop()
		expiry.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-expiry.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session expired"))
			return
		}
	}
}

// sendEvent 在 Hub 协程或读协程中调用，通道已满时丢弃
func (c *Client) sendEvent(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case <-c.closed:
	case c.send <- data:
	default:
	}
}

// close 可重复调用
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
