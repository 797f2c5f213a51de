package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemail/backend/internal/auth/jwt"
	"codemail/backend/internal/domain"
	"codemail/backend/internal/monitoring"
)

const testSecret = "test-secret-key-for-development-32-chars-long-at-least"

func setupHub(t *testing.T) (*Hub, *jwt.Manager, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := jwt.NewManager(testSecret, "codemail", time.Hour, nil)
	hub := NewHub([]string{"*"}, manager, monitoring.NewMetrics(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.Handler())
	server := httptest.NewServer(r)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, manager, server
}

func userToken(t *testing.T, manager *jwt.Manager, codeID string) string {
	t.Helper()
	token, err := manager.IssueUserSession(
		&domain.AccessCode{ID: codeID, ExpiresAt: time.Now().Add(time.Hour)},
		&domain.Mailbox{Address: "abc@tempmail.local"},
	)
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, server *httptest.Server, token string) (*gorillaws.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	return gorillaws.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *gorillaws.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestHub(t *testing.T) {
	t.Run("缺少令牌拒绝握手", func(t *testing.T) {
		_, _, server := setupHub(t)
		_, resp, err := dial(t, server, "")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("管理员令牌拒绝握手", func(t *testing.T) {
		_, manager, server := setupHub(t)
		token, _, err := manager.IssueAdminSession(&domain.AdminUser{ID: "admin-1", Username: "admin"})
		require.NoError(t, err)

		_, resp, err := dial(t, server, token)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("新邮件只推送给所属会话", func(t *testing.T) {
		hub, manager, server := setupHub(t)

		conn, _, err := dial(t, server, userToken(t, manager, "code-1"))
		require.NoError(t, err)
		defer conn.Close()
		assert.Equal(t, EventConnected, readEvent(t, conn).Type)

		other, _, err := dial(t, server, userToken(t, manager, "code-2"))
		require.NoError(t, err)
		defer other.Close()
		assert.Equal(t, EventConnected, readEvent(t, other).Type)

		hub.NotifyNewMessage(context.Background(), "code-1", &domain.Message{
			ID:          "msg-1",
			ToAddress:   "abc@tempmail.local",
			FromAddress: "test@example.com",
			Subject:     "Test",
			Body:        "Hello",
			ReceivedAt:  time.Now().UTC(),
		})

		event := readEvent(t, conn)
		assert.Equal(t, EventNewMessage, event.Type)
		var data NewMessageData
		require.NoError(t, json.Unmarshal(event.Data, &data))
		assert.Equal(t, "msg-1", data.ID)
		assert.Equal(t, "Hello", data.Preview)

		require.NoError(t, other.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		var unexpected Event
		assert.Error(t, other.ReadJSON(&unexpected))
	})

	t.Run("客户端 ping", func(t *testing.T) {
		_, manager, server := setupHub(t)
		conn, _, err := dial(t, server, userToken(t, manager, "code-1"))
		require.NoError(t, err)
		defer conn.Close()
		readEvent(t, conn)

		require.NoError(t, conn.WriteJSON(Event{Type: EventPing}))
		assert.Equal(t, EventPong, readEvent(t, conn).Type)
	})
}

func TestHubShutdown(t *testing.T) {
	t.Run("关闭时客户端仍在 ping", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		manager := jwt.NewManager(testSecret, "codemail", time.Hour, nil)
		hub := NewHub([]string{"*"}, manager, monitoring.NewMetrics(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		go hub.Run(ctx)

		r := gin.New()
		r.GET("/ws", hub.Handler())
		server := httptest.NewServer(r)
		defer server.Close()

		conn, _, err := dial(t, server, userToken(t, manager, "code-1"))
		require.NoError(t, err)
		defer conn.Close()
		assert.Equal(t, EventConnected, readEvent(t, conn).Type)

		stop := make(chan struct{})
		pinging := make(chan struct{})
		go func() {
			defer close(pinging)
			for {
				select {
				case <-stop:
					return
				default:
				}
				if err := conn.WriteJSON(Event{Type: EventPing}); err != nil {
					return
				}
			}
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case <-hub.done:
		case <-time.After(5 * time.Second):
			t.Fatal("hub did not stop")
		}

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				var netErr net.Error
				assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "连接应被服务端关闭")
				break
			}
		}

		close(stop)
		<-pinging
	})
}
