package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	_ "codemail/backend/docs"
	"codemail/backend/internal/auth"
	"codemail/backend/internal/auth/jwt"
	"codemail/backend/internal/clock"
	"codemail/backend/internal/config"
	"codemail/backend/internal/domain"
	"codemail/backend/internal/health"
	"codemail/backend/internal/monitoring"
	"codemail/backend/internal/service"
	"codemail/backend/internal/storage/memory"
)

const (
	testSecret    = "test-secret-key-for-development-32-chars-long-at-least"
	adminUsername = "admin@tempmail.local"
	adminPassword = "admin123"
)

type testServer struct {
	router *gin.Engine
	clock  *clock.Mock
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Code:    config.CodeConfig{Length: 8, DefaultExpiryHours: 12, MaxExpiryHours: 720},
		Mailbox: config.MailboxConfig{Domain: "tempmail.local", LocalPartLength: 10},
		Message: config.MessageConfig{StrictOwnership: true, MaxBodyBytes: 1 << 20},
		CORS:    config.CORSConfig{AllowedOrigins: []string{"*"}},
	}

	store := memory.NewStore()
	clk := clock.NewMock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)
	metrics := monitoring.NewMetrics()
	deps := service.Deps{Clock: clk, Metrics: metrics, Logger: log}

	tokens := jwt.NewManager(testSecret, "codemail", time.Hour, clk)
	authService := auth.NewService(store, log, auth.WithBcryptCost(4), auth.WithClock(clk))
	_, err := authService.EnsureAdmin(context.Background(), adminUsername, adminPassword)
	require.NoError(t, err)

	codes := service.NewCodeService(store, cfg.Code, deps)
	mailboxes := service.NewMailboxService(store, cfg.Mailbox, deps)

	router := NewRouter(RouterDependencies{
		Config:         cfg,
		CodeService:    codes,
		SessionService: service.NewSessionService(codes, mailboxes, tokens, deps),
		MailboxService: mailboxes,
		MessageService: service.NewMessageService(store, cfg.Message, deps),
		AdminService:   service.NewAdminService(authService, tokens, store, deps),
		TokenVerifier:  tokens,
		Health:         health.NewChecker(store, log),
		Metrics:        metrics,
		Logger:         log,
	})

	return &testServer{router: router, clock: clk, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/admin/login", "", gin.H{"username": adminUsername, "password": adminPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[loginResponse](t, rec)
	assert.Equal(t, adminUsername, resp.Username)
	return resp.Token
}

func TestEndToEnd(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)

	// 固定访问码以便按字面值兑换
	require.NoError(t, s.store.CreateAccessCode(context.Background(), &domain.AccessCode{
		ID:        "code-fixed",
		Code:      "ABC12345",
		CreatedAt: s.clock.Now(),
		ExpiresAt: s.clock.Now().Add(12 * time.Hour),
	}))

	var userToken, address string

	t.Run("小写兑换访问码", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/verify-code", "", gin.H{"code": "abc12345"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[service.RedeemResult](t, rec)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, s.clock.Now().Add(12*time.Hour), resp.ExpiresAt.UTC())
		assert.Regexp(t, `@tempmail\.local$`, resp.EmailAddress)
		userToken, address = resp.Token, resp.EmailAddress
	})

	t.Run("重复兑换返回 400", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/verify-code", "", gin.H{"code": "ABC12345"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"This code has already been used"}`, rec.Body.String())
	})

	t.Run("未知访问码返回 400", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/verify-code", "", gin.H{"code": "UNKNOWN1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid access code"}`, rec.Body.String())
	})

	var messageID string

	t.Run("模拟投递", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/mock-email", "", gin.H{
			"to_email":   address,
			"from_email": "test@example.com",
			"subject":    "Test",
			"body":       "Hello",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[mockEmailResponse](t, rec)
		assert.NotEmpty(t, resp.ID)
		messageID = resp.ID
	})

	t.Run("投递到未知地址返回 404", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/mock-email", "", gin.H{"to_email": "nobody@tempmail.local", "body": "x"})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = s.do(t, http.MethodPost, "/api/mock-email", "", gin.H{"to_email": "nobody", "body": "x"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"Email address not found"}`, rec.Body.String())
	})

	t.Run("邮件列表", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/messages", userToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		messages := decode[[]domain.Message](t, rec)
		require.Len(t, messages, 1)
		assert.Equal(t, "Test", messages[0].Subject)
		assert.False(t, messages[0].IsRead)
	})

	t.Run("读取邮件标记已读", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rec := s.do(t, http.MethodGet, "/messages/"+messageID, userToken, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, decode[domain.Message](t, rec).IsRead)
		}
	})

	t.Run("生成额外邮箱", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/email/generate", userToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		mailbox := decode[domain.Mailbox](t, rec)
		assert.Equal(t, s.clock.Now().Add(12*time.Hour), mailbox.ExpiresAt.UTC())

		rec = s.do(t, http.MethodGet, "/api/emails", userToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]domain.Mailbox](t, rec), 2)
	})

	t.Run("删除邮件", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/api/messages/"+messageID, userToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"deleted"}`, rec.Body.String())

		rec = s.do(t, http.MethodGet, "/api/messages/"+messageID, userToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("统计", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/admin/stats", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		stats := decode[domain.Statistics](t, rec)
		assert.Equal(t, int64(1), stats.TotalCodes)
		assert.Equal(t, int64(1), stats.UsedCodes)
		assert.Equal(t, int64(2), stats.TotalMailboxes)
		assert.Equal(t, int64(0), stats.TotalMessages)
	})

	t.Run("会话过期后拒绝访问", func(t *testing.T) {
		s.clock.Advance(12*time.Hour + time.Second)
		rec := s.do(t, http.MethodGet, "/api/messages", userToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = s.do(t, http.MethodPost, "/api/mock-email", "", gin.H{"to_email": address, "body": "late"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Email address has expired"}`, rec.Body.String())
	})
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)

	t.Run("登录失败", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/admin/login", "", gin.H{"username": adminUsername, "password": "wrong-password"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid credentials"}`, rec.Body.String())
	})

	t.Run("缺少参数", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/admin/login", "", gin.H{"username": adminUsername})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var code domain.AccessCode

	t.Run("签发访问码使用默认有效期", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/admin/generate-code", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		code = decode[domain.AccessCode](t, rec)
		assert.Regexp(t, `^[A-Z0-9]{8}$`, code.Code)
		assert.Equal(t, adminUsername, code.CreatedBy)
		assert.Equal(t, 12*time.Hour, code.ExpiresAt.Sub(code.CreatedAt))
	})

	t.Run("签发访问码指定有效期", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/admin/generate-code", admin, gin.H{"expiry_hours": 2})
		require.Equal(t, http.StatusOK, rec.Code)
		issued := decode[domain.AccessCode](t, rec)
		assert.Equal(t, 2*time.Hour, issued.ExpiresAt.Sub(issued.CreatedAt))
	})

	t.Run("有效期越界", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/admin/generate-code", admin, gin.H{"expiry_hours": 10000})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("访问码列表最新在前", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/admin/codes", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		codes := decode[[]domain.AccessCode](t, rec)
		assert.Len(t, codes, 2)
	})

	t.Run("用户令牌访问管理接口返回 403", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/verify-code", "", gin.H{"code": code.Code})
		require.Equal(t, http.StatusOK, rec.Code)
		userToken := decode[service.RedeemResult](t, rec).Token

		rec = s.do(t, http.MethodGet, "/api/admin/stats", userToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("管理员令牌访问用户接口返回 403", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/messages", admin, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("未登录返回 401", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/admin/codes", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("吊销访问码", func(t *testing.T) {
		rec := s.do(t, http.MethodDelete, "/api/admin/codes/"+code.ID, admin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"revoked"}`, rec.Body.String())

		rec = s.do(t, http.MethodDelete, "/api/admin/codes/"+code.ID, admin, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"Code not found"}`, rec.Body.String())
	})
}

func TestOperationalRoutes(t *testing.T) {
	s := newTestServer(t)

	t.Run("API 信息", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"TempMail SaaS API","version":"`+Version+`"}`, rec.Body.String())
	})

	t.Run("健康检查", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

		rec = s.do(t, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("指标", func(t *testing.T) {
		s.do(t, http.MethodGet, "/api/", "", nil)
		rec := s.do(t, http.MethodGet, "/metrics", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "http_requests_total")
	})

	t.Run("Swagger 文档", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/swagger/doc.json", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "/api/verify-code")
		assert.Contains(t, rec.Body.String(), "BearerAuth")
	})
}
