package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codemail/backend/internal/auth/jwt"
	"codemail/backend/internal/domain"
	"codemail/backend/internal/logger"
)

// sessionKey gin 上下文中保存会话的键
const sessionKey = "session"

// TokenVerifier 校验会话令牌
type TokenVerifier interface {
	Verify(token string) (*domain.Session, error)
}

// SessionAuth 会话令牌认证中间件
type SessionAuth struct {
	verifier TokenVerifier
	log      *zap.Logger
}

// NewSessionAuth 创建会话认证中间件
func NewSessionAuth(verifier TokenVerifier, log *zap.Logger) *SessionAuth {
	return &SessionAuth{
		verifier: verifier,
		log:      logger.OrNop(log),
	}
}

// RequireRole 要求持有指定角色的有效令牌
func (sa *SessionAuth) RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		session, err := sa.verifier.Verify(token)
		if err != nil {
			sa.log.Debug("rejected session token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			abortWithError(c, http.StatusUnauthorized, errorMessage(err, "Invalid token"))
			return
		}

		if err := jwt.RequireRole(session, role); err != nil {
			abortWithError(c, http.StatusForbidden, errorMessage(err, "Forbidden"))
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

// GetSession 从上下文读取已认证的会话
func GetSession(c *gin.Context) (*domain.Session, bool) {
	value, exists := c.Get(sessionKey)
	if !exists {
		return nil, false
	}
	session, ok := value.(*domain.Session)
	return session, ok
}

// ExtractToken 从 Authorization 头提取 Bearer 令牌
func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func errorMessage(err error, fallback string) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return fallback
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
