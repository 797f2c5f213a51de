package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"codemail/backend/internal/clock"
	"codemail/backend/internal/domain"
)

var (
	// ErrInvalidToken 无效的令牌
	ErrInvalidToken = domain.NewError(domain.ErrInvalid, "Invalid token")
	// ErrExpiredToken 令牌已过期
	ErrExpiredToken = domain.NewError(domain.ErrExpired, "Session expired")
)

// Claims JWT 自定义声明
type Claims struct {
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Manager 会话令牌签发与校验（HS256）
//
// 用户令牌的 exp 直接取自访问码的 expires_at，管理员令牌的 exp 为签发时间加 adminExpiry。
type Manager struct {
	secret      []byte
	issuer      string
	adminExpiry time.Duration
	clock       clock.Clock
}

// NewManager 创建 JWT 管理器
func NewManager(secret, issuer string, adminExpiry time.Duration, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{
		secret:      []byte(secret),
		issuer:      issuer,
		adminExpiry: adminExpiry,
		clock:       clk,
	}
}

// IssueUserSession 为兑换成功的访问码签发用户令牌
func (m *Manager) IssueUserSession(code *domain.AccessCode, mailbox *domain.Mailbox) (string, error) {
	claims := Claims{
		Role:  string(domain.RoleUser),
		Email: mailbox.Address,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   code.ID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(code.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(m.clock.Now()),
		},
	}
	return m.sign(claims)
}

// IssueAdminSession 签发管理员令牌，返回令牌及其过期时间
func (m *Manager) IssueAdminSession(admin *domain.AdminUser) (string, time.Time, error) {
	now := m.clock.Now()
	expiresAt := clock.Seconds(now.Add(m.adminExpiry))

	claims := Claims{
		Role:     string(domain.RoleAdmin),
		Username: admin.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   admin.ID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := m.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (m *Manager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify 校验令牌签名与有效期并还原会话
func (m *Manager) Verify(tokenString string) (*domain.Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
		// exp 当刻仍然有效，与访问码和邮箱的 now.After(expires_at) 判断一致
		jwt.WithLeeway(time.Nanosecond),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	role := domain.Role(claims.Role)
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return nil, ErrInvalidToken
	}

	return &domain.Session{
		Subject:   claims.Subject,
		Role:      role,
		Email:     claims.Email,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

var (
	// ErrAdminRequired 需要管理员会话
	ErrAdminRequired = domain.NewError(domain.ErrForbidden, "Admin access required")
	// ErrUserRequired 需要用户会话
	ErrUserRequired = domain.NewError(domain.ErrForbidden, "User session required")
)

// RequireRole 会话角色不符时返回 ErrForbidden
func RequireRole(session *domain.Session, role domain.Role) error {
	if session != nil && session.Role == role {
		return nil
	}
	if role == domain.RoleAdmin {
		return ErrAdminRequired
	}
	return ErrUserRequired
}
