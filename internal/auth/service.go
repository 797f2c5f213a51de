package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"codemail/backend/internal/clock"
	"codemail/backend/internal/domain"
	"codemail/backend/internal/logger"
	"codemail/backend/internal/storage"
)

// ErrInvalidCredentials 用户名或密码错误
var ErrInvalidCredentials = domain.NewError(domain.ErrUnauthorized, "Invalid credentials")

// Service 管理员凭证服务
type Service struct {
	admins storage.AdminRepository
	ids    clock.IDSource
	clock  clock.Clock
	cost   int
	log    *zap.Logger
}

// Option 服务选项
type Option func(*Service)

// WithBcryptCost 设置 bcrypt 代价，测试中用 bcrypt.MinCost 加速
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock 注入时钟
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// NewService 创建凭证服务
func NewService(admins storage.AdminRepository, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		admins: admins,
		ids:    clock.UUIDSource{},
		clock:  clock.System{},
		cost:   bcrypt.DefaultCost,
		log:    logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate 校验用户名与密码。用户不存在与密码错误返回同一个错误。
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.AdminUser, error) {
	admin, err := s.admins.GetAdminUserByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup admin: %w", err)
	}

	if !CheckPassword(password, admin.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return admin, nil
}

// EnsureAdmin 管理员不存在时创建，已存在时保持不变。返回是否新建。
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	username = normalizeUsername(username)

	_, err := s.admins.GetAdminUserByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("lookup admin: %w", err)
	}

	if err := s.create(ctx, username, password); err != nil {
		// 并发启动的另一实例已创建
		if errors.Is(err, storage.ErrDuplicateKey) {
			return false, nil
		}
		return false, err
	}
	s.log.Info("bootstrap admin created", zap.String("username", username))
	return true, nil
}

// SetPassword 创建管理员或重置已有管理员的密码
func (s *Service) SetPassword(ctx context.Context, username, password string) error {
	username = normalizeUsername(username)

	admin, err := s.admins.GetAdminUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return s.create(ctx, username, password)
	}
	if err != nil {
		return fmt.Errorf("lookup admin: %w", err)
	}

	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.admins.UpdateAdminPassword(ctx, admin.ID, hash)
}

func (s *Service) create(ctx context.Context, username, password string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.admins.CreateAdminUser(ctx, &domain.AdminUser{
		ID:           s.ids.NewID(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    clock.Seconds(s.clock.Now()),
	})
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidatePassword 验证密码长度。bcrypt 只使用前 72 字节。
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", domain.ErrInvalidInput)
	}
	if len(password) > 72 {
		return fmt.Errorf("%w: password must be at most 72 characters", domain.ErrInvalidInput)
	}
	return nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
