package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codemail/backend/internal/domain"
	"codemail/backend/internal/storage"
)

// Authenticator 校验管理员凭据
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*domain.AdminUser, error)
}

// StatsRepository 统计所需的计数能力
type StatsRepository interface {
	CountAccessCodes(ctx context.Context, q storage.CodeQuery) (int64, error)
	CountMailboxes(ctx context.Context) (int64, error)
	CountMessages(ctx context.Context) (int64, error)
}

// LoginResult 管理员登录结果
type LoginResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminService 管理员登录与统计
type AdminService struct {
	auth   Authenticator
	tokens TokenIssuer
	repo   StatsRepository
	deps   Deps
}

// NewAdminService 创建管理服务
func NewAdminService(auth Authenticator, tokens TokenIssuer, repo StatsRepository, deps Deps) *AdminService {
	return &AdminService{
		auth:   auth,
		tokens: tokens,
		repo:   repo,
		deps:   deps.withDefaults(),
	}
}

// Login 校验凭据并签发管理员令牌
func (s *AdminService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	admin, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		s.deps.Metrics.RecordAdminLogin(false)
		s.deps.Logger.Warn("admin login failed", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	token, expiresAt, err := s.tokens.IssueAdminSession(admin)
	if err != nil {
		return nil, fmt.Errorf("issue admin session: %w", err)
	}

	s.deps.Metrics.RecordAdminLogin(true)
	s.deps.Logger.Info("admin logged in", zap.String("username", admin.Username))
	return &LoginResult{
		Token:     token,
		Username:  admin.Username,
		ExpiresAt: expiresAt,
	}, nil
}

// Stats 计算当前时点的统计数据，每次调用都重新计数
func (s *AdminService) Stats(ctx context.Context) (*domain.Statistics, error) {
	now := s.deps.now()
	used := true
	unused := false

	var stats domain.Statistics
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalCodes, err = s.repo.CountAccessCodes(gctx, storage.CodeQuery{})
		return err
	})
	g.Go(func() (err error) {
		stats.UsedCodes, err = s.repo.CountAccessCodes(gctx, storage.CodeQuery{Used: &used})
		return err
	})
	g.Go(func() (err error) {
		stats.ExpiredCodes, err = s.repo.CountAccessCodes(gctx, storage.CodeQuery{Used: &unused, ExpiresBefore: &now})
		return err
	})
	g.Go(func() (err error) {
		stats.TotalMailboxes, err = s.repo.CountMailboxes(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalMessages, err = s.repo.CountMessages(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect statistics: %w", err)
	}

	stats.ActiveCodes = stats.TotalCodes - stats.UsedCodes - stats.ExpiredCodes
	s.deps.Metrics.UpdateCodeStats(&stats)
	return &stats, nil
}
