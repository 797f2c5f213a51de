package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"codemail/backend/internal/clock"
	"codemail/backend/internal/config"
	"codemail/backend/internal/domain"
	"codemail/backend/internal/storage"
)

var (
	ErrInvalidCode  = domain.NewError(domain.ErrNotFound, "Invalid access code")
	ErrCodeUsed     = domain.NewError(domain.ErrAlreadyUsed, "This code has already been used")
	ErrCodeExpired  = domain.NewError(domain.ErrExpired, "This code has expired")
	ErrCodeNotFound = domain.NewError(domain.ErrNotFound, "Code not found")
)

// CodeService 访问码签发、兑换与吊销
type CodeService struct {
	repo storage.AccessCodeRepository
	cfg  config.CodeConfig
	deps Deps

	generate func() (string, error)
}

// NewCodeService 创建访问码服务
func NewCodeService(repo storage.AccessCodeRepository, cfg config.CodeConfig, deps Deps) *CodeService {
	s := &CodeService{
		repo: repo,
		cfg:  cfg,
		deps: deps.withDefaults(),
	}
	s.generate = func() (string, error) {
		return clock.RandomString(clock.CodeAlphabet, s.cfg.Length)
	}
	return s
}

// Issue 签发访问码。expiryHours 为 0 时使用默认有效期。
func (s *CodeService) Issue(ctx context.Context, expiryHours int, issuer string) (*domain.AccessCode, error) {
	if expiryHours == 0 {
		expiryHours = s.cfg.DefaultExpiryHours
	}
	if expiryHours < 1 || expiryHours > s.cfg.MaxExpiryHours {
		return nil, fmt.Errorf("%w: expiry_hours must be between 1 and %d", domain.ErrInvalidInput, s.cfg.MaxExpiryHours)
	}

	now := s.deps.now()
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		value, err := s.generate()
		if err != nil {
			return nil, err
		}

		code := &domain.AccessCode{
			ID:        s.deps.IDs.NewID(),
			Code:      value,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Duration(expiryHours) * time.Hour),
			CreatedBy: issuer,
		}
		err = s.repo.CreateAccessCode(ctx, code)
		if err == nil {
			s.deps.Metrics.RecordCodeIssued()
			s.deps.Logger.Info("access code issued",
				zap.String("code_id", code.ID),
				zap.String("created_by", issuer),
				zap.Time("expires_at", code.ExpiresAt),
			)
			return code, nil
		}
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("create access code: %w", err)
		}
	}
	return nil, fmt.Errorf("could not generate a unique access code after %d attempts", maxGenerateAttempts)
}

// Redeem 兑换访问码。成功时访问码被原子地标记为已使用，并发兑换只有一个成功。
func (s *CodeService) Redeem(ctx context.Context, raw string) (*domain.AccessCode, error) {
	value := domain.NormalizeCode(raw)
	if value == "" {
		s.deps.Metrics.RecordRedemption("not_found")
		return nil, ErrInvalidCode
	}

	code, err := s.repo.GetAccessCodeByCode(ctx, value)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.deps.Metrics.RecordRedemption("not_found")
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("lookup access code: %w", err)
	}

	if code.Used {
		s.deps.Metrics.RecordRedemption("already_used")
		return nil, ErrCodeUsed
	}

	now := s.deps.now()
	if code.IsExpired(now) {
		s.deps.Metrics.RecordRedemption("expired")
		return nil, ErrCodeExpired
	}

	ok, err := s.repo.MarkAccessCodeUsed(ctx, code.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark access code used: %w", err)
	}
	if !ok {
		s.deps.Metrics.RecordRedemption("already_used")
		return nil, ErrCodeUsed
	}

	code.Used = true
	code.UsedAt = &now
	s.deps.Metrics.RecordRedemption("success")
	return code, nil
}

// List 返回全部访问码，最新的在前
func (s *CodeService) List(ctx context.Context) ([]domain.AccessCode, error) {
	return s.repo.ListAccessCodes(ctx)
}

// Revoke 删除访问码，已使用的也可删除。已签发的会话不受影响。
func (s *CodeService) Revoke(ctx context.Context, id string) error {
	if err := s.repo.DeleteAccessCode(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("delete access code: %w", err)
	}
	s.deps.Metrics.RecordCodeRevoked()
	s.deps.Logger.Info("access code revoked", zap.String("code_id", id))
	return nil
}
