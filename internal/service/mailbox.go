package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"codemail/backend/internal/clock"
	"codemail/backend/internal/config"
	"codemail/backend/internal/domain"
	"codemail/backend/internal/storage"
)

// MailboxService 维护会话与临时邮箱的绑定
type MailboxService struct {
	repo storage.MailboxRepository
	cfg  config.MailboxConfig
	deps Deps

	generate func() (string, error)
}

// NewMailboxService 创建邮箱业务服务
func NewMailboxService(repo storage.MailboxRepository, cfg config.MailboxConfig, deps Deps) *MailboxService {
	s := &MailboxService{
		repo: repo,
		cfg:  cfg,
		deps: deps.withDefaults(),
	}
	s.generate = func() (string, error) {
		return clock.RandomString(clock.LocalPartAlphabet, s.cfg.LocalPartLength)
	}
	return s
}

// CreateForSession 为会话创建新邮箱，过期时间取会话的过期时间
func (s *MailboxService) CreateForSession(ctx context.Context, session *domain.Session) (*domain.Mailbox, error) {
	if session == nil || session.Subject == "" {
		return nil, fmt.Errorf("%w: session is required", domain.ErrInvalidInput)
	}

	now := s.deps.now()
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		local, err := s.generate()
		if err != nil {
			return nil, err
		}

		mailbox := &domain.Mailbox{
			ID:        s.deps.IDs.NewID(),
			Address:   local + "@" + s.cfg.Domain,
			SessionID: session.Subject,
			CreatedAt: now,
			ExpiresAt: session.ExpiresAt,
		}
		err = s.repo.CreateMailbox(ctx, mailbox)
		if err == nil {
			s.deps.Metrics.RecordMailboxCreated()
			s.deps.Logger.Debug("mailbox created",
				zap.String("address", mailbox.Address),
				zap.String("session_id", session.Subject),
			)
			return mailbox, nil
		}
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("create mailbox: %w", err)
		}
	}
	return nil, fmt.Errorf("could not generate a unique mailbox address after %d attempts", maxGenerateAttempts)
}

// ListForSession 返回会话的全部邮箱
func (s *MailboxService) ListForSession(ctx context.Context, sessionID string) ([]domain.Mailbox, error) {
	return s.repo.ListMailboxesBySession(ctx, sessionID)
}
