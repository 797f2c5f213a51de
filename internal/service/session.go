package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"codemail/backend/internal/domain"
)

// TokenIssuer 会话令牌签发
type TokenIssuer interface {
	IssueUserSession(code *domain.AccessCode, mailbox *domain.Mailbox) (string, error)
	IssueAdminSession(admin *domain.AdminUser) (string, time.Time, error)
}

// RedeemResult 兑换结果
type RedeemResult struct {
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	EmailAddress string    `json:"email_address"`
}

// SessionService 把访问码兑换为会话：消耗访问码、创建首个邮箱、签发令牌
type SessionService struct {
	codes     *CodeService
	mailboxes *MailboxService
	tokens    TokenIssuer
	log       *zap.Logger
}

// NewSessionService 创建会话服务
func NewSessionService(codes *CodeService, mailboxes *MailboxService, tokens TokenIssuer, deps Deps) *SessionService {
	return &SessionService{
		codes:     codes,
		mailboxes: mailboxes,
		tokens:    tokens,
		log:       deps.withDefaults().Logger,
	}
}

// Redeem 兑换访问码。会话与首个邮箱的过期时间都等于访问码的过期时间。
func (s *SessionService) Redeem(ctx context.Context, rawCode string) (*RedeemResult, error) {
	code, err := s.codes.Redeem(ctx, rawCode)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		Subject:   code.ID,
		Role:      domain.RoleUser,
		ExpiresAt: code.ExpiresAt,
	}

	// 访问码此时已被消耗，后续失败不回滚
	mailbox, err := s.mailboxes.CreateForSession(ctx, session)
	if err != nil {
		s.log.Error("redeemed code but failed to create mailbox", zap.String("code_id", code.ID), zap.Error(err))
		return nil, fmt.Errorf("create mailbox: %w", err)
	}

	token, err := s.tokens.IssueUserSession(code, mailbox)
	if err != nil {
		s.log.Error("redeemed code but failed to issue token", zap.String("code_id", code.ID), zap.Error(err))
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.log.Info("access code redeemed",
		zap.String("code_id", code.ID),
		zap.String("email", mailbox.Address),
		zap.Time("expires_at", code.ExpiresAt),
	)

	return &RedeemResult{
		Token:        token,
		ExpiresAt:    code.ExpiresAt,
		EmailAddress: mailbox.Address,
	}, nil
}
