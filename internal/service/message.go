package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"codemail/backend/internal/config"
	"codemail/backend/internal/domain"
	"codemail/backend/internal/security"
	"codemail/backend/internal/storage"
)

var (
	ErrAddressNotFound = domain.NewError(domain.ErrNotFound, "Email address not found")
	ErrAddressExpired  = domain.NewError(domain.ErrExpired, "Email address has expired")
	ErrMessageNotFound = domain.NewError(domain.ErrNotFound, "Message not found")
)

// Notifier 接收新邮件通知
type Notifier interface {
	NotifyNewMessage(ctx context.Context, sessionID string, message *domain.Message)
}

// MessageRepository 邮件服务所需的存储能力
type MessageRepository interface {
	storage.MailboxRepository
	storage.MessageRepository
}

// DeliverInput 投递一封已解析的邮件
type DeliverInput struct {
	To      string `validate:"required,max=254"`
	From    string `validate:"max=320"`
	Subject string `validate:"max=998"`
	Body    string
}

// MessageService 邮件投递与会话内的邮件访问
type MessageService struct {
	repo     MessageRepository
	cfg      config.MessageConfig
	deps     Deps
	filter   *security.ContentFilter
	notifier Notifier
}

// NewMessageService 创建邮件服务
func NewMessageService(repo MessageRepository, cfg config.MessageConfig, deps Deps) *MessageService {
	return &MessageService{
		repo:   repo,
		cfg:    cfg,
		deps:   deps.withDefaults(),
		filter: security.NewContentFilter(),
	}
}

// SetNotifier 设置新邮件通知（WebSocket Hub 或 Redis 事件总线）
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Deliver 投递邮件到未过期的邮箱
func (s *MessageService) Deliver(ctx context.Context, input DeliverInput) (*domain.Message, error) {
	if err := domain.Validate(input); err != nil {
		return nil, err
	}
	// 格式不合法的地址不可能对应任何邮箱
	if err := domain.ValidateAddress(input.To); err != nil {
		s.deps.Metrics.RecordDelivery("not_found")
		return nil, ErrAddressNotFound
	}
	if s.cfg.MaxBodyBytes > 0 && int64(len(input.Body)) > s.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidInput, s.cfg.MaxBodyBytes)
	}

	address := domain.NormalizeAddress(input.To)
	mailbox, err := s.repo.GetMailboxByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.deps.Metrics.RecordDelivery("not_found")
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("lookup mailbox: %w", err)
	}

	now := s.deps.now()
	if mailbox.IsExpired(now) {
		s.deps.Metrics.RecordDelivery("expired")
		return nil, ErrAddressExpired
	}

	subject, body := input.Subject, input.Body
	if hit, pattern := s.filter.Suspicious(body); hit {
		s.deps.Logger.Info("suspicious message body",
			zap.String("to", address),
			zap.String("pattern", pattern),
			zap.Bool("sanitized", s.cfg.SanitizeHTML),
		)
	}
	if s.cfg.SanitizeHTML {
		subject = s.filter.SanitizeSubject(subject)
		body = s.filter.SanitizeBody(body)
	}

	message := &domain.Message{
		ID:          s.deps.IDs.NewID(),
		ToAddress:   address,
		FromAddress: input.From,
		Subject:     subject,
		Body:        body,
		ReceivedAt:  now,
		IsRead:      false,
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	s.deps.Metrics.RecordDelivery("accepted")
	s.deps.Logger.Debug("message delivered",
		zap.String("message_id", message.ID),
		zap.String("to", address),
	)

	if s.notifier != nil {
		s.notifier.NotifyNewMessage(ctx, mailbox.SessionID, message)
	}
	return message, nil
}

// ListForSession 返回会话所有邮箱收到的邮件，最新的在前
func (s *MessageService) ListForSession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	addresses, err := s.sessionAddresses(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMessagesByAddresses(ctx, addresses)
}

// Get 获取单封邮件并标记为已读
func (s *MessageService) Get(ctx context.Context, id, sessionID string) (*domain.Message, error) {
	message, err := s.owned(ctx, id, sessionID)
	if err != nil {
		return nil, err
	}

	if !message.IsRead {
		if err := s.repo.MarkMessageRead(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrMessageNotFound
			}
			return nil, fmt.Errorf("mark message read: %w", err)
		}
		message.IsRead = true
	}
	s.deps.Metrics.RecordMessageRead()
	return message, nil
}

// Delete 删除邮件
func (s *MessageService) Delete(ctx context.Context, id, sessionID string) error {
	if _, err := s.owned(ctx, id, sessionID); err != nil {
		return err
	}
	if err := s.repo.DeleteMessage(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("delete message: %w", err)
	}
	s.deps.Metrics.RecordMessageDeleted()
	return nil
}

// owned 读取邮件。严格模式下不属于该会话邮箱的邮件视为不存在。
func (s *MessageService) owned(ctx context.Context, id, sessionID string) (*domain.Message, error) {
	message, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	if !s.cfg.StrictOwnership {
		return message, nil
	}

	mailbox, err := s.repo.GetMailboxByAddress(ctx, message.ToAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("lookup mailbox: %w", err)
	}
	if mailbox.SessionID != sessionID {
		return nil, ErrMessageNotFound
	}
	return message, nil
}

func (s *MessageService) sessionAddresses(ctx context.Context, sessionID string) ([]string, error) {
	mailboxes, err := s.repo.ListMailboxesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	addresses := make([]string, 0, len(mailboxes))
	for _, mb := range mailboxes {
		addresses = append(addresses, mb.Address)
	}
	return addresses, nil
}
