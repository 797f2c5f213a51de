package smtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"codemail/backend/internal/clock"
	"codemail/backend/internal/config"
	"codemail/backend/internal/domain"
	"codemail/backend/internal/logger"
	"codemail/backend/internal/service"
	"codemail/backend/internal/storage"
)

// MailboxLookup 按地址查询邮箱
type MailboxLookup interface {
	GetMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error)
}

// Deliverer 投递已解析的邮件
type Deliverer interface {
	Deliver(ctx context.Context, input service.DeliverInput) (*domain.Message, error)
}

var (
	errRelayDenied = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
		Message:      "relay access denied - domain not managed by this server",
	}
	errMailboxNotFound = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
		Message:      "recipient mailbox not found",
	}
	errMailboxExpired = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
		Message:      "recipient mailbox has expired",
	}
	errTemporary = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "temporary failure, try again later",
	}
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 只接收投递到本系统未过期邮箱的邮件，不做任何转发。
type Backend struct {
	domain    string
	mailboxes MailboxLookup
	messages  Deliverer
	clock     clock.Clock
	log       *zap.Logger
}

// NewBackend 创建 SMTP Backend
func NewBackend(mailDomain string, mailboxes MailboxLookup, messages Deliverer, clk clock.Clock, log *zap.Logger) *Backend {
	if clk == nil {
		clk = clock.System{}
	}
	return &Backend{
		domain:    strings.ToLower(mailDomain),
		mailboxes: mailboxes,
		messages:  messages,
		clock:     clk,
		log:       logger.OrNop(log),
	}
}

// NewServer 按配置创建只接收的 SMTP 服务器
func NewServer(cfg config.SMTPConfig, maxMessageBytes int64, backend *Backend) *gosmtp.Server {
	server := gosmtp.NewServer(backend)
	server.Addr = cfg.BindAddr
	server.Domain = cfg.Domain
	server.ReadTimeout = 10 * time.Second
	server.WriteTimeout = 10 * time.Second
	server.MaxMessageBytes = maxMessageBytes
	server.MaxRecipients = 50
	return server
}

// NewSession 创建新的 SMTP 会话
func (b *Backend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
}

// Mail 处理 MAIL 命令
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.fromAddress = normalizeAddress(from)
	return nil
}

// Rcpt 处理 RCPT 命令。外部域名和未知或过期的邮箱一律 550。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)

	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	if addr[at+1:] != s.backend.domain {
		return errRelayDenied
	}

	mailbox, err := s.backend.mailboxes.GetMailboxByAddress(context.Background(), addr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errMailboxNotFound
		}
		s.backend.log.Error("smtp recipient lookup failed", zap.String("to", addr), zap.Error(err))
		return errTemporary
	}
	if mailbox.IsExpired(clock.Seconds(s.backend.clock.Now())) {
		return errMailboxExpired
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 解析邮件并投递给每个收件人
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      fmt.Sprintf("malformed message: %v", err),
		}
	}

	from := parsed.From
	if from == "" {
		from = s.fromAddress
	}

	ctx := context.Background()
	for _, rcpt := range s.recipients {
		_, err := s.backend.messages.Deliver(ctx, service.DeliverInput{
			To:      rcpt,
			From:    from,
			Subject: parsed.Subject,
			Body:    parsed.Body(),
		})
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			return errMailboxNotFound
		case errors.Is(err, domain.ErrExpired):
			return errMailboxExpired
		case errors.Is(err, domain.ErrInvalidInput):
			return &gosmtp.SMTPError{
				Code:         552,
				EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
				Message:      err.Error(),
			}
		default:
			s.backend.log.Error("smtp delivery failed", zap.String("to", rcpt), zap.Error(err))
			return errTemporary
		}
	}

	return nil
}

// Reset 重置状态
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束
func (s *session) Logout() error {
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
