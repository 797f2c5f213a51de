package storage

import (
	"context"
	"errors"
	"time"

	"codemail/backend/internal/domain"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey 唯一键冲突（访问码、邮箱地址、管理员用户名）
	ErrDuplicateKey = errors.New("duplicate key")
)

// CodeQuery 访问码计数过滤条件，nil 字段表示不过滤
type CodeQuery struct {
	Used          *bool
	ExpiresBefore *time.Time
}

// AccessCodeRepository 定义访问码数据存取操作。
type AccessCodeRepository interface {
	CreateAccessCode(ctx context.Context, code *domain.AccessCode) error
	GetAccessCodeByCode(ctx context.Context, code string) (*domain.AccessCode, error)
	// MarkAccessCodeUsed 条件更新：仅当 used=false 时置为已使用。返回是否命中。
	MarkAccessCodeUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
	ListAccessCodes(ctx context.Context) ([]domain.AccessCode, error) // 按创建时间倒序
	DeleteAccessCode(ctx context.Context, id string) error
	CountAccessCodes(ctx context.Context, q CodeQuery) (int64, error)
}

// MailboxRepository 定义邮箱数据存取操作。邮箱创建后不可修改。
type MailboxRepository interface {
	CreateMailbox(ctx context.Context, mailbox *domain.Mailbox) error
	GetMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error)
	ListMailboxesBySession(ctx context.Context, sessionID string) ([]domain.Mailbox, error) // 按创建时间正序
	CountMailboxes(ctx context.Context) (int64, error)
}

// MessageRepository 定义邮件数据存取操作。
type MessageRepository interface {
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	ListMessagesByAddresses(ctx context.Context, addresses []string) ([]domain.Message, error) // 按接收时间倒序
	MarkMessageRead(ctx context.Context, id string) error
	DeleteMessage(ctx context.Context, id string) error
	CountMessages(ctx context.Context) (int64, error)
}

// AdminRepository 定义管理员数据存取操作。
type AdminRepository interface {
	CreateAdminUser(ctx context.Context, admin *domain.AdminUser) error
	GetAdminUserByUsername(ctx context.Context, username string) (*domain.AdminUser, error)
	UpdateAdminPassword(ctx context.Context, id, passwordHash string) error
}

// Store 聚合所有仓储接口
type Store interface {
	AccessCodeRepository
	MailboxRepository
	MessageRepository
	AdminRepository

	// Health 检查存储后端可用性
	Health() error
	Close() error
}
