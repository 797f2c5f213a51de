package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"codemail/backend/internal/domain"
	"codemail/backend/internal/storage"
)

// Store 使用内存保存访问码、邮箱与邮件数据，主要用于开发验证与测试。
//
// 所有读写都在同一把锁内完成，MarkAccessCodeUsed 的比较并设置因此是原子的。
type Store struct {
	mu sync.RWMutex

	codes      map[string]*domain.AccessCode // codeID -> code
	byCode     map[string]string             // code -> codeID
	mailboxes  map[string]*domain.Mailbox    // mailboxID -> mailbox
	byAddress  map[string]string             // address -> mailboxID
	messages   map[string]*domain.Message    // messageID -> message
	admins     map[string]*domain.AdminUser  // adminID -> admin
	byUsername map[string]string             // username -> adminID
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		codes:      make(map[string]*domain.AccessCode),
		byCode:     make(map[string]string),
		mailboxes:  make(map[string]*domain.Mailbox),
		byAddress:  make(map[string]string),
		messages:   make(map[string]*domain.Message),
		admins:     make(map[string]*domain.AdminUser),
		byUsername: make(map[string]string),
	}
}

// CreateAccessCode 保存访问码，code 重复时返回 ErrDuplicateKey。
func (s *Store) CreateAccessCode(_ context.Context, code *domain.AccessCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCode[code.Code]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.codes[code.ID]; exists {
		return storage.ErrDuplicateKey
	}

	clone := *code
	s.codes[code.ID] = &clone
	s.byCode[code.Code] = code.ID
	return nil
}

// GetAccessCodeByCode 按访问码查找。
func (s *Store) GetAccessCodeByCode(_ context.Context, code string) (*domain.AccessCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *s.codes[id]
	return &clone, nil
}

// MarkAccessCodeUsed 仅当访问码未使用时将其标记为已使用。
func (s *Store) MarkAccessCodeUsed(_ context.Context, id string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[id]
	if !ok || code.Used {
		return false, nil
	}
	at := usedAt
	code.Used = true
	code.UsedAt = &at
	return true, nil
}

// ListAccessCodes 返回全部访问码，最新创建的在前。
func (s *Store) ListAccessCodes(_ context.Context) ([]domain.AccessCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AccessCode, 0, len(s.codes))
	for _, code := range s.codes {
		result = append(result, *code)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteAccessCode 删除访问码（吊销）。
func (s *Store) DeleteAccessCode(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.byCode, code.Code)
	delete(s.codes, id)
	return nil
}

// CountAccessCodes 统计满足条件的访问码数量。
func (s *Store) CountAccessCodes(_ context.Context, q storage.CodeQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, code := range s.codes {
		if q.Used != nil && code.Used != *q.Used {
			continue
		}
		if q.ExpiresBefore != nil && !code.ExpiresAt.Before(*q.ExpiresBefore) {
			continue
		}
		n++
	}
	return n, nil
}

// CreateMailbox 保存邮箱，地址重复时返回 ErrDuplicateKey。
func (s *Store) CreateMailbox(_ context.Context, mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAddress[mailbox.Address]; exists {
		return storage.ErrDuplicateKey
	}

	clone := *mailbox
	s.mailboxes[mailbox.ID] = &clone
	s.byAddress[mailbox.Address] = mailbox.ID
	return nil
}

// GetMailboxByAddress 根据地址获取邮箱。
func (s *Store) GetMailboxByAddress(_ context.Context, address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *s.mailboxes[id]
	return &clone, nil
}

// ListMailboxesBySession 返回会话下的全部邮箱。
func (s *Store) ListMailboxesBySession(_ context.Context, sessionID string) ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Mailbox, 0)
	for _, mailbox := range s.mailboxes {
		if mailbox.SessionID == sessionID {
			result = append(result, *mailbox)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CountMailboxes 返回邮箱总数。
func (s *Store) CountMailboxes(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.mailboxes)), nil
}

// CreateMessage 保存邮件。
func (s *Store) CreateMessage(_ context.Context, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[message.ID]; exists {
		return storage.ErrDuplicateKey
	}
	clone := *message
	s.messages[message.ID] = &clone
	return nil
}

// GetMessage 根据 ID 获取邮件。
func (s *Store) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *message
	return &clone, nil
}

// ListMessagesByAddresses 返回投递到任一地址的邮件，最新的在前。
func (s *Store) ListMessagesByAddresses(_ context.Context, addresses []string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		set[addr] = struct{}{}
	}

	result := make([]domain.Message, 0)
	for _, message := range s.messages {
		if _, ok := set[message.ToAddress]; ok {
			result = append(result, *message)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ReceivedAt.Equal(result[j].ReceivedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})
	return result, nil
}

// MarkMessageRead 将邮件标记为已读，重复调用无副作用。
func (s *Store) MarkMessageRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[id]
	if !ok {
		return storage.ErrNotFound
	}
	message.IsRead = true
	return nil
}

// DeleteMessage 删除邮件。
func (s *Store) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

// CountMessages 返回邮件总数。
func (s *Store) CountMessages(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.messages)), nil
}

// CreateAdminUser 保存管理员，用户名重复时返回 ErrDuplicateKey。
func (s *Store) CreateAdminUser(_ context.Context, admin *domain.AdminUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[admin.Username]; exists {
		return storage.ErrDuplicateKey
	}
	clone := *admin
	s.admins[admin.ID] = &clone
	s.byUsername[admin.Username] = admin.ID
	return nil
}

// GetAdminUserByUsername 根据用户名获取管理员。
func (s *Store) GetAdminUserByUsername(_ context.Context, username string) (*domain.AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *s.admins[id]
	return &clone, nil
}

// UpdateAdminPassword 更新管理员密码哈希。
func (s *Store) UpdateAdminPassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	admin, ok := s.admins[id]
	if !ok {
		return storage.ErrNotFound
	}
	admin.PasswordHash = passwordHash
	return nil
}

// Health 内存存储始终可用。
func (s *Store) Health() error { return nil }

// Close 内存存储无需释放资源。
func (s *Store) Close() error { return nil }
