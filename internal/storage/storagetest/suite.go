// Package storagetest 提供所有 storage.Store 实现共用的行为测试。
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemail/backend/internal/domain"
	"codemail/backend/internal/storage"
)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// Run 对 newStore 返回的每个新存储执行完整用例
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("访问码增删查", func(t *testing.T) { testAccessCodes(t, newStore(t)) })
	t.Run("访问码条件更新", func(t *testing.T) { testMarkUsed(t, newStore(t)) })
	t.Run("访问码并发兑换", func(t *testing.T) { testConcurrentMarkUsed(t, newStore(t)) })
	t.Run("访问码计数", func(t *testing.T) { testCountAccessCodes(t, newStore(t)) })
	t.Run("邮箱", func(t *testing.T) { testMailboxes(t, newStore(t)) })
	t.Run("邮件", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("管理员", func(t *testing.T) { testAdmins(t, newStore(t)) })
}

// NewCode 构造测试访问码
func NewCode(id, code string, createdAt time.Time, ttl time.Duration) *domain.AccessCode {
	return &domain.AccessCode{
		ID:        id,
		Code:      code,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(ttl),
		CreatedBy: "admin",
	}
}

func testAccessCodes(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.CreateAccessCode(ctx, NewCode("c1", "AAAA1111", base, time.Hour)))
	require.NoError(t, s.CreateAccessCode(ctx, NewCode("c2", "BBBB2222", base.Add(time.Minute), time.Hour)))

	err := s.CreateAccessCode(ctx, NewCode("c3", "AAAA1111", base, time.Hour))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := s.GetAccessCodeByCode(ctx, "AAAA1111")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.False(t, got.Used)
	assert.Nil(t, got.UsedAt)
	assert.True(t, base.Add(time.Hour).Equal(got.ExpiresAt))

	_, err = s.GetAccessCodeByCode(ctx, "ZZZZ9999")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.ListAccessCodes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID)
	assert.Equal(t, "c1", list[1].ID)

	require.NoError(t, s.DeleteAccessCode(ctx, "c1"))
	assert.ErrorIs(t, s.DeleteAccessCode(ctx, "c1"), storage.ErrNotFound)
	_, err = s.GetAccessCodeByCode(ctx, "AAAA1111")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testMarkUsed(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAccessCode(ctx, NewCode("c1", "AAAA1111", base, time.Hour)))

	usedAt := base.Add(5 * time.Minute)
	ok, err := s.MarkAccessCodeUsed(ctx, "c1", usedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkAccessCodeUsed(ctx, "c1", usedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "second mark must not match")

	got, err := s.GetAccessCodeByCode(ctx, "AAAA1111")
	require.NoError(t, err)
	assert.True(t, got.Used)
	require.NotNil(t, got.UsedAt)
	assert.True(t, usedAt.Equal(*got.UsedAt))

	ok, err = s.MarkAccessCodeUsed(ctx, "missing", usedAt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testConcurrentMarkUsed(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateAccessCode(ctx, NewCode("c1", "AAAA1111", base, time.Hour)))

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkAccessCodeUsed(ctx, "c1", base)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testCountAccessCodes(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := base.Add(2 * time.Hour)

	require.NoError(t, s.CreateAccessCode(ctx, NewCode("active", "ACTV0001", base, 12*time.Hour)))
	require.NoError(t, s.CreateAccessCode(ctx, NewCode("expired", "EXPD0001", base, time.Hour)))
	require.NoError(t, s.CreateAccessCode(ctx, NewCode("used", "USED0001", base, time.Hour)))
	_, err := s.MarkAccessCodeUsed(ctx, "used", base.Add(time.Minute))
	require.NoError(t, err)

	used, unused := true, false

	total, err := s.CountAccessCodes(ctx, storage.CodeQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	n, err := s.CountAccessCodes(ctx, storage.CodeQuery{Used: &used})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.CountAccessCodes(ctx, storage.CodeQuery{Used: &unused, ExpiresBefore: &now})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func testMailboxes(t *testing.T, s storage.Store) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateMailbox(ctx, &domain.Mailbox{
			ID:        fmt.Sprintf("m%d", i),
			Address:   fmt.Sprintf("box%d@tempmail.local", i),
			SessionID: "s1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			ExpiresAt: base.Add(time.Hour),
		}))
	}
	require.NoError(t, s.CreateMailbox(ctx, &domain.Mailbox{
		ID: "other", Address: "other@tempmail.local", SessionID: "s2", CreatedAt: base, ExpiresAt: base.Add(time.Hour),
	}))

	err := s.CreateMailbox(ctx, &domain.Mailbox{ID: "dup", Address: "box0@tempmail.local", SessionID: "s3", CreatedAt: base, ExpiresAt: base})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := s.GetMailboxByAddress(ctx, "box1@tempmail.local")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "s1", got.SessionID)

	_, err = s.GetMailboxByAddress(ctx, "nobody@tempmail.local")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.ListMailboxesBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"m0", "m1", "m2"}, []string{list[0].ID, list[1].ID, list[2].ID})

	empty, err := s.ListMailboxesBySession(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)

	count, err := s.CountMailboxes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)
}

func testMessages(t *testing.T, s storage.Store) {
	ctx := context.Background()

	msgs := []*domain.Message{
		{ID: "a", ToAddress: "x@tempmail.local", FromAddress: "f@example.com", Subject: "first", ReceivedAt: base},
		{ID: "b", ToAddress: "y@tempmail.local", FromAddress: "f@example.com", Subject: "second", ReceivedAt: base.Add(time.Minute)},
		{ID: "c", ToAddress: "z@tempmail.local", FromAddress: "f@example.com", Subject: "other", ReceivedAt: base.Add(2 * time.Minute)},
	}
	for _, m := range msgs {
		require.NoError(t, s.CreateMessage(ctx, m))
	}

	list, err := s.ListMessagesByAddresses(ctx, []string{"x@tempmail.local", "y@tempmail.local"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)

	empty, err := s.ListMessagesByAddresses(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.MarkMessageRead(ctx, "a"))
	require.NoError(t, s.MarkMessageRead(ctx, "a"))
	got, err := s.GetMessage(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	assert.Equal(t, "first", got.Subject)

	assert.ErrorIs(t, s.MarkMessageRead(ctx, "missing"), storage.ErrNotFound)

	require.NoError(t, s.DeleteMessage(ctx, "a"))
	assert.ErrorIs(t, s.DeleteMessage(ctx, "a"), storage.ErrNotFound)
	_, err = s.GetMessage(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	count, err := s.CountMessages(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func testAdmins(t *testing.T, s storage.Store) {
	ctx := context.Background()

	admin := &domain.AdminUser{ID: "a1", Username: "root@tempmail.local", PasswordHash: "h1", CreatedAt: base}
	require.NoError(t, s.CreateAdminUser(ctx, admin))
	assert.ErrorIs(t, s.CreateAdminUser(ctx, &domain.AdminUser{ID: "a2", Username: admin.Username, PasswordHash: "x", CreatedAt: base}), storage.ErrDuplicateKey)

	got, err := s.GetAdminUserByUsername(ctx, admin.Username)
	require.NoError(t, err)
	assert.Equal(t, "h1", got.PasswordHash)

	require.NoError(t, s.UpdateAdminPassword(ctx, "a1", "h2"))
	got, err = s.GetAdminUserByUsername(ctx, admin.Username)
	require.NoError(t, err)
	assert.Equal(t, "h2", got.PasswordHash)

	_, err = s.GetAdminUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateAdminPassword(ctx, "missing", "h"), storage.ErrNotFound)
}
