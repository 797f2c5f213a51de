package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"codemail/backend/internal/domain"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// Cache 邮箱地址缓存。邮箱创建后不可变，缓存只需随过期失效。
type Cache struct {
	client *Client
	maxTTL time.Duration
}

// NewCache 创建 Redis 缓存，maxTTL 为单个条目最长保留时间
func NewCache(client *Client, maxTTL time.Duration) *Cache {
	return &Cache{client: client, maxTTL: maxTTL}
}

func mailboxKey(address string) string {
	return fmt.Sprintf("codemail:mailbox:%s", address)
}

// CacheMailbox 缓存邮箱，保留到 min(maxTTL, 距过期时间)
func (c *Cache) CacheMailbox(ctx context.Context, mailbox *domain.Mailbox, now time.Time) error {
	ttl := mailbox.ExpiresAt.Sub(now)
	if c.maxTTL > 0 && ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(cachedMailbox{
		ID:        mailbox.ID,
		Address:   mailbox.Address,
		SessionID: mailbox.SessionID,
		CreatedAt: mailbox.CreatedAt,
		ExpiresAt: mailbox.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return c.client.rdb.Set(ctx, mailboxKey(mailbox.Address), data, ttl).Err()
}

// GetCachedMailbox 获取缓存的邮箱，未命中返回 ErrCacheMiss
func (c *Cache) GetCachedMailbox(ctx context.Context, address string) (*domain.Mailbox, error) {
	data, err := c.client.rdb.Get(ctx, mailboxKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var cm cachedMailbox
	if err := json.Unmarshal(data, &cm); err != nil {
		return nil, err
	}
	return &domain.Mailbox{
		ID:        cm.ID,
		Address:   cm.Address,
		SessionID: cm.SessionID,
		CreatedAt: cm.CreatedAt,
		ExpiresAt: cm.ExpiresAt,
	}, nil
}

// cachedMailbox 缓存载荷。domain.Mailbox 的 JSON 形式隐藏了 SessionID。
type cachedMailbox struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
