package hybrid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"codemail/backend/internal/cache"
	"codemail/backend/internal/clock"
	"codemail/backend/internal/domain"
	"codemail/backend/internal/logger"
	"codemail/backend/internal/storage"
	"codemail/backend/internal/storage/redis"
)

const (
	localCacheSize = 10000
	localCacheTTL  = time.Minute
)

// Store 混合存储实现：持久化交给底层数据库，按地址查邮箱走本地缓存与 Redis 两级缓存。
//
// 只缓存邮箱，邮箱创建后不可变。访问码的条件更新直接落到数据库。
type Store struct {
	storage.Store

	redis *redis.Client
	cache *redis.Cache
	local *cache.LocalCache[*domain.Mailbox]
	clock clock.Clock
	log   *zap.Logger
}

// NewStore 创建混合存储实例
func NewStore(db storage.Store, client *redis.Client, cacheTTL time.Duration, clk clock.Clock, log *zap.Logger) *Store {
	if clk == nil {
		clk = clock.System{}
	}
	return &Store{
		Store: db,
		redis: client,
		cache: redis.NewCache(client, cacheTTL),
		local: cache.NewLocalCache[*domain.Mailbox](localCacheSize, localCacheTTL),
		clock: clk,
		log:   logger.OrNop(log),
	}
}

// CreateMailbox 写入数据库后预热缓存
func (s *Store) CreateMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	if err := s.Store.CreateMailbox(ctx, mailbox); err != nil {
		return err
	}
	s.remember(ctx, mailbox)
	return nil
}

// GetMailboxByAddress 依次查询本地缓存、Redis、数据库
func (s *Store) GetMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error) {
	if mailbox, ok := s.local.Get(address); ok {
		clone := *mailbox
		return &clone, nil
	}

	mailbox, err := s.cache.GetCachedMailbox(ctx, address)
	if err == nil {
		s.local.Set(address, mailbox, s.localTTL(mailbox))
		clone := *mailbox
		return &clone, nil
	}
	if !errors.Is(err, redis.ErrCacheMiss) {
		s.log.Warn("redis mailbox lookup failed, falling back to database", zap.Error(err))
	}

	mailbox, err = s.Store.GetMailboxByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, mailbox)
	return mailbox, nil
}

// Health 同时检查数据库与 Redis
func (s *Store) Health() error {
	if err := s.Store.Health(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close 关闭数据库与 Redis 连接
func (s *Store) Close() error {
	s.local.Close()
	return errors.Join(s.Store.Close(), s.redis.Close())
}

func (s *Store) remember(ctx context.Context, mailbox *domain.Mailbox) {
	clone := *mailbox
	s.local.Set(mailbox.Address, &clone, s.localTTL(mailbox))
	if err := s.cache.CacheMailbox(ctx, mailbox, s.clock.Now()); err != nil {
		s.log.Warn("failed to cache mailbox", zap.String("address", mailbox.Address), zap.Error(err))
	}
}

// localTTL 本地缓存不超过 localCacheTTL，过期邮箱也短暂缓存以便快速返回 Expired
func (s *Store) localTTL(mailbox *domain.Mailbox) time.Duration {
	ttl := mailbox.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 || ttl > localCacheTTL {
		return localCacheTTL
	}
	return ttl
}
