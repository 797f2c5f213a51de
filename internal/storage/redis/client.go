// Package redis 提供邮箱缓存与跨实例的新邮件事件广播
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codemail/backend/internal/config"
	"codemail/backend/internal/logger"
)

const connectTimeout = 5 * time.Second

// Client Redis 连接
type Client struct {
	rdb *goredis.Client
	log *zap.Logger
}

func options(cfg config.RedisConfig) *goredis.Options {
	return &goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  connectTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// New 连接 Redis，连不上直接返回错误
func New(cfg config.RedisConfig, log *zap.Logger) (*Client, error) {
	c := &Client{
		rdb: goredis.NewClient(options(cfg)),
		log: logger.OrNop(log).With(zap.String("redis", cfg.Address)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Address, err)
	}

	c.log.Info("redis connected", zap.Int("db", cfg.DB))
	return c, nil
}

// Client 返回底层客户端
func (c *Client) Client() *goredis.Client {
	return c.rdb
}

// Ping 供就绪检查使用
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	err := c.rdb.Close()
	if err != nil {
		c.log.Warn("redis close failed", zap.Error(err))
		return err
	}
	c.log.Debug("redis connection closed")
	return nil
}
