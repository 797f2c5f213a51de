package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"codemail/backend/internal/config"
	"codemail/backend/internal/domain"
)

func startRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := New(config.RedisConfig{Address: endpoint}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCache(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	cache := NewCache(client, time.Hour)
	now := time.Now().UTC().Truncate(time.Second)

	mailbox := &domain.Mailbox{
		ID:        "m1",
		Address:   "abc@tempmail.local",
		SessionID: "s1",
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}

	_, err := cache.GetCachedMailbox(ctx, mailbox.Address)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.CacheMailbox(ctx, mailbox, now))
	got, err := cache.GetCachedMailbox(ctx, mailbox.Address)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.True(t, mailbox.ExpiresAt.Equal(got.ExpiresAt))

	ttl, err := client.Client().TTL(ctx, mailboxKey(mailbox.Address)).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 10*time.Minute)

	expired := *mailbox
	expired.Address = "old@tempmail.local"
	expired.ExpiresAt = now.Add(-time.Minute)
	require.NoError(t, cache.CacheMailbox(ctx, &expired, now))
	_, err = cache.GetCachedMailbox(ctx, expired.Address)
	assert.ErrorIs(t, err, ErrCacheMiss, "already expired mailboxes are not cached")
}

func TestEventBus(t *testing.T) {
	client := startRedis(t)
	bus := NewEventBus(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan NewMessageEvent, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = bus.Subscribe(ctx, func(_ context.Context, sessionID string, message *domain.Message) {
			received <- NewMessageEvent{SessionID: sessionID, Message: message}
		})
	}()
	<-ready

	msg := &domain.Message{ID: "msg-1", ToAddress: "abc@tempmail.local", Subject: "hi"}
	require.Eventually(t, func() bool {
		bus.NotifyNewMessage(ctx, "s1", msg)
		select {
		case ev := <-received:
			return ev.SessionID == "s1" && ev.Message.ID == "msg-1"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}
