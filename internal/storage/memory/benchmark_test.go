package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"codemail/backend/internal/domain"
)

func BenchmarkMemoryStore_CreateMailbox(b *testing.B) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now().UTC()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.CreateMailbox(ctx, &domain.Mailbox{
			ID:        fmt.Sprintf("mailbox-%d", i),
			Address:   fmt.Sprintf("box%d@tempmail.local", i),
			SessionID: "bench-session",
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		})
	}
}

func BenchmarkMemoryStore_ListMessagesByAddresses(b *testing.B) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now().UTC()

	addresses := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		addresses = append(addresses, fmt.Sprintf("box%d@tempmail.local", i))
	}
	for i := 0; i < 1000; i++ {
		_ = store.CreateMessage(ctx, &domain.Message{
			ID:         fmt.Sprintf("msg-%d", i),
			ToAddress:  addresses[i%len(addresses)],
			Subject:    fmt.Sprintf("Message %d", i),
			ReceivedAt: now.Add(time.Duration(i) * time.Second),
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.ListMessagesByAddresses(ctx, addresses[:2])
	}
}
