package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemail/backend/internal/storage"
	"codemail/backend/internal/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return NewStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now().UTC()

	require.NoError(t, store.CreateAccessCode(ctx, storagetest.NewCode("c1", "AAAA1111", now, time.Hour)))

	got, err := store.GetAccessCodeByCode(ctx, "AAAA1111")
	require.NoError(t, err)
	got.Used = true

	again, err := store.GetAccessCodeByCode(ctx, "AAAA1111")
	require.NoError(t, err)
	assert.False(t, again.Used, "caller mutation must not leak into the store")
}
