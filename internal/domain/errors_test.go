package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	err := NewError(ErrAlreadyUsed, "This code has already been used")
	wrapped := fmt.Errorf("redeem: %w", err)

	assert.True(t, errors.Is(wrapped, ErrAlreadyUsed))
	assert.False(t, errors.Is(wrapped, ErrExpired))

	var de *Error
	assert.True(t, errors.As(wrapped, &de))
	assert.Equal(t, "This code has already been used", de.Message)
}
