package fserrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetriableCause(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := fmt.Errorf("GET failed: %w", Retriable(base, "send"))

	retriable, cause := Cause(wrapped)
	assert.True(t, retriable)
	assert.Equal(t, base, cause)
	assert.True(t, ShouldRetry(wrapped))
}

func TestFatalCause(t *testing.T) {
	base := errors.New("unsupported transfer-encoding")
	wrapped := Fatal(base, "parse response")

	retriable, cause := Cause(wrapped)
	assert.False(t, retriable)
	assert.Equal(t, base, cause)
	assert.False(t, ShouldRetry(wrapped))
}

func TestNotFound(t *testing.T) {
	wrapped := fmt.Errorf("GET /drweb32.lst: %w", ErrNotFound)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsNotFound(errors.New("other")))
}

func TestShouldRetryNil(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
}
