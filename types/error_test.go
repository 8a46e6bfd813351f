package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUnrecoverable, "leaf failed").
		WithCause(root).
		WithNode("1_3")

	wrapped := fmt.Errorf("execute: %w", err)

	assert.True(t, IsErrorCode(wrapped, ErrUnrecoverable))
	assert.False(t, IsErrorCode(wrapped, ErrTimeout))
	assert.ErrorIs(t, wrapped, root)
	assert.Equal(t, "[UNRECOVERABLE] 1_3: leaf failed: root", err.Error())

	e, ok := AsError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "1_3", e.NodeID)
}

func TestConfigError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("build: %w", &ConfigError{Field: "fanout", Reason: "must be >= 2"})
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "fanout")
	assert.False(t, IsConfigError(errors.New("other")))
}
