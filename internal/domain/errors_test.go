package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	assert.Equal(t, "[job] job failed", JobError("job failed", nil).Error())
	assert.Equal(t, "[io] read: boom", IOError("read", errors.New("boom")).Error())
}

func TestIsType_WalksChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := JobError("job failed", TransportError("dial", cause))
	wrapped := fmt.Errorf("submit: %w", err)

	assert.True(t, IsType(wrapped, ErrorTypeJob))
	assert.True(t, IsType(wrapped, ErrorTypeTransport))
	assert.False(t, IsType(wrapped, ErrorTypeProtocol))
	assert.ErrorIs(t, wrapped, cause)
	assert.False(t, IsType(cause, ErrorTypeTransport))
	assert.False(t, IsType(nil, ErrorTypeTransport))
}
