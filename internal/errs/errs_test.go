package errs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, "protocol", KindProtocol.String())
	assert.Equal(t, "conflict", KindConflict.String())
	assert.Equal(t, "exhausted", KindExhausted.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestClassifiedErrorChain(t *testing.T) {
	err := Transport("session.receive", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("drain: %w", err)

	assert.Equal(t, KindTransport, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindTransport))
	assert.False(t, IsKind(wrapped, KindProtocol))
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
	assert.Equal(t, "session.receive: unexpected EOF", err.Error())
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindUnknown))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(Transport("read", os.ErrDeadlineExceeded)))
	assert.False(t, IsTimeout(Transport("read", io.EOF)))
	assert.False(t, IsTimeout(nil))
}
