package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "unsupported language",
			err:      NewUnsupportedLanguageError("cobol"),
			expected: "language 'cobol' is not supported by the proxy",
		},
		{
			name:     "handshake without cause",
			err:      NewHandshakeFailedError("go", "missing result", nil),
			expected: "initialize handshake with go server failed: missing result",
		},
		{
			name:     "handshake with cause",
			err:      NewHandshakeFailedError("ts", "request failed", stderrors.New("boom")),
			expected: "initialize handshake with ts server failed: request failed: boom",
		},
		{
			name:     "stale version",
			err:      NewStaleVersionError("p/a.ts", 1, 2),
			expected: "incoming version 1 for p/a.ts is not newer than cached version 2",
		},
		{
			name:     "process terminated",
			err:      NewProcessTerminatedError("rs", nil),
			expected: "rs language server process terminated",
		},
		{
			name:     "manager not initialized",
			err:      NewManagerNotInitializedError(),
			expected: "lsp proxy is not initialized yet",
		},
		{
			name:     "cache not initialized",
			err:      NewCacheNotInitializedError(),
			expected: "file manager hasn't been initialized yet",
		},
		{
			name:     "method not supported",
			err:      NewMethodNotSupportedError("textDocument/rename"),
			expected: "method 'textDocument/rename' is not supported by the proxy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("apply changes: %w", NewStaleVersionError("a", 1, 1))
	assert.True(t, IsStaleVersion(wrapped))
	assert.False(t, IsProcessTerminated(wrapped))

	cause := stderrors.New("exit status 1")
	term := fmt.Errorf("request: %w", NewProcessTerminatedError("go", cause))
	assert.True(t, IsProcessTerminated(term))
	assert.ErrorIs(t, term, cause)

	assert.True(t, IsHandshakeFailed(NewHandshakeFailedError("go", "x", nil)))
	assert.True(t, IsUnsupportedLanguage(fmt.Errorf("spawn: %w", NewUnsupportedLanguageError("x"))))
	assert.True(t, IsMethodNotSupported(NewMethodNotSupportedError("x")))
}

func TestNotInitializedCodes(t *testing.T) {
	var nie *NotInitializedError
	assert.True(t, stderrors.As(NewManagerNotInitializedError(), &nie))
	assert.Equal(t, CodeManagerNotInitialized, nie.Code)
	assert.True(t, stderrors.As(NewCacheNotInitializedError(), &nie))
	assert.Equal(t, CodeCacheNotInitialized, nie.Code)
	assert.True(t, IsNotInitialized(nie))
}
