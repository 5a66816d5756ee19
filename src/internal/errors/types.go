package errors

import (
	stderrors "errors"
	"fmt"
)

// UnsupportedLanguageError is returned when no server command is registered for an extension.
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("language '%s' is not supported by the proxy", e.Language)
}

func NewUnsupportedLanguageError(language string) error {
	return &UnsupportedLanguageError{Language: language}
}

func IsUnsupportedLanguage(err error) bool {
	var target *UnsupportedLanguageError
	return stderrors.As(err, &target)
}

// HandshakeFailedError means the initialize exchange did not yield a usable result.
type HandshakeFailedError struct {
	Language string
	Reason   string
	Cause    error
}

func (e *HandshakeFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("initialize handshake with %s server failed: %s: %v", e.Language, e.Reason, e.Cause)
	}
	return fmt.Sprintf("initialize handshake with %s server failed: %s", e.Language, e.Reason)
}

func (e *HandshakeFailedError) Unwrap() error {
	return e.Cause
}

func NewHandshakeFailedError(language, reason string, cause error) error {
	return &HandshakeFailedError{Language: language, Reason: reason, Cause: cause}
}

func IsHandshakeFailed(err error) bool {
	var target *HandshakeFailedError
	return stderrors.As(err, &target)
}

// StaleVersionError rejects a change batch whose version does not advance the cached one.
type StaleVersionError struct {
	URI      string
	Incoming int32
	Cached   int32
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("incoming version %d for %s is not newer than cached version %d", e.Incoming, e.URI, e.Cached)
}

func NewStaleVersionError(uri string, incoming, cached int32) error {
	return &StaleVersionError{URI: uri, Incoming: incoming, Cached: cached}
}

func IsStaleVersion(err error) bool {
	var target *StaleVersionError
	return stderrors.As(err, &target)
}

// ProcessTerminatedError is delivered to every request pending when a server exits.
type ProcessTerminatedError struct {
	Language string
	Cause    error
}

func (e *ProcessTerminatedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s language server process terminated: %v", e.Language, e.Cause)
	}
	return fmt.Sprintf("%s language server process terminated", e.Language)
}

func (e *ProcessTerminatedError) Unwrap() error {
	return e.Cause
}

func NewProcessTerminatedError(language string, cause error) error {
	return &ProcessTerminatedError{Language: language, Cause: cause}
}

func IsProcessTerminated(err error) bool {
	var target *ProcessTerminatedError
	return stderrors.As(err, &target)
}

// NotInitializedError is answered to clients that skip the initialize request.
type NotInitializedError struct {
	Code    int
	Message string
}

func (e *NotInitializedError) Error() string {
	return e.Message
}

func NewManagerNotInitializedError() error {
	return &NotInitializedError{Code: CodeManagerNotInitialized, Message: "lsp proxy is not initialized yet"}
}

func NewCacheNotInitializedError() error {
	return &NotInitializedError{Code: CodeCacheNotInitialized, Message: "file manager hasn't been initialized yet"}
}

func IsNotInitialized(err error) bool {
	var target *NotInitializedError
	return stderrors.As(err, &target)
}

// MethodNotSupportedError is returned for methods outside the proxied set.
type MethodNotSupportedError struct {
	Method string
}

func (e *MethodNotSupportedError) Error() string {
	return fmt.Sprintf("method '%s' is not supported by the proxy", e.Method)
}

func NewMethodNotSupportedError(method string) error {
	return &MethodNotSupportedError{Method: method}
}

func IsMethodNotSupported(err error) bool {
	var target *MethodNotSupportedError
	return stderrors.As(err, &target)
}
