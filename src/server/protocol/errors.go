package protocol

import (
	stderrors "errors"

	"lsp-proxy/src/internal/errors"
)

// ToRPCError maps a gateway error onto the error object sent to the client.
func ToRPCError(err error) *RPCError {
	if err == nil {
		return nil
	}

	var rpcErr *RPCError
	if stderrors.As(err, &rpcErr) {
		return rpcErr
	}

	var notInit *errors.NotInitializedError
	if stderrors.As(err, &notInit) {
		return NewRPCError(notInit.Code, notInit.Message, nil)
	}

	var unsupported *errors.UnsupportedLanguageError
	if stderrors.As(err, &unsupported) {
		return NewRPCError(errors.UnsupportedLanguage, err.Error(), map[string]string{"language": unsupported.Language})
	}

	var handshake *errors.HandshakeFailedError
	if stderrors.As(err, &handshake) {
		return NewRPCError(errors.HandshakeFailure, err.Error(), map[string]string{"language": handshake.Language})
	}

	var stale *errors.StaleVersionError
	if stderrors.As(err, &stale) {
		return NewRPCError(errors.StaleVersion, err.Error(), map[string]interface{}{
			"uri":      stale.URI,
			"incoming": stale.Incoming,
			"cached":   stale.Cached,
		})
	}

	var terminated *errors.ProcessTerminatedError
	if stderrors.As(err, &terminated) {
		return NewRPCError(errors.ProcessTerminated, err.Error(), map[string]string{"language": terminated.Language})
	}

	var unsupportedMethod *errors.MethodNotSupportedError
	if stderrors.As(err, &unsupportedMethod) {
		return NewRPCError(MethodNotFound, err.Error(), map[string]string{"method": unsupportedMethod.Method})
	}

	return NewRPCError(errors.RequestFailed, err.Error(), nil)
}
