// Package errors provides the gateway's typed errors and wire codes.
package errors

// Standard JSON-RPC error codes
const (
	ParseError     = -32700 // Invalid JSON was received by the server
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist / is not available
	InvalidParams  = -32602 // Invalid method parameter(s)
	InternalError  = -32603 // Internal JSON-RPC error
)

// LSP-specific error codes
const (
	ServerNotInitialized = -32002
	UnknownErrorCode     = -32001
	RequestFailed        = -32803
)

// Gateway error codes (range: -33000 to -33099)
const (
	ProcessStartFailure = -33002
	ProcessTerminated   = -33005
	HandshakeFailure    = -33013
	UnsupportedLanguage = -33031
	StaleVersion        = -33041
)

// Codes of the not-initialized objects the client already understands.
const (
	CodeManagerNotInitialized = 0
	CodeCacheNotInitialized   = 1
)
