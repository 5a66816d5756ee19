package types

// LSP protocol lifecycle methods
const (
	// MethodInitialize is sent as the first request from client to server
	MethodInitialize = "initialize"
	// MethodInitialized is sent from client to server after the initialize response
	MethodInitialized = "initialized"
	// MethodShutdown is sent from client to server to shutdown the server
	MethodShutdown = "shutdown"
	// MethodExit is sent from client to server to exit the server process
	MethodExit = "exit"
)

// LSP document synchronization methods
const (
	MethodTextDocumentDidOpen   = "textDocument/didOpen"
	MethodTextDocumentDidChange = "textDocument/didChange"
	MethodTextDocumentDidClose  = "textDocument/didClose"
)

// LSP workspace methods
const (
	MethodWorkspaceFolders               = "workspace/workspaceFolders"
	MethodWorkspaceDidChangeWatchedFiles = "workspace/didChangeWatchedFiles"
)

// LSP language feature methods
const (
	// MethodTextDocumentDefinition provides go-to-definition functionality
	MethodTextDocumentDefinition = "textDocument/definition"
	// MethodTextDocumentHover provides hover information for symbols
	MethodTextDocumentHover = "textDocument/hover"
	// MethodTextDocumentDocumentSymbol returns document symbols outline
	MethodTextDocumentDocumentSymbol = "textDocument/documentSymbol"
	// MethodTextDocumentCompletion provides auto-completion suggestions
	MethodTextDocumentCompletion = "textDocument/completion"
	// MethodTextDocumentSignatureHelp returns signature information at a position
	MethodTextDocumentSignatureHelp = "textDocument/signatureHelp"
	// MethodTextDocumentCodeAction returns commands and fixes for a range
	MethodTextDocumentCodeAction = "textDocument/codeAction"
)

// Notifications the gateway emits toward the client.
const (
	MethodProxyInitialize   = "proxy/initialize"
	MethodProxyDocumentOpen = "proxy/textDocument/open"
)

// Envelope types exchanged with the client.
const (
	ClientToServerRequest      = "client-to-server-request"
	ClientToServerNotification = "client-to-server-notification"
	ClientToServerResponse     = "client-to-server-response"

	ServerToClientResponse     = "server-to-client-response"
	ServerToClientNotification = "server-to-client-notification"
	ServerToClientRequest      = "server-to-client-request"
	ServerToClientConfirmation = "server-to-client-confirmation"
)
