package session

import (
	"encoding/json"
	"fmt"

	"lsp-proxy/src/internal/types"
	"lsp-proxy/src/server/protocol"
)

// Context scopes an envelope to a workspace and, for proxy traffic, a language.
type Context struct {
	Workspace string `json:"workspace"`
	Language  string `json:"language,omitempty"`
}

// Envelope is one websocket message in either direction.
type Envelope struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Ctx     *Context        `json:"ctx,omitempty"`
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
}

type lspMessage struct {
	ID     json.RawMessage    `json:"id,omitempty"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params,omitempty"`
	Result json.RawMessage    `json:"result,omitempty"`
	Error  *protocol.RPCError `json:"error,omitempty"`
}

// clientMessage is the closed set of messages a client may send. Each
// variant has exactly one case in Session.dispatch.
type clientMessage interface {
	clientMessage()
}

type (
	initializeRequest       struct{ params json.RawMessage }
	workspaceFoldersRequest struct{ params json.RawMessage }
	completionRequest       struct{ params json.RawMessage }
	hoverRequest            struct{ params json.RawMessage }
	signatureHelpRequest    struct{ params json.RawMessage }
	codeActionRequest       struct{ params json.RawMessage }
	documentSymbolRequest   struct{ params json.RawMessage }
	definitionRequest       struct{ params json.RawMessage }

	didOpenNotification               struct{ params json.RawMessage }
	didChangeNotification             struct{ params json.RawMessage }
	didCloseNotification              struct{ params json.RawMessage }
	didChangeWatchedFilesNotification struct{ params json.RawMessage }

	// clientResponse answers a request the language server sent.
	clientResponse struct {
		id     json.RawMessage
		result json.RawMessage
		err    *protocol.RPCError
	}
)

func (initializeRequest) clientMessage()                 {}
func (workspaceFoldersRequest) clientMessage()           {}
func (completionRequest) clientMessage()                 {}
func (hoverRequest) clientMessage()                      {}
func (signatureHelpRequest) clientMessage()              {}
func (codeActionRequest) clientMessage()                 {}
func (documentSymbolRequest) clientMessage()             {}
func (definitionRequest) clientMessage()                 {}
func (didOpenNotification) clientMessage()               {}
func (didChangeNotification) clientMessage()             {}
func (didCloseNotification) clientMessage()              {}
func (didChangeWatchedFilesNotification) clientMessage() {}
func (clientResponse) clientMessage()                    {}

// decodeMessage turns an envelope into its typed message. Unknown types and
// methods are rejected with MethodNotFound.
func decodeMessage(env *Envelope) (clientMessage, error) {
	var msg lspMessage
	if len(env.Message) > 0 {
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return nil, protocol.NewRPCError(protocol.ParseError, fmt.Sprintf("invalid message: %v", err), nil)
		}
	}

	switch env.Type {
	case types.ClientToServerRequest:
		switch msg.Method {
		case types.MethodInitialize:
			return initializeRequest{msg.Params}, nil
		case types.MethodWorkspaceFolders:
			return workspaceFoldersRequest{msg.Params}, nil
		case types.MethodTextDocumentCompletion:
			return completionRequest{msg.Params}, nil
		case types.MethodTextDocumentHover:
			return hoverRequest{msg.Params}, nil
		case types.MethodTextDocumentSignatureHelp:
			return signatureHelpRequest{msg.Params}, nil
		case types.MethodTextDocumentCodeAction:
			return codeActionRequest{msg.Params}, nil
		case types.MethodTextDocumentDocumentSymbol:
			return documentSymbolRequest{msg.Params}, nil
		case types.MethodTextDocumentDefinition:
			return definitionRequest{msg.Params}, nil
		}
	case types.ClientToServerNotification:
		switch msg.Method {
		case types.MethodTextDocumentDidOpen:
			return didOpenNotification{msg.Params}, nil
		case types.MethodTextDocumentDidChange:
			return didChangeNotification{msg.Params}, nil
		case types.MethodTextDocumentDidClose:
			return didCloseNotification{msg.Params}, nil
		case types.MethodWorkspaceDidChangeWatchedFiles:
			return didChangeWatchedFilesNotification{msg.Params}, nil
		}
	case types.ClientToServerResponse:
		if len(msg.ID) == 0 {
			return nil, protocol.NewRPCError(protocol.InvalidRequest, "response without id", nil)
		}
		return clientResponse{id: msg.ID, result: msg.Result, err: msg.Error}, nil
	default:
		return nil, protocol.NewRPCError(protocol.InvalidRequest,
			fmt.Sprintf("message type %q is not supported by proxy", env.Type), nil)
	}
	return nil, protocol.NewMethodNotFoundError(msg.Method)
}

// proxyBound reports whether msg needs a language server.
func proxyBound(msg clientMessage) bool {
	switch msg.(type) {
	case didChangeWatchedFilesNotification, initializeRequest:
		return false
	default:
		return true
	}
}
