// Package proxy exposes one running language server to a client connection.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/server/capabilities"
	"lsp-proxy/src/server/protocol"
	"lsp-proxy/src/server/transport"
)

// Client is the handle the manager and event handlers use.
type Client interface {
	Language() string
	SendRequest(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
	StartRequest(ctx context.Context, method string, params json.RawMessage) (PendingRequest, error)
	SendNotification(ctx context.Context, method string, params json.RawMessage) error
	SendResponse(ctx context.Context, id json.RawMessage, result json.RawMessage, rpcErr *protocol.RPCError) error
	Capabilities() *capabilities.ServerCapabilities
	SupportsOpenClose() bool
	Active() bool
	Destroy() error
}

// PendingRequest is a request already written to the server.
type PendingRequest interface {
	Wait(ctx context.Context) (json.RawMessage, error)
}

// Forwarder delivers language server traffic to the client channel.
type Forwarder interface {
	ForwardServerRequest(language string, message json.RawMessage)
	ForwardServerNotification(language string, message json.RawMessage)
}

// Proxy maps between the client's virtual workspace URIs (file:///<workspace>)
// and the scratch directory the server actually runs in.
type Proxy struct {
	language  string
	clientURI string
	serverURI string
	workDir   string

	transport *transport.Transport
	caps      *capabilities.ServerCapabilities
	forwarder Forwarder
	logger    *common.SafeLogger
}

func newProxy(language, workspace, workDir, serverURI string, fwd Forwarder) *Proxy {
	return &Proxy{
		language:  language,
		clientURI: common.WorkspaceURI(workspace),
		serverURI: serverURI,
		workDir:   workDir,
		forwarder: fwd,
		logger:    common.LSPLogger.With("language", language, "workspace", workspace),
	}
}

func (p *Proxy) Language() string {
	return p.language
}

// WorkDir is the scratch directory the server was started in.
func (p *Proxy) WorkDir() string {
	return p.workDir
}

func (p *Proxy) Capabilities() *capabilities.ServerCapabilities {
	return p.caps
}

func (p *Proxy) SupportsOpenClose() bool {
	return p.caps.SupportsOpenClose()
}

// Active reports whether the underlying transport is alive.
func (p *Proxy) Active() bool {
	return p.transport != nil && p.transport.Alive()
}

func (p *Proxy) SendRequest(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	pending, err := p.StartRequest(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

// StartRequest returns once the request frame has been written.
func (p *Proxy) StartRequest(ctx context.Context, method string, params json.RawMessage) (PendingRequest, error) {
	call, err := p.transport.Start(ctx, method, p.toServer(params))
	if err != nil {
		return nil, err
	}
	return &pendingRequest{proxy: p, call: call}, nil
}

type pendingRequest struct {
	proxy *Proxy
	call  *transport.Call
}

func (r *pendingRequest) Wait(ctx context.Context) (json.RawMessage, error) {
	result, err := r.call.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return r.proxy.toClient(result), nil
}

func (p *Proxy) SendNotification(ctx context.Context, method string, params json.RawMessage) error {
	return p.transport.Notify(ctx, method, p.toServer(params))
}

// SendResponse relays the client's answer to a server-initiated request.
func (p *Proxy) SendResponse(ctx context.Context, id json.RawMessage, result json.RawMessage, rpcErr *protocol.RPCError) error {
	return p.transport.Respond(ctx, id, p.toServer(result), rpcErr)
}

// Destroy stops the server; pending requests are rejected.
func (p *Proxy) Destroy() error {
	if p.transport == nil {
		return nil
	}
	p.logger.Info("Destroying %s language server", p.language)
	return p.transport.Close()
}

// HandleServerRequest implements transport.Handler.
func (p *Proxy) HandleServerRequest(frame *protocol.Frame) {
	if p.forwarder == nil {
		return
	}
	p.forwarder.ForwardServerRequest(p.language, p.toClient(frame.Body))
}

// HandleServerNotification implements transport.Handler.
func (p *Proxy) HandleServerNotification(frame *protocol.Frame) {
	if p.forwarder == nil {
		return
	}
	p.forwarder.ForwardServerNotification(p.language, p.toClient(frame.Body))
}

func (p *Proxy) toServer(raw json.RawMessage) json.RawMessage {
	return rewriteURIs(raw, p.clientURI, p.serverURI)
}

func (p *Proxy) toClient(raw json.RawMessage) json.RawMessage {
	return rewriteURIs(raw, p.serverURI, p.clientURI)
}

// rewriteURIs replaces the URI prefix from with to inside JSON string values.
// Only whole path segments match, so file:///proj never rewrites file:///proj2.
func rewriteURIs(raw json.RawMessage, from, to string) json.RawMessage {
	if len(raw) == 0 || from == to || !bytes.Contains(raw, []byte(from)) {
		return raw
	}
	out := bytes.ReplaceAll(raw, []byte(`"`+from+`/`), []byte(`"`+to+`/`))
	return bytes.ReplaceAll(out, []byte(`"`+from+`"`), []byte(`"`+to+`"`))
}
