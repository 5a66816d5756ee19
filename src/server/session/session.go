// Package session serves one client websocket connection.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/internal/constants"
	"lsp-proxy/src/internal/errors"
	"lsp-proxy/src/internal/types"
	"lsp-proxy/src/server/cache"
	"lsp-proxy/src/server/events"
	"lsp-proxy/src/server/manager"
	"lsp-proxy/src/server/protocol"
	"lsp-proxy/src/server/proxy"
	"lsp-proxy/src/server/storage"
)

// Options carries the process-wide collaborators a session builds on.
type Options struct {
	Spawner        manager.Spawner
	FastStore      storage.FastStore
	Storage        storage.Storage
	RequestTimeout time.Duration
	// Workspace is used when initialize does not name one.
	Workspace string
}

type inbound struct {
	env *Envelope
	msg clientMessage
}

type responseMessage struct {
	Method string             `json:"method,omitempty"`
	Result json.RawMessage    `json:"result,omitempty"`
	Error  *protocol.RPCError `json:"error,omitempty"`
}

type notificationMessage struct {
	Method   string      `json:"method"`
	Language string      `json:"language,omitempty"`
	Params   interface{} `json:"params,omitempty"`
}

var confirmation = json.RawMessage(`{"result":{"success":true}}`)

// Session owns the proxy manager and document cache of one connection.
// One worker handles client messages in arrival order until their frame is
// written to the language server. Only the wait for a response runs
// concurrently.
type Session struct {
	id     string
	conn   *Conn
	opts   Options
	logger *common.SafeLogger

	mu        sync.RWMutex
	workspace string
	manager   *manager.Manager
	cache     *cache.Cache

	queue    chan inbound
	inflight sync.WaitGroup
}

func New(conn *Conn, opts Options) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		conn:   conn,
		opts:   opts,
		logger: common.GatewayLogger.With("conn", id, "workspace", opts.Workspace),
		queue:  make(chan inbound, constants.MessageQueueSize),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Run serves the connection until it closes, then destroys every language
// server and flushes every cached document.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	worker := make(chan struct{})
	go func() {
		defer close(worker)
		for in := range s.queue {
			s.handle(ctx, in.env, in.msg)
		}
	}()

	s.logger.Info("Client connected")
	var readErr error
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		s.receive(ctx, data)
	}
	if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		s.logger.Warn("Read error: %v", readErr)
	}

	// queued edits still reach the cache before it is flushed
	close(s.queue)
	<-worker
	cancel()
	s.inflight.Wait()

	err := s.teardown()
	s.logger.Info("Connection cleaned up")
	return err
}

func (s *Session) receive(ctx context.Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError(&env, protocol.NewRPCError(protocol.ParseError, fmt.Sprintf("invalid envelope: %v", err), nil))
		return
	}
	if env.Ctx == nil {
		env.Ctx = &Context{}
	}

	msg, err := decodeMessage(&env)
	if err != nil {
		s.sendError(&env, err)
		return
	}

	switch msg.(type) {
	case initializeRequest, clientResponse:
		// a server may block its own initialize on a client response
		s.handle(ctx, &env, msg)
	default:
		s.queue <- inbound{env: &env, msg: msg}
	}
}

// handle runs dispatch and, when it leaves a response to wait for, finishes
// that in the background.
func (s *Session) handle(ctx context.Context, env *Envelope, msg clientMessage) {
	ctx, cancel := common.WithOptionalTimeout(ctx, s.opts.RequestTimeout)
	finish, err := s.dispatch(ctx, env, msg)
	if err != nil || finish == nil {
		cancel()
		s.fail(env, msg, err)
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer cancel()
		s.fail(env, msg, finish())
	}()
}

func (s *Session) fail(env *Envelope, msg clientMessage, err error) {
	if err == nil {
		return
	}
	s.logger.Debug("%T failed: %v", msg, err)
	s.sendError(env, err)
}

func (s *Session) state() (*manager.Manager, *cache.Cache) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manager, s.cache
}

// ready resolves the manager, cache and, when msg needs one, the proxy for
// the envelope's language.
func (s *Session) ready(ctx context.Context, env *Envelope, msg clientMessage) (*manager.Manager, *cache.Cache, proxy.Client, error) {
	if _, ok := msg.(initializeRequest); ok {
		return nil, nil, nil, nil
	}
	mgr, c := s.state()
	if proxyBound(msg) && mgr == nil {
		return nil, nil, nil, errors.NewManagerNotInitializedError()
	}
	if c == nil {
		return nil, nil, nil, errors.NewCacheNotInitializedError()
	}

	switch msg.(type) {
	case workspaceFoldersRequest, clientResponse, didChangeWatchedFilesNotification:
		return mgr, c, nil, nil
	}
	client, _, err := mgr.GetOrSpawn(ctx, env.Ctx.Language)
	if err != nil {
		return nil, nil, nil, err
	}
	return mgr, c, client, nil
}

// dispatch returns once every frame msg produces has been written to the
// language servers. A non-nil finish waits for and relays their responses.
func (s *Session) dispatch(ctx context.Context, env *Envelope, msg clientMessage) (finish func() error, err error) {
	mgr, c, client, err := s.ready(ctx, env, msg)
	if err != nil {
		return nil, err
	}
	h := events.New(client, c)

	switch m := msg.(type) {
	case initializeRequest:
		return nil, s.initialize(env, m.params)
	case workspaceFoldersRequest:
		wait := mgr.StartAll(ctx, types.MethodWorkspaceFolders, m.params)
		return func() error {
			wait()
			return s.confirm(env)
		}, nil
	case completionRequest:
		return s.await(ctx, env, types.MethodTextDocumentCompletion)(h.Completion(ctx, m.params))
	case hoverRequest:
		return s.await(ctx, env, types.MethodTextDocumentHover)(h.Hover(ctx, m.params))
	case signatureHelpRequest:
		return s.await(ctx, env, types.MethodTextDocumentSignatureHelp)(h.SignatureHelp(ctx, m.params))
	case codeActionRequest:
		return s.await(ctx, env, types.MethodTextDocumentCodeAction)(h.CodeAction(ctx, m.params))
	case documentSymbolRequest:
		return s.await(ctx, env, types.MethodTextDocumentDocumentSymbol)(h.DocumentSymbol(ctx, m.params))
	case definitionRequest:
		return s.await(ctx, env, types.MethodTextDocumentDefinition)(h.Definition(ctx, m.params))
	case didOpenNotification:
		opened, err := h.DidOpen(ctx, m.params)
		if err != nil {
			return nil, err
		}
		if err := s.confirm(env); err != nil {
			return nil, err
		}
		return nil, s.notify(env.Ctx, types.MethodProxyDocumentOpen, opened)
	case didChangeNotification:
		if err := h.DidChange(ctx, m.params); err != nil {
			return nil, err
		}
		return nil, s.confirm(env)
	case didCloseNotification:
		if err := h.DidClose(ctx, m.params); err != nil {
			return nil, err
		}
		return nil, s.confirm(env)
	case didChangeWatchedFilesNotification:
		if err := h.DidChangeWatchedFiles(ctx, m.params); err != nil {
			return nil, err
		}
		return nil, s.confirm(env)
	case clientResponse:
		target, ok := mgr.GetClient(env.Ctx.Language)
		if !ok {
			s.logger.Warn("Dropping response %s: no %q language server", m.id, env.Ctx.Language)
			return nil, nil
		}
		return nil, target.SendResponse(ctx, m.id, m.result, m.err)
	default:
		return nil, fmt.Errorf("unhandled message %T", msg)
	}
}

// await turns a started request into the finish step that relays its
// response to the client.
func (s *Session) await(ctx context.Context, env *Envelope, method string) func(proxy.PendingRequest, error) (func() error, error) {
	return func(pending proxy.PendingRequest, err error) (func() error, error) {
		if err != nil {
			return nil, err
		}
		return func() error {
			return s.respond(env, method)(pending.Wait(ctx))
		}, nil
	}
}

// initialize binds the connection to a workspace on first call. Later calls
// only replace the params used for future spawns.
func (s *Session) initialize(env *Envelope, params json.RawMessage) error {
	workspace := env.Ctx.Workspace
	if workspace == "" {
		workspace = s.opts.Workspace
	}
	if err := common.ValidateWorkspace(workspace); err != nil {
		return protocol.NewRPCError(protocol.InvalidParams, err.Error(), nil)
	}

	s.mu.Lock()
	switch {
	case s.manager == nil:
		s.logger.Info("Received initialize request. Creating proxy manager for %s", workspace)
		s.workspace = workspace
		s.cache = cache.New(workspace, s.opts.FastStore, s.opts.Storage)
		s.manager = manager.New(workspace, s.opts.Spawner, s, params)
		s.manager.OnSpawn(s.announce)
	case s.workspace != workspace:
		current := s.workspace
		s.mu.Unlock()
		return protocol.NewRPCError(protocol.InvalidParams,
			fmt.Sprintf("connection is bound to workspace %s", current), nil)
	default:
		s.logger.Info("Updating proxy manager initialization params")
		s.manager.SetInitializeParams(params)
	}
	s.mu.Unlock()

	return s.confirm(env)
}

// announce tells the client a language server is ready and what it supports.
func (s *Session) announce(client proxy.Client) {
	params := map[string]json.RawMessage{"capabilities": json.RawMessage("{}")}
	if caps := client.Capabilities(); caps != nil {
		params["capabilities"] = caps.Raw
	}
	err := s.write(&Envelope{
		Ctx:     s.context(client.Language()),
		Type:    types.ServerToClientNotification,
		Message: mustMarshal(notificationMessage{Method: types.MethodProxyInitialize, Language: client.Language(), Params: params}),
	})
	if err != nil {
		s.logger.Warn("Failed to announce %s language server: %v", client.Language(), err)
	}
}

func (s *Session) teardown() error {
	mgr, c := s.state()
	var errs error
	if mgr != nil {
		s.logger.Info("Closing all language servers")
		errs = multierr.Append(errs, mgr.Shutdown())
	}
	if c != nil {
		s.logger.Info("Syncing all documents to storage")
		ctx, cancel := context.WithTimeout(context.Background(), constants.TeardownTimeout)
		defer cancel()
		errs = multierr.Append(errs, c.SyncAllToStorage(ctx))
	}
	if errs != nil {
		s.logger.Error("Teardown finished with errors: %v", errs)
	}
	return errs
}

func (s *Session) context(language string) *Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Context{Workspace: s.workspace, Language: language}
}

// ForwardServerRequest implements proxy.Forwarder.
func (s *Session) ForwardServerRequest(language string, message json.RawMessage) {
	if err := s.write(&Envelope{Ctx: s.context(language), Type: types.ServerToClientRequest, Message: message}); err != nil {
		s.logger.Debug("Failed to forward %s server request: %v", language, err)
	}
}

// ForwardServerNotification implements proxy.Forwarder.
func (s *Session) ForwardServerNotification(language string, message json.RawMessage) {
	if err := s.write(&Envelope{Ctx: s.context(language), Type: types.ServerToClientNotification, Message: message}); err != nil {
		s.logger.Debug("Failed to forward %s server notification: %v", language, err)
	}
}

func (s *Session) write(env *Envelope) error {
	return s.conn.WriteJSON(env)
}

func (s *Session) confirm(env *Envelope) error {
	return s.write(&Envelope{ID: env.ID, Ctx: env.Ctx, Type: types.ServerToClientConfirmation, Message: confirmation})
}

func (s *Session) respond(env *Envelope, method string) func(json.RawMessage, error) error {
	return func(result json.RawMessage, err error) error {
		if err != nil {
			return err
		}
		if result == nil {
			result = json.RawMessage("null")
		}
		return s.write(&Envelope{
			ID:      env.ID,
			Ctx:     env.Ctx,
			Type:    types.ServerToClientResponse,
			Message: mustMarshal(responseMessage{Method: method, Result: result}),
		})
	}
}

func (s *Session) notify(ctx *Context, method string, params interface{}) error {
	return s.write(&Envelope{
		Ctx:     ctx,
		Type:    types.ServerToClientNotification,
		Message: mustMarshal(notificationMessage{Method: method, Params: params}),
	})
}

func (s *Session) sendError(env *Envelope, err error) {
	werr := s.write(&Envelope{
		ID:      env.ID,
		Ctx:     env.Ctx,
		Type:    types.ServerToClientResponse,
		Message: mustMarshal(responseMessage{Error: protocol.ToRPCError(err)}),
	})
	if werr != nil {
		s.logger.Debug("Failed to send error response: %v", werr)
	}
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("session: encoding %T: %v", v, err))
	}
	return data
}
