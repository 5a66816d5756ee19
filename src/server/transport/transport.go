// Package transport speaks framed JSON-RPC with one language server process.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/internal/errors"
	"lsp-proxy/src/internal/types"
	"lsp-proxy/src/server/process"
	"lsp-proxy/src/server/protocol"
)

const readChunkSize = 32 * 1024

// Handler receives traffic initiated by the language server.
type Handler interface {
	HandleServerRequest(frame *protocol.Frame)
	HandleServerNotification(frame *protocol.Frame)
}

type response struct {
	result json.RawMessage
	err    error
}

type writeRequest struct {
	body  []byte
	errCh chan error
}

// Transport owns the framed byte streams of one language server. Outgoing
// frames go through writeCh to a single writer goroutine; incoming bytes are
// cut into frames by the reader goroutine and handed to the dispatcher.
type Transport struct {
	language string
	logger   *common.SafeLogger
	handler  Handler

	w       io.WriteCloser
	r       io.Reader
	writeCh chan writeRequest
	frameCh chan []byte

	mu      sync.Mutex
	pending map[int64]chan response
	closed  bool
	termErr error
	nextID  atomic.Int64

	done     chan struct{}
	termOnce sync.Once

	pm   process.ProcessManager
	proc *process.ProcessInfo
}

// New wires a transport over arbitrary streams and starts its goroutines.
func New(language string, w io.WriteCloser, r io.Reader, handler Handler) *Transport {
	t := &Transport{
		language: language,
		logger:   common.LSPLogger.With("language", language),
		handler:  handler,
		w:        w,
		r:        r,
		writeCh:  make(chan writeRequest),
		frameCh:  make(chan []byte, 64),
		pending:  make(map[int64]chan response),
		done:     make(chan struct{}),
	}
	go t.writeLoop()
	go t.readLoop()
	go t.dispatchLoop()
	return t
}

// Spawn starts the language server process and a transport over its stdio.
// Process exit terminates the transport.
func Spawn(pm process.ProcessManager, cfg process.Config, language string, handler Handler) (*Transport, error) {
	info, err := pm.StartProcess(cfg, language)
	if err != nil {
		return nil, err
	}
	t := New(language, info.Stdin, info.Stdout, handler)
	t.pm = pm
	t.proc = info
	go pm.MonitorProcess(info, func(exitErr error) {
		t.terminate(exitErr)
	})
	return t, nil
}

// Language returns the extension key this transport serves.
func (t *Transport) Language() string {
	return t.language
}

// Done is closed when the transport has terminated.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Alive reports whether the transport still accepts traffic.
func (t *Transport) Alive() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Err returns the cause of termination, nil while alive.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.termErr
}

// Call is a request whose frame has already been written to the server.
type Call struct {
	t      *Transport
	id     int64
	method string
	ch     chan response
}

// Request sends a request and waits for the matching response.
func (t *Transport) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	call, err := t.Start(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return call.Wait(ctx)
}

// Start registers a request and returns once its frame has been written.
// Frames from sequential Start and Notify calls reach the server in call order.
func (t *Transport) Start(ctx context.Context, method string, params interface{}) (*Call, error) {
	id := t.nextID.Add(1)
	ch := make(chan response, 1)

	t.mu.Lock()
	if t.closed {
		err := t.termErr
		t.mu.Unlock()
		return nil, err
	}
	t.pending[id] = ch
	t.mu.Unlock()

	if err := t.send(ctx, protocol.CreateMessage(method, id, params)); err != nil {
		t.removePending(id)
		return nil, err
	}
	return &Call{t: t, id: id, method: method, ch: ch}, nil
}

// Wait blocks until the response arrives, the transport terminates or ctx ends.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case resp := <-c.ch:
		return resp.result, resp.err
	case <-ctx.Done():
		c.t.removePending(c.id)
		return nil, fmt.Errorf("%s request %s (id %d): %w", c.t.language, c.method, c.id, ctx.Err())
	}
}

// Notify sends a notification without waiting for any reply.
func (t *Transport) Notify(ctx context.Context, method string, params interface{}) error {
	return t.send(ctx, protocol.CreateNotification(method, params))
}

// Respond answers a request the server sent to the client.
func (t *Transport) Respond(ctx context.Context, id json.RawMessage, result json.RawMessage, rpcErr *protocol.RPCError) error {
	var res interface{}
	if result != nil {
		res = result
	}
	return t.send(ctx, protocol.CreateResponse(id, res, rpcErr))
}

// SendShutdownRequest implements process.ShutdownSender.
func (t *Transport) SendShutdownRequest(ctx context.Context) error {
	_, err := t.Request(ctx, types.MethodShutdown, nil)
	return err
}

// SendExitNotification implements process.ShutdownSender.
func (t *Transport) SendExitNotification(ctx context.Context) error {
	return t.Notify(ctx, types.MethodExit, nil)
}

// Close stops the process (if any) and terminates the transport.
func (t *Transport) Close() error {
	if t.pm != nil && t.proc != nil {
		err := t.pm.StopProcess(t.proc, t)
		t.terminate(nil)
		return err
	}
	t.terminate(nil)
	return t.w.Close()
}

func (t *Transport) send(ctx context.Context, msg protocol.JSONRPCMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", t.language, err)
	}

	req := writeRequest{body: body, errCh: make(chan error, 1)}
	select {
	case t.writeCh <- req:
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.errCh:
		return err
	case <-t.done:
		return t.Err()
	}
}

func (t *Transport) writeLoop() {
	for {
		select {
		case req := <-t.writeCh:
			_, err := t.w.Write(protocol.EncodeFrame(req.body))
			if err != nil {
				err = errors.NewProcessTerminatedError(t.language, err)
				req.errCh <- err
				t.terminate(err)
				return
			}
			req.errCh <- nil
		case <-t.done:
			return
		}
	}
}

func (t *Transport) readLoop() {
	defer close(t.frameCh)

	var buf protocol.FrameBuffer
	chunk := make([]byte, readChunkSize)
	for {
		n, err := t.r.Read(chunk)
		if n > 0 {
			for _, body := range buf.Push(chunk[:n]) {
				select {
				case t.frameCh <- body:
				case <-t.done:
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				t.logger.Debug("read from %s server stopped: %v", t.language, err)
			}
			return
		}
	}
}

func (t *Transport) dispatchLoop() {
	for body := range t.frameCh {
		frame, err := protocol.Classify(body)
		if err != nil {
			t.logger.Warn("Dropping frame from %s server: %v", t.language, err)
			continue
		}

		switch frame.Kind {
		case protocol.KindResponse:
			t.resolve(frame)
		case protocol.KindRequest:
			if t.handler != nil {
				t.handler.HandleServerRequest(frame)
			}
		case protocol.KindNotification:
			if t.handler != nil {
				t.handler.HandleServerNotification(frame)
			}
		}
	}
	// stdout closed: the process is gone or going
	t.terminate(nil)
}

func (t *Transport) resolve(frame *protocol.Frame) {
	id, ok := frame.NumericID()
	if !ok {
		t.logger.Debug("Dropping %s response with non-numeric id %s", t.language, frame.ID)
		return
	}

	t.mu.Lock()
	ch, exists := t.pending[id]
	delete(t.pending, id)
	t.mu.Unlock()

	if !exists {
		t.logger.Debug("Dropping %s response for unknown id %d", t.language, id)
		return
	}

	if rpcErr := frame.RPCError(); rpcErr != nil {
		ch <- response{err: rpcErr}
		return
	}
	ch <- response{result: frame.Result()}
}

func (t *Transport) removePending(id int64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// terminate rejects every pending request and makes later sends fail. Only
// the first call has an effect.
func (t *Transport) terminate(cause error) {
	t.termOnce.Do(func() {
		err := cause
		if !errors.IsProcessTerminated(err) {
			err = errors.NewProcessTerminatedError(t.language, cause)
		}

		t.mu.Lock()
		t.closed = true
		t.termErr = err
		pending := t.pending
		t.pending = make(map[int64]chan response)
		t.mu.Unlock()

		close(t.done)
		for _, ch := range pending {
			ch <- response{err: err}
		}
		if len(pending) > 0 {
			t.logger.Warn("Rejected %d pending %s requests: %v", len(pending), t.language, err)
		}
	})
}

// Pending reports the number of outstanding requests.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
