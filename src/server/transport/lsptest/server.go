// Package lsptest provides an in-memory language server for tests.
package lsptest

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"lsp-proxy/src/server/protocol"
)

// HandlerFunc answers one request. Returning hold=true leaves it unanswered.
type HandlerFunc func(params json.RawMessage) (result interface{}, rpcErr *protocol.RPCError, hold bool)

// Received is a message the fake server read from the client side.
type Received struct {
	Kind   protocol.Kind
	ID     json.RawMessage
	Method string
	Params json.RawMessage
	Body   []byte
}

// Server is a fake language server speaking framed JSON-RPC over pipes.
type Server struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	received []Received
	notify   chan struct{}

	writeMu sync.Mutex
	in      *io.PipeReader
	out     *io.PipeWriter
	closed  chan struct{}
	once    sync.Once
}

// New returns the server plus the client's ends: the writer feeding the
// server's stdin and the reader carrying its stdout.
func New() (*Server, io.WriteCloser, io.Reader) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	s := &Server{
		handlers: make(map[string]HandlerFunc),
		notify:   make(chan struct{}, 1),
		in:       inR,
		out:      outW,
		closed:   make(chan struct{}),
	}
	go s.loop()
	return s, inW, outR
}

// On registers a handler for a request method.
func (s *Server) On(method string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

// Result registers a fixed result for a request method.
func (s *Server) Result(method string, result interface{}) {
	s.On(method, func(json.RawMessage) (interface{}, *protocol.RPCError, bool) {
		return result, nil, false
	})
}

// Hold makes the server never answer method.
func (s *Server) Hold(method string) {
	s.On(method, func(json.RawMessage) (interface{}, *protocol.RPCError, bool) {
		return nil, nil, true
	})
}

// Notify sends a server notification to the client.
func (s *Server) Notify(method string, params interface{}) error {
	return s.write(protocol.CreateNotification(method, params))
}

// Request sends a server-to-client request.
func (s *Server) Request(id interface{}, method string, params interface{}) error {
	return s.write(protocol.CreateMessage(method, id, params))
}

// WriteRaw writes an already framed or deliberately broken byte stream.
func (s *Server) WriteRaw(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.out.Write(b)
	return err
}

// Received returns a snapshot of everything read so far.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.received...)
}

// Count returns how many messages with method were read.
func (s *Server) Count(method string) int {
	n := 0
	for _, r := range s.Received() {
		if r.Method == method {
			n++
		}
	}
	return n
}

// WaitFor blocks until a message with method arrives or the timeout passes.
func (s *Server) WaitFor(method string, timeout time.Duration) (Received, bool) {
	deadline := time.After(timeout)
	for {
		for _, r := range s.Received() {
			if r.Method == method {
				return r, true
			}
		}
		select {
		case <-s.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return Received{}, false
		}
	}
}

// WaitForResponse blocks until the client answers the server request with id.
func (s *Server) WaitForResponse(id string, timeout time.Duration) (Received, bool) {
	deadline := time.After(timeout)
	for {
		for _, r := range s.Received() {
			if r.Kind == protocol.KindResponse && string(r.ID) == id {
				return r, true
			}
		}
		select {
		case <-s.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return Received{}, false
		}
	}
}

// Close simulates the process exiting.
func (s *Server) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.out.Close()
		s.in.Close()
	})
}

func (s *Server) write(msg protocol.JSONRPCMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteMessage(s.out, msg)
}

func (s *Server) loop() {
	defer s.Close()

	var buf protocol.FrameBuffer
	chunk := make([]byte, 4096)
	for {
		n, err := s.in.Read(chunk)
		for _, body := range buf.Push(chunk[:n]) {
			s.handle(body)
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) handle(body []byte) {
	frame, err := protocol.Classify(body)
	if err != nil {
		return
	}
	rec := Received{Kind: frame.Kind, ID: frame.ID, Method: frame.Method, Body: body}
	if frame.Kind != protocol.KindResponse {
		rec.Params = frame.Params()
	}

	s.mu.Lock()
	s.received = append(s.received, rec)
	handler := s.handlers[frame.Method]
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}

	if frame.Kind != protocol.KindRequest {
		return
	}
	var (
		result interface{}
		rpcErr *protocol.RPCError
		hold   bool
	)
	if handler != nil {
		result, rpcErr, hold = handler(rec.Params)
	}
	if hold {
		return
	}
	_ = s.write(protocol.CreateResponse(frame.ID, result, rpcErr))
}
