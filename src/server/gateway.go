package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/internal/constants"
	"lsp-proxy/src/server/session"
)

// GatewayOptions configures the HTTP gateway.
type GatewayOptions struct {
	Addr    string
	Session session.Options
	// Languages are the extensions with a registered language server.
	Languages []string
	// AllowedOrigins restricts websocket origins by host; empty allows any.
	AllowedOrigins []string
}

// HTTPGateway accepts client websocket connections and runs one session per
// connection.
type HTTPGateway struct {
	server    *http.Server
	listener  net.Listener
	upgrader  websocket.Upgrader
	sessOpts  session.Options
	languages []string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session.Conn
	wg       sync.WaitGroup
}

func NewHTTPGateway(opts GatewayOptions) *HTTPGateway {
	addr := opts.Addr
	if addr == "" {
		addr = constants.DefaultListenAddr
	}
	ctx, cancel := context.WithCancel(context.Background())

	gateway := &HTTPGateway{
		sessOpts:  opts.Session,
		languages: opts.Languages,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*session.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(opts.AllowedOrigins),
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/lsp", gateway.handleLSP)
	mux.HandleFunc("/health", gateway.handleHealth)
	mux.HandleFunc("/languages", gateway.handleLanguages)

	gateway.server = &http.Server{
		Addr:    addr,
		Handler: mux,
		// Prevent slowloris: bound time to read headers
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return gateway
}

// Start listens and serves in the background.
func (g *HTTPGateway) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.server.Addr, err)
	}
	g.listener = ln

	go func() {
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			common.GatewayLogger.Error("HTTP server error: %v", err)
		}
	}()
	common.GatewayLogger.Info("Listening on %s", ln.Addr())
	return nil
}

// Stop refuses new connections, closes every open session and waits for
// their teardown to finish.
func (g *HTTPGateway) Stop() error {
	ctx, cancel := common.CreateContext(constants.TeardownTimeout)
	defer cancel()

	var lastErr error
	if err := g.server.Shutdown(ctx); err != nil {
		common.GatewayLogger.Error("HTTP server shutdown error: %v", err)
		lastErr = err
	}

	g.mu.Lock()
	for _, conn := range g.sessions {
		_ = conn.Close()
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		lastErr = fmt.Errorf("sessions still closing: %w", ctx.Err())
	}
	g.cancel()
	return lastErr
}

// Address returns the bound address of the HTTP server (host:port). If not yet started, returns configured Addr.
func (g *HTTPGateway) Address() string {
	if g.listener != nil {
		return g.listener.Addr().String()
	}
	return g.server.Addr
}

// Port returns the actual TCP port the server is listening on, or 0 if unavailable.
func (g *HTTPGateway) Port() int {
	if g.listener == nil {
		return 0
	}
	if addr, ok := g.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// ActiveSessions returns the number of open client connections.
func (g *HTTPGateway) ActiveSessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *HTTPGateway) handleLSP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	workspace := r.URL.Query().Get("workspace")
	if workspace != "" {
		if err := common.ValidateWorkspace(workspace); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		common.GatewayLogger.Warn("Websocket upgrade failed: %v", err)
		return
	}

	conn := session.NewConn(ws, constants.MaxClientMessageBytes, constants.WebSocketWriteTimeout)
	opts := g.sessOpts
	opts.Workspace = workspace
	sess := session.New(conn, opts)

	g.mu.Lock()
	g.sessions[sess.ID()] = conn
	g.wg.Add(1)
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.sessions, sess.ID())
		g.mu.Unlock()
		_ = conn.Close()
		g.wg.Done()
	}()

	if err := sess.Run(g.ctx); err != nil {
		common.GatewayLogger.Error("Session %s closed with errors: %v", sess.ID(), err)
	}
}

func (g *HTTPGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":   "healthy",
		"sessions": g.ActiveSessions(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		common.GatewayLogger.Error("Failed to encode health response: %v", err)
	}
}

// handleLanguages returns the extensions a language server can be spawned for
func (g *HTTPGateway) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := map[string]interface{}{
		"extensions": g.languages,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		common.GatewayLogger.Error("Failed to encode languages response: %v", err)
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	hosts := make(map[string]bool, len(allowed))
	for _, h := range allowed {
		hosts[h] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return hosts[u.Host] || hosts[u.Hostname()]
	}
}
