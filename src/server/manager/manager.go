// Package manager tracks one connection's language server proxies.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/server/proxy"
)

// Spawner creates ready proxies; proxy.Factory is the production one.
type Spawner interface {
	Spawn(ctx context.Context, req proxy.SpawnRequest) (proxy.Client, error)
}

// Outcome is one proxy's answer to a broadcast request.
type Outcome struct {
	Language string
	Result   json.RawMessage
	Err      error
}

// Manager owns the proxy registry of a single connection. At most one proxy
// per language is active, and concurrent spawns of a language share one
// subprocess.
type Manager struct {
	workspace string
	spawner   Spawner
	forwarder proxy.Forwarder
	logger    *common.SafeLogger

	mu         sync.RWMutex
	clients    map[string]proxy.Client
	initParams json.RawMessage
	shutdown   bool
	onSpawn    func(proxy.Client)

	group singleflight.Group
}

func New(workspace string, spawner Spawner, forwarder proxy.Forwarder, initParams json.RawMessage) *Manager {
	return &Manager{
		workspace:  workspace,
		spawner:    spawner,
		forwarder:  forwarder,
		logger:     common.LSPLogger.With("workspace", workspace),
		clients:    make(map[string]proxy.Client),
		initParams: initParams,
	}
}

// SetInitializeParams replaces the params used for future spawns. Running
// proxies keep the params they were started with.
func (m *Manager) SetInitializeParams(params json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initParams = params
}

// OnSpawn registers fn to run once for every proxy this manager spawns.
func (m *Manager) OnSpawn(fn func(proxy.Client)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSpawn = fn
}

func (m *Manager) InitializeParams() json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initParams
}

// GetClient returns the proxy for language if its transport is alive.
func (m *Manager) GetClient(language string) (proxy.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[language]
	if !ok || !client.Active() {
		return nil, false
	}
	return client, true
}

// Spawn starts the proxy for language, or joins a spawn already in flight.
// The spawn itself outlives ctx so other waiters are not cancelled with it.
func (m *Manager) Spawn(ctx context.Context, language string) (proxy.Client, error) {
	ch := m.group.DoChan(language, func() (interface{}, error) {
		return m.spawn(context.WithoutCancel(ctx), language)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(proxy.Client), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetOrSpawn returns the active proxy, spawning it when absent. spawned
// reports whether this call had to spawn.
func (m *Manager) GetOrSpawn(ctx context.Context, language string) (client proxy.Client, spawned bool, err error) {
	if client, ok := m.GetClient(language); ok {
		return client, false, nil
	}
	client, err = m.Spawn(ctx, language)
	return client, err == nil, err
}

func (m *Manager) spawn(ctx context.Context, language string) (proxy.Client, error) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, fmt.Errorf("proxy manager for %s is shut down", m.workspace)
	}
	stale, exists := m.clients[language]
	if exists && stale.Active() {
		m.mu.Unlock()
		return stale, nil
	}
	delete(m.clients, language)
	params := m.initParams
	m.mu.Unlock()

	if exists {
		if err := stale.Destroy(); err != nil {
			m.logger.Debug("Destroying dead %s proxy: %v", language, err)
		}
	}

	m.logger.Info("Spawning %s language server", language)
	client, err := m.spawner.Spawn(ctx, proxy.SpawnRequest{
		Workspace:        m.workspace,
		Language:         language,
		InitializeParams: params,
		Forwarder:        m.forwarder,
	})
	if err != nil {
		m.logger.Error("Failed to spawn %s language server: %v", language, err)
		return nil, err
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		_ = client.Destroy()
		return nil, fmt.Errorf("proxy manager for %s is shut down", m.workspace)
	}
	m.clients[language] = client
	hook := m.onSpawn
	m.mu.Unlock()

	if hook != nil {
		hook(client)
	}
	return client, nil
}

// Languages lists the languages with an active proxy.
func (m *Manager) Languages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	languages := make([]string, 0, len(m.clients))
	for lang, client := range m.clients {
		if client.Active() {
			languages = append(languages, lang)
		}
	}
	sort.Strings(languages)
	return languages
}

// SendMessageToAll sends the same request to every active proxy and waits for
// all of them. One proxy failing does not stop the others.
func (m *Manager) SendMessageToAll(ctx context.Context, method string, params json.RawMessage) []Outcome {
	return m.StartAll(ctx, method, params)()
}

// StartAll writes the request to every active proxy in turn and returns a
// function that waits for the responses.
func (m *Manager) StartAll(ctx context.Context, method string, params json.RawMessage) func() []Outcome {
	m.mu.RLock()
	targets := make([]proxy.Client, 0, len(m.clients))
	for _, client := range m.clients {
		if client.Active() {
			targets = append(targets, client)
		}
	}
	m.mu.RUnlock()

	outcomes := make([]Outcome, len(targets))
	pending := make([]proxy.PendingRequest, len(targets))
	for i, client := range targets {
		outcomes[i].Language = client.Language()
		pending[i], outcomes[i].Err = client.StartRequest(ctx, method, params)
	}

	return func() []Outcome {
		var g errgroup.Group
		for i := range targets {
			if pending[i] == nil {
				continue
			}
			g.Go(func() error {
				outcomes[i].Result, outcomes[i].Err = pending[i].Wait(ctx)
				return nil
			})
		}
		_ = g.Wait()
		for _, o := range outcomes {
			if o.Err != nil {
				m.logger.Warn("%s to %s failed: %v", method, o.Language, o.Err)
			}
		}
		return outcomes
	}
}

// CloseAll swaps in an empty registry and destroys every proxy it held.
// Spawns racing with it land in the new registry.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	old := m.clients
	m.clients = make(map[string]proxy.Client)
	m.mu.Unlock()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  error
	)
	for lang, client := range old {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Destroy(); err != nil {
				errMu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("destroy %s: %w", lang, err))
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(old) > 0 {
		m.logger.Info("Closed %d language servers", len(old))
	}
	return errs
}

// Shutdown closes every proxy and refuses later spawns. A spawn finishing
// after Shutdown is destroyed instead of registered.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
	return m.CloseAll()
}
