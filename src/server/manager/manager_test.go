package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsp-proxy/src/internal/errors"
	"lsp-proxy/src/server/capabilities"
	"lsp-proxy/src/server/protocol"
	"lsp-proxy/src/server/proxy"
)

type fakeClient struct {
	language  string
	alive     atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	fail      bool
	destroyed atomic.Int32
	started   atomic.Int32
}

func newFakeClient(language string) *fakeClient {
	c := &fakeClient{language: language, done: make(chan struct{})}
	c.alive.Store(true)
	return c
}

func (c *fakeClient) Language() string { return c.language }

func (c *fakeClient) SendRequest(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if c.fail {
		return nil, fmt.Errorf("%s: boom", c.language)
	}
	if method == "block" {
		<-c.done
		return nil, errors.NewProcessTerminatedError(c.language, nil)
	}
	return json.RawMessage(`"` + c.language + `"`), nil
}

func (c *fakeClient) StartRequest(ctx context.Context, method string, params json.RawMessage) (proxy.PendingRequest, error) {
	c.started.Add(1)
	return pendingCall{c: c, method: method}, nil
}

type pendingCall struct {
	c      *fakeClient
	method string
}

func (p pendingCall) Wait(ctx context.Context) (json.RawMessage, error) {
	return p.c.SendRequest(ctx, p.method, nil)
}

func (c *fakeClient) SendNotification(ctx context.Context, method string, params json.RawMessage) error {
	return nil
}

func (c *fakeClient) SendResponse(ctx context.Context, id json.RawMessage, result json.RawMessage, rpcErr *protocol.RPCError) error {
	return nil
}

func (c *fakeClient) Capabilities() *capabilities.ServerCapabilities { return nil }
func (c *fakeClient) SupportsOpenClose() bool                        { return true }
func (c *fakeClient) Active() bool                                   { return c.alive.Load() }

func (c *fakeClient) Destroy() error {
	c.destroyed.Add(1)
	c.alive.Store(false)
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

type fakeSpawner struct {
	mu      sync.Mutex
	calls   atomic.Int32
	release chan struct{}
	spawned []*fakeClient
	params  []json.RawMessage
	err     error
}

func (s *fakeSpawner) Spawn(ctx context.Context, req proxy.SpawnRequest) (proxy.Client, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	c := newFakeClient(req.Language)
	s.mu.Lock()
	s.spawned = append(s.spawned, c)
	s.params = append(s.params, req.InitializeParams)
	s.mu.Unlock()
	return c, nil
}

func TestSpawnIsSingleFlight(t *testing.T) {
	spawner := &fakeSpawner{release: make(chan struct{})}
	m := New("proj", spawner, nil, nil)

	const callers = 10
	results := make([]proxy.Client, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := m.Spawn(context.Background(), "ts")
			assert.NoError(t, err)
			results[i] = c
		}()
	}

	require.Eventually(t, func() bool { return spawner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(spawner.release)
	wg.Wait()

	assert.Equal(t, int32(1), spawner.calls.Load())
	for _, c := range results {
		assert.Same(t, results[0], c)
	}

	got, ok := m.GetClient("ts")
	require.True(t, ok)
	assert.Same(t, results[0], got)
}

func TestSpawnFailureIsNotCached(t *testing.T) {
	spawner := &fakeSpawner{err: errors.NewUnsupportedLanguageError("cobol")}
	m := New("proj", spawner, nil, nil)

	_, err := m.Spawn(context.Background(), "cobol")
	assert.True(t, errors.IsUnsupportedLanguage(err))
	_, err = m.Spawn(context.Background(), "cobol")
	assert.Error(t, err)
	assert.Equal(t, int32(2), spawner.calls.Load())

	_, ok := m.GetClient("cobol")
	assert.False(t, ok)
}

func TestSpawnCallerCancellation(t *testing.T) {
	spawner := &fakeSpawner{release: make(chan struct{})}
	m := New("proj", spawner, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Spawn(ctx, "go")
	assert.ErrorIs(t, err, context.Canceled)

	close(spawner.release)
	require.Eventually(t, func() bool {
		_, ok := m.GetClient("go")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestGetClientIgnoresDeadProxies(t *testing.T) {
	spawner := &fakeSpawner{}
	m := New("proj", spawner, nil, nil)

	c, spawned, err := m.GetOrSpawn(context.Background(), "go")
	require.NoError(t, err)
	assert.True(t, spawned)

	_, spawned, err = m.GetOrSpawn(context.Background(), "go")
	require.NoError(t, err)
	assert.False(t, spawned)

	first := c.(*fakeClient)
	first.alive.Store(false)
	_, ok := m.GetClient("go")
	assert.False(t, ok)

	second, spawned, err := m.GetOrSpawn(context.Background(), "go")
	require.NoError(t, err)
	assert.True(t, spawned)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(1), first.destroyed.Load())
}

func TestSetInitializeParamsAppliesToLaterSpawns(t *testing.T) {
	spawner := &fakeSpawner{}
	m := New("proj", spawner, nil, json.RawMessage(`{"a":1}`))

	_, err := m.Spawn(context.Background(), "go")
	require.NoError(t, err)
	m.SetInitializeParams(json.RawMessage(`{"a":2}`))
	_, err = m.Spawn(context.Background(), "ts")
	require.NoError(t, err)

	assert.JSONEq(t, `{"a":1}`, string(spawner.params[0]))
	assert.JSONEq(t, `{"a":2}`, string(spawner.params[1]))
	assert.JSONEq(t, `{"a":2}`, string(m.InitializeParams()))
}

func TestSendMessageToAllToleratesFailures(t *testing.T) {
	spawner := &fakeSpawner{}
	m := New("proj", spawner, nil, nil)
	for _, lang := range []string{"go", "ts", "rs"} {
		_, err := m.Spawn(context.Background(), lang)
		require.NoError(t, err)
	}
	spawner.spawned[1].fail = true

	outcomes := m.SendMessageToAll(context.Background(), "workspace/workspaceFolders", nil)
	require.Len(t, outcomes, 3)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			assert.Equal(t, "ts", o.Language)
			continue
		}
		assert.Equal(t, `"`+o.Language+`"`, string(o.Result))
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"go", "rs", "ts"}, m.Languages())
}

func TestStartAllWritesBeforeWaiting(t *testing.T) {
	spawner := &fakeSpawner{}
	m := New("proj", spawner, nil, nil)
	for _, lang := range []string{"go", "ts"} {
		_, err := m.Spawn(context.Background(), lang)
		require.NoError(t, err)
	}

	wait := m.StartAll(context.Background(), "block", nil)
	for _, c := range spawner.spawned {
		assert.Equal(t, int32(1), c.started.Load(), c.language)
	}

	done := make(chan []Outcome, 1)
	go func() { done <- wait() }()
	select {
	case <-done:
		t.Fatal("StartAll did not wait for responses")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.CloseAll())
	select {
	case outcomes := <-done:
		require.Len(t, outcomes, 2)
		for _, o := range outcomes {
			assert.True(t, errors.IsProcessTerminated(o.Err), "%s: %v", o.Language, o.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("responses never arrived")
	}
}

func TestCloseAllRejectsPendingRequests(t *testing.T) {
	spawner := &fakeSpawner{}
	m := New("proj", spawner, nil, nil)
	client, err := m.Spawn(context.Background(), "go")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.SendRequest(context.Background(), "block", nil)
		errCh <- err
	}()

	require.NoError(t, m.CloseAll())
	select {
	case err := <-errCh:
		assert.True(t, errors.IsProcessTerminated(err))
	case <-time.After(time.Second):
		t.Fatal("pending request survived CloseAll")
	}
	assert.Empty(t, m.Languages())

	// the manager stays usable after CloseAll
	_, err = m.Spawn(context.Background(), "go")
	assert.NoError(t, err)
}

func TestShutdownDestroysLateSpawns(t *testing.T) {
	spawner := &fakeSpawner{release: make(chan struct{})}
	m := New("proj", spawner, nil, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Spawn(context.Background(), "go")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return spawner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Shutdown())
	close(spawner.release)

	assert.Error(t, <-errCh)
	require.Len(t, spawner.spawned, 1)
	assert.Equal(t, int32(1), spawner.spawned[0].destroyed.Load())
	_, ok := m.GetClient("go")
	assert.False(t, ok)
}

func TestOnSpawnRunsOncePerSpawn(t *testing.T) {
	spawner := &fakeSpawner{release: make(chan struct{})}
	m := New("proj", spawner, nil, nil)
	var hooks atomic.Int32
	m.OnSpawn(func(c proxy.Client) {
		assert.Equal(t, "go", c.Language())
		hooks.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := m.GetOrSpawn(context.Background(), "go")
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return spawner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(spawner.release)
	wg.Wait()

	assert.Equal(t, int32(1), hooks.Load())
}
