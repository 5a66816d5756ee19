package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/sjson"
	"go.lsp.dev/uri"
	"golang.org/x/sync/errgroup"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/internal/constants"
	"lsp-proxy/src/internal/errors"
	"lsp-proxy/src/internal/registry"
	"lsp-proxy/src/internal/types"
	"lsp-proxy/src/server/capabilities"
	"lsp-proxy/src/server/process"
	"lsp-proxy/src/server/storage"
	"lsp-proxy/src/server/transport"
)

// Starter launches the transport for a language server.
type Starter func(cfg process.Config, language string, handler transport.Handler) (*transport.Transport, error)

// ProcessStarter starts real processes through pm.
func ProcessStarter(pm process.ProcessManager) Starter {
	return func(cfg process.Config, language string, handler transport.Handler) (*transport.Transport, error) {
		return transport.Spawn(pm, cfg, language, handler)
	}
}

// SpawnRequest names what to spawn and on whose behalf.
type SpawnRequest struct {
	Workspace        string
	Language         string
	InitializeParams json.RawMessage
	Forwarder        Forwarder
}

// FactoryOptions configures a Factory.
type FactoryOptions struct {
	BaseDirectory     string
	Languages         map[string]registry.LanguageInfo
	Storage           storage.Storage
	Starter           Starter
	InitializeTimeout time.Duration
}

// Factory prepares a scratch directory, starts a server in it and performs
// the initialize handshake.
type Factory struct {
	baseDir     string
	languages   map[string]registry.LanguageInfo
	storage     storage.Storage
	start       Starter
	initTimeout time.Duration
}

func NewFactory(opts FactoryOptions) *Factory {
	languages := opts.Languages
	if languages == nil {
		languages = registry.DefaultLanguages()
	}
	baseDir := opts.BaseDirectory
	if baseDir == "" {
		baseDir = constants.DefaultBaseDirectory
	}
	initTimeout := opts.InitializeTimeout
	if initTimeout <= 0 {
		initTimeout = constants.DefaultInitializeTimeout
	}
	return &Factory{
		baseDir:     baseDir,
		languages:   languages,
		storage:     opts.Storage,
		start:       opts.Starter,
		initTimeout: initTimeout,
	}
}

// Supports reports whether a command is registered for language.
func (f *Factory) Supports(language string) bool {
	_, ok := f.languages[language]
	return ok
}

// Spawn returns a ready proxy or fails with UnsupportedLanguage or HandshakeFailed.
func (f *Factory) Spawn(ctx context.Context, req SpawnRequest) (Client, error) {
	lang, ok := f.languages[req.Language]
	if !ok {
		return nil, errors.NewUnsupportedLanguageError(req.Language)
	}
	if err := common.ValidateWorkspace(req.Workspace); err != nil {
		return nil, err
	}

	workDir, err := filepath.Abs(filepath.Join(f.baseDir, req.Workspace, req.Language))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory %s: %w", workDir, err)
	}

	if err := f.materialize(ctx, req.Workspace, workDir); err != nil {
		return nil, fmt.Errorf("failed to download project %s: %w", req.Workspace, err)
	}

	rootURI := string(uri.File(workDir))
	p := newProxy(req.Language, req.Workspace, workDir, rootURI, req.Forwarder)

	t, err := f.start(process.Config{
		Command:    lang.Command,
		Args:       lang.Args,
		WorkingDir: workDir,
	}, req.Language, p)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s language server: %w", req.Language, err)
	}
	p.transport = t

	if err := f.handshake(ctx, p, req); err != nil {
		_ = p.Destroy()
		return nil, err
	}
	p.logger.Info("%s language server ready in %s", req.Language, workDir)
	return p, nil
}

func (f *Factory) handshake(ctx context.Context, p *Proxy, req SpawnRequest) error {
	params, err := buildInitializeParams(req.InitializeParams, req.Workspace, p.workDir, p.serverURI)
	if err != nil {
		return errors.NewHandshakeFailedError(req.Language, "invalid initialize params", err)
	}

	initCtx, cancel := common.WithOptionalTimeout(ctx, f.initTimeout)
	defer cancel()

	// sent raw: client URIs inside the params were already replaced above
	result, err := p.transport.Request(initCtx, types.MethodInitialize, params)
	if err != nil {
		return errors.NewHandshakeFailedError(req.Language, "initialize request failed", err)
	}
	caps, err := capabilities.ParseCapabilities(result)
	if err != nil {
		return errors.NewHandshakeFailedError(req.Language, "malformed initialize result", err)
	}
	p.caps = caps

	if err := p.transport.Notify(ctx, types.MethodInitialized, json.RawMessage(`{}`)); err != nil {
		p.logger.Warn("Failed to send initialized notification: %v", err)
	}
	return nil
}

// buildInitializeParams points the client's InitializeParams at workDir.
func buildInitializeParams(base json.RawMessage, workspace, workDir, rootURI string) (json.RawMessage, error) {
	params := []byte(base)
	if len(params) == 0 || string(params) == "null" {
		params = []byte(`{"capabilities":{}}`)
	}

	var err error
	set := func(path string, value interface{}) {
		if err == nil {
			params, err = sjson.SetBytes(params, path, value)
		}
	}
	set("processId", os.Getpid())
	set("rootUri", rootURI)
	set("rootPath", workDir)
	set("workspaceFolders", []map[string]string{{"uri": rootURI, "name": workspace}})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(params), nil
}

// materialize copies the workspace's files from durable storage into workDir.
func (f *Factory) materialize(ctx context.Context, workspace, workDir string) error {
	if f.storage == nil {
		return nil
	}
	prefix := workspace + "/"
	files, err := f.storage.ListFiles(ctx, prefix)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.MaterializeConcurrency)
	for _, file := range files {
		rel := strings.TrimPrefix(file, prefix)
		target := filepath.Join(workDir, filepath.FromSlash(rel))
		if !strings.HasPrefix(target, workDir+string(filepath.Separator)) {
			common.StorageLogger.Warn("Skipping %s: outside working directory", file)
			continue
		}
		g.Go(func() error {
			data, err := f.storage.ReadFile(gctx, file)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			return os.WriteFile(target, data, 0o644)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	common.StorageLogger.Debug("Materialized %d files of %s into %s", len(files), workspace, workDir)
	return nil
}
