package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/internal/constants"
	"lsp-proxy/src/server"
	"lsp-proxy/src/server/process"
	"lsp-proxy/src/server/proxy"
	"lsp-proxy/src/server/session"
	"lsp-proxy/src/server/storage"
)

// RunServer starts the gateway and blocks until SIGINT or SIGTERM
func RunServer(ctx context.Context, addr string, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := LoadConfigWithFallback(configPath)
	if err != nil {
		return err
	}
	common.SetLogLevel(common.ParseLogLevel(cfg.LogLevel))
	defer common.CLILogger.Sync()

	if addr == "" {
		addr = cfg.Listen
	}

	durable, err := buildStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open project storage: %w", err)
	}

	connectCtx, connectCancel := common.CreateContext(10 * time.Second)
	fast, err := storage.NewRedisStore(connectCtx, cfg.Redis.URL)
	connectCancel()
	if err != nil {
		return err
	}
	defer fast.Close()

	factory := proxy.NewFactory(proxy.FactoryOptions{
		BaseDirectory:     cfg.BaseDirectory,
		Languages:         cfg.Languages(),
		Storage:           durable,
		Starter:           proxy.ProcessStarter(process.NewLSPProcessManager(cfg.Timeouts.Shutdown)),
		InitializeTimeout: cfg.Timeouts.Initialize,
	})

	gateway := server.NewHTTPGateway(server.GatewayOptions{
		Addr: addr,
		Session: session.Options{
			Spawner:        factory,
			FastStore:      fast,
			Storage:        durable,
			RequestTimeout: cfg.Timeouts.Request,
		},
		Languages:      cfg.Extensions(),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := gateway.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	common.CLILogger.Info("LSP Proxy started on %s", gateway.Address())
	common.CLILogger.Info("Storage: %s, Redis: %s", cfg.Storage.Backend, cfg.Redis.URL)
	common.CLILogger.Info("Available languages: %s", strings.Join(cfg.Extensions(), ", "))
	common.CLILogger.Info("Websocket endpoint: ws://%s/api/lsp?workspace=<name>", gateway.Address())
	common.CLILogger.Info("Health check endpoint: http://%s/health", gateway.Address())

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		common.CLILogger.Info("Received shutdown signal, stopping gateway...")
	case <-ctx.Done():
	}

	// Stop waits for every session to flush its documents.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.TeardownTimeout+10*time.Second)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() {
		done <- gateway.Stop()
	}()

	select {
	case err := <-done:
		if err != nil {
			common.CLILogger.Warn("Gateway stopped with error: %v", err)
		} else {
			common.CLILogger.Info("Gateway stopped successfully")
		}
	case <-shutdownCtx.Done():
		common.CLILogger.Warn("Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}

	return nil
}

// ShowStatus reports which language servers are installed and whether the stores answer
func ShowStatus(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := LoadConfigWithFallback(configPath)
	if err != nil {
		return err
	}

	common.CLILogger.Info("LSP Proxy Status")
	common.CLILogger.Info("%s", strings.Repeat("=", 50))
	common.CLILogger.Info("Configured Languages: %d", len(cfg.Servers))

	for _, ext := range cfg.Extensions() {
		serverConfig := cfg.Servers[ext]
		if path, err := exec.LookPath(serverConfig.Command); err != nil {
			common.CLILogger.Warn("%s: Unavailable (%s not found)", ext, serverConfig.Command)
		} else {
			common.CLILogger.Info("%s: Available (%s)", ext, path)
		}
		common.CLILogger.Info("   Command: %s %v", serverConfig.Command, serverConfig.Args)
	}

	common.CLILogger.Info("%s", strings.Repeat("-", 30))

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var failed bool
	if fast, err := storage.NewRedisStore(checkCtx, cfg.Redis.URL); err != nil {
		failed = true
		common.CLILogger.Error("Redis: %v", err)
	} else {
		fast.Close()
		common.CLILogger.Info("Redis: OK (%s)", cfg.Redis.URL)
	}

	durable, err := buildStorage(cfg.Storage)
	if err == nil {
		err = checkStorage(checkCtx, durable)
	}
	if err != nil {
		failed = true
		common.CLILogger.Error("Storage (%s): %v", cfg.Storage.Backend, err)
	} else {
		common.CLILogger.Info("Storage (%s): OK", cfg.Storage.Backend)
	}

	if failed {
		return fmt.Errorf("one or more stores are unreachable")
	}
	return nil
}
