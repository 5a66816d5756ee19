package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/internal/constants"
)

// Config describes how to launch one language server.
type Config struct {
	Command    string
	Args       []string
	WorkingDir string
	Env        map[string]string
}

// ProcessInfo holds information about a running language server process
type ProcessInfo struct {
	Cmd      *exec.Cmd
	Stdin    io.WriteCloser
	Stdout   io.ReadCloser
	Stderr   io.ReadCloser
	StopCh   chan struct{}
	Language string

	// Exited is closed once the process has been reaped; ExitErr is valid after that.
	Exited  chan struct{}
	ExitErr error

	active          atomic.Bool
	intentionalStop atomic.Bool
	stopOnce        sync.Once
	cleanupOnce     sync.Once
}

// Active reports whether the process is running and has not been asked to stop.
func (p *ProcessInfo) Active() bool {
	return p.active.Load()
}

// IntentionalStop reports whether StopProcess was called.
func (p *ProcessInfo) IntentionalStop() bool {
	return p.intentionalStop.Load()
}

func (p *ProcessInfo) signalStop() {
	p.stopOnce.Do(func() { close(p.StopCh) })
}

// ShutdownSender sends the LSP shutdown sequence over the process streams
type ShutdownSender interface {
	SendShutdownRequest(ctx context.Context) error
	SendExitNotification(ctx context.Context) error
}

// ProcessManager interface for language server process lifecycle management
type ProcessManager interface {
	StartProcess(config Config, language string) (*ProcessInfo, error)
	StopProcess(info *ProcessInfo, sender ShutdownSender) error
	MonitorProcess(info *ProcessInfo, onExit func(error))
	CleanupProcess(info *ProcessInfo)
}

// LSPProcessManager implements ProcessManager for language server processes
type LSPProcessManager struct {
	shutdownTimeout time.Duration
}

// NewLSPProcessManager creates a new process manager. A zero timeout uses the default.
func NewLSPProcessManager(shutdownTimeout time.Duration) *LSPProcessManager {
	if shutdownTimeout <= 0 {
		shutdownTimeout = constants.ProcessShutdownTimeout
	}
	return &LSPProcessManager{shutdownTimeout: shutdownTimeout}
}

// StartProcess initializes and starts a language server process
func (pm *LSPProcessManager) StartProcess(config Config, language string) (*ProcessInfo, error) {
	if config.Command == "" {
		return nil, fmt.Errorf("no command configured for %s", language)
	}

	cmd := exec.Command(config.Command, config.Args...)
	cmd.Dir = config.WorkingDir
	if len(config.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range config.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	setProcAttrs(cmd)

	info := &ProcessInfo{
		Cmd:      cmd,
		StopCh:   make(chan struct{}),
		Exited:   make(chan struct{}),
		Language: language,
	}

	var err error
	info.Stdin, err = cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	info.Stdout, err = cmd.StdoutPipe()
	if err != nil {
		info.Stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	info.Stderr, err = cmd.StderrPipe()
	if err != nil {
		info.Stdin.Close()
		info.Stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		pm.CleanupProcess(info)
		return nil, fmt.Errorf("failed to start %s language server: %w", language, err)
	}
	info.active.Store(true)

	// Wait is called exactly once, here; everyone else observes Exited.
	go func() {
		info.ExitErr = cmd.Wait()
		info.active.Store(false)
		close(info.Exited)
		info.signalStop()
	}()
	go drainStderr(info)

	common.LSPLogger.Info("Started %s language server: %s (PID %d, dir %s)", language, config.Command, cmd.Process.Pid, config.WorkingDir)
	return info, nil
}

// StopProcess runs the shutdown sequence and kills the process if it does not exit in time
func (pm *LSPProcessManager) StopProcess(info *ProcessInfo, sender ShutdownSender) error {
	if info == nil {
		return nil
	}

	info.intentionalStop.Store(true)

	select {
	case <-info.Exited:
		pm.CleanupProcess(info)
		return nil
	default:
	}

	if sender != nil {
		pm.sendShutdown(sender)
	}

	info.active.Store(false)
	info.signalStop()

	if info.Cmd != nil && info.Cmd.Process != nil {
		select {
		case <-info.Exited:
		case <-time.After(pm.shutdownTimeout):
			common.LSPLogger.Debug("%s language server did not exit within %v, force killing", info.Language, pm.shutdownTimeout)
			if err := killProcess(info.Cmd.Process); err != nil {
				common.LSPLogger.Debug("Failed to kill %s language server: %v", info.Language, err)
			}
			<-info.Exited
		}
	}

	pm.CleanupProcess(info)
	return nil
}

// MonitorProcess blocks until the process exits and reports the exit error
func (pm *LSPProcessManager) MonitorProcess(info *ProcessInfo, onExit func(error)) {
	if info == nil || info.Cmd == nil || info.Exited == nil {
		common.LSPLogger.Error("MonitorProcess called with nil process info")
		if onExit != nil {
			onExit(fmt.Errorf("invalid process info"))
		}
		return
	}

	<-info.Exited
	err := info.ExitErr

	switch {
	case info.IntentionalStop():
		common.LSPLogger.Debug("%s language server stopped: %v", info.Language, err)
	case err != nil:
		common.LSPLogger.Error("%s language server crashed unexpectedly: %v", info.Language, err)
	default:
		common.LSPLogger.Warn("%s language server exited on its own", info.Language)
	}

	if onExit != nil {
		onExit(err)
	}
}

// CleanupProcess closes the stdin pipe. Stdout and stderr are closed by Wait.
func (pm *LSPProcessManager) CleanupProcess(info *ProcessInfo) {
	if info == nil {
		return
	}
	info.cleanupOnce.Do(func() {
		if info.Stdin != nil {
			info.Stdin.Close()
		}
	})
}

func (pm *LSPProcessManager) sendShutdown(sender ShutdownSender) {
	shutdownCtx, shutdownCancel := common.CreateContext(constants.ShutdownRequestTimeout)
	defer shutdownCancel()

	if err := sender.SendShutdownRequest(shutdownCtx); err != nil {
		common.LSPLogger.Debug("shutdown request failed: %v", err)
	}

	exitCtx, exitCancel := common.CreateContext(constants.ExitNotifyTimeout)
	defer exitCancel()

	if err := sender.SendExitNotification(exitCtx); err != nil {
		common.LSPLogger.Debug("exit notification failed: %v", err)
	}
}

// drainStderr forwards server stderr to the debug log so the pipe never fills.
func drainStderr(info *ProcessInfo) {
	scanner := bufio.NewScanner(info.Stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		common.LSPLogger.Debug("[%s stderr] %s", info.Language, scanner.Text())
	}
}
