package constants

import "time"

// Timeout constants for language server operations
const (
	DefaultRequestTimeout    = 30 * time.Second
	DefaultInitializeTimeout = 30 * time.Second
	WriteTimeout             = 10 * time.Second

	// Process management timeouts
	ProcessShutdownTimeout = 5 * time.Second
	ShutdownRequestTimeout = 2 * time.Second
	ExitNotifyTimeout      = 1 * time.Second
)

// Gateway defaults
const (
	DefaultListenAddr    = "localhost:8080"
	DefaultBaseDirectory = ".workspace-cache"
	DefaultRedisURL      = "redis://localhost:6379"
	DefaultStorageRoot   = "./projects"

	// Fast-store key namespace for cached documents
	DocumentKeyPrefix = "fs:file:"

	// Concurrent storage reads while materializing a project
	MaterializeConcurrency = 8
	// Concurrent flushes on teardown
	SyncConcurrency = 8

	// Attempts for optimistic fast-store transactions
	MaxTxRetries = 5

	// Maximum inbound websocket message size
	MaxClientMessageBytes = 16 << 20
	// Largest Content-Length accepted from a language server
	MaxFrameBytes = MaxClientMessageBytes
	WebSocketWriteTimeout = 10 * time.Second
	ReadHeaderTimeout     = 10 * time.Second

	// Upper bound on flushing a closed connection's documents
	TeardownTimeout = 60 * time.Second
	// Client messages buffered ahead of the ordered worker
	MessageQueueSize = 256
)
