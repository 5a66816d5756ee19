// Package storage holds the durable project store and the fast document store.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	// ErrFileNotFound is returned by Storage.ReadFile for absent paths.
	ErrFileNotFound = errors.New("file not found")
	// ErrKeyNotFound is returned by FastStore.Get for absent keys.
	ErrKeyNotFound = errors.New("key not found")
)

// Storage is the durable, cross-connection copy of every project's files.
// Paths are slash separated and relative to the store root, "<workspace>/<file>".
type Storage interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	ListFiles(ctx context.Context, prefix string) ([]string, error)
	DeleteFile(ctx context.Context, path string) error
}

// FastStore is the low-latency key/value store holding in-flight documents.
type FastStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Update applies fn to the current value atomically. fn sees nil when
	// the key is absent and may abort by returning an error.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
	Close() error
}

// IsNotFound reports whether err means a missing file or key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound) || errors.Is(err, ErrKeyNotFound)
}

// CleanPath normalizes a storage path and rejects ones escaping the root.
func CleanPath(p string) (string, error) {
	slashed := strings.ReplaceAll(p, `\`, "/")
	cleaned := path.Clean("/" + slashed)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", errors.New("empty storage path")
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", errors.New("storage path escapes root: " + p)
		}
	}
	return cleaned, nil
}
