// Package cache holds the authoritative, versioned copy of every document a
// connection has open, backed by the fast store and flushed to durable storage.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/internal/constants"
	"lsp-proxy/src/internal/errors"
	"lsp-proxy/src/internal/registry"
	"lsp-proxy/src/server/storage"
)

// Document is the cached state of one file. URI is the storage-relative path.
type Document struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int32  `json:"version"`
	Text       string `json:"text"`
}

// Cache is scoped to one connection's workspace.
type Cache struct {
	workspace string
	fast      storage.FastStore
	durable   storage.Storage
	logger    *common.SafeLogger
}

func New(workspace string, fast storage.FastStore, durable storage.Storage) *Cache {
	return &Cache{
		workspace: workspace,
		fast:      fast,
		durable:   durable,
		logger:    common.CacheLogger.With("workspace", workspace),
	}
}

func (c *Cache) Workspace() string {
	return c.workspace
}

func (c *Cache) keyPrefix() string {
	return constants.DocumentKeyPrefix + c.workspace + ":"
}

func (c *Cache) key(path string) string {
	return c.keyPrefix() + path
}

// normalize accepts a storage path or a client URI and keeps callers inside the workspace.
func (c *Cache) normalize(uri string) (string, error) {
	path, err := storage.CleanPath(common.StoragePath(uri))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(path, c.workspace+"/") {
		return "", fmt.Errorf("document %s is outside workspace %s", uri, c.workspace)
	}
	return path, nil
}

func decodeDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("corrupt cached document: %w", err)
	}
	return &doc, nil
}

// GetDocument returns the cached document, loading it from durable storage
// as version 1 on a miss.
func (c *Cache) GetDocument(ctx context.Context, uri string) (*Document, error) {
	path, err := c.normalize(uri)
	if err != nil {
		return nil, err
	}
	key := c.key(path)

	data, err := c.fast.Get(ctx, key)
	if err == nil {
		return decodeDocument(data)
	}
	if !stderrors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to read cached %s: %w", path, err)
	}

	c.logger.Info("Cache miss for %s, loading from storage", path)
	content, err := c.durable.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	doc := &Document{
		URI:        path,
		LanguageID: registry.LanguageID(path),
		Version:    1,
		Text:       string(content),
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	stored, err := c.fast.SetNX(ctx, key, encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to cache %s: %w", path, err)
	}
	if !stored {
		// a concurrent load or edit won; its copy is authoritative
		data, err := c.fast.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read cached %s: %w", path, err)
		}
		return decodeDocument(data)
	}
	return doc, nil
}

// CreateDocument registers a file the client just created. It fails if the
// file already exists in durable storage.
func (c *Cache) CreateDocument(ctx context.Context, uri string) (*Document, error) {
	path, err := c.normalize(uri)
	if err != nil {
		return nil, err
	}

	_, err = c.durable.ReadFile(ctx, path)
	switch {
	case err == nil:
		return nil, fmt.Errorf("failed to create %s: document already exists", path)
	case !storage.IsNotFound(err):
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := c.durable.WriteFile(ctx, path, nil); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	doc := &Document{URI: path, LanguageID: registry.LanguageID(path), Version: 1}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := c.fast.Set(ctx, c.key(path), encoded); err != nil {
		return nil, fmt.Errorf("failed to cache %s: %w", path, err)
	}
	return doc, nil
}

// DeleteDocument drops the cached copy without flushing and removes the file.
func (c *Cache) DeleteDocument(ctx context.Context, uri string) error {
	path, err := c.normalize(uri)
	if err != nil {
		return err
	}
	if err := c.fast.Delete(ctx, c.key(path)); err != nil {
		return fmt.Errorf("failed to evict %s: %w", path, err)
	}
	if err := c.durable.DeleteFile(ctx, path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// ApplyChanges applies a change batch under version. A version that does
// not advance the cached one fails with StaleVersion and changes nothing.
func (c *Cache) ApplyChanges(ctx context.Context, uri string, version int32, changes []ContentChange) (*Document, error) {
	doc, err := c.GetDocument(ctx, uri)
	if err != nil {
		return nil, err
	}
	path := doc.URI

	var updated *Document
	err = c.fast.Update(ctx, c.key(path), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, fmt.Errorf("document %s was evicted during update", path)
		}
		cached, err := decodeDocument(current)
		if err != nil {
			return nil, err
		}
		if version <= cached.Version {
			return nil, errors.NewStaleVersionError(path, version, cached.Version)
		}
		cached.Text = ApplyChanges(cached.Text, changes)
		cached.Version = version
		updated = cached
		return json.Marshal(cached)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SyncDocumentToStorage writes the cached text to durable storage, then
// evicts it. A failed write leaves the cache entry in place.
func (c *Cache) SyncDocumentToStorage(ctx context.Context, uri string) error {
	path, err := c.normalize(uri)
	if err != nil {
		return err
	}
	key := c.key(path)

	data, err := c.fast.Get(ctx, key)
	if stderrors.Is(err, storage.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cached %s: %w", path, err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return err
	}

	if err := c.durable.WriteFile(ctx, path, []byte(doc.Text)); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := c.fast.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to evict %s: %w", path, err)
	}
	c.logger.Debug("Synced %s (version %d) to storage", path, doc.Version)
	return nil
}

// SyncAllToStorage flushes every cached document of the workspace. Every
// document is attempted; failures are combined.
func (c *Cache) SyncAllToStorage(ctx context.Context) error {
	keys, err := c.fast.Keys(ctx, c.keyPrefix())
	if err != nil {
		return fmt.Errorf("failed to list cached documents: %w", err)
	}

	var (
		mu   sync.Mutex
		errs error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.SyncConcurrency)
	for _, key := range keys {
		path := strings.TrimPrefix(key, c.keyPrefix())
		g.Go(func() error {
			if err := c.SyncDocumentToStorage(gctx, path); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if errs != nil {
		c.logger.Error("Failed to sync some documents: %v", errs)
		return errs
	}
	c.logger.Info("Synced %d documents to storage", len(keys))
	return nil
}
