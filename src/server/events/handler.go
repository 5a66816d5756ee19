// Package events coordinates the document cache and a language server proxy
// for each client document event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.lsp.dev/protocol"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/internal/errors"
	"lsp-proxy/src/internal/types"
	"lsp-proxy/src/server/cache"
	"lsp-proxy/src/server/proxy"
)

// DocumentCache is the part of cache.Cache the handler needs.
type DocumentCache interface {
	GetDocument(ctx context.Context, uri string) (*cache.Document, error)
	CreateDocument(ctx context.Context, uri string) (*cache.Document, error)
	DeleteDocument(ctx context.Context, uri string) error
	ApplyChanges(ctx context.Context, uri string, version int32, changes []cache.ContentChange) (*cache.Document, error)
	SyncDocumentToStorage(ctx context.Context, uri string) error
}

// DidChangeParams mirrors protocol.DidChangeTextDocumentParams, keeping the
// difference between a ranged edit and a full replacement.
type DidChangeParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []cache.ContentChange                    `json:"contentChanges"`
}

// Handler binds one proxy to one cache. It holds no state of its own and
// is cheap to build per message.
type Handler struct {
	proxy  proxy.Client
	cache  DocumentCache
	logger *common.SafeLogger
}

// New builds a handler. p may be nil for cache-only events.
func New(p proxy.Client, c DocumentCache) *Handler {
	return &Handler{proxy: p, cache: c, logger: common.GatewayLogger}
}

func decode(params json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// DidOpen loads the document from the cache and opens it on the language
// server with the cached version and text. The returned params carry the
// client URI and the cached content.
func (h *Handler) DidOpen(ctx context.Context, params json.RawMessage) (*protocol.DidOpenTextDocumentParams, error) {
	var p protocol.DidOpenTextDocumentParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	clientURI := string(p.TextDocument.URI)

	doc, err := h.cache.GetDocument(ctx, common.StoragePath(clientURI))
	if err != nil {
		return nil, err
	}

	opened := &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        p.TextDocument.URI,
			LanguageID: protocol.LanguageIdentifier(doc.LanguageID),
			Version:    doc.Version,
			Text:       doc.Text,
		},
	}
	body, err := json.Marshal(opened)
	if err != nil {
		return nil, err
	}
	if err := h.proxy.SendNotification(ctx, types.MethodTextDocumentDidOpen, body); err != nil {
		h.logger.Warn("Failed to open %s on language server: %v", clientURI, err)
	}
	return opened, nil
}

// DidChange hands the change to the language server, then applies it to the
// cache. Only a cache failure fails the call.
func (h *Handler) DidChange(ctx context.Context, params json.RawMessage) error {
	var p DidChangeParams
	if err := decode(params, &p); err != nil {
		return err
	}
	path := common.StoragePath(string(p.TextDocument.URI))

	if err := h.proxy.SendNotification(ctx, types.MethodTextDocumentDidChange, params); err != nil {
		// no resync: the next full open brings the server back in line
		h.logger.Error("Language server rejected change to %s: %v", path, err)
	}

	if _, err := h.cache.ApplyChanges(ctx, path, p.TextDocument.Version, p.ContentChanges); err != nil {
		h.logger.Error("Failed to apply changes to %s: %v", path, err)
		return err
	}
	h.logger.Debug("Applied changes to %s at version %d", path, p.TextDocument.Version)
	return nil
}

// DidClose flushes the document to storage and, if the server handles
// open/close, closes it there. Failures are logged only.
func (h *Handler) DidClose(ctx context.Context, params json.RawMessage) error {
	var p protocol.DidCloseTextDocumentParams
	if err := decode(params, &p); err != nil {
		return err
	}
	path := common.StoragePath(string(p.TextDocument.URI))

	var wg sync.WaitGroup
	if h.proxy != nil && h.proxy.SupportsOpenClose() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.proxy.SendNotification(ctx, types.MethodTextDocumentDidClose, params); err != nil {
				h.logger.Error("Failed to close %s on language server: %v", path, err)
			}
		}()
	}

	if err := h.cache.SyncDocumentToStorage(ctx, path); err != nil {
		h.logger.Error("Failed to flush %s: %v", path, err)
	}
	wg.Wait()
	return nil
}

// DidChangeWatchedFiles mirrors created and deleted files into the cache.
// Changes made outside the editor are not supported.
func (h *Handler) DidChangeWatchedFiles(ctx context.Context, params json.RawMessage) error {
	var p protocol.DidChangeWatchedFilesParams
	if err := decode(params, &p); err != nil {
		return err
	}

	for _, change := range p.Changes {
		if change == nil {
			continue
		}
		path := common.StoragePath(string(change.URI))
		switch change.Type {
		case protocol.FileChangeTypeCreated:
			if _, err := h.cache.CreateDocument(ctx, path); err != nil {
				return err
			}
		case protocol.FileChangeTypeDeleted:
			if err := h.cache.DeleteDocument(ctx, path); err != nil {
				return err
			}
		default:
			return errors.NewMethodNotSupportedError(fmt.Sprintf("%s (%s %s)",
				types.MethodWorkspaceDidChangeWatchedFiles, change.Type, change.URI))
		}
	}
	return nil
}

// The pass-through requests below return once the request is written to the
// language server. The caller waits for the response.

func (h *Handler) Completion(ctx context.Context, params json.RawMessage) (proxy.PendingRequest, error) {
	return h.start(ctx, types.MethodTextDocumentCompletion, params)
}

func (h *Handler) Hover(ctx context.Context, params json.RawMessage) (proxy.PendingRequest, error) {
	return h.start(ctx, types.MethodTextDocumentHover, params)
}

func (h *Handler) SignatureHelp(ctx context.Context, params json.RawMessage) (proxy.PendingRequest, error) {
	return h.start(ctx, types.MethodTextDocumentSignatureHelp, params)
}

func (h *Handler) CodeAction(ctx context.Context, params json.RawMessage) (proxy.PendingRequest, error) {
	return h.start(ctx, types.MethodTextDocumentCodeAction, params)
}

func (h *Handler) DocumentSymbol(ctx context.Context, params json.RawMessage) (proxy.PendingRequest, error) {
	return h.start(ctx, types.MethodTextDocumentDocumentSymbol, params)
}

func (h *Handler) Definition(ctx context.Context, params json.RawMessage) (proxy.PendingRequest, error) {
	return h.start(ctx, types.MethodTextDocumentDefinition, params)
}

func (h *Handler) start(ctx context.Context, method string, params json.RawMessage) (proxy.PendingRequest, error) {
	pending, err := h.proxy.StartRequest(ctx, method, params)
	if err != nil {
		h.logger.Debug("%s failed: %v", method, err)
		return nil, err
	}
	return pending, nil
}
