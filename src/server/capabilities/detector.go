// Package capabilities reads the capability set a language server announced in its initialize result.
package capabilities

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"lsp-proxy/src/internal/types"
)

// ServerCapabilities is the immutable outcome of one initialize handshake.
type ServerCapabilities struct {
	// Raw is the server's capabilities object, forwarded verbatim to clients.
	Raw json.RawMessage
}

// ParseCapabilities extracts capabilities from an initialize result. A result
// without a capabilities object is malformed.
func ParseCapabilities(result json.RawMessage) (*ServerCapabilities, error) {
	if len(result) == 0 {
		return nil, fmt.Errorf("initialize result is empty")
	}
	if !gjson.ValidBytes(result) {
		return nil, fmt.Errorf("initialize result is not valid JSON")
	}
	parsed := gjson.ParseBytes(result)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("initialize result is %s, expected an object", parsed.Type)
	}
	caps := parsed.Get("capabilities")
	if !caps.IsObject() {
		return nil, fmt.Errorf("initialize result has no capabilities object")
	}
	return &ServerCapabilities{Raw: json.RawMessage(caps.Raw)}, nil
}

// SupportsOpenClose reports whether didOpen/didClose should be sent.
// textDocumentSync is either a sync kind number or an options object.
func (c *ServerCapabilities) SupportsOpenClose() bool {
	if c == nil {
		return false
	}
	sync := gjson.GetBytes(c.Raw, "textDocumentSync")
	switch {
	case sync.Type == gjson.Number:
		return sync.Int() > 0
	case sync.IsObject():
		return sync.Get("openClose").Bool()
	default:
		return false
	}
}

var providerByMethod = map[string]string{
	types.MethodTextDocumentCompletion:     "completionProvider",
	types.MethodTextDocumentHover:          "hoverProvider",
	types.MethodTextDocumentSignatureHelp:  "signatureHelpProvider",
	types.MethodTextDocumentCodeAction:     "codeActionProvider",
	types.MethodTextDocumentDocumentSymbol: "documentSymbolProvider",
	types.MethodTextDocumentDefinition:     "definitionProvider",
}

// SupportsMethod checks the provider backing a request method. Methods
// without a known provider are assumed supported.
func (c *ServerCapabilities) SupportsMethod(method string) bool {
	if c == nil {
		return false
	}
	provider, ok := providerByMethod[method]
	if !ok {
		return true
	}
	return isCapabilitySupported(gjson.GetBytes(c.Raw, provider))
}

func isCapabilitySupported(capability gjson.Result) bool {
	switch {
	case !capability.Exists(), capability.Type == gjson.Null:
		return false
	case capability.Type == gjson.True, capability.Type == gjson.False:
		return capability.Bool()
	default:
		// options objects mean supported
		return true
	}
}
