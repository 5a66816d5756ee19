package capabilities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsp-proxy/src/internal/types"
)

func TestParseCapabilities(t *testing.T) {
	tests := []struct {
		name    string
		result  string
		wantErr bool
	}{
		{"valid", `{"capabilities":{"hoverProvider":true}}`, false},
		{"empty capabilities", `{"capabilities":{}}`, false},
		{"null result", `null`, true},
		{"missing capabilities", `{"serverInfo":{"name":"x"}}`, true},
		{"capabilities not object", `{"capabilities":true}`, true},
		{"not json", `{"capabilities":`, true},
		{"empty", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps, err := ParseCapabilities(json.RawMessage(tt.result))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, caps.Raw)
		})
	}
}

func TestSupportsOpenClose(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   bool
	}{
		{"options with openClose", `{"capabilities":{"textDocumentSync":{"openClose":true,"change":2}}}`, true},
		{"options without openClose", `{"capabilities":{"textDocumentSync":{"change":2}}}`, false},
		{"incremental kind", `{"capabilities":{"textDocumentSync":2}}`, true},
		{"none kind", `{"capabilities":{"textDocumentSync":0}}`, false},
		{"absent", `{"capabilities":{}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps, err := ParseCapabilities(json.RawMessage(tt.result))
			require.NoError(t, err)
			assert.Equal(t, tt.want, caps.SupportsOpenClose())
		})
	}

	var nilCaps *ServerCapabilities
	assert.False(t, nilCaps.SupportsOpenClose())
}

func TestSupportsMethod(t *testing.T) {
	caps, err := ParseCapabilities(json.RawMessage(`{"capabilities":{
		"hoverProvider":true,
		"completionProvider":{"triggerCharacters":["."]},
		"definitionProvider":false
	}}`))
	require.NoError(t, err)

	assert.True(t, caps.SupportsMethod(types.MethodTextDocumentHover))
	assert.True(t, caps.SupportsMethod(types.MethodTextDocumentCompletion))
	assert.False(t, caps.SupportsMethod(types.MethodTextDocumentDefinition))
	assert.False(t, caps.SupportsMethod(types.MethodTextDocumentSignatureHelp))
	assert.True(t, caps.SupportsMethod("workspace/executeCommand"))
}
