package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoragePathRoundTrip(t *testing.T) {
	assert.Equal(t, "proj/src/a.ts", StoragePath("file:///proj/src/a.ts"))
	assert.Equal(t, "proj/src/a.ts", StoragePath("proj/src/a.ts"))
	assert.Equal(t, "file:///proj/src/a.ts", ClientURI("proj/src/a.ts"))
	assert.Equal(t, "file:///proj", WorkspaceURI("proj"))
}

func TestValidateWorkspace(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"my-project", false},
		{"proj_1", false},
		{"", true},
		{"..", true},
		{"a/b", true},
		{`a\b`, true},
		{"a..b", true},
		{"a:b", true},
		{"bad\x00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWorkspace(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
