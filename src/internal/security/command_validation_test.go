package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
		wantErr string
	}{
		{name: "bare name", command: "gopls"},
		{name: "stdio flag", command: "typescript-language-server", args: []string{"--stdio"}},
		{name: "absolute path", command: "/usr/local/bin/rust-analyzer"},
		{name: "empty", command: "  ", wantErr: "empty command"},
		{name: "embedded args", command: "gopls serve", wantErr: "shell syntax"},
		{name: "pipe in command", command: "gopls|sh", wantErr: "shell syntax"},
		{name: "relative path", command: "bin/gopls", wantErr: "must be absolute"},
		{name: "unclean path", command: "/opt/../bin/gopls", wantErr: "not clean"},
		{name: "traversal arg", command: "marksman", args: []string{"--root", "../etc"}, wantErr: "path traversal"},
		{name: "subshell arg", command: "pylsp", args: []string{"$(id)"}, wantErr: "shell injection"},
		{name: "chained arg", command: "pylsp", args: []string{"-v; rm -rf /"}, wantErr: "shell injection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommand(tt.command, tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
