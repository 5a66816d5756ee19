package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	saved := os.Args
	os.Args = append([]string{"lsp-proxy"}, args...)
	t.Cleanup(func() { os.Args = saved })
}

func TestRunMain(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "version", args: []string{"version"}, want: 0},
		{name: "unknown command", args: []string{"frobnicate"}, want: 1},
		{name: "missing config file", args: []string{"config", "show", "--config", "/nonexistent/lsp-proxy.yaml"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withArgs(t, tt.args...)
			assert.Equal(t, tt.want, runMain())
		})
	}
}
