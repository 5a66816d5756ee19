package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogDebug},
		{"INFO", LogInfo},
		{"warning", LogWarn},
		{" error ", LogError},
		{"fatal", LogFatal},
		{"", LogInfo},
		{"verbose", LogInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestLoggerPrefixAndFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLoggerWith("TEST", zap.New(core)).With("conn", "abc")

	l.Info("hello %s", "world")
	l.Debug("details")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "TEST", entries[0].LoggerName)
		assert.Equal(t, "hello world", entries[0].Message)
		assert.Equal(t, "abc", entries[0].ContextMap()["conn"])
	}
}
