package protocol

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lsp-proxy/src/internal/constants"
)

func TestFrameBufferSplitAcrossChunks(t *testing.T) {
	var b FrameBuffer

	frames := b.Push([]byte("Content-Length: 5\r\n\r\nhe"))
	assert.Empty(t, frames)

	frames = b.Push([]byte("llo"))
	require.Len(t, frames, 1)
	assert.Equal(t, "hello", string(frames[0]))
	assert.Equal(t, 0, b.Buffered())
}

func TestFrameBufferCases(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{
			name:   "two frames in one chunk",
			chunks: []string{"Content-Length: 2\r\n\r\n{}Content-Length: 3\r\n\r\n[1]"},
			want:   []string{"{}", "[1]"},
		},
		{
			name:   "header split mid-word",
			chunks: []string{"Content-Len", "gth: 4\r\n", "\r\nnull"},
			want:   []string{"null"},
		},
		{
			name:   "extra header lines",
			chunks: []string{"Content-Length: 2\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n{}"},
			want:   []string{"{}"},
		},
		{
			name:   "leading noise is skipped",
			chunks: []string{"starting server...\nContent-Length: 2\r\n\r\n{}"},
			want:   []string{"{}"},
		},
		{
			name:   "invalid length is dropped",
			chunks: []string{"Content-Length: abc\r\n\r\nContent-Length: 2\r\n\r\n{}"},
			want:   []string{"{}"},
		},
		{
			name:   "overflowing length is dropped",
			chunks: []string{"Content-Length: 9223372036854775807\r\n\r\n{}Content-Length: 2\r\n\r\n[]"},
			want:   []string{"[]"},
		},
		{
			name:   "length above frame limit is dropped",
			chunks: []string{fmt.Sprintf("Content-Length: %d\r\n\r\nContent-Length: 4\r\n\r\nnull", constants.MaxFrameBytes+1)},
			want:   []string{"null"},
		},
		{
			name:   "zero length body",
			chunks: []string{"Content-Length: 0\r\n\r\n"},
			want:   []string{""},
		},
		{
			name:   "multibyte body counted in bytes",
			chunks: []string{"Content-Length: 4\r\n\r\n\"é\""},
			want:   []string{"\"é\""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b FrameBuffer
			var got []string
			for _, c := range tt.chunks {
				for _, f := range b.Push([]byte(c)) {
					got = append(got, string(f))
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrameBufferByteAtATime(t *testing.T) {
	stream := string(EncodeFrame([]byte(`{"jsonrpc":"2.0","method":"a"}`))) +
		string(EncodeFrame([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`)))

	var b FrameBuffer
	var got []string
	for i := 0; i < len(stream); i++ {
		for _, f := range b.Push([]byte{stream[i]}) {
			got = append(got, string(f))
		}
	}
	require.Len(t, got, 2)
	assert.True(t, strings.Contains(got[0], `"method":"a"`))
	assert.True(t, strings.Contains(got[1], `"result":null`))
}
