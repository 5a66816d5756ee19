package protocol

import (
	"bytes"
	"strconv"

	"lsp-proxy/src/internal/common"
	"lsp-proxy/src/internal/constants"
)

var (
	contentLengthHeader = []byte("Content-Length:")
	headerSeparator     = []byte("\r\n\r\n")
)

// FrameBuffer accumulates raw bytes from a language server and cuts them into
// Content-Length delimited bodies. It is not safe for concurrent use.
type FrameBuffer struct {
	buf []byte
}

// Push appends chunk and returns every body completed by it, in order.
func (b *FrameBuffer) Push(chunk []byte) [][]byte {
	b.buf = append(b.buf, chunk...)

	var frames [][]byte
	for {
		headerStart := bytes.Index(b.buf, contentLengthHeader)
		if headerStart < 0 {
			// keep the tail, a header may be split across chunks
			if keep := len(contentLengthHeader) - 1; len(b.buf) > keep {
				b.buf = append(b.buf[:0], b.buf[len(b.buf)-keep:]...)
			}
			break
		}
		if headerStart > 0 {
			common.LSPLogger.Debug("Discarding %d bytes before frame header", headerStart)
			b.buf = b.buf[headerStart:]
		}

		sep := bytes.Index(b.buf, headerSeparator)
		if sep < 0 {
			break
		}

		length, ok := parseContentLength(b.buf[:sep])
		bodyStart := sep + len(headerSeparator)
		if !ok {
			common.LSPLogger.Warn("Dropping frame header with invalid Content-Length: %q", b.buf[:sep])
			b.buf = b.buf[bodyStart:]
			continue
		}

		end := bodyStart + length
		if len(b.buf) < end {
			break
		}

		body := make([]byte, length)
		copy(body, b.buf[bodyStart:end])
		frames = append(frames, body)
		b.buf = b.buf[end:]
	}

	if len(b.buf) == 0 {
		b.buf = nil
	}
	return frames
}

// Buffered reports how many bytes are waiting for a complete frame.
func (b *FrameBuffer) Buffered() int {
	return len(b.buf)
}

func parseContentLength(header []byte) (int, bool) {
	for _, line := range bytes.Split(header, []byte("\r\n")) {
		if !bytes.HasPrefix(line, contentLengthHeader) {
			continue
		}
		value := bytes.TrimSpace(line[len(contentLengthHeader):])
		n, err := strconv.Atoi(string(value))
		if err != nil || n < 0 || n > constants.MaxFrameBytes {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
