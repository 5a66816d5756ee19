package cache

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

// ContentChange is one entry of a didChange batch. A nil Range replaces the
// whole document.
type ContentChange struct {
	Range       *protocol.Range `json:"range,omitempty"`
	RangeLength uint32          `json:"rangeLength,omitempty"`
	Text        string          `json:"text"`
}

// ApplyChanges folds changes over text in order; each offset is computed
// against the text produced by the previous change.
func ApplyChanges(text string, changes []ContentChange) string {
	for _, change := range changes {
		text = ApplyChange(text, change)
	}
	return text
}

// ApplyChange applies a single change. Positions past the end of a line or
// of the document are clamped.
func ApplyChange(text string, change ContentChange) string {
	if change.Range == nil {
		return change.Text
	}
	start := OffsetAt(text, change.Range.Start)
	end := OffsetAt(text, change.Range.End)
	if start > end {
		start, end = end, start
	}
	return text[:start] + change.Text + text[end:]
}

// OffsetAt converts an LSP position (line, UTF-16 character) to a byte offset.
func OffsetAt(text string, pos protocol.Position) int {
	offset := 0
	for l := uint32(0); l < pos.Line; l++ {
		nl := strings.IndexByte(text[offset:], '\n')
		if nl < 0 {
			return len(text)
		}
		offset += nl + 1
	}

	lineText := text[offset:]
	if nl := strings.IndexByte(lineText, '\n'); nl >= 0 {
		lineText = lineText[:nl]
	}
	return offset + utf16OffsetToBytes(lineText, int(pos.Character))
}

func utf16OffsetToBytes(line string, utf16Offset int) int {
	u16 := 0
	byteOffset := 0
	for byteOffset < len(line) && u16 < utf16Offset {
		r, size := utf8.DecodeRuneInString(line[byteOffset:])
		if r == utf8.RuneError && size == 1 {
			u16++
			byteOffset++
			continue
		}
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		u16 += n
		byteOffset += size
	}
	return byteOffset
}
