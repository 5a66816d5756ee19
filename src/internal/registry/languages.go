package registry

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// LanguageInfo describes how to launch a language server for one file extension.
type LanguageInfo struct {
	Extension  string   // Key used by clients in ctx.language (go, rs, ts, ...)
	LanguageID string   // LSP languageId sent in didOpen
	Command    string   // Server executable
	Args       []string // Server arguments
}

var languageRegistry = map[string]LanguageInfo{
	"go":   {Extension: "go", LanguageID: "go", Command: "gopls", Args: []string{"serve"}},
	"rs":   {Extension: "rs", LanguageID: "rust", Command: "rust-analyzer"},
	"ts":   {Extension: "ts", LanguageID: "typescript", Command: "typescript-language-server", Args: []string{"--stdio"}},
	"js":   {Extension: "js", LanguageID: "javascript", Command: "typescript-language-server", Args: []string{"--stdio"}},
	"json": {Extension: "json", LanguageID: "json", Command: "vscode-json-languageserver", Args: []string{"--stdio"}},
	"md":   {Extension: "md", LanguageID: "markdown", Command: "marksman", Args: []string{"server"}},
	"html": {Extension: "html", LanguageID: "html", Command: "vscode-html-languageserver", Args: []string{"--stdio"}},
	"css":  {Extension: "css", LanguageID: "css", Command: "vscode-css-languageserver", Args: []string{"--stdio"}},
}

// DefaultLanguages returns a copy of the built-in table.
func DefaultLanguages() map[string]LanguageInfo {
	out := make(map[string]LanguageInfo, len(languageRegistry))
	for k, v := range languageRegistry {
		v.Args = append([]string(nil), v.Args...)
		out[k] = v
	}
	return out
}

// GetLanguageByExtension returns language information by file extension, with or without the dot.
func GetLanguageByExtension(ext string) (*LanguageInfo, bool) {
	lang, exists := languageRegistry[strings.TrimPrefix(ext, ".")]
	if !exists {
		return nil, false
	}
	return &lang, true
}

// GetExtensions returns the supported extensions in sorted order.
func GetExtensions() []string {
	exts := make([]string, 0, len(languageRegistry))
	for ext := range languageRegistry {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// LanguageID maps a file path to its LSP language id; unknown extensions are "text".
func LanguageID(filePath string) string {
	ext := strings.TrimPrefix(path.Ext(filePath), ".")
	if lang, ok := languageRegistry[ext]; ok {
		return lang.LanguageID
	}
	return "text"
}

// ValidateExtension validates if the extension is supported and returns error if not
func ValidateExtension(ext string) error {
	if _, ok := GetLanguageByExtension(ext); !ok {
		return fmt.Errorf("unsupported extension: %s (supported: %v)", ext, GetExtensions())
	}
	return nil
}
