package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

const shellMetacharacters = "|&;`$<>\n"

// ValidateCommand rejects language server launch lines that could escape
// argv semantics. Commands are bare names resolved on PATH or absolute paths.
func ValidateCommand(command string, args []string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("empty command")
	}
	if strings.ContainsAny(command, shellMetacharacters) || strings.ContainsAny(command, " \t") {
		return fmt.Errorf("shell syntax in command: %s", command)
	}
	if strings.ContainsRune(command, '/') || strings.ContainsRune(command, filepath.Separator) {
		if !filepath.IsAbs(command) {
			return fmt.Errorf("command path must be absolute: %s", command)
		}
		if filepath.Clean(command) != command {
			return fmt.Errorf("command path is not clean: %s", command)
		}
	}

	for _, arg := range args {
		if strings.Contains(arg, "..") {
			return fmt.Errorf("path traversal detected in argument: %s", arg)
		}
		if strings.ContainsAny(arg, shellMetacharacters) {
			return fmt.Errorf("shell injection detected in argument: %s", arg)
		}
	}

	return nil
}
