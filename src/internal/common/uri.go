package common

import (
	"fmt"
	"runtime"
	"strings"
)

// ClientURIScheme prefixes every URI in the client's virtual namespace.
const ClientURIScheme = "file:///"

func URIToFilePath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}

	path := strings.TrimPrefix(uri, "file://")

	// file:///C:/path becomes /C:/path after trimming
	if runtime.GOOS == "windows" && len(path) > 2 {
		if path[0] == '/' && path[2] == ':' {
			path = path[1:]
		}
	}

	return path
}

// WorkspaceURI is the client-facing root URI of a workspace.
func WorkspaceURI(workspace string) string {
	return ClientURIScheme + workspace
}

// StoragePath converts a client URI (file:///<workspace>/<path>) to the
// storage-relative key <workspace>/<path>. Plain paths pass through.
func StoragePath(uri string) string {
	return strings.TrimPrefix(uri, ClientURIScheme)
}

// ClientURI is the inverse of StoragePath.
func ClientURI(path string) string {
	return ClientURIScheme + strings.TrimPrefix(path, "/")
}

// ValidateWorkspace rejects names that would escape the scratch directory or
// collide with another workspace under the fast-store key separator.
func ValidateWorkspace(name string) error {
	if name == "" {
		return fmt.Errorf("workspace name is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\:`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid workspace name %q", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("invalid workspace name %q", name)
		}
	}
	return nil
}
