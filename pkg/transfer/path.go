package transfer

import (
	"errors"
	"strings"
)

// Errors shared by every transport that writes files (WS chunks, the TCP
// data channel): both share this validator so the rules cannot drift.
var (
	ErrSessionNotFound  = errors.New("upload session not found")
	ErrSessionNotActive = errors.New("upload session is not active")
	ErrInvalidPath      = errors.New("invalid relative path")
)

// ValidatePath rejects anything that is not a plain, relative, forward- or
// backslash-separated path: empty strings, absolute paths (Unix "/...",
// Windows "C:\..." or UNC "\\server\share"), and any path containing a ".."
// component. Accepted examples: "a", "a/b", "./a", ".config/x". Rejected
// examples: "", "../x", "a/../../b", "/abs", "C:\\x", "\\\\srv\\s".
func ValidatePath(path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return ErrInvalidPath
	}
	if len(path) >= 2 && path[1] == ':' {
		return ErrInvalidPath // drive-letter prefix, e.g. "C:\x"
	}

	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}
