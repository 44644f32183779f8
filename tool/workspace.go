package tool

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Workspace is the session-scoped directory the native file tools operate on.
// The lock serializes mutations so concurrent agents in the same session do
// not interleave writes. session.Workspace satisfies this interface.
type Workspace interface {
	Dir() string
	Lock()
	Unlock()
}

// NativeTools returns the built-in file tools scoped to a workspace.
func NativeTools(ws Workspace) []Tool {
	return []Tool{
		NewFindTool(ws),
		NewGrepTool(ws),
		NewReadTool(ws),
		NewWriteTool(ws),
		NewEditTool(ws),
	}
}

// NativeToolNames lists the names granted by the native toolset.
func NativeToolNames() []string {
	return []string{"find", "grep", "read", "write", "edit"}
}

// resolvePath joins a relative path onto the workspace directory, rejecting
// absolute paths and traversal outside the workspace.
func resolvePath(ws Workspace, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path must be relative to the workspace")
	}
	root := filepath.Clean(ws.Dir())
	full := filepath.Clean(filepath.Join(root, rel))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the workspace")
	}
	return full, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
