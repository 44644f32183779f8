package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type writeArgs struct {
	Path    string `json:"path" description:"File path relative to the workspace"`
	Content string `json:"content" description:"Full content to write"`
}

// NewWriteTool creates the native write tool. Writes take the workspace lock
// so concurrent agents in one session do not interleave mutations.
func NewWriteTool(ws Workspace) *FunctionTool {
	return NewFunctionToolFromStruct(
		"write",
		"Create or overwrite a file in the workspace",
		writeArgs{},
		func(ctx context.Context, args map[string]any) (*Result, error) {
			path, err := resolvePath(ws, stringArg(args, "path"))
			if err != nil {
				return nil, err
			}
			content := stringArg(args, "content")

			ws.Lock()
			defer ws.Unlock()

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("write failed: %w", err)
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, fmt.Errorf("write failed: %w", err)
			}
			return NewResult(fmt.Sprintf("Wrote %d bytes to %s", len(content), stringArg(args, "path"))), nil
		},
	)
}
