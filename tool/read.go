package tool

import (
	"context"
	"fmt"
	"os"
)

type readArgs struct {
	Path string `json:"path" description:"File path relative to the workspace"`
}

// NewReadTool creates the native read tool. Large files are head-truncated
// to keep results within the model context.
func NewReadTool(ws Workspace) *FunctionTool {
	return NewFunctionToolFromStruct(
		"read",
		"Read a file from the workspace",
		readArgs{},
		func(ctx context.Context, args map[string]any) (*Result, error) {
			path, err := resolvePath(ws, stringArg(args, "path"))
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return ErrorResult(fmt.Sprintf("file not found: %s", stringArg(args, "path"))), nil
				}
				return nil, fmt.Errorf("read failed: %w", err)
			}
			return NewResult(TruncateResult(string(data))), nil
		},
	)
}
