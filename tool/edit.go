package tool

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type editArgs struct {
	Path       string `json:"path" description:"File path relative to the workspace"`
	OldString  string `json:"old_string" description:"Exact text to replace"`
	NewString  string `json:"new_string" description:"Replacement text"`
	ReplaceAll *bool  `json:"replace_all,omitempty" description:"Replace every occurrence instead of requiring a unique match"`
}

// NewEditTool creates the native edit tool performing exact string
// replacement. Without replace_all the old string must occur exactly once,
// which protects against silently editing the wrong occurrence.
func NewEditTool(ws Workspace) *FunctionTool {
	return NewFunctionToolFromStruct(
		"edit",
		"Replace an exact string in a workspace file",
		editArgs{},
		func(ctx context.Context, args map[string]any) (*Result, error) {
			relPath := stringArg(args, "path")
			path, err := resolvePath(ws, relPath)
			if err != nil {
				return nil, err
			}
			oldString := stringArg(args, "old_string")
			newString := stringArg(args, "new_string")
			if oldString == "" {
				return nil, fmt.Errorf("old_string must not be empty")
			}

			ws.Lock()
			defer ws.Unlock()

			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return ErrorResult(fmt.Sprintf("file not found: %s", relPath)), nil
				}
				return nil, fmt.Errorf("edit failed: %w", err)
			}
			content := string(data)

			count := strings.Count(content, oldString)
			switch {
			case count == 0:
				return ErrorResult(fmt.Sprintf("old_string not found in %s", relPath)), nil
			case count > 1 && !boolArg(args, "replace_all"):
				return ErrorResult(fmt.Sprintf(
					"old_string occurs %d times in %s; provide more context or set replace_all", count, relPath)), nil
			}

			updated := strings.Replace(content, oldString, newString, -1)
			if !boolArg(args, "replace_all") {
				updated = strings.Replace(content, oldString, newString, 1)
			}
			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return nil, fmt.Errorf("edit failed: %w", err)
			}

			replaced := count
			if !boolArg(args, "replace_all") {
				replaced = 1
			}
			return NewResult(fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, relPath)), nil
		},
	)
}
