package tool

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

type findArgs struct {
	Pattern string `json:"pattern" description:"Glob pattern matched against file names, e.g. *.txt"`
	Path    string `json:"path,omitempty" description:"Directory to search from, relative to the workspace (default: workspace root)"`
}

// NewFindTool creates the native find tool. It walks the workspace and lists
// files whose base name matches the glob pattern.
func NewFindTool(ws Workspace) *FunctionTool {
	return NewFunctionToolFromStruct(
		"find",
		"Find files in the workspace by glob pattern",
		findArgs{},
		func(ctx context.Context, args map[string]any) (*Result, error) {
			pattern := stringArg(args, "pattern")
			if _, err := filepath.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}

			start := ws.Dir()
			if sub := stringArg(args, "path"); sub != "" {
				resolved, err := resolvePath(ws, sub)
				if err != nil {
					return nil, err
				}
				start = resolved
			}

			var matches []string
			err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if d.IsDir() {
					return nil
				}
				ok, err := filepath.Match(pattern, d.Name())
				if err != nil {
					return err
				}
				if ok {
					rel, err := filepath.Rel(ws.Dir(), path)
					if err != nil {
						return err
					}
					matches = append(matches, rel)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("find failed: %w", err)
			}

			if len(matches) == 0 {
				return NewResult("No files found matching pattern: " + pattern), nil
			}
			return NewResult(TruncateResult(strings.Join(matches, "\n"))), nil
		},
	)
}
