package tool

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

type grepArgs struct {
	Pattern string `json:"pattern" description:"Regular expression to search for"`
	Path    string `json:"path,omitempty" description:"File or directory to search, relative to the workspace (default: workspace root)"`
}

// NewGrepTool creates the native grep tool. Matches are reported as
// path:line:text with long lines truncated.
func NewGrepTool(ws Workspace) *FunctionTool {
	return NewFunctionToolFromStruct(
		"grep",
		"Search file contents in the workspace with a regular expression",
		grepArgs{},
		func(ctx context.Context, args map[string]any) (*Result, error) {
			re, err := regexp.Compile(stringArg(args, "pattern"))
			if err != nil {
				return nil, fmt.Errorf("invalid pattern: %w", err)
			}

			start := ws.Dir()
			if sub := stringArg(args, "path"); sub != "" {
				resolved, err := resolvePath(ws, sub)
				if err != nil {
					return nil, err
				}
				start = resolved
			}

			var b strings.Builder
			walkErr := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if d.IsDir() {
					return nil
				}
				return grepFile(ws, path, re, &b)
			})
			if walkErr != nil {
				return nil, fmt.Errorf("grep failed: %w", walkErr)
			}

			if b.Len() == 0 {
				return NewResult("No matches found"), nil
			}
			return NewResult(TruncateResult(strings.TrimRight(b.String(), "\n"))), nil
		},
	)
}

func grepFile(ws Workspace, path string, re *regexp.Regexp, out *strings.Builder) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rel, err := filepath.Rel(ws.Dir(), path)
	if err != nil {
		rel = path
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			fmt.Fprintf(out, "%s:%d:%s\n", rel, lineNo, TruncateLine(line, MaxGrepLineLength))
		}
	}
	// Binary files trip the scanner's token limit; skip them quietly.
	if err := scanner.Err(); err != nil && err != bufio.ErrTooLong {
		return err
	}
	return nil
}
