package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skydesk-ai/skydesk/internal/util"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	// Required only includes non-pointer, non-omitempty exported fields
	req, _ := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"a"}, req)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	// Success
	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	// Missing required
	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Equal(t, "x", vErr.Field)
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	// Wrong type
	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Contains(t, vErr.Message, "expected type integer")
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ context.Context, args map[string]any) (*Result, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return NewResult(fmt.Sprintf("%g", a+b)), nil
	})

	result, err := sumTool.Execute(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "5", result.Content)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ context.Context, _ map[string]any) (*Result, error) {
		return NewResult("ok"), nil
	})
	_, err := tTool.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	var invalidErr *InvalidParametersError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "test", invalidErr.Tool)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ context.Context, _ map[string]any) (*Result, error) {
		return nil, errors.New("boom")
	})
	_, err := execTool.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
}

func TestFunctionTool_CustomToolErrorForwarded(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ context.Context, _ map[string]any) (*Result, error) {
		return nil, NewToolError("fail", "rate limited", "RATE_LIMIT")
	})
	_, err := execTool.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, "RATE_LIMIT", toolErr.Code)
}

// -------------------- Run Wrapper Tests --------------------

func TestRun_ConvertsErrorsToErrorResults(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	failing := NewFunctionTool("fail", "Fails", params, func(_ context.Context, _ map[string]any) (*Result, error) {
		return nil, errors.New("boom")
	})

	result := Run(context.Background(), failing, map[string]any{})
	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Content, "boom")
}

func TestRun_PassesThroughResults(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	ok := NewFunctionTool("ok", "OK", params, func(_ context.Context, _ map[string]any) (*Result, error) {
		return NewResult("done"), nil
	})

	result := Run(context.Background(), ok, map[string]any{})
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "done", result.Content)
}

// -------------------- Result Tests --------------------

func TestResultPreview(t *testing.T) {
	short := NewResult("short")
	assert.Equal(t, "short", short.Preview())
	assert.Equal(t, 5, short.Length())

	long := make([]byte, PreviewLength*2)
	for i := range long {
		long[i] = 'x'
	}
	result := NewResult(string(long))
	assert.Len(t, result.Preview(), PreviewLength)
	assert.Equal(t, PreviewLength*2, result.Length())

	// A multi-byte rune straddling the cut is dropped, not split.
	multi := NewResult(strings.Repeat("é", PreviewLength))
	preview := multi.Preview()
	assert.True(t, utf8.ValidString(preview))
	assert.LessOrEqual(t, len(preview), PreviewLength)
	assert.True(t, strings.HasSuffix(preview, "é"))
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}
