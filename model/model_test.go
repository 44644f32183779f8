package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	t.Run("colon form", func(t *testing.T) {
		provider, name, err := ParseSpec("openai:gpt-4o-mini")
		require.NoError(t, err)
		assert.Equal(t, "openai", provider)
		assert.Equal(t, "gpt-4o-mini", name)
	})

	t.Run("slash form is normalized", func(t *testing.T) {
		provider, name, err := ParseSpec("anthropic/claude-sonnet-4-20250514")
		require.NoError(t, err)
		assert.Equal(t, "anthropic", provider)
		assert.Equal(t, "claude-sonnet-4-20250514", name)
	})

	t.Run("bare name is rejected", func(t *testing.T) {
		_, _, err := ParseSpec("gpt-4o-mini")
		assert.Error(t, err)
	})

	t.Run("empty provider is rejected", func(t *testing.T) {
		_, _, err := ParseSpec(":gpt-4o-mini")
		assert.Error(t, err)
	})
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 3, EstimateTokens("hello, world"))
}

func TestMockModel(t *testing.T) {
	t.Run("canned response", func(t *testing.T) {
		m := NewMockModel("test", "mock")
		m.AddResponse("hi", "hello there")

		resp, err := m.Complete(context.Background(), Request{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "hello there", resp.Text)
		assert.Equal(t, "stop", resp.FinishReason)
		require.NotNil(t, resp.Usage)
	})

	t.Run("scripted responses take priority", func(t *testing.T) {
		m := NewMockModel("test", "mock")
		m.Enqueue(&Response{
			ToolCalls:    []ToolCall{{ID: "call_1", Name: "read", Arguments: `{"path":"a.txt"}`}},
			FinishReason: "tool_calls",
		})
		m.Enqueue(&Response{Text: "done", FinishReason: "stop"})

		first, err := m.Complete(context.Background(), Request{})
		require.NoError(t, err)
		require.Len(t, first.ToolCalls, 1)
		assert.Equal(t, "read", first.ToolCalls[0].Name)

		second, err := m.Complete(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "done", second.Text)

		assert.Len(t, m.Requests(), 2)
	})
}
