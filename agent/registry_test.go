package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skydesk-ai/skydesk/tool"
)

func testToolRegistry(t *testing.T, names ...string) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	for _, name := range names {
		params := map[string]any{"type": "object", "properties": map[string]any{}}
		require.NoError(t, r.Register(tool.NewFunctionTool(name, "stub", params,
			func(_ context.Context, _ map[string]any) (*tool.Result, error) {
				return tool.NewResult("ok"), nil
			})))
	}
	return r
}

func routerDef() Definition {
	return Definition{
		Name:    "router",
		Prompt:  "route",
		Trigger: TriggerSpec{Type: TriggerRouter},
	}
}

func subDef(name string, tools ...string) Definition {
	return Definition{
		Name:        name,
		Description: name + " specialist",
		Prompt:      "help with " + name,
		Trigger:     TriggerSpec{Type: TriggerSubAgent},
		Tools:       ToolSpec{Include: tools},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("valid set", func(t *testing.T) {
		tools := testToolRegistry(t, "get_customer_overview")
		r, err := NewRegistry([]Definition{routerDef(), subDef("billing", "get_customer_overview")}, tools)
		require.NoError(t, err)
		assert.Equal(t, "router", r.Router())

		def, err := r.Lookup("billing")
		require.NoError(t, err)
		assert.Equal(t, "billing", def.Name)

		subs := r.SubAgents()
		require.Len(t, subs, 1)
		assert.Equal(t, "billing", subs[0].Name)
		assert.Len(t, r.List(), 2)
	})

	t.Run("registration is idempotent per input", func(t *testing.T) {
		tools := testToolRegistry(t)
		defs := []Definition{routerDef(), subDef("billing")}

		first, err := NewRegistry(defs, tools)
		require.NoError(t, err)
		second, err := NewRegistry(defs, tools)
		require.NoError(t, err)
		assert.Equal(t, first.List(), second.List())
	})

	t.Run("duplicate name", func(t *testing.T) {
		tools := testToolRegistry(t)
		_, err := NewRegistry([]Definition{routerDef(), subDef("billing"), subDef("billing")}, tools)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "duplicate")
	})

	t.Run("unknown tool reference", func(t *testing.T) {
		tools := testToolRegistry(t)
		_, err := NewRegistry([]Definition{routerDef(), subDef("billing", "nope")}, tools)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "nope")
	})

	t.Run("native tool names are always known", func(t *testing.T) {
		tools := testToolRegistry(t)
		def := subDef("files")
		def.Tools.Include = []string{"read", "write"}
		_, err := NewRegistry([]Definition{routerDef(), def}, tools)
		assert.NoError(t, err)
	})

	t.Run("no router", func(t *testing.T) {
		tools := testToolRegistry(t)
		_, err := NewRegistry([]Definition{subDef("billing")}, tools)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "router")
	})

	t.Run("multiple routers", func(t *testing.T) {
		tools := testToolRegistry(t)
		second := routerDef()
		second.Name = "router2"
		_, err := NewRegistry([]Definition{routerDef(), second}, tools)
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("unknown lookup", func(t *testing.T) {
		tools := testToolRegistry(t)
		r, err := NewRegistry([]Definition{routerDef()}, tools)
		require.NoError(t, err)

		_, err = r.Lookup("ghost")
		var unknownErr *UnknownAgentError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "ghost", unknownErr.Name)
	})
}
