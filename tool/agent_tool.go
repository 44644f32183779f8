package tool

import (
	"context"
	"fmt"
)

// DelegateFunc runs a delegated query against a sub-agent and returns its
// final answer. The runner supplies the implementation.
type DelegateFunc func(ctx context.Context, query string) (string, error)

// agentTool exposes a sub-agent as a callable tool on the router agent.
type agentTool struct {
	agentName string
	desc      string
	delegate  DelegateFunc
}

// NewAgentTool constructs the delegation tool for a registered sub-agent.
// The tool name is "delegate_to_<agent>" and the description comes from the
// sub-agent's definition so the model can route accurately.
func NewAgentTool(agentName, description string, delegate DelegateFunc) Tool {
	return &agentTool{agentName: agentName, desc: description, delegate: delegate}
}

func (t *agentTool) Name() string { return "delegate_to_" + t.agentName }

func (t *agentTool) Description() string {
	return fmt.Sprintf("Delegate a task to the %s agent. %s", t.agentName, t.desc)
}

func (t *agentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Self-contained task or question for the sub-agent",
			},
		},
		"required": []string{"query"},
	}
}

func (t *agentTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, &InvalidParametersError{Tool: t.Name(), Reason: "field 'query' must be a non-empty string"}
	}
	answer, err := t.delegate(ctx, query)
	if err != nil {
		return nil, err
	}
	return NewResult(answer), nil
}
