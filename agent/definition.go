package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trigger types controlling how an agent is reachable.
const (
	// TriggerRouter marks the entry-point agent. It receives delegation
	// tools for every registered sub-agent.
	TriggerRouter = "router"
	// TriggerSubAgent marks an agent reachable only through delegation.
	TriggerSubAgent = "sub_agent"
)

// Definition is a declarative agent descriptor loaded from YAML.
type Definition struct {
	// Name uniquely identifies the agent and names its conversation log.
	Name string `yaml:"name"`
	// Description tells the router model when to delegate to this agent.
	Description string `yaml:"description"`
	// Prompt is the system prompt template. It may use Go template syntax
	// with .UserID, .SessionID and .Now.
	Prompt string `yaml:"prompt"`
	// Model is a "provider:model" spec. Empty means the configured default.
	Model string `yaml:"model"`
	// Trigger controls reachability (router or sub_agent).
	Trigger TriggerSpec `yaml:"trigger"`
	// Tools selects the agent's toolset.
	Tools ToolSpec `yaml:"tools"`
}

// TriggerSpec selects how the agent is invoked.
type TriggerSpec struct {
	Type string `yaml:"type"`
}

// ToolSpec selects the tools available to an agent.
type ToolSpec struct {
	// Include lists registered tool names granted to the agent.
	Include []string `yaml:"include"`
	// Native grants the workspace file tools (find, grep, read, write, edit).
	Native bool `yaml:"native"`
}

// IsRouter reports whether the agent is the delegating entry point.
func (d *Definition) IsRouter() bool { return d.Trigger.Type == TriggerRouter }

// Validate checks the fields a definition must carry regardless of registry
// context.
func (d *Definition) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(d.Prompt) == "" {
		problems = append(problems, "prompt is required")
	}
	switch d.Trigger.Type {
	case TriggerRouter, TriggerSubAgent:
	case "":
		problems = append(problems, "trigger.type is required")
	default:
		problems = append(problems, fmt.Sprintf("unknown trigger.type %q", d.Trigger.Type))
	}
	if len(problems) > 0 {
		return &ConfigError{Source: d.Name, Reason: strings.Join(problems, "; ")}
	}
	return nil
}

// LoadDir reads every *.yml / *.yaml agent definition in dir, sorted by file
// name for deterministic registration order.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Source: dir, Reason: fmt.Sprintf("read agents dir: %v", err)}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yml" || ext == ".yaml" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	defs := make([]Definition, 0, len(files))
	for _, name := range files {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Source: name, Reason: fmt.Sprintf("read definition: %v", err)}
		}
		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, &ConfigError{Source: name, Reason: fmt.Sprintf("parse definition: %v", err)}
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
