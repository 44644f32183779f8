package agent

import (
	"fmt"
	"sort"

	"github.com/skydesk-ai/skydesk/tool"
)

// Registry holds the validated agent definitions for a deployment. It is
// immutable after construction, so lookups need no locking.
type Registry struct {
	defs   map[string]Definition
	router string
}

// NewRegistry validates definitions against each other and against the tool
// registry. Duplicate names, missing fields, references to unregistered
// tools, or a missing router are configuration errors.
func NewRegistry(defs []Definition, tools *tool.Registry) (*Registry, error) {
	byName := make(map[string]Definition, len(defs))
	router := ""
	native := make(map[string]bool)
	for _, name := range tool.NativeToolNames() {
		native[name] = true
	}

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, exists := byName[def.Name]; exists {
			return nil, &ConfigError{Source: def.Name, Reason: "duplicate agent name"}
		}
		for _, toolName := range def.Tools.Include {
			if native[toolName] {
				continue
			}
			if _, ok := tools.Lookup(toolName); !ok {
				return nil, &ConfigError{
					Source: def.Name,
					Reason: fmt.Sprintf("references unregistered tool %q", toolName),
				}
			}
		}
		if def.IsRouter() {
			if router != "" {
				return nil, &ConfigError{Source: def.Name, Reason: "multiple router agents defined"}
			}
			router = def.Name
		}
		byName[def.Name] = def
	}

	if router == "" {
		return nil, &ConfigError{Source: "registry", Reason: "no router agent defined"}
	}

	return &Registry{defs: byName, router: router}, nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, error) {
	def, ok := r.defs[name]
	if !ok {
		return Definition{}, &UnknownAgentError{Name: name}
	}
	return def, nil
}

// Router returns the entry-point agent's name.
func (r *Registry) Router() string { return r.router }

// List returns all definitions sorted by name.
func (r *Registry) List() []Definition {
	defs := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// SubAgents returns every non-router definition sorted by name, the set the
// router receives delegation tools for.
func (r *Registry) SubAgents() []Definition {
	defs := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		if !def.IsRouter() {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
