package agent

import "fmt"

// ConfigError indicates an invalid agent configuration discovered at startup.
// The runtime treats it as fatal: a service must not come up with a broken
// agent set.
type ConfigError struct {
	Source string `json:"source"` // definition name or file
	Reason string `json:"reason"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid agent configuration (%s): %s", e.Source, e.Reason)
}

// UnknownAgentError indicates a lookup for an agent name that is not
// registered.
type UnknownAgentError struct {
	Name string `json:"name"`
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent %q", e.Name)
}

// ExecutionLimitError indicates a turn exceeded the configured number of
// model/tool round trips without producing a final answer.
type ExecutionLimitError struct {
	Agent string `json:"agent"`
	Limit int    `json:"limit"`
}

func (e *ExecutionLimitError) Error() string {
	return fmt.Sprintf("agent %q exceeded %d tool iterations without a final answer", e.Agent, e.Limit)
}
