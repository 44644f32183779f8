// Package runner orchestrates chat turns across the agent fleet.
//
// A Runner owns the path from an incoming ChatRequest to the final answer:
// it resolves the session, applies the guardrail pipeline, builds (and
// caches) one executor per session/agent pair and, for the router agent,
// exposes every sub-agent as a delegation tool. Delegated turns run on the
// sub-agent's own executor and conversation log; only the final text crosses
// back to the caller. A call stack threaded through context guards against
// delegation cycles.
package runner
