// Package agent defines declarative agent descriptors, their validated
// registry, and the executor that drives one agent's model/tool loop within
// a session.
//
// Definitions are YAML documents loaded at startup. The registry validates
// them as a set (unique names, known tools, exactly one router) so a broken
// configuration fails the service before it serves traffic. Executors are
// created per (session, agent) pair by the runner and serialize turns.
package agent
