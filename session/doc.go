// Package session persists conversations and shared workspaces on the
// filesystem. Every session owns one append-only JSONL log per agent, a
// session.json document with identity and token counters, and a workspace
// directory the native file tools operate on.
//
// Logs are append-only: replaying a log yields exactly the appended messages
// in order, which makes conversation state durable across process restarts.
package session
