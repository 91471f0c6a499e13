// Package core defines the value types shared by every layer of teamwork:
//
//   - Message, Part and ToolCall (the conversation model)
//   - WorkflowState (a recursive unit of work with an optional child)
//   - pure transition helpers (Finish, Handoff, Delegate, Merge, ...)
//   - the error taxonomy used by agents, tools and the driver
//
// Nothing in this package performs I/O. Every helper returns a new state
// value and leaves its inputs untouched, so states can be snapshotted and
// compared freely.
package core
