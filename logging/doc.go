// Package logging provides a minimal logging interface and adapters.
//
// The Logger interface is what agents, tools and the workflow driver accept.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - TeamworkLogger with run context and domain helpers (LogStep, LogToolCall, LogLLMCall, LogRun)
//   - NoOpLogger for silent operation
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	wf := workflow.New(team, func(o *workflow.Options) { o.Logger = logger })
package logging
