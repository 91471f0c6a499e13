// Package runner executes workflows as tracked runs.
//
// A Runner wraps a workflow.Workflow with a snapshot.Store: every run gets an
// id, every transition is recorded, active runs can be cancelled by id and an
// interrupted run can be resumed from its latest snapshot.
package runner
