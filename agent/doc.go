// Package agent contains the agent contract and the built-in agent variants
// a team is assembled from:
//
//  1. ModelAgent: the general worker (tools, steps, completion)
//  2. Supervisor: decomposes the workflow and delegates one task at a time
//  3. ResourcePlanner: routes a delegated task to the best suited member
//  4. FinalBoss: summarizes and finishes when the step budget is spent
//
// Every variant embeds BaseAgent, is configured through functional Options
// and can be replaced wholesale with Options.Run. Agents hold no per-run
// state; everything they need arrives through Run.
package agent
