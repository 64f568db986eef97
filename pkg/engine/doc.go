// Package engine runs the wizard's steps against a shared setup context.
//
// # Overview
//
// A run goes through four phases:
//
//  1. Select - resolve the chosen step ids against the Catalog, in catalog order
//  2. Preflight - check local prerequisites of every selected step (Preflighter)
//  3. Inputs - collect the union of the steps' requirements once (InputCollector)
//  4. Steps - run each step, persisting the context after it (Checkpointer)
//
// Steps are idempotent: each one reuses what already exists remotely, so a failed
// or interrupted run can simply be started again.
//
// # Failure Handling
//
// When a step fails the user chooses to retry it, continue with the next step, or
// stop. Failures are classified for the journal and metrics only:
//
//   - Transient: timeouts and 5xx answers
//   - Throttled: rate limiting
//   - Conflict: the provider is busy with another operation on the resource
//   - Permanent: everything else
//
// # Cancellation
//
// Run installs a SIGINT/SIGTERM handler for its own duration. A cancelled context
// or a Prompter returning ErrAborted ends the run with ErrCancelled after the
// context has been persisted.
//
// # Polling
//
// Poll and Retry are the single bounded-wait utilities used by adapters:
//
//	_, err := engine.Poll(ctx, engine.PollConfig{MaxAttempts: 30, Delay: engine.Constant(5 * time.Second)},
//	    func(ctx context.Context, attempt int) (bool, error) {
//	        return ready(ctx)
//	    })
package engine
