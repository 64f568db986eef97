package engine

import (
	"context"

	"github.com/openfroyo/launchpad/pkg/setup"
)

// Question describes one line of user input.
type Question struct {
	// Label is shown before the input.
	Label string

	// Default is used when the user submits an empty line.
	Default string

	// Secret hides the input.
	Secret bool

	// Confirm asks a second time and requires both entries to match.
	Confirm bool

	// AllowEmpty accepts an empty answer without validation.
	AllowEmpty bool

	// Validate rejects malformed input; the prompt is repeated until it passes.
	Validate func(string) error
}

// Choice is one entry of a selection menu.
type Choice struct {
	Label  string
	Detail string
}

// Prompter requests input from the user. Every method returns ErrAborted when the
// user interrupts.
type Prompter interface {
	// Input reads a single validated value.
	Input(ctx context.Context, q Question) (string, error)

	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, label string, def bool) (bool, error)

	// Select returns the index of one chosen entry.
	Select(ctx context.Context, label string, choices []Choice) (int, error)

	// MultiSelect returns the indexes of the chosen entries in ascending order.
	MultiSelect(ctx context.Context, label string, choices []Choice, preselected []int) ([]int, error)
}

// Reporter displays progress and results.
type Reporter interface {
	Section(title string)
	Info(format string, args ...any)
	Success(format string, args ...any)
	Warn(format string, args ...any)
	Fail(format string, args ...any)
}

// Checkpointer persists the context.
type Checkpointer interface {
	Save(c *setup.Context) error
}

// InputCollector gathers the shared inputs steps declare as requirements.
type InputCollector interface {
	// Satisfied reports whether the context already holds the input.
	Satisfied(req Requirement, state *setup.Context) bool

	// Collect prompts for the input and stores it in the context.
	Collect(ctx context.Context, req Requirement, state *setup.Context, p Prompter) error
}

// Journal records run history. Failures to write the journal never fail a run.
type Journal interface {
	StartRun(ctx context.Context, runID string, steps []string) error
	RecordStep(ctx context.Context, runID string, step string, attempt int, status StepStatus, message string) error
	FinishRun(ctx context.Context, runID string, status RunStatus, message string) error
}

// Instrumentation wraps step execution with tracing and metrics.
type Instrumentation interface {
	StartStep(ctx context.Context, step StepID) (context.Context, func(status StepStatus, err error))
}
