package engine

import (
	"context"
	"fmt"

	"github.com/openfroyo/launchpad/pkg/setup"
	"github.com/rs/zerolog"
)

// StepID identifies a step in the catalog.
type StepID string

// Step is one provisioning action. Steps must be idempotent: running one again
// against the same remote state reuses what exists.
type Step interface {
	ID() StepID
	Title() string
	Requires() RequirementSet
	Run(ctx context.Context, s *Session) error
}

// Preflighter is implemented by steps with local prerequisites, checked before any
// step runs.
type Preflighter interface {
	Preflight(ctx context.Context) error
}

// Session is what a step sees of the run.
type Session struct {
	RunID   string
	Attempt int
	State   *setup.Context
	Prompt  Prompter
	Report  Reporter
	Log     zerolog.Logger

	checkpoint func() error
}

// Checkpoint persists the context after a sub-step.
func (s *Session) Checkpoint() error {
	if s.checkpoint == nil {
		return nil
	}
	return s.checkpoint()
}

// NewSession builds a session outside an orchestrator run, for tests and tooling.
func NewSession(state *setup.Context, p Prompter, r Reporter, checkpoint func() error) *Session {
	return &Session{
		State:      state,
		Prompt:     p,
		Report:     r,
		Log:        zerolog.Nop(),
		checkpoint: checkpoint,
	}
}

// Catalog is the ordered list of available steps.
type Catalog []Step

// Select returns the catalog entries named in ids, in catalog order.
func (c Catalog) Select(ids []StepID) (Catalog, error) {
	want := make(map[StepID]bool, len(ids))
	for _, id := range ids {
		if c.Lookup(id) == nil {
			return nil, fmt.Errorf("unknown step %q", id)
		}
		want[id] = true
	}

	out := make(Catalog, 0, len(ids))
	for _, step := range c {
		if want[step.ID()] {
			out = append(out, step)
		}
	}
	return out, nil
}

// Lookup returns the step with the given id, or nil.
func (c Catalog) Lookup(id StepID) Step {
	for _, step := range c {
		if step.ID() == id {
			return step
		}
	}
	return nil
}

// IDs returns the step ids in order.
func (c Catalog) IDs() []StepID {
	ids := make([]StepID, len(c))
	for i, step := range c {
		ids[i] = step.ID()
	}
	return ids
}

// Requirements returns the union of the steps' requirements.
func (c Catalog) Requirements() RequirementSet {
	var set RequirementSet
	for _, step := range c {
		set = set.Union(step.Requires())
	}
	return set
}
