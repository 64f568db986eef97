package stores

import (
	"time"

	"github.com/openfroyo/launchpad/pkg/engine"
)

// Run is one invocation of the wizard.
type Run struct {
	ID          string
	Steps       []string
	Status      engine.RunStatus
	Message     string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// StepEvent is one status transition of a step attempt.
type StepEvent struct {
	ID         int64
	RunID      string
	Step       string
	Attempt    int
	Status     engine.StepStatus
	Message    string
	RecordedAt time.Time
}

// Terminal reports whether the run has finished.
func (r *Run) Terminal() bool {
	return r.CompletedAt != nil
}
