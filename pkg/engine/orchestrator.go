package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/openfroyo/launchpad/pkg/setup"
	"github.com/rs/zerolog"
)

// Orchestrator runs the selected steps strictly in catalog order, one at a time, and
// owns the context for the run's duration.
type Orchestrator struct {
	catalog      Catalog
	prompt       Prompter
	report       Reporter
	inputs       InputCollector
	checkpointer Checkpointer
	journal      Journal
	instr        Instrumentation
	logger       zerolog.Logger
	signals      []os.Signal
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal records run history.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithInstrumentation wraps steps with tracing and metrics.
func WithInstrumentation(i Instrumentation) Option {
	return func(o *Orchestrator) { o.instr = i }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l.With().Str("component", "orchestrator").Logger() }
}

// WithSignals sets the signals that cancel a run. The handler is installed for the
// duration of Run only. Passing none disables signal handling.
func WithSignals(sigs ...os.Signal) Option {
	return func(o *Orchestrator) { o.signals = sigs }
}

// NewOrchestrator creates an orchestrator over catalog.
func NewOrchestrator(
	catalog Catalog,
	prompt Prompter,
	report Reporter,
	inputs InputCollector,
	checkpointer Checkpointer,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		catalog:      catalog,
		prompt:       prompt,
		report:       report,
		inputs:       inputs,
		checkpointer: checkpointer,
		journal:      nopJournal{},
		instr:        nopInstrumentation{},
		logger:       zerolog.Nop(),
		signals:      []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Status    RunStatus
	Succeeded []StepID
	Failed    []StepID
}

// Run executes the selected steps against state. It returns ErrCancelled after a user
// interrupt, an error wrapping ErrPrerequisite when a prerequisite is missing, and
// ErrRunDeclined when the user stops after a failure. The context is persisted in all
// of those cases.
func (o *Orchestrator) Run(ctx context.Context, state *setup.Context, selected []StepID) (*Result, error) {
	if len(o.signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, o.signals...)
		defer stop()
	}

	steps, err := o.catalog.Select(selected)
	if err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.New().String(), Status: RunStatusRunning}
	log := o.logger.With().Str("run_id", result.RunID).Logger()

	state.SelectedSteps = make([]string, len(steps))
	for i, id := range steps.IDs() {
		state.SelectedSteps[i] = string(id)
	}

	if err := o.preflight(ctx, steps); err != nil {
		return result, err
	}

	if err := o.journal.StartRun(ctx, result.RunID, state.SelectedSteps); err != nil {
		log.Warn().Err(err).Msg("failed to start journal run")
	}

	if err := o.collectInputs(ctx, steps, state); err != nil {
		if o.isCancellation(ctx, err) {
			return result, o.cancel(result, state, log)
		}
		return result, err
	}
	if err := o.save(state); err != nil {
		return result, err
	}

	for i, step := range steps {
		o.report.Section(fmt.Sprintf("[%d/%d] %s", i+1, len(steps), step.Title()))

		ok, err := o.runStep(ctx, result.RunID, step, state, log)
		if err != nil {
			if o.isCancellation(ctx, err) {
				return result, o.cancel(result, state, log)
			}
			result.Failed = append(result.Failed, step.ID())
			result.Status = RunStatusFailed
			o.finish(result, state, err.Error(), log)
			return result, err
		}
		if ok {
			result.Succeeded = append(result.Succeeded, step.ID())
		} else {
			result.Failed = append(result.Failed, step.ID())
		}
	}

	result.Status = RunStatusSucceeded
	if len(result.Failed) > 0 {
		result.Status = RunStatusDegraded
	}
	o.finish(result, state, "", log)
	return result, nil
}

func (o *Orchestrator) preflight(ctx context.Context, steps Catalog) error {
	for _, step := range steps {
		p, ok := step.(Preflighter)
		if !ok {
			continue
		}
		if err := p.Preflight(ctx); err != nil {
			o.report.Fail("%s: %v", step.Title(), err)
			return fmt.Errorf("%w: %s: %w", ErrPrerequisite, step.ID(), err)
		}
	}
	return nil
}

func (o *Orchestrator) collectInputs(ctx context.Context, steps Catalog, state *setup.Context) error {
	reqs := steps.Requirements().List()
	if len(reqs) == 0 {
		return nil
	}

	for _, req := range reqs {
		if o.inputs.Satisfied(req, state) {
			continue
		}
		if err := o.inputs.Collect(ctx, req, state, o.prompt); err != nil {
			return fmt.Errorf("collect %s: %w", req, err)
		}
		if err := o.save(state); err != nil {
			return err
		}
	}
	return nil
}

// runStep runs one step until it succeeds or the user stops retrying. It returns
// (true, nil) on success, (false, nil) when the user continues past a failure, and
// an error when the run must stop.
func (o *Orchestrator) runStep(ctx context.Context, runID string, step Step, state *setup.Context, log zerolog.Logger) (bool, error) {
	log = log.With().Str("step", string(step.ID())).Logger()

	for attempt := 1; ; attempt++ {
		o.record(ctx, runID, step, attempt, StepStatusRunning, "", log)

		sess := &Session{
			RunID:      runID,
			Attempt:    attempt,
			State:      state,
			Prompt:     o.prompt,
			Report:     o.report,
			Log:        log,
			checkpoint: func() error { return o.save(state) },
		}

		start := time.Now()
		stepCtx, done := o.instr.StartStep(ctx, step.ID())
		err := step.Run(stepCtx, sess)

		// The context is persisted whatever the outcome.
		if saveErr := o.save(state); saveErr != nil {
			log.Error().Err(saveErr).Msg("failed to persist context")
		}

		if err == nil {
			done(StepStatusSucceeded, nil)
			o.record(ctx, runID, step, attempt, StepStatusSucceeded, "", log)
			log.Info().Int("attempt", attempt).Dur("duration", time.Since(start)).Msg("step completed")
			o.report.Success("%s completed", step.Title())
			return true, nil
		}

		if o.isCancellation(ctx, err) {
			done(StepStatusFailed, err)
			return false, err
		}

		stepErr := &StepError{Class: Classify(err), Step: step.ID(), Attempt: attempt, Err: err}
		done(StepStatusFailed, stepErr)
		o.record(ctx, runID, step, attempt, StepStatusFailed, stepErr.Error(), log)
		log.Error().Err(err).Str("class", string(stepErr.Class)).Int("attempt", attempt).Msg("step failed")
		o.report.Fail("%s failed: %v", step.Title(), err)

		retry, perr := o.prompt.Confirm(ctx, fmt.Sprintf("Retry %q?", step.Title()), IsRetryable(err))
		if perr != nil {
			return false, perr
		}
		if retry {
			o.record(ctx, runID, step, attempt, StepStatusRetrying, "", log)
			continue
		}

		cont, perr := o.prompt.Confirm(ctx, "Continue with the remaining steps?", false)
		if perr != nil {
			return false, perr
		}
		if cont {
			o.report.Warn("Continuing without %s", step.Title())
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrRunDeclined, stepErr)
	}
}

func (o *Orchestrator) isCancellation(ctx context.Context, err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}

// cancel persists what exists and reports a normal cancellation.
func (o *Orchestrator) cancel(result *Result, state *setup.Context, log zerolog.Logger) error {
	result.Status = RunStatusCancelled
	if err := o.save(state); err != nil {
		log.Error().Err(err).Msg("failed to persist context on cancel")
	}
	o.finish(result, state, "cancelled by user", log)
	o.report.Warn("Setup cancelled; progress saved")
	return ErrCancelled
}

func (o *Orchestrator) finish(result *Result, state *setup.Context, message string, log zerolog.Logger) {
	if err := o.save(state); err != nil {
		log.Error().Err(err).Msg("failed to persist context")
	}
	// The run context may already be cancelled; the journal entry should still land.
	if err := o.journal.FinishRun(context.Background(), result.RunID, result.Status, message); err != nil {
		log.Warn().Err(err).Msg("failed to finish journal run")
	}
}

func (o *Orchestrator) record(ctx context.Context, runID string, step Step, attempt int, status StepStatus, message string, log zerolog.Logger) {
	if err := o.journal.RecordStep(context.WithoutCancel(ctx), runID, string(step.ID()), attempt, status, message); err != nil {
		log.Warn().Err(err).Msg("failed to record step")
	}
}

func (o *Orchestrator) save(state *setup.Context) error {
	if o.checkpointer == nil {
		return nil
	}
	if err := o.checkpointer.Save(state); err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	return nil
}

type nopJournal struct{}

func (nopJournal) StartRun(context.Context, string, []string) error { return nil }
func (nopJournal) RecordStep(context.Context, string, string, int, StepStatus, string) error {
	return nil
}
func (nopJournal) FinishRun(context.Context, string, RunStatus, string) error { return nil }

type nopInstrumentation struct{}

func (nopInstrumentation) StartStep(ctx context.Context, _ StepID) (context.Context, func(StepStatus, error)) {
	return ctx, func(StepStatus, error) {}
}
