package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/rs/zerolog"
)

// Telemetry bundles the logger, tracer and metrics of one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
}

// NewTelemetry builds all components from cfg.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	return &Telemetry{
		Logger:  NewLogger(cfg.Logging),
		Tracer:  tracer,
		Metrics: NewMetrics(cfg.Metrics),
	}, nil
}

// Shutdown flushes spans and writes the metrics textfile.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	if err := t.Metrics.WriteTextfile(); err != nil {
		errs = append(errs, fmt.Errorf("write metrics: %w", err))
	}
	return errors.Join(errs...)
}

// StepInstrumentation implements engine.Instrumentation with a span and metrics
// per step attempt.
type StepInstrumentation struct {
	tracer  *Tracer
	metrics *Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

var _ engine.Instrumentation = (*StepInstrumentation)(nil)

// Instrumentation returns the engine hook for t.
func (t *Telemetry) Instrumentation() *StepInstrumentation {
	return &StepInstrumentation{
		tracer:  t.Tracer,
		metrics: t.Metrics,
		logger:  t.Logger.Component("telemetry"),
		now:     time.Now,
	}
}

// StartStep implements engine.Instrumentation.
func (s *StepInstrumentation) StartStep(ctx context.Context, step engine.StepID) (context.Context, func(engine.StepStatus, error)) {
	start := s.now()
	ctx, span := s.tracer.StartStepSpan(ctx, string(step))

	return ctx, func(status engine.StepStatus, err error) {
		defer span.End()
		span.SetAttributes(AttrStepStatus.String(string(status)))

		outcome := string(status)
		if err != nil {
			class := engine.Classify(err)
			span.SetAttributes(AttrErrorClass.String(string(class)))
			RecordError(span, err)
			if class != "" {
				outcome = string(class)
			}
		} else {
			RecordSuccess(span)
		}

		elapsed := s.now().Sub(start)
		s.metrics.ObserveStep(string(step), outcome, elapsed)
		s.logger.Debug().Str("step", string(step)).Str("outcome", outcome).Dur("duration", elapsed).Msg("step instrumented")
	}
}
