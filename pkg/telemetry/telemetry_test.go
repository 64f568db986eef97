package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Exporter = "otlp" }},
		{"sampling rate", func(c *Config) { c.Tracing.SamplingRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: &buf})

	log := l.WithRunID("run-1").Component("dns")
	log.Debug().Msg("hidden")
	log.Info().Msg("synced")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"dns"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
}

func TestStepInstrumentation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Output = &bytes.Buffer{}
	tel, err := NewTelemetry(cfg)
	require.NoError(t, err)

	instr := tel.Instrumentation()
	clock := time.Unix(0, 0)
	instr.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	_, done := instr.StartStep(context.Background(), "server")
	done(engine.StepStatusSucceeded, nil)

	_, done = instr.StartStep(context.Background(), "server")
	done(engine.StepStatusFailed, statusErr(503))

	_, done = instr.StartStep(context.Background(), "dns")
	done(engine.StepStatusFailed, errors.New("bad zone"))

	m := tel.Metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsTotal.WithLabelValues("server", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsTotal.WithLabelValues("server", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepsTotal.WithLabelValues("dns", "permanent")))

	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestTraceID(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))

	tracer, err := NewTracer(DefaultConfig().Tracing, "launchpad", "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	ctx, span := tracer.StartRunSpan(context.Background(), []string{"ssh-key"})
	span.End()
	id := TraceID(ctx)
	assert.Len(t, id, 32)
	assert.Equal(t, span.SpanContext().TraceID().String(), id)
}

func TestMetricsTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "launchpad.prom")
	m := NewMetrics(MetricsConfig{Namespace: "launchpad", TextfilePath: path})

	m.ObserveRequest("neon", 423, 150*time.Millisecond)
	m.ObserveRequest("neon", 200, 80*time.Millisecond)
	m.ObserveRequest("neon", 200, 90*time.Millisecond)
	m.ObserveStep("database", "succeeded", 12*time.Second)

	require.NoError(t, m.WriteTextfile())
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, `launchpad_provider_requests_total{provider="neon",status="200"} 2`)
	assert.Contains(t, text, `launchpad_provider_requests_total{provider="neon",status="423"} 1`)
	assert.Contains(t, text, `launchpad_steps_total{outcome="succeeded",step="database"} 1`)
	assert.True(t, strings.Contains(text, "launchpad_step_duration_seconds_bucket"))
}

func TestMetricsTextfileDisabled(t *testing.T) {
	assert.NoError(t, NewMetrics(MetricsConfig{}).WriteTextfile())
}
