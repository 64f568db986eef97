package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/setup"
	"github.com/openfroyo/launchpad/pkg/steps"
	"github.com/openfroyo/launchpad/pkg/stores"
	"github.com/openfroyo/launchpad/pkg/telemetry"
	"github.com/openfroyo/launchpad/pkg/tui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func runWizard(cmd *cobra.Command, opts *options, version string) error {
	ctx := cmd.Context()

	tel, err := telemetry.NewTelemetry(telemetryConfig(opts, version))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := tel.Shutdown(shutdownCtx); serr != nil {
			zl := tel.Logger.Zerolog()
			zl.Warn().Err(serr).Msg("telemetry shutdown failed")
		}
	}()
	log := tel.Logger.Component("cli")

	paths := setup.DefaultPaths().WithConfigDir(opts.configDir)
	store := setup.NewFileStore(paths.Settings())
	saved, err := store.Load()
	if err != nil {
		return cerr.WithHint(err, "fix or remove "+store.Path())
	}

	state, err := initialState(cmd, opts, saved, log)
	if err != nil {
		return err
	}
	if err := state.Validate(); err != nil {
		return cerr.WithHint(fmt.Errorf("invalid settings: %w", err), "fix or remove "+store.Path())
	}

	term := tui.NewTerminal()
	workDir, _ := os.Getwd()
	deps := steps.NewDeps(tel.Logger.Zerolog(), tel.Metrics, tel.Metrics.Registry(), version, workDir)
	catalog := steps.NewCatalog(deps)

	selected, err := selectSteps(ctx, catalog, opts.steps, saved, term)
	if err != nil {
		if errors.Is(err, engine.ErrAborted) {
			return engine.ErrCancelled
		}
		return err
	}

	orchOpts := []engine.Option{
		engine.WithLogger(tel.Logger.Zerolog()),
		engine.WithInstrumentation(tel.Instrumentation()),
	}
	if !opts.noJournal {
		journal, jerr := stores.Open(ctx, stores.Config{Path: paths.Journal()})
		if jerr != nil {
			log.Warn().Err(jerr).Str("path", paths.Journal()).Msg("run journal unavailable")
		} else {
			defer journal.Close()
			orchOpts = append(orchOpts, engine.WithJournal(journal))
		}
	}

	orch := engine.NewOrchestrator(catalog, term, term, steps.NewInputs(deps), store, orchOpts...)

	ctx, span := tel.Tracer.StartRunSpan(ctx, idStrings(selected))
	result, err := orch.Run(ctx, state, selected)
	if err != nil && !errors.Is(err, engine.ErrCancelled) {
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	span.End()

	if result != nil {
		zl := tel.Logger.WithRunID(result.RunID).Zerolog()
		zl.Info().
			Str("trace_id", telemetry.TraceID(ctx)).
			Str("status", string(result.Status)).
			Int("succeeded", len(result.Succeeded)).
			Int("failed", len(result.Failed)).
			Msg("run finished")
	}

	if rerr := setup.WriteReference(paths.Reference(), state); rerr != nil {
		log.Warn().Err(rerr).Msg("failed to write reference document")
	} else if err == nil {
		term.Info("Reference written to %s", paths.Reference())
	}
	return err
}

// initialState builds the run's context. Empty fields are filled from the env
// file, then the environment, then the saved settings; prompts fill the rest.
func initialState(cmd *cobra.Command, opts *options, saved *setup.Context, log zerolog.Logger) (*setup.Context, error) {
	state := setup.New()
	if cmd.Flags().Changed("include-demo") {
		state.SetDemo(opts.includeDemo)
	}

	if opts.envFile != "" {
		values, err := godotenv.Read(opts.envFile)
		if err != nil {
			return nil, fmt.Errorf("read env file: %w", err)
		}
		used := steps.ApplyEnv(state, func(k string) string { return values[k] })
		log.Debug().Strs("vars", used).Str("file", opts.envFile).Msg("credentials from env file")
	}
	if used := steps.ApplyEnv(state, os.Getenv); len(used) > 0 {
		log.Debug().Strs("vars", used).Msg("credentials from environment")
	}

	state.Merge(saved)
	return state, nil
}

// selectSteps resolves --steps, or asks with the previous selection (or every
// step) preselected.
func selectSteps(ctx context.Context, catalog engine.Catalog, flag []string, saved *setup.Context, p engine.Prompter) ([]engine.StepID, error) {
	if len(flag) > 0 {
		ids := make([]engine.StepID, 0, len(flag))
		for _, s := range flag {
			id := engine.StepID(strings.TrimSpace(s))
			if catalog.Lookup(id) == nil {
				return nil, cerr.WithHint(fmt.Errorf("unknown step %q", id),
					"valid steps: "+strings.Join(idStrings(catalog.IDs()), ", "))
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	previous := make(map[string]bool)
	if saved != nil {
		for _, s := range saved.SelectedSteps {
			previous[s] = true
		}
	}

	choices := make([]engine.Choice, len(catalog))
	var preselected []int
	for i, step := range catalog {
		choices[i] = engine.Choice{Label: step.Title(), Detail: steps.Descriptions[step.ID()]}
		if len(previous) == 0 || previous[string(step.ID())] {
			preselected = append(preselected, i)
		}
	}

	picked, err := p.MultiSelect(ctx, "Steps to run", choices, preselected)
	if err != nil {
		return nil, err
	}
	if len(picked) == 0 {
		return nil, errors.New("no steps selected")
	}
	ids := make([]engine.StepID, len(picked))
	for i, idx := range picked {
		ids[i] = catalog[idx].ID()
	}
	return ids, nil
}

func telemetryConfig(opts *options, version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Level = opts.logLevel
	cfg.Logging.Format = opts.logFormat
	cfg.Tracing.Exporter = opts.trace
	cfg.Tracing.Endpoint = opts.otlpEndpoint
	cfg.Metrics.TextfilePath = opts.metricsFile
	return cfg
}

func idStrings(ids []engine.StepID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
