// Package commands implements the launchpad command line.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/spf13/cobra"
)

// options are the command line flags.
type options struct {
	configDir    string
	envFile      string
	steps        []string
	includeDemo  bool
	logLevel     string
	logFormat    string
	trace        string
	otlpEndpoint string
	metricsFile  string
	noJournal    bool
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return newRootCommand(version, commit, buildDate).ExecuteContext(ctx)
}

// ExitCode maps the result of Execute to the process exit status. A cancelled run
// is a normal exit.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, engine.ErrCancelled) {
		return 0
	}
	return 1
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "launchpad",
		Short: "Provision a production identity platform",
		Long: `launchpad walks through provisioning a production deployment of the identity
platform: a cloud server with a reserved IP and firewall, a managed PostgreSQL
project, an email sending domain, DNS records, derived secrets and the GitHub
configuration that deploys it.

Every step is idempotent. Progress is saved after each step, so an interrupted
or failed run can simply be started again.`,
		Example: `  # Pick steps from a menu
  launchpad

  # Run selected steps with credentials from a file
  launchpad --env-file .env.production --steps server,reserved-ip,firewall

  # Trace provider calls to stdout
  launchpad --log-level debug --trace stdout`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWizard(cmd, opts, version)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configDir, "config-dir", "", "directory for settings.yaml and reference.md (default $XDG_CONFIG_HOME/launchpad)")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file pre-filling provider credentials")
	flags.StringSliceVar(&opts.steps, "steps", nil, "comma separated steps to run, skipping the menu")
	flags.BoolVar(&opts.includeDemo, "include-demo", false, "deploy the demo application")
	flags.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level (trace, debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "console", "log format (console, json)")
	flags.StringVar(&opts.trace, "trace", "none", "trace exporter (none, stdout, otlp)")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP gRPC endpoint")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.BoolVar(&opts.noJournal, "no-journal", false, "do not record the run in the journal")

	return cmd
}
