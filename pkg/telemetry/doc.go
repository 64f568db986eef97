// Package telemetry provides the wizard's observability: a zerolog logger that
// writes to stderr so it never interleaves with prompts, OpenTelemetry spans for
// steps and provider calls, and Prometheus counters that can be written to a
// node-exporter textfile after a run.
package telemetry
