// Package process runs locally installed tools and captures their output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Command describes one invocation. Stdin, when set, is piped to the process so
// secret values never appear in the argument list.
type Command struct {
	Name  string
	Args  []string
	Stdin string
	Dir   string
	Env   []string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a command that ran.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports a zero exit code.
func (r *Result) Success() bool { return r.ExitCode == 0 }

// Runner executes commands. Implementations return an error only when the command
// could not be run at all; a nonzero exit is reported in Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
	LookPath(name string) (string, error)
}

// ExitError is a command that ran and exited nonzero.
type ExitError struct {
	Command Command
	Result  *Result
}

func (e *ExitError) Error() string {
	detail := strings.TrimSpace(e.Result.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(e.Result.Stdout)
	}
	if detail == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command.Name, e.Result.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Command.Name, e.Result.ExitCode, detail)
}

// Exec runs commands with os/exec.
type Exec struct {
	Logger zerolog.Logger
}

// NewExec returns an Exec runner logging under the process component.
func NewExec(logger zerolog.Logger) *Exec {
	return &Exec{Logger: logger.With().Str("component", "process").Logger()}
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("run %s: %w", c.Name, err)
	}

	// Only the tool name and first argument are logged; later arguments may carry values.
	ev := e.Logger.Debug().Str("command", c.Name).Int("exit_code", res.ExitCode).Dur("elapsed", time.Since(start))
	if len(c.Args) > 0 {
		ev = ev.Str("subcommand", c.Args[0])
	}
	ev.Msg("command finished")
	return res, nil
}

// LookPath implements Runner.
func (e *Exec) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes cmd and never fails on a nonzero exit.
func Run(ctx context.Context, r Runner, cmd Command) (*Result, error) {
	return r.Run(ctx, cmd)
}

// RunOrFail executes cmd and returns an *ExitError on a nonzero exit.
func RunOrFail(ctx context.Context, r Runner, cmd Command) (*Result, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return res, &ExitError{Command: cmd, Result: res}
	}
	return res, nil
}

// Exists reports whether name resolves on PATH.
func Exists(r Runner, name string) bool {
	_, err := r.LookPath(name)
	return err == nil
}
