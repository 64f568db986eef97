// Package processtest provides a scripted process.Runner for tests.
package processtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openfroyo/launchpad/pkg/process"
)

// Runner returns registered results keyed by command line and records every call.
type Runner struct {
	mu      sync.Mutex
	results map[string]process.Result
	errors  map[string]error
	paths   map[string]bool
	calls   []process.Command
}

// NewRunner returns an empty Runner. Every command it is asked for must be
// registered first.
func NewRunner() *Runner {
	return &Runner{
		results: make(map[string]process.Result),
		errors:  make(map[string]error),
		paths:   make(map[string]bool),
	}
}

// AddResult registers the outcome of name with args.
func (r *Runner) AddResult(name string, args []string, res process.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[key(name, args)] = res
}

// AddError makes name with args fail to start.
func (r *Runner) AddError(name string, args []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[key(name, args)] = err
}

// AddBinary makes LookPath find name.
func (r *Runner) AddBinary(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[name] = true
}

// Run implements process.Runner.
func (r *Runner) Run(_ context.Context, cmd process.Command) (*process.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)

	k := key(cmd.Name, cmd.Args)
	if err, ok := r.errors[k]; ok {
		return nil, err
	}
	if res, ok := r.results[k]; ok {
		return &res, nil
	}
	return nil, fmt.Errorf("no result registered for %q", k)
}

// LookPath implements process.Runner.
func (r *Runner) LookPath(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", fmt.Errorf("%s: executable file not found in $PATH", name)
}

// Calls returns a copy of the recorded calls.
func (r *Runner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Command(nil), r.calls...)
}

func key(name string, args []string) string {
	return name + " " + strings.Join(args, " ")
}

var _ process.Runner = (*Runner)(nil)
