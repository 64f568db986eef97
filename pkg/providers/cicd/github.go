// Package cicd configures the GitHub repository that deploys the platform. It
// drives the gh CLI, so it works with whatever login the operator already has.
package cicd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"github.com/openfroyo/launchpad/pkg/process"
	"github.com/rs/zerolog"
)

// ErrEmptyValue is returned for a secret that was skipped because it had no value.
var ErrEmptyValue = errors.New("empty value")

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string { return r.Owner + "/" + r.Name }

// ScopeKind selects where a secret or variable is stored.
type ScopeKind string

const (
	ScopeRepo        ScopeKind = "repo"
	ScopeEnvironment ScopeKind = "environment"
	ScopeOrg         ScopeKind = "org"
)

// Scope is the target of SetSecret and SetVariable.
type Scope struct {
	Kind        ScopeKind
	Repo        Repository
	Environment string
}

// RepoScope targets repository-level settings.
func RepoScope(repo Repository) Scope { return Scope{Kind: ScopeRepo, Repo: repo} }

// EnvironmentScope targets a deployment environment of repo.
func EnvironmentScope(repo Repository, env string) Scope {
	return Scope{Kind: ScopeEnvironment, Repo: repo, Environment: env}
}

// OrgScope targets the repository owner's organization, visible to all its repositories.
func OrgScope(repo Repository) Scope { return Scope{Kind: ScopeOrg, Repo: repo} }

func (s Scope) flags() []string {
	switch s.Kind {
	case ScopeOrg:
		return []string{"--org", s.Repo.Owner, "--visibility", "all"}
	case ScopeEnvironment:
		return []string{"--repo", s.Repo.String(), "--env", s.Environment}
	default:
		return []string{"--repo", s.Repo.String()}
	}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeOrg:
		return "org " + s.Repo.Owner
	case ScopeEnvironment:
		return s.Repo.String() + " environment " + s.Environment
	default:
		return s.Repo.String()
	}
}

// GitHub wraps the gh CLI.
type GitHub struct {
	runner process.Runner
	logger zerolog.Logger
}

// New returns a GitHub adapter running gh through r.
func New(r process.Runner, logger zerolog.Logger) *GitHub {
	return &GitHub{runner: r, logger: logger.With().Str("component", "cicd").Logger()}
}

// CheckInstalled fails when gh is not on PATH.
func (g *GitHub) CheckInstalled() error {
	if !process.Exists(g.runner, "gh") {
		return cerr.WithHint(errors.New("the GitHub CLI (gh) is not installed"),
			"install it from https://cli.github.com and run: gh auth login")
	}
	return nil
}

// EnsureAuthenticated returns the logged-in user, failing when gh has no login.
func (g *GitHub) EnsureAuthenticated(ctx context.Context) (string, error) {
	if _, err := process.RunOrFail(ctx, g.runner, process.Command{Name: "gh", Args: []string{"auth", "status"}}); err != nil {
		return "", cerr.WithHint(fmt.Errorf("gh is not authenticated: %w", err), "run: gh auth login")
	}
	res, err := process.RunOrFail(ctx, g.runner, process.Command{Name: "gh", Args: []string{"api", "user", "--jq", ".login"}})
	if err != nil {
		return "", fmt.Errorf("read gh identity: %w", err)
	}
	login := strings.TrimSpace(res.Stdout)
	g.logger.Info().Str("login", login).Msg("gh authenticated")
	return login, nil
}

// CreateEnvironment creates env on repo, or leaves an existing one alone.
func (g *GitHub) CreateEnvironment(ctx context.Context, repo Repository, env string) error {
	path := fmt.Sprintf("repos/%s/environments/%s", repo, env)
	if _, err := process.RunOrFail(ctx, g.runner, process.Command{Name: "gh", Args: []string{"api", "-X", "PUT", path, "--silent"}}); err != nil {
		return fmt.Errorf("create environment %s on %s: %w", env, repo, err)
	}
	return nil
}

// SetSecret writes name unconditionally. The value is passed on stdin. An empty
// value is not written and ErrEmptyValue is returned.
func (g *GitHub) SetSecret(ctx context.Context, scope Scope, name, value string) error {
	if value == "" {
		g.logger.Warn().Str("secret", name).Msg("skipping empty secret")
		return fmt.Errorf("secret %s: %w", name, ErrEmptyValue)
	}
	args := append([]string{"secret", "set", name}, scope.flags()...)
	if _, err := process.RunOrFail(ctx, g.runner, process.Command{Name: "gh", Args: args, Stdin: value}); err != nil {
		return fmt.Errorf("set secret %s on %s: %w", name, scope, err)
	}
	g.logger.Debug().Str("secret", name).Str("scope", string(scope.Kind)).Msg("secret set")
	return nil
}

// SetVariable writes name unconditionally.
func (g *GitHub) SetVariable(ctx context.Context, scope Scope, name, value string) error {
	args := append([]string{"variable", "set", name}, scope.flags()...)
	if _, err := process.RunOrFail(ctx, g.runner, process.Command{Name: "gh", Args: args, Stdin: value}); err != nil {
		return fmt.Errorf("set variable %s on %s: %w", name, scope, err)
	}
	return nil
}

// TriggerWorkflow dispatches workflow on ref with inputs.
func (g *GitHub) TriggerWorkflow(ctx context.Context, repo Repository, workflow, ref string, inputs map[string]string) error {
	args := []string{"workflow", "run", workflow, "--repo", repo.String()}
	if ref != "" {
		args = append(args, "--ref", ref)
	}
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-f", k+"="+inputs[k])
	}
	if _, err := process.RunOrFail(ctx, g.runner, process.Command{Name: "gh", Args: args}); err != nil {
		return fmt.Errorf("dispatch %s on %s: %w", workflow, repo, err)
	}
	return nil
}

// ManualTrigger is the command an operator can run when dispatch fails.
func ManualTrigger(repo Repository, workflow, ref string) string {
	cmd := fmt.Sprintf("gh workflow run %s --repo %s", workflow, repo)
	if ref != "" {
		cmd += " --ref " + ref
	}
	return cmd
}
