package steps

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/providers/cicd"
	"github.com/openfroyo/launchpad/pkg/providers/database"
	"github.com/openfroyo/launchpad/pkg/secrets"
	"github.com/openfroyo/launchpad/pkg/setup"
)

const (
	defaultEnvironment = "production"
	deployWorkflow     = "deploy.yml"
	deployRef          = "main"
)

// ghPreflight checks that gh is installed and logged in.
func ghPreflight(ctx context.Context, ci CIAPI) error {
	if err := ci.CheckInstalled(); err != nil {
		return err
	}
	_, err := ci.EnsureAuthenticated(ctx)
	return err
}

func repository(state *setup.Context) cicd.Repository {
	return cicd.Repository{Owner: state.RepoOwner, Name: state.RepoName}
}

// CIStep writes the deployment environment, secrets and variables to the
// repository.
type CIStep struct {
	deps *Deps
}

func (s *CIStep) ID() engine.StepID { return IDCI }
func (s *CIStep) Title() string     { return "GitHub configuration" }
func (s *CIStep) Requires() engine.RequirementSet {
	return engine.Requires(
		engine.RequireDomain,
		engine.RequirePassphrase,
		engine.RequireAdminCredentials,
		engine.RequireRepository,
		engine.RequireDemoChoice,
	)
}

// Preflight implements engine.Preflighter.
func (s *CIStep) Preflight(ctx context.Context) error {
	return ghPreflight(ctx, s.deps.CI)
}

func (s *CIStep) Run(ctx context.Context, sess *engine.Session) error {
	state := sess.State
	repo := repository(state)
	if state.CIEnvironment == "" {
		state.CIEnvironment = defaultEnvironment
	}

	scope := cicd.EnvironmentScope(repo, state.CIEnvironment)
	if err := s.deps.CI.CreateEnvironment(ctx, repo, state.CIEnvironment); err != nil {
		sess.Log.Warn().Err(err).Msg("environment creation failed")
		sess.Report.Warn("Could not create environment %s, using repository scope: %v", state.CIEnvironment, err)
		scope = cicd.RepoScope(repo)
	}

	state.DerivedSecrets = secrets.DeriveAll(state.Passphrase, state.DemoEnabled())

	values := ciSecrets(state)
	for _, name := range setup.SortedKeys(values) {
		err := s.deps.CI.SetSecret(ctx, scope, name, values[name])
		switch {
		case errors.Is(err, cicd.ErrEmptyValue):
			sess.Report.Warn("Skipped secret %s: no value", name)
			continue
		case err != nil:
			return err
		}
		state.RecordCISecret(name, values[name])
	}
	if err := sess.Checkpoint(); err != nil {
		return err
	}

	vars := ciVariables(state)
	for _, name := range setup.SortedKeys(vars) {
		if err := s.deps.CI.SetVariable(ctx, scope, name, vars[name]); err != nil {
			return err
		}
		state.RecordCIVariable(name, vars[name])
	}

	sess.Report.Success("Wrote %d secrets and %d variables to %s", len(state.CISecrets), len(state.CIVariables), scope)
	return nil
}

func ciSecrets(state *setup.Context) map[string]string {
	out := make(map[string]string, len(state.DerivedSecrets)+8)
	for k, v := range state.DerivedSecrets {
		out[k] = v
	}
	for _, name := range database.LogicalDatabases {
		out[strings.ToUpper(name)+"_DSN"] = state.DatabaseURLs[name]
	}
	out["ADMIN_PASSWORD"] = state.AdminPassword
	out["RESEND_API_KEY"] = state.EmailAPIKey

	key := ""
	if state.SSHPrivateKeyPath != "" {
		if data, err := os.ReadFile(state.SSHPrivateKeyPath); err == nil {
			key = string(data)
		}
	}
	out["SSH_PRIVATE_KEY"] = key
	return out
}

func ciVariables(state *setup.Context) map[string]string {
	port := state.SSHPort
	if port == 0 {
		port = defaultSSHPort
	}
	user := state.SSHUser
	if user == "" {
		user = defaultSSHUser
	}
	return map[string]string{
		"DOMAIN":           state.Domain,
		"SERVER_HOST":      state.PublicIP(),
		"SSH_USER":         user,
		"SSH_PORT":         strconv.Itoa(port),
		"ADMIN_EMAIL":      state.AdminEmail,
		"INCLUDE_DEMO_APP": strconv.FormatBool(state.DemoEnabled()),
	}
}

// DeployStep dispatches the deploy workflow. A failed dispatch is reported with
// the command to run by hand.
type DeployStep struct {
	deps *Deps
}

func (s *DeployStep) ID() engine.StepID { return IDDeploy }
func (s *DeployStep) Title() string     { return "Deploy" }
func (s *DeployStep) Requires() engine.RequirementSet {
	return engine.Requires(engine.RequireRepository)
}

// Preflight implements engine.Preflighter.
func (s *DeployStep) Preflight(ctx context.Context) error {
	return ghPreflight(ctx, s.deps.CI)
}

func (s *DeployStep) Run(ctx context.Context, sess *engine.Session) error {
	state := sess.State
	repo := repository(state)
	env := state.CIEnvironment
	if env == "" {
		env = defaultEnvironment
	}

	err := s.deps.CI.TriggerWorkflow(ctx, repo, deployWorkflow, deployRef, map[string]string{"environment": env})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sess.Log.Warn().Err(err).Msg("workflow dispatch failed")
		sess.Report.Warn("Could not dispatch %s: %v", deployWorkflow, err)
		sess.Report.Warn("Run it by hand: %s", cicd.ManualTrigger(repo, deployWorkflow, deployRef))
		return nil
	}
	sess.Report.Success("Dispatched %s on %s", deployWorkflow, repo)
	sess.Report.Info("Follow it with: gh run watch --repo %s", repo)
	return nil
}
