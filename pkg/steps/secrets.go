package steps

import (
	"context"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/secrets"
)

// SecretsStep derives the platform secrets from the passphrase.
type SecretsStep struct {
	deps *Deps
}

func (s *SecretsStep) ID() engine.StepID { return IDSecrets }
func (s *SecretsStep) Title() string     { return "Secrets" }
func (s *SecretsStep) Requires() engine.RequirementSet {
	return engine.Requires(engine.RequirePassphrase, engine.RequireDemoChoice)
}

func (s *SecretsStep) Run(ctx context.Context, sess *engine.Session) error {
	state := sess.State
	state.DerivedSecrets = secrets.DeriveAll(state.Passphrase, state.DemoEnabled())
	sess.Report.Success("Derived %d secrets", len(state.DerivedSecrets))
	return nil
}
