package steps

import (
	"context"
	"fmt"

	cerr "github.com/cockroachdb/errors"
	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/process"
)

const deployKeyComment = "launchpad-deploy"

// SSHKeyStep generates the deploy key pair or reuses the one on disk.
type SSHKeyStep struct {
	deps *Deps
}

func (s *SSHKeyStep) ID() engine.StepID               { return IDSSHKey }
func (s *SSHKeyStep) Title() string                   { return "Deploy key" }
func (s *SSHKeyStep) Requires() engine.RequirementSet { return 0 }

// Preflight implements engine.Preflighter.
func (s *SSHKeyStep) Preflight(ctx context.Context) error {
	if !process.Exists(s.deps.Runner, "ssh-keygen") {
		return cerr.WithHint(fmt.Errorf("ssh-keygen is not installed"),
			"install OpenSSH (openssh-client on Debian/Ubuntu)")
	}
	return nil
}

func (s *SSHKeyStep) Run(ctx context.Context, sess *engine.Session) error {
	path := s.deps.DeployKeyPath
	if path == "" {
		var err error
		if path, err = process.DefaultDeployKeyPath(); err != nil {
			return err
		}
	}

	reuse := func(path string) (bool, error) {
		return sess.Prompt.Confirm(ctx, fmt.Sprintf("Reuse the deploy key at %s?", path), true)
	}
	key, err := process.EnsureDeployKey(ctx, s.deps.Runner, path, deployKeyComment, reuse)
	if err != nil {
		return err
	}

	state := sess.State
	state.SSHPrivateKeyPath = key.PrivatePath
	state.SSHPublicKeyPath = key.PublicPath
	if key.Generated {
		sess.Report.Info("Generated %s", key.PrivatePath)
	} else {
		sess.Report.Info("Reusing %s", key.PrivatePath)
	}
	sess.Log.Info().Str("path", key.PrivatePath).Bool("generated", key.Generated).Msg("deploy key ready")
	return nil
}
