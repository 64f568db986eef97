package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/providers/compute"
	"github.com/openfroyo/launchpad/pkg/setup"
	sshtransport "github.com/openfroyo/launchpad/pkg/transports/ssh"
)

const (
	defaultServerName = "launchpad"
	defaultSSHUser    = "root"
	defaultSSHPort    = 22
)

// serverLabels mark the resources the wizard created.
var serverLabels = map[string]string{"managed-by": "launchpad"}

// ServerStep registers the deploy key, picks or creates the server and makes sure
// the deploy key can log in.
type ServerStep struct {
	deps *Deps
}

func (s *ServerStep) ID() engine.StepID { return IDServer }
func (s *ServerStep) Title() string     { return "Server" }
func (s *ServerStep) Requires() engine.RequirementSet {
	return engine.Requires(engine.RequireComputeToken)
}

func (s *ServerStep) Run(ctx context.Context, sess *engine.Session) error {
	state := sess.State
	pub, err := readPublicKey(state)
	if err != nil {
		return err
	}

	provider := s.deps.computeProvider(state.ComputeToken)
	key, err := provider.EnsureSSHKey(ctx, deployKeyComment, pub)
	if err != nil {
		return err
	}
	state.SSHKeyFingerprint = key.Fingerprint

	inst, err := s.pickServer(ctx, sess, provider, key.ID)
	if err != nil {
		return err
	}
	state.ServerID = inst.ID
	state.ServerName = inst.Name
	state.ServerIPv4 = inst.IPv4
	if inst.Location != "" {
		state.Location = inst.Location
	}
	if state.SSHUser == "" {
		state.SSHUser = defaultSSHUser
	}
	if state.SSHPort == 0 {
		state.SSHPort = defaultSSHPort
	}
	if err := sess.Checkpoint(); err != nil {
		return err
	}

	return s.verifyAccess(ctx, sess, pub)
}

// pickServer reuses the saved server when it still exists, otherwise lets the
// user choose an existing server or create one.
func (s *ServerStep) pickServer(ctx context.Context, sess *engine.Session, provider *compute.Provider, keyID int64) (*compute.Instance, error) {
	state := sess.State
	instances, err := provider.ListInstances(ctx)
	if err != nil {
		return nil, err
	}

	if state.ServerID != 0 {
		for i := range instances {
			if instances[i].ID == state.ServerID {
				sess.Report.Info("Using server %s (%s)", instances[i].Name, instances[i].IPv4)
				return &instances[i], nil
			}
		}
		sess.Report.Warn("Saved server %d no longer exists", state.ServerID)
	}

	if len(instances) > 0 {
		choices := make([]engine.Choice, 0, len(instances)+1)
		for _, inst := range instances {
			choices = append(choices, engine.Choice{Label: inst.Name, Detail: inst.IPv4 + ", " + inst.Location})
		}
		choices = append(choices, engine.Choice{Label: "Create a new server"})
		idx, err := sess.Prompt.Select(ctx, "Server", choices)
		if err != nil {
			return nil, err
		}
		if idx < len(instances) {
			return &instances[idx], nil
		}
	}

	return s.createServer(ctx, sess, provider, keyID)
}

func (s *ServerStep) createServer(ctx context.Context, sess *engine.Session, provider *compute.Provider, keyID int64) (*compute.Instance, error) {
	locations, types, err := provider.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	location, err := selectOption(ctx, sess.Prompt, "Location", locations)
	if err != nil {
		return nil, err
	}
	serverType, err := selectOption(ctx, sess.Prompt, "Server type", types)
	if err != nil {
		return nil, err
	}
	name, err := sess.Prompt.Input(ctx, engine.Question{
		Label:    "Server name",
		Default:  defaultServerName,
		Validate: setup.ValidateRequired,
	})
	if err != nil {
		return nil, err
	}

	script, err := compute.BootScript(compute.DeployDir)
	if err != nil {
		return nil, err
	}
	sess.Report.Info("Creating %s (%s in %s)", name, serverType, location)
	inst, err := provider.CreateInstance(ctx, compute.CreateRequest{
		Name:       name,
		Location:   location,
		ServerType: serverType,
		SSHKeyID:   keyID,
		UserData:   script,
		Labels:     serverLabels,
	})
	if err != nil {
		return nil, err
	}
	sess.State.ServerType = serverType
	sess.Report.Success("Server %s is running at %s", inst.Name, inst.IPv4)
	return inst, nil
}

func selectOption(ctx context.Context, p engine.Prompter, label string, options []compute.Option) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no %s available", strings.ToLower(label))
	}
	choices := make([]engine.Choice, len(options))
	for i, o := range options {
		choices[i] = engine.Choice{Label: o.Name, Detail: o.Description}
	}
	idx, err := p.Select(ctx, label, choices)
	if err != nil {
		return "", err
	}
	return options[idx].Name, nil
}

// verifyAccess waits for SSH and checks the deploy key. When the server rejects
// the key, it is installed with a password login and checked again.
func (s *ServerStep) verifyAccess(ctx context.Context, sess *engine.Session, pub string) error {
	cfg := sshConfig(sess.State)
	sess.Report.Info("Waiting for SSH on %s", cfg.Address())

	attempts, err := sshtransport.WaitReachable(ctx, s.deps.Dialer, cfg, s.deps.SSHPoll)
	switch {
	case err == nil:
		sess.Report.Success("SSH reachable as %s after %d attempt(s)", cfg.User, attempts)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case sshtransport.IsAuthError(err):
		return s.installKey(ctx, sess, cfg, pub)
	case errors.Is(err, engine.ErrPollExhausted):
		sess.Report.Warn("SSH on %s did not answer after %d attempts; cloud-init may still be running", cfg.Address(), attempts)
		sess.Log.Warn().Err(err).Msg("ssh readiness budget spent")
		return nil
	default:
		return err
	}
}

func (s *ServerStep) installKey(ctx context.Context, sess *engine.Session, cfg *sshtransport.Config, pub string) error {
	sess.Report.Warn("%s rejected the deploy key", cfg.Address())
	password, err := sess.Prompt.Input(ctx, engine.Question{
		Label:    fmt.Sprintf("Password for %s@%s", cfg.User, cfg.Host),
		Secret:   true,
		Validate: setup.ValidateRequired,
	})
	if err != nil {
		return err
	}

	t, err := s.deps.Dialer.Dial(ctx, cfg.WithPassword(password))
	if err != nil {
		return fmt.Errorf("password login: %w", err)
	}
	added, err := sshtransport.InstallAuthorizedKey(ctx, t, pub)
	_ = t.Close()
	if err != nil {
		return err
	}
	if added {
		sess.Report.Info("Installed the deploy key in ~/%s", sshtransport.AuthorizedKeysPath)
	}

	verify, err := s.deps.Dialer.Dial(ctx, cfg)
	if err != nil {
		return cerr.WithHint(fmt.Errorf("deploy key still rejected: %w", err),
			"check PermitRootLogin and PubkeyAuthentication in the server's sshd_config")
	}
	_ = verify.Close()
	sess.Report.Success("Deploy key accepted by %s", cfg.Address())
	return nil
}

func readPublicKey(state *setup.Context) (string, error) {
	if state.SSHPublicKeyPath == "" {
		return "", cerr.WithHint(errors.New("no deploy key recorded"), "run the ssh-key step first")
	}
	data, err := os.ReadFile(state.SSHPublicKeyPath)
	if err != nil {
		return "", fmt.Errorf("read deploy key: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
