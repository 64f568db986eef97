package steps

import (
	"context"
	"errors"
	"fmt"

	cerr "github.com/cockroachdb/errors"
	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/providers/compute"
	"github.com/openfroyo/launchpad/pkg/setup"
)

const firewallName = "launchpad-firewall"

var errNoServer = cerr.WithHint(errors.New("no server recorded"), "run the server step first")

// ReservedIPStep attaches a reserved IPv4 to the server and configures it on the
// host.
type ReservedIPStep struct {
	deps *Deps
}

func (s *ReservedIPStep) ID() engine.StepID { return IDReservedIP }
func (s *ReservedIPStep) Title() string     { return "Reserved IP" }
func (s *ReservedIPStep) Requires() engine.RequirementSet {
	return engine.Requires(engine.RequireComputeToken)
}

func (s *ReservedIPStep) Run(ctx context.Context, sess *engine.Session) error {
	state := sess.State
	if state.ServerID == 0 {
		return errNoServer
	}

	provider := s.deps.computeProvider(state.ComputeToken)
	rec, err := provider.ReconcileReservedIP(ctx, state.ServerID, chooseReservedIP(sess))
	if err != nil {
		return err
	}
	state.ReservedIPv4 = rec.IP.IP
	state.ReservedIPID = rec.IP.ID
	if err := sess.Checkpoint(); err != nil {
		return err
	}

	switch {
	case rec.AlreadyAttached:
		sess.Report.Info("%s is already attached", rec.IP.IP)
		return nil
	case rec.Created:
		sess.Report.Success("Allocated and attached %s", rec.IP.IP)
	default:
		sess.Report.Success("Attached %s", rec.IP.IP)
	}

	if err := s.configureHost(ctx, state, rec.IP.IP); err != nil {
		sess.Log.Warn().Err(err).Msg("floating ip host configuration failed")
		sess.Report.Warn("Could not configure %s on the server: %v", rec.IP.IP, err)
		sess.Report.Warn("Add it by hand: ip addr add %s/32 dev eth0", rec.IP.IP)
	}
	return nil
}

// configureHost writes the netplan drop-in for ip over SFTP and applies it.
func (s *ReservedIPStep) configureHost(ctx context.Context, state *setup.Context, ip string) error {
	plan, err := compute.FloatingIPNetplan("", ip)
	if err != nil {
		return err
	}
	t, err := s.deps.Dialer.Dial(ctx, sshConfig(state))
	if err != nil {
		return err
	}
	defer t.Close()

	if err := t.WriteFile(ctx, compute.NetplanPath, plan, 0o600); err != nil {
		return err
	}
	res, err := t.Run(ctx, "netplan apply")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("netplan apply exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func chooseReservedIP(sess *engine.Session) compute.ReservedIPChooser {
	return func(ctx context.Context, unassigned []compute.ReservedIP, elsewhere int) (*compute.ReservedIP, error) {
		if elsewhere > 0 {
			sess.Report.Info("%d reserved IP(s) are attached to other servers", elsewhere)
		}
		if len(unassigned) == 0 {
			return nil, nil
		}
		choices := make([]engine.Choice, 0, len(unassigned)+1)
		for _, ip := range unassigned {
			choices = append(choices, engine.Choice{Label: ip.IP, Detail: ip.Location + " " + ip.Description})
		}
		choices = append(choices, engine.Choice{Label: "Allocate a new address"})
		idx, err := sess.Prompt.Select(ctx, "Reserved IP", choices)
		if err != nil {
			return nil, err
		}
		if idx >= len(unassigned) {
			return nil, nil
		}
		return &unassigned[idx], nil
	}
}

// FirewallStep makes sure the platform firewall is applied to the server.
type FirewallStep struct {
	deps *Deps
}

func (s *FirewallStep) ID() engine.StepID { return IDFirewall }
func (s *FirewallStep) Title() string     { return "Firewall" }
func (s *FirewallStep) Requires() engine.RequirementSet {
	return engine.Requires(engine.RequireComputeToken)
}

func (s *FirewallStep) Run(ctx context.Context, sess *engine.Session) error {
	state := sess.State
	if state.ServerID == 0 {
		return errNoServer
	}

	provider := s.deps.computeProvider(state.ComputeToken)
	res, err := provider.EnsureFirewall(ctx, state.ServerID, firewallName)
	if err != nil {
		return err
	}
	state.FirewallID = res.Firewall.ID

	switch {
	case res.Created:
		sess.Report.Success("Created firewall %s", res.Firewall.Name)
	case res.Applied:
		sess.Report.Success("Applied firewall %s to the server", res.Firewall.Name)
	default:
		sess.Report.Info("Firewall %s already protects the server", res.Firewall.Name)
	}
	return nil
}
