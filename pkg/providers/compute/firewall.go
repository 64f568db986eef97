package compute

import (
	"context"
	"fmt"
)

// InboundPorts are the TCP ports the platform serves: SSH, HTTP, HTTPS and the
// identity services' public ports.
var InboundPorts = []string{"22", "80", "443", "4433", "4444"}

// FirewallRules returns the rule set for a new firewall.
func FirewallRules() []FirewallRule {
	rules := make([]FirewallRule, 0, len(InboundPorts)+3)
	for _, port := range InboundPorts {
		rules = append(rules, FirewallRule{Direction: "in", Protocol: "tcp", Port: port, Description: "allow tcp " + port})
	}
	rules = append(rules,
		FirewallRule{Direction: "out", Protocol: "tcp", Port: "1-65535", Description: "allow all tcp out"},
		FirewallRule{Direction: "out", Protocol: "udp", Port: "1-65535", Description: "allow all udp out"},
		FirewallRule{Direction: "out", Protocol: "icmp", Description: "allow icmp out"},
	)
	return rules
}

// FirewallResult is the outcome of EnsureFirewall.
type FirewallResult struct {
	Firewall Firewall
	Created  bool
	Applied  bool
}

// EnsureFirewall attaches a firewall to serverID. A firewall already attached is
// kept; one matching name is applied; otherwise a new one is created.
func (p *Provider) EnsureFirewall(ctx context.Context, serverID int64, name string) (*FirewallResult, error) {
	if serverID == 0 {
		return nil, errNoServer
	}
	firewalls, err := p.api.ListFirewalls(ctx)
	if err != nil {
		return nil, fmt.Errorf("list firewalls: %w", err)
	}

	var byName *Firewall
	for i := range firewalls {
		fw := firewalls[i]
		if fw.AppliesTo(serverID) {
			p.logger.Info().Int64("firewall_id", fw.ID).Str("name", fw.Name).Msg("firewall already attached")
			return &FirewallResult{Firewall: fw}, nil
		}
		if fw.Name == name && byName == nil {
			byName = &firewalls[i]
		}
	}

	if byName != nil {
		if err := p.api.ApplyFirewall(ctx, byName.ID, serverID); err != nil {
			return nil, fmt.Errorf("apply firewall %s to server %d: %w", name, serverID, err)
		}
		fw := *byName
		fw.ServerIDs = append(append([]int64(nil), fw.ServerIDs...), serverID)
		return &FirewallResult{Firewall: fw, Applied: true}, nil
	}

	fw, err := p.api.CreateFirewall(ctx, name, FirewallRules(), serverID)
	if err != nil {
		return nil, fmt.Errorf("create firewall %s: %w", name, err)
	}
	p.logger.Info().Int64("firewall_id", fw.ID).Str("name", name).Msg("firewall created")
	return &FirewallResult{Firewall: *fw, Created: true, Applied: true}, nil
}
