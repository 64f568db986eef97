package steps

import (
	"context"
	"strings"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/providers/dns"
	"github.com/openfroyo/launchpad/pkg/setup"
)

// DNSStep points the application hosts at the server and publishes the email
// verification records. Without a DNS token the records are listed for manual
// entry.
type DNSStep struct {
	deps *Deps
}

func (s *DNSStep) ID() engine.StepID { return IDDNS }
func (s *DNSStep) Title() string     { return "DNS" }
func (s *DNSStep) Requires() engine.RequirementSet {
	return engine.Requires(engine.RequireDomain, engine.RequireDNSToken, engine.RequireDemoChoice)
}

func (s *DNSStep) Run(ctx context.Context, sess *engine.Session) error {
	state := sess.State
	ip := state.PublicIP()
	if ip == "" {
		var err error
		ip, err = sess.Prompt.Input(ctx, engine.Question{
			Label:    "Public IPv4 of the server",
			Validate: setup.ValidateIPv4,
		})
		if err != nil {
			return err
		}
	}

	desired := dns.Desired(ip, state.DemoEnabled(), providerRecords(state.DNSRecords))

	if state.DNSToken == "" {
		var b strings.Builder
		if err := dns.WriteManual(&b, state.Domain, desired); err != nil {
			return err
		}
		sess.Report.Warn("No DNS token: create the records below by hand")
		sess.Report.Info("%s", b.String())
		state.DNSRecords = desired
		return nil
	}

	client, err := s.deps.DNS(state.DNSToken)
	if err != nil {
		return err
	}
	res, err := client.Sync(ctx, state.Domain, desired)
	if res != nil {
		for _, r := range res.Created {
			sess.Report.Success("Created %s %s", r.Type, dns.FQDN(r.Name, state.Domain))
		}
		for _, r := range res.Updated {
			sess.Report.Success("Updated %s %s", r.Type, dns.FQDN(r.Name, state.Domain))
		}
		if n := len(res.Unchanged); n > 0 {
			sess.Report.Info("%d record(s) already correct", n)
		}
	}
	if err != nil {
		return err
	}
	state.DNSRecords = desired
	return nil
}

// providerRecords drops the application A records, which are rebuilt from the
// current address on every run.
func providerRecords(records []setup.DNSRecord) []setup.DNSRecord {
	app := make(map[string]bool, len(dns.AppHosts)+1)
	for _, h := range append([]string{dns.DemoHost}, dns.AppHosts...) {
		app[setup.DNSRecord{Type: "A", Name: h}.Key()] = true
	}
	var out []setup.DNSRecord
	for _, r := range records {
		if !app[r.Key()] {
			out = append(out, r)
		}
	}
	return out
}
