package steps

import (
	"context"

	"github.com/openfroyo/launchpad/pkg/engine"
)

// EmailStep registers the sending domain and collects its verification records.
type EmailStep struct {
	deps *Deps
}

func (s *EmailStep) ID() engine.StepID { return IDEmail }
func (s *EmailStep) Title() string     { return "Email domain" }
func (s *EmailStep) Requires() engine.RequirementSet {
	return engine.Requires(engine.RequireDomain, engine.RequireEmailAPIKey)
}

func (s *EmailStep) Run(ctx context.Context, sess *engine.Session) error {
	state := sess.State
	client, err := s.deps.Email(state.EmailAPIKey)
	if err != nil {
		return err
	}
	domain, err := client.EnsureDomain(ctx, state.Domain)
	if err != nil {
		return err
	}
	state.EmailDomainID = domain.ID
	state.AppendDNSRecords(domain.Records...)

	if domain.Created {
		sess.Report.Success("Registered %s", domain.Name)
	} else {
		sess.Report.Info("%s is already registered (%s)", domain.Name, domain.Status)
	}
	sess.Report.Info("%d verification record(s) queued for the dns step", len(domain.Records))
	return nil
}
