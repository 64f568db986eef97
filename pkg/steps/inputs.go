package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/providers/cicd"
	"github.com/openfroyo/launchpad/pkg/setup"
)

// Environment variables that pre-fill empty credentials.
const (
	EnvComputeToken   = "HCLOUD_TOKEN"
	EnvDatabaseAPIKey = "NEON_API_KEY"
	EnvEmailAPIKey    = "RESEND_API_KEY"
	EnvDNSToken       = "HETZNER_DNS_TOKEN"
	EnvPassphrase     = "LAUNCHPAD_PASSPHRASE"
)

// ApplyEnv fills empty credential fields from lookup. It returns the names of the
// variables it used.
func ApplyEnv(state *setup.Context, lookup func(string) string) []string {
	fields := []struct {
		env string
		dst *string
	}{
		{EnvComputeToken, &state.ComputeToken},
		{EnvDatabaseAPIKey, &state.DatabaseAPIKey},
		{EnvEmailAPIKey, &state.EmailAPIKey},
		{EnvDNSToken, &state.DNSToken},
		{EnvPassphrase, &state.Passphrase},
	}
	var used []string
	for _, f := range fields {
		if *f.dst != "" {
			continue
		}
		if v := lookup(f.env); v != "" {
			*f.dst = v
			used = append(used, f.env)
		}
	}
	return used
}

// Inputs implements engine.InputCollector.
type Inputs struct {
	deps *Deps
}

var _ engine.InputCollector = (*Inputs)(nil)

// NewInputs returns the collector for the shared inputs.
func NewInputs(d *Deps) *Inputs {
	return &Inputs{deps: d}
}

// Satisfied implements engine.InputCollector.
func (in *Inputs) Satisfied(req engine.Requirement, s *setup.Context) bool {
	switch req {
	case engine.RequireDomain:
		return s.Domain != ""
	case engine.RequirePassphrase:
		return s.Passphrase != ""
	case engine.RequireAdminCredentials:
		return s.AdminEmail != "" && s.AdminPassword != ""
	case engine.RequireComputeToken:
		return s.ComputeToken != ""
	case engine.RequireDatabaseAPIKey:
		return s.DatabaseAPIKey != ""
	case engine.RequireEmailAPIKey:
		return s.EmailAPIKey != ""
	case engine.RequireDNSToken:
		// An empty token is a valid answer: records are then listed for manual entry.
		return s.DNSToken != ""
	case engine.RequireRepository:
		return s.Repository() != ""
	case engine.RequireDemoChoice:
		return s.IncludeDemoApp != nil
	}
	return false
}

// Collect implements engine.InputCollector.
func (in *Inputs) Collect(ctx context.Context, req engine.Requirement, s *setup.Context, p engine.Prompter) error {
	var err error
	switch req {
	case engine.RequireDomain:
		s.Domain, err = p.Input(ctx, engine.Question{
			Label:    "Platform domain (e.g. example.com)",
			Validate: setup.ValidateDomain,
		})

	case engine.RequirePassphrase:
		s.Passphrase, err = p.Input(ctx, engine.Question{
			Label:    "Master passphrase (derives every platform secret; keep it safe)",
			Secret:   true,
			Confirm:  true,
			Validate: setup.ValidatePassword,
		})

	case engine.RequireAdminCredentials:
		if s.AdminEmail == "" {
			def := ""
			if s.Domain != "" {
				def = "admin@" + s.Domain
			}
			if s.AdminEmail, err = p.Input(ctx, engine.Question{Label: "Admin email", Default: def, Validate: setup.ValidateEmail}); err != nil {
				return err
			}
		}
		if s.AdminPassword == "" {
			s.AdminPassword, err = p.Input(ctx, engine.Question{
				Label:    "Admin password",
				Secret:   true,
				Confirm:  true,
				Validate: setup.ValidatePassword,
			})
		}

	case engine.RequireComputeToken:
		s.ComputeToken, err = p.Input(ctx, engine.Question{Label: "Hetzner Cloud API token", Secret: true, Validate: setup.ValidateRequired})

	case engine.RequireDatabaseAPIKey:
		s.DatabaseAPIKey, err = p.Input(ctx, engine.Question{Label: "Neon API key", Secret: true, Validate: setup.ValidateRequired})

	case engine.RequireEmailAPIKey:
		s.EmailAPIKey, err = p.Input(ctx, engine.Question{Label: "Resend API key", Secret: true, Validate: setup.ValidateRequired})

	case engine.RequireDNSToken:
		s.DNSToken, err = p.Input(ctx, engine.Question{
			Label:      "Hetzner DNS API token (empty to create records by hand)",
			Secret:     true,
			AllowEmpty: true,
		})

	case engine.RequireRepository:
		err = in.collectRepository(ctx, s, p)

	case engine.RequireDemoChoice:
		var include bool
		if include, err = p.Confirm(ctx, "Include the demo application?", false); err == nil {
			s.SetDemo(include)
		}

	default:
		return fmt.Errorf("no collector for %s", req)
	}
	return err
}

func (in *Inputs) collectRepository(ctx context.Context, s *setup.Context, p engine.Prompter) error {
	var detected cicd.Repository
	if in.deps.CI != nil {
		repo, err := in.deps.CI.DetectRepository(ctx, in.deps.WorkDir)
		switch {
		case err == nil:
			detected = repo
		case !errors.Is(err, cicd.ErrNoRepository):
			in.deps.Logger.Debug().Err(err).Msg("repository detection failed")
		}
	}

	if detected.Owner != "" {
		ok, err := p.Confirm(ctx, fmt.Sprintf("Use repository %s?", detected), true)
		if err != nil {
			return err
		}
		if ok {
			s.RepoOwner, s.RepoName = detected.Owner, detected.Name
			return nil
		}
	}

	answer, err := p.Input(ctx, engine.Question{
		Label:    "GitHub repository (owner/name)",
		Default:  detected.String(),
		Validate: setup.ValidateRepository,
	})
	if err != nil {
		return err
	}
	repo, _ := cicd.ParseRemoteURL("https://github.com/" + answer)
	s.RepoOwner, s.RepoName = repo.Owner, repo.Name
	return nil
}
