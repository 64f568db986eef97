package steps

import (
	"context"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/providers/database"
)

const projectName = "launchpad"

// DatabaseStep provisions the managed PostgreSQL project and one database per
// platform service.
type DatabaseStep struct {
	deps *Deps
}

func (s *DatabaseStep) ID() engine.StepID { return IDDatabase }
func (s *DatabaseStep) Title() string     { return "Database" }
func (s *DatabaseStep) Requires() engine.RequirementSet {
	return engine.Requires(engine.RequireDatabaseAPIKey)
}

func (s *DatabaseStep) Run(ctx context.Context, sess *engine.Session) error {
	state := sess.State
	client, err := s.deps.Database(state.DatabaseAPIKey)
	if err != nil {
		return err
	}

	if state.DatabaseProjectID == "" && state.DatabaseOrgID == "" {
		if state.DatabaseOrgID, err = s.pickOrganization(ctx, sess, client); err != nil {
			return err
		}
	}

	project, err := client.EnsureProject(ctx, database.ProjectRequest{
		ID:    state.DatabaseProjectID,
		Name:  projectName,
		OrgID: state.DatabaseOrgID,
	})
	if err != nil {
		return err
	}
	state.DatabaseProjectID = project.ID
	state.DatabaseBranchID = project.BranchID
	state.DatabaseHost = project.Host
	state.DatabaseRole = project.Role
	if project.Password != "" {
		state.DatabasePassword = project.Password
	}
	if err := sess.Checkpoint(); err != nil {
		return err
	}
	if project.Created {
		sess.Report.Success("Created project %s", project.ID)
	} else {
		sess.Report.Info("Using project %s", project.ID)
	}

	for _, name := range database.LogicalDatabases {
		created, attempts, err := client.EnsureDatabase(ctx, project, name)
		if err != nil {
			return err
		}
		if created {
			sess.Log.Info().Str("database", name).Int("attempts", attempts).Msg("database created")
		}
		state.SetDatabaseURL(name, database.ConnectionString(state.DatabaseRole, state.DatabasePassword, state.DatabaseHost, name))
	}
	if err := sess.Checkpoint(); err != nil {
		return err
	}

	for _, name := range database.LogicalDatabases {
		dsn := state.DatabaseURLs[name]
		sess.Report.Info("%s: %s", name, database.Mask(dsn))
		if s.deps.VerifyDatabase == nil {
			continue
		}
		if err := s.deps.VerifyDatabase(ctx, dsn); err != nil {
			sess.Report.Warn("Could not connect to %s: %v", name, err)
		}
	}
	return nil
}

func (s *DatabaseStep) pickOrganization(ctx context.Context, sess *engine.Session, client DatabaseAPI) (string, error) {
	orgs, err := client.Organizations(ctx)
	if err != nil {
		return "", err
	}
	switch len(orgs) {
	case 0:
		return "", nil
	case 1:
		sess.Report.Info("Using organization %s", orgs[0].Name)
		return orgs[0].ID, nil
	}

	choices := make([]engine.Choice, len(orgs))
	for i, o := range orgs {
		choices[i] = engine.Choice{Label: o.Name, Detail: o.ID}
	}
	idx, err := sess.Prompt.Select(ctx, "Neon organization", choices)
	if err != nil {
		return "", err
	}
	return orgs[idx].ID, nil
}
