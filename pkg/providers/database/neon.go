// Package database manages the Postgres project on Neon and the logical databases
// the identity services use.
package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/transports/rest"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the Neon API v2 root.
const DefaultBaseURL = "https://console.neon.tech/api/v2"

// LogicalDatabases are created in every project.
var LogicalDatabases = []string{"kratos", "hydra", "keto"}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Observer   rest.Observer
	Logger     zerolog.Logger

	// OperationsPoll bounds the wait for project operations to settle.
	OperationsPoll engine.PollConfig
	// ConflictRetry bounds database creation retries on conflicting operations.
	ConflictRetry engine.PollConfig
}

// Client talks to the Neon API.
type Client struct {
	api      *rest.Client
	logger   zerolog.Logger
	opsPoll  engine.PollConfig
	conflict engine.PollConfig
}

// New creates a client for apiKey.
func New(apiKey string, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.OperationsPoll.MaxAttempts == 0 {
		opts.OperationsPoll = engine.PollConfig{MaxAttempts: 20, Delay: engine.Constant(2 * time.Second)}
	}
	if opts.ConflictRetry.MaxAttempts == 0 {
		opts.ConflictRetry = engine.PollConfig{MaxAttempts: 5, Delay: engine.Linear(2 * time.Second)}
	}
	api, err := rest.New(rest.Config{
		Provider:   "neon",
		BaseURL:    opts.BaseURL,
		Token:      apiKey,
		HTTPClient: opts.HTTPClient,
		Logger:     opts.Logger,
		Observer:   opts.Observer,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		api:      api,
		logger:   opts.Logger.With().Str("component", "database").Logger(),
		opsPoll:  opts.OperationsPoll,
		conflict: opts.ConflictRetry,
	}, nil
}

// Organization is a Neon organization the API key can act in.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Organizations lists the organizations of the key's user.
func (c *Client) Organizations(ctx context.Context) ([]Organization, error) {
	var resp struct {
		Organizations []Organization `json:"organizations"`
	}
	if err := c.api.Get(ctx, "/users/me/organizations", &resp); err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return resp.Organizations, nil
}

// ProjectRequest identifies or describes a project. ID, when set, is resolved
// instead of creating a new project.
type ProjectRequest struct {
	ID     string
	Name   string
	Region string
	OrgID  string
}

// Project is a resolved project with the credentials of its application role.
type Project struct {
	ID       string
	Name     string
	BranchID string
	Host     string
	Role     string
	Password string
	Created  bool
}

type apiProject struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RegionID string `json:"region_id"`
}

type apiRole struct {
	BranchID  string `json:"branch_id"`
	Name      string `json:"name"`
	Password  string `json:"password"`
	Protected bool   `json:"protected"`
}

type apiEndpoint struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	BranchID string `json:"branch_id"`
	Type     string `json:"type"`
}

type createProjectResponse struct {
	Project        apiProject `json:"project"`
	ConnectionURIs []struct {
		ConnectionURI string `json:"connection_uri"`
	} `json:"connection_uris"`
	Roles  []apiRole `json:"roles"`
	Branch struct {
		ID string `json:"id"`
	} `json:"branch"`
	Endpoints []apiEndpoint `json:"endpoints"`
}

// EnsureProject resolves req.ID when set, otherwise creates a project and waits for
// its setup operations.
func (c *Client) EnsureProject(ctx context.Context, req ProjectRequest) (*Project, error) {
	if req.ID != "" {
		return c.resolveProject(ctx, req.ID)
	}

	body := map[string]any{"name": req.Name}
	if req.Region != "" {
		body["region_id"] = req.Region
	}
	if req.OrgID != "" {
		body["org_id"] = req.OrgID
	}
	var resp createProjectResponse
	if err := c.api.Post(ctx, "/projects", map[string]any{"project": body}, &resp); err != nil {
		return nil, fmt.Errorf("create project %s: %w", req.Name, err)
	}

	p := &Project{ID: resp.Project.ID, Name: resp.Project.Name, BranchID: resp.Branch.ID, Created: true}
	for _, ep := range resp.Endpoints {
		if p.Host == "" || ep.Type == "read_write" {
			p.Host = ep.Host
		}
	}
	if err := p.adoptCredentials(resp); err != nil {
		return nil, fmt.Errorf("create project %s: %w", req.Name, err)
	}
	c.logger.Info().Str("project_id", p.ID).Msg("project created")

	c.WaitForOperations(ctx, p.ID)
	return p, nil
}

// adoptCredentials reads the initial role from the connection URI, falling back to
// the roles array.
func (p *Project) adoptCredentials(resp createProjectResponse) error {
	for _, cu := range resp.ConnectionURIs {
		u, err := url.Parse(cu.ConnectionURI)
		if err != nil || u.User == nil {
			continue
		}
		pass, ok := u.User.Password()
		if !ok || pass == "" {
			continue
		}
		p.Role = u.User.Username()
		p.Password = pass
		if p.Host == "" {
			p.Host = u.Hostname()
		}
		return nil
	}
	for _, r := range resp.Roles {
		if r.Protected || r.Password == "" {
			continue
		}
		p.Role = r.Name
		p.Password = r.Password
		return nil
	}
	return errors.New("response carried no role credentials")
}

func (c *Client) resolveProject(ctx context.Context, id string) (*Project, error) {
	var proj struct {
		Project apiProject `json:"project"`
	}
	if err := c.api.Get(ctx, "/projects/"+url.PathEscape(id), &proj); err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	p := &Project{ID: proj.Project.ID, Name: proj.Project.Name}

	var branches struct {
		Branches []struct {
			ID      string `json:"id"`
			Default bool   `json:"default"`
			Primary bool   `json:"primary"`
		} `json:"branches"`
	}
	if err := c.api.Get(ctx, c.projectPath(id, "branches"), &branches); err != nil {
		return nil, fmt.Errorf("list branches of %s: %w", id, err)
	}
	for _, b := range branches.Branches {
		if p.BranchID == "" || b.Default || b.Primary {
			p.BranchID = b.ID
		}
	}
	if p.BranchID == "" {
		return nil, fmt.Errorf("project %s has no branches", id)
	}

	var endpoints struct {
		Endpoints []apiEndpoint `json:"endpoints"`
	}
	if err := c.api.Get(ctx, c.branchPath(p, "endpoints"), &endpoints); err != nil {
		return nil, fmt.Errorf("list endpoints of %s: %w", id, err)
	}
	for _, ep := range endpoints.Endpoints {
		if p.Host == "" || ep.Type == "read_write" {
			p.Host = ep.Host
		}
	}

	var roles struct {
		Roles []apiRole `json:"roles"`
	}
	if err := c.api.Get(ctx, c.branchPath(p, "roles"), &roles); err != nil {
		return nil, fmt.Errorf("list roles of %s: %w", id, err)
	}
	for _, r := range roles.Roles {
		if !r.Protected {
			p.Role = r.Name
			break
		}
	}
	if p.Role == "" {
		return nil, fmt.Errorf("project %s has no application role", id)
	}

	var reveal struct {
		Password string `json:"password"`
	}
	if err := c.api.Get(ctx, c.branchPath(p, "roles/"+url.PathEscape(p.Role)+"/reveal_password"), &reveal); err != nil {
		return nil, fmt.Errorf("reveal password of role %s: %w", p.Role, err)
	}
	p.Password = reveal.Password
	c.logger.Info().Str("project_id", p.ID).Str("branch_id", p.BranchID).Msg("project resolved")
	return p, nil
}

// WaitForOperations polls until no operation is running or scheduling. When the
// budget runs out it logs and returns, leaving any rejection to the next call.
func (c *Client) WaitForOperations(ctx context.Context, projectID string) {
	attempts, err := engine.Poll(ctx, c.opsPoll, func(ctx context.Context, attempt int) (bool, error) {
		var resp struct {
			Operations []struct {
				ID     string `json:"id"`
				Action string `json:"action"`
				Status string `json:"status"`
			} `json:"operations"`
		}
		if err := c.api.Get(ctx, c.projectPath(projectID, "operations"), &resp); err != nil {
			c.logger.Debug().Err(err).Int("attempt", attempt).Msg("operations poll failed")
			return false, nil
		}
		for _, op := range resp.Operations {
			if op.Status == "running" || op.Status == "scheduling" {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("attempts", attempts).Str("project_id", projectID).Msg("operations still pending; continuing")
	}
}

// EnsureDatabase creates name owned by the project's role unless it exists.
// Conflicting-operation rejections are retried within the conflict budget. It
// returns whether the database was created and how many create calls were made.
func (c *Client) EnsureDatabase(ctx context.Context, p *Project, name string) (created bool, attempts int, err error) {
	var list struct {
		Databases []struct {
			Name string `json:"name"`
		} `json:"databases"`
	}
	if err := c.api.Get(ctx, c.branchPath(p, "databases"), &list); err != nil {
		return false, 0, fmt.Errorf("list databases: %w", err)
	}
	for _, db := range list.Databases {
		if db.Name == name {
			return false, 0, nil
		}
	}

	body := map[string]any{"database": map[string]string{"name": name, "owner_name": p.Role}}
	attempts, err = engine.Retry(ctx, c.conflict, IsConflict, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			c.logger.Info().Str("database", name).Int("attempt", attempt).Msg("retrying after conflicting operation")
		}
		return c.api.Post(ctx, c.branchPath(p, "databases"), body, nil)
	})
	if err != nil {
		return false, attempts, fmt.Errorf("create database %s: %w", name, err)
	}
	c.logger.Info().Str("database", name).Int("attempts", attempts).Msg("database created")
	return true, attempts, nil
}

// IsConflict reports the provider's rejection of concurrent project operations.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusLocked || apiErr.Contains("conflicting operations")
	}
	return strings.Contains(strings.ToLower(err.Error()), "conflicting operations")
}

func (c *Client) projectPath(projectID, suffix string) string {
	return "/projects/" + url.PathEscape(projectID) + "/" + suffix
}

func (c *Client) branchPath(p *Project, suffix string) string {
	return c.projectPath(p.ID, "branches/"+url.PathEscape(p.BranchID)+"/"+suffix)
}
