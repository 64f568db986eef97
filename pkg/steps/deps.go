// Package steps is the wizard's fixed, ordered step catalog. Each step wires one
// or more provider adapters into the shared setup context.
package steps

import (
	"context"
	"time"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/process"
	"github.com/openfroyo/launchpad/pkg/providers/cicd"
	"github.com/openfroyo/launchpad/pkg/providers/compute"
	"github.com/openfroyo/launchpad/pkg/providers/database"
	"github.com/openfroyo/launchpad/pkg/providers/dns"
	"github.com/openfroyo/launchpad/pkg/providers/email"
	"github.com/openfroyo/launchpad/pkg/setup"
	"github.com/openfroyo/launchpad/pkg/transports/rest"
	sshtransport "github.com/openfroyo/launchpad/pkg/transports/ssh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// DatabaseAPI is the managed database surface the database step uses.
type DatabaseAPI interface {
	Organizations(ctx context.Context) ([]database.Organization, error)
	EnsureProject(ctx context.Context, req database.ProjectRequest) (*database.Project, error)
	EnsureDatabase(ctx context.Context, p *database.Project, name string) (created bool, attempts int, err error)
}

// EmailAPI is the email provider surface the email step uses.
type EmailAPI interface {
	EnsureDomain(ctx context.Context, name string) (*email.Domain, error)
}

// DNSAPI is the DNS provider surface the dns step uses.
type DNSAPI interface {
	Sync(ctx context.Context, zone string, desired []setup.DNSRecord) (*dns.SyncResult, error)
}

// CIAPI is the CI platform surface the ci and deploy steps use.
type CIAPI interface {
	CheckInstalled() error
	EnsureAuthenticated(ctx context.Context) (string, error)
	DetectRepository(ctx context.Context, dir string) (cicd.Repository, error)
	CreateEnvironment(ctx context.Context, repo cicd.Repository, env string) error
	SetSecret(ctx context.Context, scope cicd.Scope, name, value string) error
	SetVariable(ctx context.Context, scope cicd.Scope, name, value string) error
	TriggerWorkflow(ctx context.Context, repo cicd.Repository, workflow, ref string, inputs map[string]string) error
}

// Deps are the collaborators steps are built from. Provider clients are created
// from the credentials in the context when a step runs.
type Deps struct {
	Runner process.Runner
	Dialer sshtransport.Dialer
	CI     CIAPI

	Compute  func(token string) compute.API
	Database func(apiKey string) (DatabaseAPI, error)
	Email    func(apiKey string) (EmailAPI, error)
	DNS      func(token string) (DNSAPI, error)

	// VerifyDatabase checks a connection string; failures are warnings.
	VerifyDatabase func(ctx context.Context, dsn string) error

	// DeployKeyPath overrides ~/.ssh/launchpad_deploy_ed25519.
	DeployKeyPath string

	// WorkDir is where the repository is detected from.
	WorkDir string

	// SSHPoll bounds the wait for a new server's SSH daemon.
	SSHPoll engine.PollConfig

	// ServerPoll bounds the wait for a new server to report running. Zero keeps
	// the compute provider's default.
	ServerPoll engine.PollConfig

	Logger zerolog.Logger
}

// NewDeps returns the production collaborators. Provider HTTP traffic is reported
// to observer and the compute SDK registers its metrics with registry.
func NewDeps(logger zerolog.Logger, observer rest.Observer, registry prometheus.Registerer, version, workDir string) *Deps {
	runner := process.NewExec(logger)
	clouds := make(map[string]compute.API)
	return &Deps{
		Runner: runner,
		Dialer: sshtransport.NetDialer{Logger: logger},
		CI:     cicd.New(runner, logger),

		// One client per token: the SDK registers its collectors on creation.
		Compute: func(token string) compute.API {
			if api, ok := clouds[token]; ok {
				return api
			}
			api := compute.NewHCloud(token, version, registry)
			clouds[token] = api
			return api
		},
		Database: func(apiKey string) (DatabaseAPI, error) {
			return database.New(apiKey, database.Options{Observer: observer, Logger: logger})
		},
		Email: func(apiKey string) (EmailAPI, error) {
			return email.New(apiKey, email.Options{Observer: observer, Logger: logger})
		},
		DNS: func(token string) (DNSAPI, error) {
			return dns.New(token, dns.Options{Observer: observer, Logger: logger})
		},
		VerifyDatabase: database.VerifyConnection,

		WorkDir: workDir,
		SSHPoll: sshtransport.ReachablePoll,
		Logger:  logger,
	}
}

func (d *Deps) computeProvider(token string) *compute.Provider {
	p := compute.NewProvider(d.Compute(token), d.Logger)
	if d.ServerPoll.MaxAttempts > 0 {
		p.WithReadyPoll(d.ServerPoll)
	}
	return p
}

// NewCatalog returns every step in execution order.
func NewCatalog(d *Deps) engine.Catalog {
	return engine.Catalog{
		&SSHKeyStep{deps: d},
		&ServerStep{deps: d},
		&ReservedIPStep{deps: d},
		&FirewallStep{deps: d},
		&DatabaseStep{deps: d},
		&EmailStep{deps: d},
		&DNSStep{deps: d},
		&SecretsStep{deps: d},
		&CIStep{deps: d},
		&DeployStep{deps: d},
	}
}

const (
	IDSSHKey     engine.StepID = "ssh-key"
	IDServer     engine.StepID = "server"
	IDReservedIP engine.StepID = "reserved-ip"
	IDFirewall   engine.StepID = "firewall"
	IDDatabase   engine.StepID = "database"
	IDEmail      engine.StepID = "email"
	IDDNS        engine.StepID = "dns"
	IDSecrets    engine.StepID = "secrets"
	IDCI         engine.StepID = "ci"
	IDDeploy     engine.StepID = "deploy"
)

// Descriptions are shown next to each step in the selection menu.
var Descriptions = map[engine.StepID]string{
	IDSSHKey:     "generate or reuse the deploy key",
	IDServer:     "pick or create the server and verify SSH access",
	IDReservedIP: "attach a reserved IPv4 to the server",
	IDFirewall:   "restrict inbound traffic to the platform ports",
	IDDatabase:   "managed PostgreSQL project and databases",
	IDEmail:      "sending domain and verification records",
	IDDNS:        "application and email DNS records",
	IDSecrets:    "derive the platform secrets from the passphrase",
	IDCI:         "GitHub environment, secrets and variables",
	IDDeploy:     "dispatch the deploy workflow",
}

// sshConfig returns the key-auth connection settings for the server.
func sshConfig(state *setup.Context) *sshtransport.Config {
	cfg := sshtransport.DefaultConfig(state.ServerIPv4, state.SSHUser, state.SSHPrivateKeyPath)
	if state.SSHPort != 0 {
		cfg.Port = state.SSHPort
	}
	cfg.ConnectionTimeout = 10 * time.Second
	return cfg
}
