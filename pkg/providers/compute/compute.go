// Package compute provisions the server, its reserved IP and firewall on the
// compute provider. Every operation looks for an existing resource before it
// creates one.
package compute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultLocation is used when a server's own location cannot be resolved.
const DefaultLocation = "fsn1"

// Instance is a server as the wizard sees it.
type Instance struct {
	ID       int64
	Name     string
	IPv4     string
	Location string
	Status   string
}

// SSHKey is a key registered with the provider account.
type SSHKey struct {
	ID          int64
	Name        string
	Fingerprint string
	PublicKey   string
}

// Firewall is a provider firewall and the servers it applies to.
type Firewall struct {
	ID        int64
	Name      string
	ServerIDs []int64
}

// AppliesTo reports whether the firewall is attached to serverID.
func (f Firewall) AppliesTo(serverID int64) bool {
	for _, id := range f.ServerIDs {
		if id == serverID {
			return true
		}
	}
	return false
}

// ReservedIP is an address that can move between servers. ServerID is zero when
// the address is not attached.
type ReservedIP struct {
	ID          int64
	IP          string
	ServerID    int64
	Location    string
	Description string
}

// Option is a selectable location or server type.
type Option struct {
	Name        string
	Description string
}

// CreateRequest describes a new server.
type CreateRequest struct {
	Name       string
	Location   string
	ServerType string
	Image      string
	SSHKeyID   int64
	UserData   string
	Labels     map[string]string
}

// FirewallRule is one inbound or outbound rule.
type FirewallRule struct {
	Direction   string
	Protocol    string
	Port        string
	Description string
}

// API is the provider surface the adapter depends on.
type API interface {
	ListServers(ctx context.Context) ([]Instance, error)
	GetServer(ctx context.Context, id int64) (*Instance, error)
	CreateServer(ctx context.Context, req CreateRequest) (*Instance, error)

	ListSSHKeys(ctx context.Context) ([]SSHKey, error)
	CreateSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error)

	ListFirewalls(ctx context.Context) ([]Firewall, error)
	CreateFirewall(ctx context.Context, name string, rules []FirewallRule, serverID int64) (*Firewall, error)
	ApplyFirewall(ctx context.Context, firewallID, serverID int64) error

	ListReservedIPs(ctx context.Context) ([]ReservedIP, error)
	CreateReservedIP(ctx context.Context, location, description string) (*ReservedIP, error)
	AssignReservedIP(ctx context.Context, ipID, serverID int64) error

	ListLocations(ctx context.Context) ([]Option, error)
	ListServerTypes(ctx context.Context) ([]Option, error)
}

// Provider implements the idempotent compute operations on top of an API.
type Provider struct {
	api    API
	logger zerolog.Logger
	ready  engine.PollConfig
}

// NewProvider wraps api.
func NewProvider(api API, logger zerolog.Logger) *Provider {
	return &Provider{
		api:    api,
		logger: logger.With().Str("component", "compute").Logger(),
		ready:  engine.PollConfig{MaxAttempts: 60, Delay: engine.Constant(2 * time.Second)},
	}
}

// WithReadyPoll overrides how long CreateInstance waits for a running server.
func (p *Provider) WithReadyPoll(cfg engine.PollConfig) *Provider {
	p.ready = cfg
	return p
}

// ListInstances returns the servers that have a public IPv4.
func (p *Provider) ListInstances(ctx context.Context) ([]Instance, error) {
	all, err := p.api.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	out := make([]Instance, 0, len(all))
	for _, inst := range all {
		if inst.IPv4 != "" {
			out = append(out, inst)
		}
	}
	return out, nil
}

// CreateInstance creates a server and waits until it is running with an IPv4.
// SSH may not be reachable yet when this returns.
func (p *Provider) CreateInstance(ctx context.Context, req CreateRequest) (*Instance, error) {
	if req.Image == "" {
		req.Image = DefaultImage
	}
	created, err := p.api.CreateServer(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create server %s: %w", req.Name, err)
	}
	p.logger.Info().Int64("server_id", created.ID).Str("name", req.Name).Msg("server created")

	inst := created
	_, err = engine.Poll(ctx, p.ready, func(ctx context.Context, attempt int) (bool, error) {
		if inst.Status == StatusRunning && inst.IPv4 != "" {
			return true, nil
		}
		current, err := p.api.GetServer(ctx, created.ID)
		if err != nil {
			return false, fmt.Errorf("get server %d: %w", created.ID, err)
		}
		inst = current
		return inst.Status == StatusRunning && inst.IPv4 != "", nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for server %s: %w", req.Name, err)
	}
	return inst, nil
}

// EnsureSSHKey returns the account key matching name or publicKey, registering it
// when neither matches.
func (p *Provider) EnsureSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error) {
	keys, err := p.api.ListSSHKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ssh keys: %w", err)
	}
	material := normalizeKey(publicKey)
	for _, k := range keys {
		if k.Name == name || normalizeKey(k.PublicKey) == material {
			p.logger.Info().Int64("key_id", k.ID).Str("name", k.Name).Msg("reusing registered ssh key")
			found := k
			return &found, nil
		}
	}

	key, err := p.api.CreateSSHKey(ctx, name, publicKey)
	if err != nil {
		return nil, fmt.Errorf("create ssh key %s: %w", name, err)
	}
	return key, nil
}

// normalizeKey keeps the key type and base64 body, dropping the comment.
func normalizeKey(key string) string {
	fields := strings.Fields(key)
	if len(fields) < 2 {
		return strings.TrimSpace(key)
	}
	return fields[0] + " " + fields[1]
}

// Catalog fetches locations and server types concurrently.
func (p *Provider) Catalog(ctx context.Context) (locations, types []Option, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if locations, err = p.api.ListLocations(gctx); err != nil {
			return fmt.Errorf("list locations: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if types, err = p.api.ListServerTypes(gctx); err != nil {
			return fmt.Errorf("list server types: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return locations, types, nil
}

// isAlreadyAssigned matches the provider's answer to assigning an address that is
// already on the server.
func isAlreadyAssigned(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already assigned")
}

var errNoServer = errors.New("server id is required")
