package compute

import (
	"context"
	"fmt"
	"net"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/prometheus/client_golang/prometheus"
)

// HCloud implements API against Hetzner Cloud. Floating IPs serve as reserved IPs.
type HCloud struct {
	client *hcloud.Client
}

// NewHCloud creates a client for token. A non-nil registry receives the library's
// request metrics.
func NewHCloud(token, version string, registry prometheus.Registerer, opts ...hcloud.ClientOption) *HCloud {
	base := []hcloud.ClientOption{
		hcloud.WithToken(token),
		hcloud.WithApplication("launchpad", version),
	}
	if registry != nil {
		base = append(base, hcloud.WithInstrumentation(registry))
	}
	return &HCloud{client: hcloud.NewClient(append(base, opts...)...)}
}

// hcloudError carries the HTTP status so errors classify like REST errors.
type hcloudError struct {
	status int
	err    error
}

func (e *hcloudError) Error() string   { return e.err.Error() }
func (e *hcloudError) Unwrap() error   { return e.err }
func (e *hcloudError) StatusCode() int { return e.status }

func wrap(resp *hcloud.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp != nil && resp.Response != nil {
		return &hcloudError{status: resp.StatusCode, err: err}
	}
	return err
}

func (h *HCloud) ListServers(ctx context.Context) ([]Instance, error) {
	servers, err := h.client.Server.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Instance, 0, len(servers))
	for _, s := range servers {
		out = append(out, toInstance(s))
	}
	return out, nil
}

func (h *HCloud) GetServer(ctx context.Context, id int64) (*Instance, error) {
	s, resp, err := h.client.Server.GetByID(ctx, id)
	if err != nil {
		return nil, wrap(resp, err)
	}
	if s == nil {
		return nil, fmt.Errorf("server %d not found", id)
	}
	inst := toInstance(s)
	return &inst, nil
}

func (h *HCloud) CreateServer(ctx context.Context, req CreateRequest) (*Instance, error) {
	opts := hcloud.ServerCreateOpts{
		Name:       req.Name,
		ServerType: &hcloud.ServerType{Name: req.ServerType},
		Image:      &hcloud.Image{Name: req.Image},
		Location:   &hcloud.Location{Name: req.Location},
		UserData:   req.UserData,
		Labels:     req.Labels,
	}
	if req.SSHKeyID != 0 {
		opts.SSHKeys = []*hcloud.SSHKey{{ID: req.SSHKeyID}}
	}
	res, resp, err := h.client.Server.Create(ctx, opts)
	if err != nil {
		return nil, wrap(resp, err)
	}

	actions := append([]*hcloud.Action{res.Action}, res.NextActions...)
	if err := h.client.Action.WaitFor(ctx, actions...); err != nil {
		return nil, fmt.Errorf("wait for create action: %w", err)
	}
	inst := toInstance(res.Server)
	return &inst, nil
}

func (h *HCloud) ListSSHKeys(ctx context.Context) ([]SSHKey, error) {
	keys, err := h.client.SSHKey.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SSHKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, SSHKey{ID: k.ID, Name: k.Name, Fingerprint: k.Fingerprint, PublicKey: k.PublicKey})
	}
	return out, nil
}

func (h *HCloud) CreateSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error) {
	k, resp, err := h.client.SSHKey.Create(ctx, hcloud.SSHKeyCreateOpts{Name: name, PublicKey: publicKey})
	if err != nil {
		return nil, wrap(resp, err)
	}
	return &SSHKey{ID: k.ID, Name: k.Name, Fingerprint: k.Fingerprint, PublicKey: k.PublicKey}, nil
}

func (h *HCloud) ListFirewalls(ctx context.Context) ([]Firewall, error) {
	fws, err := h.client.Firewall.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Firewall, 0, len(fws))
	for _, fw := range fws {
		f := Firewall{ID: fw.ID, Name: fw.Name}
		for _, res := range fw.AppliedTo {
			if res.Type == hcloud.FirewallResourceTypeServer && res.Server != nil {
				f.ServerIDs = append(f.ServerIDs, res.Server.ID)
			}
		}
		out = append(out, f)
	}
	return out, nil
}

func (h *HCloud) CreateFirewall(ctx context.Context, name string, rules []FirewallRule, serverID int64) (*Firewall, error) {
	res, resp, err := h.client.Firewall.Create(ctx, hcloud.FirewallCreateOpts{
		Name:    name,
		Rules:   toHCloudRules(rules),
		ApplyTo: []hcloud.FirewallResource{serverResource(serverID)},
		Labels:  map[string]string{"managed-by": "launchpad"},
	})
	if err != nil {
		return nil, wrap(resp, err)
	}
	if err := h.client.Action.WaitFor(ctx, res.Actions...); err != nil {
		return nil, fmt.Errorf("wait for firewall actions: %w", err)
	}
	return &Firewall{ID: res.Firewall.ID, Name: res.Firewall.Name, ServerIDs: []int64{serverID}}, nil
}

func (h *HCloud) ApplyFirewall(ctx context.Context, firewallID, serverID int64) error {
	actions, resp, err := h.client.Firewall.ApplyResources(ctx, &hcloud.Firewall{ID: firewallID},
		[]hcloud.FirewallResource{serverResource(serverID)})
	if err != nil {
		return wrap(resp, err)
	}
	return h.client.Action.WaitFor(ctx, actions...)
}

func (h *HCloud) ListReservedIPs(ctx context.Context) ([]ReservedIP, error) {
	ips, err := h.client.FloatingIP.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ReservedIP, 0, len(ips))
	for _, ip := range ips {
		if ip.Type != hcloud.FloatingIPTypeIPv4 {
			continue
		}
		out = append(out, toReservedIP(ip))
	}
	return out, nil
}

func (h *HCloud) CreateReservedIP(ctx context.Context, location, description string) (*ReservedIP, error) {
	res, resp, err := h.client.FloatingIP.Create(ctx, hcloud.FloatingIPCreateOpts{
		Type:         hcloud.FloatingIPTypeIPv4,
		HomeLocation: &hcloud.Location{Name: location},
		Description:  hcloud.Ptr(description),
		Labels:       map[string]string{"managed-by": "launchpad"},
	})
	if err != nil {
		return nil, wrap(resp, err)
	}
	if res.Action != nil {
		if err := h.client.Action.WaitFor(ctx, res.Action); err != nil {
			return nil, fmt.Errorf("wait for floating ip: %w", err)
		}
	}
	ip := toReservedIP(res.FloatingIP)
	return &ip, nil
}

func (h *HCloud) AssignReservedIP(ctx context.Context, ipID, serverID int64) error {
	action, resp, err := h.client.FloatingIP.Assign(ctx, &hcloud.FloatingIP{ID: ipID}, &hcloud.Server{ID: serverID})
	if err != nil {
		return wrap(resp, err)
	}
	return h.client.Action.WaitFor(ctx, action)
}

func (h *HCloud) ListLocations(ctx context.Context) ([]Option, error) {
	locs, err := h.client.Location.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Option, 0, len(locs))
	for _, l := range locs {
		out = append(out, Option{Name: l.Name, Description: fmt.Sprintf("%s, %s", l.City, l.Country)})
	}
	return out, nil
}

func (h *HCloud) ListServerTypes(ctx context.Context) ([]Option, error) {
	types, err := h.client.ServerType.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Option, 0, len(types))
	for _, t := range types {
		out = append(out, Option{
			Name:        t.Name,
			Description: fmt.Sprintf("%d vCPU, %.0f GB RAM, %d GB disk", t.Cores, t.Memory, t.Disk),
		})
	}
	return out, nil
}

func toInstance(s *hcloud.Server) Instance {
	inst := Instance{ID: s.ID, Name: s.Name, Status: string(s.Status)}
	if ip := s.PublicNet.IPv4.IP; ip != nil && !ip.IsUnspecified() {
		inst.IPv4 = ip.String()
	}
	if s.Datacenter != nil && s.Datacenter.Location != nil {
		inst.Location = s.Datacenter.Location.Name
	}
	return inst
}

func toReservedIP(ip *hcloud.FloatingIP) ReservedIP {
	r := ReservedIP{ID: ip.ID, IP: ip.IP.String(), Description: ip.Description}
	if ip.Server != nil {
		r.ServerID = ip.Server.ID
	}
	if ip.HomeLocation != nil {
		r.Location = ip.HomeLocation.Name
	}
	return r
}

func serverResource(id int64) hcloud.FirewallResource {
	return hcloud.FirewallResource{
		Type:   hcloud.FirewallResourceTypeServer,
		Server: &hcloud.FirewallResourceServer{ID: id},
	}
}

func toHCloudRules(rules []FirewallRule) []hcloud.FirewallRule {
	anywhere := []net.IPNet{
		{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)},
		{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)},
	}
	out := make([]hcloud.FirewallRule, 0, len(rules))
	for _, r := range rules {
		rule := hcloud.FirewallRule{
			Direction:   hcloud.FirewallRuleDirection(r.Direction),
			Protocol:    hcloud.FirewallRuleProtocol(r.Protocol),
			Description: hcloud.Ptr(r.Description),
		}
		if r.Port != "" {
			rule.Port = hcloud.Ptr(r.Port)
		}
		if r.Direction == "in" {
			rule.SourceIPs = anywhere
		} else {
			rule.DestinationIPs = anywhere
		}
		out = append(out, rule)
	}
	return out
}
