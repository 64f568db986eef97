package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/openfroyo/launchpad/pkg/process/processtest"
	"github.com/openfroyo/launchpad/pkg/providers/cicd"
	"github.com/openfroyo/launchpad/pkg/providers/compute"
	"github.com/openfroyo/launchpad/pkg/providers/database"
	"github.com/openfroyo/launchpad/pkg/providers/dns"
	"github.com/openfroyo/launchpad/pkg/providers/email"
	"github.com/openfroyo/launchpad/pkg/setup"
	sshtransport "github.com/openfroyo/launchpad/pkg/transports/ssh"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testPublicKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIFakeKeyMaterialForTests launchpad-deploy"

// scriptedPrompter answers from queues and fails on any unexpected question.
type scriptedPrompter struct {
	inputs   []string
	confirms []bool
	selects  []int
	asked    []string
}

func (p *scriptedPrompter) Input(_ context.Context, q engine.Question) (string, error) {
	p.asked = append(p.asked, q.Label)
	if len(p.inputs) == 0 {
		return "", fmt.Errorf("unexpected input %q", q.Label)
	}
	v := p.inputs[0]
	p.inputs = p.inputs[1:]
	if v == "" {
		v = q.Default
	}
	if q.Validate != nil && !(v == "" && q.AllowEmpty) {
		if err := q.Validate(v); err != nil {
			return "", err
		}
	}
	return v, nil
}

func (p *scriptedPrompter) Confirm(_ context.Context, label string, _ bool) (bool, error) {
	p.asked = append(p.asked, label)
	if len(p.confirms) == 0 {
		return false, fmt.Errorf("unexpected confirm %q", label)
	}
	v := p.confirms[0]
	p.confirms = p.confirms[1:]
	return v, nil
}

func (p *scriptedPrompter) Select(_ context.Context, label string, choices []engine.Choice) (int, error) {
	p.asked = append(p.asked, label)
	if len(p.selects) == 0 {
		return 0, fmt.Errorf("unexpected select %q", label)
	}
	v := p.selects[0]
	p.selects = p.selects[1:]
	if v >= len(choices) {
		return 0, fmt.Errorf("select %q: index %d out of %d", label, v, len(choices))
	}
	return v, nil
}

func (p *scriptedPrompter) MultiSelect(_ context.Context, _ string, _ []engine.Choice, pre []int) ([]int, error) {
	return pre, nil
}

type recordingReporter struct {
	lines []string
}

func (r *recordingReporter) add(kind, format string, args ...any) {
	r.lines = append(r.lines, kind+": "+fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Section(title string)               { r.add("section", "%s", title) }
func (r *recordingReporter) Info(format string, args ...any)    { r.add("info", format, args...) }
func (r *recordingReporter) Success(format string, args ...any) { r.add("success", format, args...) }
func (r *recordingReporter) Warn(format string, args ...any)    { r.add("warn", format, args...) }
func (r *recordingReporter) Fail(format string, args ...any)    { r.add("fail", format, args...) }

func (r *recordingReporter) has(kind, substr string) bool {
	for _, l := range r.lines {
		if strings.HasPrefix(l, kind+": ") && strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// fakeCompute is an in-memory compute account.
type fakeCompute struct {
	mu        sync.Mutex
	nextID    int64
	servers   []compute.Instance
	keys      []compute.SSHKey
	firewalls []compute.Firewall
	ips       []compute.ReservedIP
	created   []compute.CreateRequest
}

func (f *fakeCompute) id() int64 {
	f.nextID++
	return 100 + f.nextID
}

func (f *fakeCompute) ListServers(context.Context) ([]compute.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]compute.Instance(nil), f.servers...), nil
}

func (f *fakeCompute) GetServer(_ context.Context, id int64) (*compute.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.servers {
		if s.ID == id {
			inst := s
			return &inst, nil
		}
	}
	return nil, fmt.Errorf("server %d not found", id)
}

func (f *fakeCompute) CreateServer(_ context.Context, req compute.CreateRequest) (*compute.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	inst := compute.Instance{ID: f.id(), Name: req.Name, IPv4: "203.0.113.10", Location: req.Location, Status: compute.StatusRunning}
	f.servers = append(f.servers, inst)
	return &inst, nil
}

func (f *fakeCompute) ListSSHKeys(context.Context) ([]compute.SSHKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]compute.SSHKey(nil), f.keys...), nil
}

func (f *fakeCompute) CreateSSHKey(_ context.Context, name, publicKey string) (*compute.SSHKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := compute.SSHKey{ID: f.id(), Name: name, Fingerprint: "aa:bb:cc", PublicKey: publicKey}
	f.keys = append(f.keys, key)
	return &key, nil
}

func (f *fakeCompute) ListFirewalls(context.Context) ([]compute.Firewall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]compute.Firewall(nil), f.firewalls...), nil
}

func (f *fakeCompute) CreateFirewall(_ context.Context, name string, _ []compute.FirewallRule, serverID int64) (*compute.Firewall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fw := compute.Firewall{ID: f.id(), Name: name, ServerIDs: []int64{serverID}}
	f.firewalls = append(f.firewalls, fw)
	return &fw, nil
}

func (f *fakeCompute) ApplyFirewall(_ context.Context, firewallID, serverID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.firewalls {
		if f.firewalls[i].ID == firewallID {
			f.firewalls[i].ServerIDs = append(f.firewalls[i].ServerIDs, serverID)
			return nil
		}
	}
	return fmt.Errorf("firewall %d not found", firewallID)
}

func (f *fakeCompute) ListReservedIPs(context.Context) ([]compute.ReservedIP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]compute.ReservedIP(nil), f.ips...), nil
}

func (f *fakeCompute) CreateReservedIP(_ context.Context, location, description string) (*compute.ReservedIP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ip := compute.ReservedIP{ID: f.id(), IP: "198.51.100.7", Location: location, Description: description}
	f.ips = append(f.ips, ip)
	return &ip, nil
}

func (f *fakeCompute) AssignReservedIP(_ context.Context, ipID, serverID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.ips {
		if f.ips[i].ID == ipID {
			f.ips[i].ServerID = serverID
			return nil
		}
	}
	return fmt.Errorf("reserved ip %d not found", ipID)
}

func (f *fakeCompute) ListLocations(context.Context) ([]compute.Option, error) {
	return []compute.Option{{Name: "fsn1", Description: "Falkenstein"}, {Name: "hel1", Description: "Helsinki"}}, nil
}

func (f *fakeCompute) ListServerTypes(context.Context) ([]compute.Option, error) {
	return []compute.Option{{Name: "cx22", Description: "2 vCPU, 4 GB"}, {Name: "cx32", Description: "4 vCPU, 8 GB"}}, nil
}

// memHost is a server reached through the fake dialer.
type memHost struct {
	mu       sync.Mutex
	files    map[string][]byte
	commands []string
	exit     int
	dials    int
}

type memConn struct{ host *memHost }

func (c memConn) Run(_ context.Context, cmd string) (*sshtransport.ExecResult, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	c.host.commands = append(c.host.commands, cmd)
	return &sshtransport.ExecResult{ExitCode: c.host.exit}, nil
}

func (c memConn) ReadFile(_ context.Context, path string) ([]byte, error) {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	data, ok := c.host.files[path]
	if !ok {
		return nil, &sshtransport.TransportError{Op: "sftp-read", Err: os.ErrNotExist}
	}
	return data, nil
}

func (c memConn) WriteFile(_ context.Context, path string, data []byte, _ os.FileMode) error {
	c.host.mu.Lock()
	defer c.host.mu.Unlock()
	if c.host.files == nil {
		c.host.files = make(map[string][]byte)
	}
	c.host.files[path] = data
	return nil
}

func (c memConn) Close() error { return nil }

// dialer accepts every login.
func (h *memHost) dialer() sshtransport.Dialer {
	return sshtransport.DialerFunc(func(context.Context, *sshtransport.Config) (sshtransport.Transport, error) {
		h.mu.Lock()
		h.dials++
		h.mu.Unlock()
		return memConn{host: h}, nil
	})
}

type fakeDatabase struct {
	orgs      []database.Organization
	project   database.Project
	requests  []database.ProjectRequest
	databases []string
	orgCalls  int
}

func (f *fakeDatabase) Organizations(context.Context) ([]database.Organization, error) {
	f.orgCalls++
	return f.orgs, nil
}

func (f *fakeDatabase) EnsureProject(_ context.Context, req database.ProjectRequest) (*database.Project, error) {
	f.requests = append(f.requests, req)
	p := f.project
	return &p, nil
}

func (f *fakeDatabase) EnsureDatabase(_ context.Context, _ *database.Project, name string) (bool, int, error) {
	f.databases = append(f.databases, name)
	return true, 1, nil
}

type fakeEmail struct {
	domain email.Domain
}

func (f *fakeEmail) EnsureDomain(_ context.Context, name string) (*email.Domain, error) {
	d := f.domain
	d.Name = name
	return &d, nil
}

type fakeDNS struct {
	zone    string
	desired []setup.DNSRecord
	err     error
}

func (f *fakeDNS) Sync(_ context.Context, zone string, desired []setup.DNSRecord) (*dns.SyncResult, error) {
	f.zone = zone
	f.desired = desired
	return &dns.SyncResult{ZoneID: "z1", Created: desired}, f.err
}

type fakeCI struct {
	installErr error
	authErr    error
	envErr     error
	triggerErr error
	detected   cicd.Repository
	detectErr  error

	secrets   map[string]string
	variables map[string]string
	scopes    []cicd.Scope
	triggered []string
}

func (f *fakeCI) CheckInstalled() error { return f.installErr }

func (f *fakeCI) EnsureAuthenticated(context.Context) (string, error) {
	return "octocat", f.authErr
}

func (f *fakeCI) DetectRepository(context.Context, string) (cicd.Repository, error) {
	return f.detected, f.detectErr
}

func (f *fakeCI) CreateEnvironment(context.Context, cicd.Repository, string) error { return f.envErr }

func (f *fakeCI) SetSecret(_ context.Context, scope cicd.Scope, name, value string) error {
	if value == "" {
		return fmt.Errorf("secret %s: %w", name, cicd.ErrEmptyValue)
	}
	if f.secrets == nil {
		f.secrets = make(map[string]string)
	}
	f.secrets[name] = value
	f.scopes = append(f.scopes, scope)
	return nil
}

func (f *fakeCI) SetVariable(_ context.Context, scope cicd.Scope, name, value string) error {
	if f.variables == nil {
		f.variables = make(map[string]string)
	}
	f.variables[name] = value
	f.scopes = append(f.scopes, scope)
	return nil
}

func (f *fakeCI) TriggerWorkflow(_ context.Context, repo cicd.Repository, workflow, ref string, _ map[string]string) error {
	f.triggered = append(f.triggered, repo.String()+" "+workflow+"@"+ref)
	return f.triggerErr
}

type fixture struct {
	deps     *Deps
	cloud    *fakeCompute
	host     *memHost
	db       *fakeDatabase
	mail     *fakeEmail
	zone     *fakeDNS
	ci       *fakeCI
	runner   *processtest.Runner
	prompt   *scriptedPrompter
	report   *recordingReporter
	state    *setup.Context
	verified []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cloud:  &fakeCompute{},
		host:   &memHost{},
		db:     &fakeDatabase{},
		mail:   &fakeEmail{},
		zone:   &fakeDNS{},
		ci:     &fakeCI{},
		runner: processtest.NewRunner(),
		prompt: &scriptedPrompter{},
		report: &recordingReporter{},
		state:  setup.New(),
	}
	quick := engine.PollConfig{MaxAttempts: 3, Sleep: engine.NoSleep}
	f.deps = &Deps{
		Runner:   f.runner,
		Dialer:   f.host.dialer(),
		CI:       f.ci,
		Compute:  func(string) compute.API { return f.cloud },
		Database: func(string) (DatabaseAPI, error) { return f.db, nil },
		Email:    func(string) (EmailAPI, error) { return f.mail, nil },
		DNS:      func(string) (DNSAPI, error) { return f.zone, nil },
		VerifyDatabase: func(_ context.Context, dsn string) error {
			f.verified = append(f.verified, dsn)
			return nil
		},
		DeployKeyPath: filepath.Join(t.TempDir(), "deploy_ed25519"),
		WorkDir:       t.TempDir(),
		SSHPoll:       quick,
		ServerPoll:    quick,
		Logger:        zerolog.Nop(),
	}
	return f
}

func (f *fixture) session() *engine.Session {
	return engine.NewSession(f.state, f.prompt, f.report, nil)
}

// writeKeyPair places a deploy key pair at the fixture's key path and records it.
func (f *fixture) writeKeyPair(t *testing.T) {
	t.Helper()
	path := f.deps.DeployKeyPath
	require.NoError(t, os.WriteFile(path, []byte("PRIVATE KEY\n"), 0o600))
	require.NoError(t, os.WriteFile(path+".pub", []byte(testPublicKey+"\n"), 0o644))
	f.state.SSHPrivateKeyPath = path
	f.state.SSHPublicKeyPath = path + ".pub"
}
