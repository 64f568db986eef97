// Package setup defines the record threaded through every wizard step and its
// persistence on disk.
package setup

import (
	"sort"
	"strings"
)

// DNSRecord is one desired DNS entry. Priority is only meaningful for MX records.
type DNSRecord struct {
	Type     string `yaml:"type" json:"type"`
	Name     string `yaml:"name" json:"name"`
	Value    string `yaml:"value" json:"value"`
	Priority *int   `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// Key identifies the record for reconciliation purposes.
func (r DNSRecord) Key() string {
	return strings.ToUpper(r.Type) + " " + strings.ToLower(r.Name)
}

// Context is the single mutable aggregate passed through a run. It is serialized
// flat to the settings file.
type Context struct {
	// Platform
	Domain         string `yaml:"domain,omitempty"`
	Passphrase     string `yaml:"passphrase,omitempty"`
	AdminEmail     string `yaml:"admin_email,omitempty"`
	AdminPassword  string `yaml:"admin_password,omitempty"`
	IncludeDemoApp *bool  `yaml:"include_demo_app,omitempty"`

	// Provider credentials
	ComputeToken   string `yaml:"compute_token,omitempty"`
	DatabaseAPIKey string `yaml:"database_api_key,omitempty"`
	EmailAPIKey    string `yaml:"email_api_key,omitempty"`
	DNSToken       string `yaml:"dns_token,omitempty"`

	// Server
	ServerID     int64  `yaml:"server_id,omitempty"`
	ServerName   string `yaml:"server_name,omitempty"`
	ServerIPv4   string `yaml:"server_ipv4,omitempty"`
	ReservedIPv4 string `yaml:"reserved_ipv4,omitempty"`
	ReservedIPID int64  `yaml:"reserved_ip_id,omitempty"`
	Location     string `yaml:"location,omitempty"`
	ServerType   string `yaml:"server_type,omitempty"`
	FirewallID   int64  `yaml:"firewall_id,omitempty"`

	// SSH
	SSHPrivateKeyPath string `yaml:"ssh_private_key_path,omitempty"`
	SSHPublicKeyPath  string `yaml:"ssh_public_key_path,omitempty"`
	SSHUser           string `yaml:"ssh_user,omitempty"`
	SSHPort           int    `yaml:"ssh_port,omitempty"`
	SSHKeyFingerprint string `yaml:"ssh_key_fingerprint,omitempty"`

	// Database
	DatabaseOrgID     string            `yaml:"database_org_id,omitempty"`
	DatabaseProjectID string            `yaml:"database_project_id,omitempty"`
	DatabaseBranchID  string            `yaml:"database_branch_id,omitempty"`
	DatabaseHost      string            `yaml:"database_host,omitempty"`
	DatabaseRole      string            `yaml:"database_role,omitempty"`
	DatabasePassword  string            `yaml:"database_password,omitempty"`
	DatabaseURLs      map[string]string `yaml:"database_urls,omitempty"`

	// Email and DNS
	EmailDomainID string      `yaml:"email_domain_id,omitempty"`
	DNSRecords    []DNSRecord `yaml:"dns_records,omitempty"`

	// Derived secrets
	DerivedSecrets map[string]string `yaml:"derived_secrets,omitempty"`

	// CI
	RepoOwner     string            `yaml:"repo_owner,omitempty"`
	RepoName      string            `yaml:"repo_name,omitempty"`
	CIEnvironment string            `yaml:"ci_environment,omitempty"`
	CISecrets     map[string]string `yaml:"ci_secrets,omitempty"`
	CIVariables   map[string]string `yaml:"ci_variables,omitempty"`

	// Run
	SelectedSteps []string `yaml:"selected_steps,omitempty"`
}

// New returns an empty context.
func New() *Context {
	return &Context{}
}

// PublicIP is the address used for DNS and deploys: the reserved IP when one is
// attached, otherwise the server's own IPv4.
func (c *Context) PublicIP() string {
	if c.ReservedIPv4 != "" {
		return c.ReservedIPv4
	}
	return c.ServerIPv4
}

// DemoEnabled reports whether the optional demo application is part of the run.
func (c *Context) DemoEnabled() bool {
	return c.IncludeDemoApp != nil && *c.IncludeDemoApp
}

// SetDemo records the demo application choice.
func (c *Context) SetDemo(enabled bool) {
	c.IncludeDemoApp = &enabled
}

// Repository returns "owner/name", or "" when either part is unknown.
func (c *Context) Repository() string {
	if c.RepoOwner == "" || c.RepoName == "" {
		return ""
	}
	return c.RepoOwner + "/" + c.RepoName
}

// AppendDNSRecords accumulates records, skipping exact duplicates. Records are never
// removed here.
func (c *Context) AppendDNSRecords(records ...DNSRecord) {
	for _, r := range records {
		dup := false
		for _, existing := range c.DNSRecords {
			if existing.Key() == r.Key() && existing.Value == r.Value {
				dup = true
				break
			}
		}
		if !dup {
			c.DNSRecords = append(c.DNSRecords, r)
		}
	}
}

// SetDatabaseURL stores the connection string for a logical database.
func (c *Context) SetDatabaseURL(name, url string) {
	if c.DatabaseURLs == nil {
		c.DatabaseURLs = make(map[string]string)
	}
	c.DatabaseURLs[name] = url
}

// RecordCISecret remembers that a secret was written, for display and resume.
func (c *Context) RecordCISecret(name, value string) {
	if c.CISecrets == nil {
		c.CISecrets = make(map[string]string)
	}
	c.CISecrets[name] = value
}

// RecordCIVariable remembers that a variable was written.
func (c *Context) RecordCIVariable(name, value string) {
	if c.CIVariables == nil {
		c.CIVariables = make(map[string]string)
	}
	c.CIVariables[name] = value
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
