// Package dns keeps the platform's records in a Hetzner DNS zone in sync.
package dns

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/openfroyo/launchpad/pkg/setup"
	"github.com/openfroyo/launchpad/pkg/transports/rest"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the Hetzner DNS API root.
const DefaultBaseURL = "https://dns.hetzner.com/api/v1"

// DefaultTTL applies to records this package creates.
const DefaultTTL = 3600

// AppHosts are the A records pointing at the server. "@" is the zone apex.
var AppHosts = []string{"@", "auth", "oauth", "login"}

// DemoHost is added when the demo application is deployed.
const DemoHost = "demo"

// Desired returns the A records for ip followed by the email records.
func Desired(ip string, includeDemo bool, email []setup.DNSRecord) []setup.DNSRecord {
	hosts := AppHosts
	if includeDemo {
		hosts = append(append([]string(nil), AppHosts...), DemoHost)
	}
	out := make([]setup.DNSRecord, 0, len(hosts)+len(email))
	for _, h := range hosts {
		out = append(out, setup.DNSRecord{Type: "A", Name: h, Value: ip})
	}
	return append(out, email...)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Observer   rest.Observer
	Logger     zerolog.Logger
}

// Client talks to the Hetzner DNS API.
type Client struct {
	api    *rest.Client
	logger zerolog.Logger
}

// New creates a client for token.
func New(token string, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	api, err := rest.New(rest.Config{
		Provider:          "hetzner-dns",
		BaseURL:           opts.BaseURL,
		Token:             token,
		AuthHeader:        "Auth-API-Token",
		RequestsPerSecond: 5,
		Burst:             5,
		HTTPClient:        opts.HTTPClient,
		Logger:            opts.Logger,
		Observer:          opts.Observer,
	})
	if err != nil {
		return nil, err
	}
	return &Client{api: api, logger: opts.Logger.With().Str("component", "dns").Logger()}, nil
}

type apiRecord struct {
	ID     string `json:"id,omitempty"`
	ZoneID string `json:"zone_id"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	TTL    int    `json:"ttl,omitempty"`
}

// SyncResult lists what Sync did with each desired record.
type SyncResult struct {
	ZoneID    string
	Created   []setup.DNSRecord
	Updated   []setup.DNSRecord
	Unchanged []setup.DNSRecord
}

// Sync reconciles desired against the zone. Records are matched on type and
// name: an equal value is left alone, a different value is updated and a missing
// record is created. Failures on individual records are collected and returned
// together after every record has been tried.
func (c *Client) Sync(ctx context.Context, zone string, desired []setup.DNSRecord) (*SyncResult, error) {
	zoneID, err := c.zoneID(ctx, zone)
	if err != nil {
		return nil, err
	}

	var list struct {
		Records []apiRecord `json:"records"`
	}
	if err := c.api.Get(ctx, "/records?zone_id="+url.QueryEscape(zoneID), &list); err != nil {
		return nil, fmt.Errorf("list records of %s: %w", zone, err)
	}
	existing := make(map[string][]apiRecord)
	for _, r := range list.Records {
		k := key(r.Type, r.Name)
		existing[k] = append(existing[k], r)
	}

	result := &SyncResult{ZoneID: zoneID}
	var errs *multierror.Error
	for _, want := range desired {
		value := WireValue(want)
		matches := existing[key(want.Type, want.Name)]

		if containsValue(matches, want.Type, value) {
			result.Unchanged = append(result.Unchanged, want)
			continue
		}

		rec := apiRecord{ZoneID: zoneID, Type: want.Type, Name: want.Name, Value: value, TTL: DefaultTTL}
		if len(matches) > 0 {
			if err := c.api.Put(ctx, "/records/"+url.PathEscape(matches[0].ID), rec, nil); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("update %s %s: %w", want.Type, want.Name, err))
				continue
			}
			c.logger.Info().Str("type", want.Type).Str("name", want.Name).Msg("record updated")
			result.Updated = append(result.Updated, want)
			continue
		}
		if err := c.api.Post(ctx, "/records", rec, nil); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("create %s %s: %w", want.Type, want.Name, err))
			continue
		}
		c.logger.Info().Str("type", want.Type).Str("name", want.Name).Msg("record created")
		result.Created = append(result.Created, want)
	}
	return result, errs.ErrorOrNil()
}

func (c *Client) zoneID(ctx context.Context, zone string) (string, error) {
	var resp struct {
		Zones []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"zones"`
	}
	if err := c.api.Get(ctx, "/zones?name="+url.QueryEscape(zone), &resp); err != nil {
		return "", fmt.Errorf("look up zone %s: %w", zone, err)
	}
	for _, z := range resp.Zones {
		if strings.EqualFold(z.Name, zone) {
			return z.ID, nil
		}
	}
	return "", fmt.Errorf("zone %s not found in the DNS account", zone)
}

// WireValue is the record value as the DNS API stores it. MX priority is folded
// into the value and host names are made absolute.
func WireValue(r setup.DNSRecord) string {
	switch strings.ToUpper(r.Type) {
	case "MX":
		priority := 10
		if r.Priority != nil {
			priority = *r.Priority
		}
		return strconv.Itoa(priority) + " " + absolute(r.Value)
	case "CNAME":
		return absolute(r.Value)
	}
	return r.Value
}

func absolute(host string) string {
	if strings.HasSuffix(host, ".") {
		return host
	}
	return host + "."
}

func key(typ, name string) string {
	return strings.ToUpper(typ) + " " + strings.ToLower(name)
}

func containsValue(records []apiRecord, typ, value string) bool {
	for _, r := range records {
		if normalize(typ, r.Value) == normalize(typ, value) {
			return true
		}
	}
	return false
}

// normalize ignores quoting of TXT values and case of host names.
func normalize(typ, value string) string {
	value = strings.TrimSpace(value)
	if strings.EqualFold(typ, "TXT") {
		return strings.Trim(value, `"`)
	}
	return strings.ToLower(value)
}
