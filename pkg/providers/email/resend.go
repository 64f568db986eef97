// Package email registers the sending domain with Resend.
package email

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/openfroyo/launchpad/pkg/setup"
	"github.com/openfroyo/launchpad/pkg/transports/rest"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the Resend API root.
const DefaultBaseURL = "https://api.resend.com"

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Observer   rest.Observer
	Logger     zerolog.Logger
}

// Client talks to the Resend API.
type Client struct {
	api    *rest.Client
	logger zerolog.Logger
}

// New creates a client for apiKey.
func New(apiKey string, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	api, err := rest.New(rest.Config{
		Provider:          "resend",
		BaseURL:           opts.BaseURL,
		Token:             apiKey,
		RequestsPerSecond: 2,
		HTTPClient:        opts.HTTPClient,
		Logger:            opts.Logger,
		Observer:          opts.Observer,
	})
	if err != nil {
		return nil, err
	}
	return &Client{api: api, logger: opts.Logger.With().Str("component", "email").Logger()}, nil
}

// Domain is a sending domain and the DNS records that verify it.
type Domain struct {
	ID      string
	Name    string
	Status  string
	Records []setup.DNSRecord
	Created bool
}

type apiRecord struct {
	Record   string `json:"record"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Priority *int   `json:"priority,omitempty"`
}

type apiDomain struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Status  string      `json:"status"`
	Records []apiRecord `json:"records"`
}

// EnsureDomain returns the domain named name, registering it when it does not
// exist. The verification records are returned in both cases.
func (c *Client) EnsureDomain(ctx context.Context, name string) (*Domain, error) {
	var list struct {
		Data []apiDomain `json:"data"`
	}
	if err := c.api.Get(ctx, "/domains", &list); err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}

	for _, d := range list.Data {
		if d.Name != name {
			continue
		}
		if len(d.Records) == 0 {
			if err := c.api.Get(ctx, "/domains/"+url.PathEscape(d.ID), &d); err != nil {
				return nil, fmt.Errorf("get domain %s: %w", name, err)
			}
		}
		c.logger.Info().Str("domain", name).Str("status", d.Status).Msg("domain already registered")
		return toDomain(d, false), nil
	}

	var created apiDomain
	if err := c.api.Post(ctx, "/domains", map[string]string{"name": name}, &created); err != nil {
		return nil, fmt.Errorf("create domain %s: %w", name, err)
	}
	c.logger.Info().Str("domain", name).Int("records", len(created.Records)).Msg("domain registered")
	return toDomain(created, true), nil
}

func toDomain(d apiDomain, created bool) *Domain {
	out := &Domain{ID: d.ID, Name: d.Name, Status: d.Status, Created: created}
	for _, r := range d.Records {
		out.Records = append(out.Records, setup.DNSRecord{
			Type:     r.Type,
			Name:     r.Name,
			Value:    r.Value,
			Priority: r.Priority,
		})
	}
	return out
}
