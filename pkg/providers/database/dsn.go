package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"
)

// ConnectionString builds a TLS-only URL for db with percent-encoded credentials.
func ConnectionString(role, password, host, db string) string {
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(role, password),
		Host:     host,
		Path:     "/" + db,
		RawQuery: "sslmode=require",
	}
	return u.String()
}

// RedactedDSN replaces connection strings Mask cannot parse.
const RedactedDSN = "[redacted connection string]"

// Mask hides the password in a connection string. Anything that is not a
// postgres URL with a host is replaced as a whole.
func Mask(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return RedactedDSN
	}
	if q := u.Query(); q.Has("password") {
		q.Set("password", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}

// VerifyConnection opens dsn and pings the server.
func VerifyConnection(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", Mask(dsn), err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", Mask(dsn), err)
	}
	return nil
}
