package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/stacklift/stacklift/pkg/telemetry"

	// SQLite driver for file-backed database readiness checks
	_ "modernc.org/sqlite"
)

// HTTPProbe checks that an HTTP endpoint answers with a 2xx status.
type HTTPProbe struct {
	// ProbeName identifies the probe in results.
	ProbeName string

	// URL is the endpoint to poll.
	URL string

	// Client is the HTTP client to use. Defaults to http.DefaultClient.
	Client *http.Client
}

// Name implements Probe.
func (p *HTTPProbe) Name() string {
	return p.ProbeName
}

// Check implements Probe.
func (p *HTTPProbe) Check(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	telemetry.FromContext(ctx).Debugf("probing %s", p.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DatabaseProbe checks that a database accepts connections.
type DatabaseProbe struct {
	// ProbeName identifies the probe in results.
	ProbeName string

	// Driver is the database/sql driver name.
	Driver string

	// DSN is the connection string.
	DSN string
}

// Name implements Probe.
func (p *DatabaseProbe) Name() string {
	return p.ProbeName
}

// Check implements Probe.
func (p *DatabaseProbe) Check(ctx context.Context) error {
	telemetry.FromContext(ctx).Debugf("pinging %s database", p.Driver)

	db, err := sql.Open(p.Driver, p.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	return nil
}
