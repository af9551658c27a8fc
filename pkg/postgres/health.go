package postgres

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus describes the Postgres connection at startup
type HealthStatus struct {
	Connected     bool          `json:"connected"`
	ServerVersion string        `json:"server_version,omitempty"`
	Database      string        `json:"database"`
	PingLatency   time.Duration `json:"ping_latency"`
	Error         string        `json:"error,omitempty"`
}

// HealthCheck pings the server and reads its version. Failures are reported in
// the status; the returned error is reserved for a missing connection.
func (c *PostgresClient) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Database: c.config.PostgresDB}

	if c.db == nil {
		return status, ErrNotConnected
	}

	start := time.Now()
	if err := c.db.PingContext(ctx); err != nil {
		status.Error = fmt.Sprintf("ping failed: %v", err)
		return status, nil
	}
	status.PingLatency = time.Since(start)
	status.Connected = true

	if err := c.db.QueryRowContext(ctx, "SHOW server_version").Scan(&status.ServerVersion); err != nil {
		status.Error = fmt.Sprintf("failed to get version: %v", err)
	}
	return status, nil
}
