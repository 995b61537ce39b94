package database

import (
	"context"
	"time"

	"github.com/deppfellow/dbkit/pkg/errs"
)

// HealthCheckTimeout bounds each check run by CheckHealth.
const HealthCheckTimeout = 5 * time.Second

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthCheck is the result of one check.
type HealthCheck struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

// HealthReport is the result of CheckHealth.
type HealthReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Client    string                 `json:"client,omitempty"`
	Tables    int                    `json:"tables"`
	Checks    map[string]HealthCheck `json:"checks"`
}

// Healthy reports whether every check passed.
func (r HealthReport) Healthy() bool {
	return r.Status == StatusHealthy
}

// CheckHealth pings the database and reports the outcome.
func (d *Database) CheckHealth(ctx context.Context) HealthReport {
	start := time.Now()

	logger := d.opts.logger.With().
		Str("operation", "health_check").
		Logger()

	d.mu.RLock()
	conn, client, tables := d.conn, d.cfg.Client, len(d.tables)
	d.mu.RUnlock()

	report := HealthReport{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]HealthCheck),
	}

	dbStart := time.Now()
	var err error
	if conn == nil {
		err = errs.NewNotConnectedError("The database is not connected")
	} else {
		report.Client = client
		report.Tables = tables

		pingCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
		err = conn.PingContext(pingCtx)
		cancel()
	}

	if err != nil {
		report.Status = StatusUnhealthy
		report.Checks["database"] = HealthCheck{
			Status:       StatusUnhealthy,
			ResponseTime: time.Since(dbStart).String(),
			Error:        err.Error(),
		}

		logger.Error().
			Err(err).
			Dur("response_time", time.Since(dbStart)).
			Msg("database health check failed")

		logger.Warn().
			Dur("total_duration", time.Since(start)).
			Msg("health check failed")
		return report
	}

	report.Checks["database"] = HealthCheck{
		Status:       StatusHealthy,
		ResponseTime: time.Since(dbStart).String(),
	}

	logger.Info().
		Dur("response_time", time.Since(dbStart)).
		Msg("database health check passed")

	logger.Info().
		Dur("total_duration", time.Since(start)).
		Msg("health check passed")

	return report
}
