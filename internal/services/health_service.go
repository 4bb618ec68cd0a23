package services

import (
	"context"
	"log/slog"
	"time"
)

// PeriodLister is the probe used for the readiness check: if the portal
// listing is reachable, searches can be served.
type PeriodLister interface {
	ListAvailable(ctx context.Context) ([]string, error)
}

// HealthStatus is the payload of the health endpoints.
type HealthStatus struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	UptimeSecs   int64  `json:"uptime_seconds"`
	LatestPeriod string `json:"latest_period,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// HealthService reports liveness and upstream readiness.
type HealthService struct {
	lister  PeriodLister
	version string
	started time.Time
	logger  *slog.Logger
}

// NewHealthService creates the health service.
func NewHealthService(lister PeriodLister, version string, logger *slog.Logger) *HealthService {
	return &HealthService{
		lister:  lister,
		version: version,
		started: time.Now(),
		logger:  logger.With(slog.String("service", "health")),
	}
}

// Liveness always succeeds while the process is running.
func (h *HealthService) Liveness() HealthStatus {
	return HealthStatus{
		Status:     "ok",
		Version:    h.version,
		UptimeSecs: int64(time.Since(h.started).Seconds()),
	}
}

// Readiness checks that the portal's archive listing is reachable. A
// listing request is small; no archive is downloaded.
func (h *HealthService) Readiness(ctx context.Context) HealthStatus {
	status := h.Liveness()

	periods, err := h.lister.ListAvailable(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "readiness probe failed", slog.String("error", err.Error()))
		status.Status = "degraded"
		status.Detail = err.Error()
		return status
	}

	status.LatestPeriod = periods[0]
	return status
}
