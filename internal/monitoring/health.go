package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// cacheWarningBytes is where the local audio cache starts to crowd a phone
const cacheWarningBytes = 2 << 30

// Stats is the session state a health check reports on
type Stats struct {
	Mode            string
	RegistrySongs   int
	CacheEntries    int
	CacheBytes      int64
	ActiveDownloads int
	// HostErr is the last error talking to the remote host, nil when reachable
	HostErr error
}

// HealthCheck represents a health check response
type HealthCheck struct {
	Status          HealthStatus     `json:"status"`
	Version         string           `json:"version"`
	Mode            string           `json:"mode"`
	Uptime          int64            `json:"uptime"`
	UptimeHuman     string           `json:"uptime_human"`
	RegistrySongs   int              `json:"registry_songs"`
	CacheEntries    int              `json:"cache_entries"`
	CacheBytes      int64            `json:"cache_bytes"`
	ActiveDownloads int              `json:"active_downloads"`
	MemoryUsageMB   uint64           `json:"memory_usage_mb"`
	DatabaseStatus  string           `json:"database_status"`
	Checks          map[string]Check `json:"checks"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Check represents an individual health check
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker performs health checks
type HealthChecker struct {
	version   string
	startTime time.Time
	db        *sql.DB
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string, db *sql.DB) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		db:        db,
	}
}

// Check performs all health checks and returns the result
func (h *HealthChecker) Check(stats Stats) *HealthCheck {
	checks := make(map[string]Check)
	overallStatus := HealthStatusHealthy

	degrade := func(c Check) {
		if c.Status == "unhealthy" {
			overallStatus = HealthStatusUnhealthy
		} else if c.Status == "degraded" && overallStatus == HealthStatusHealthy {
			overallStatus = HealthStatusDegraded
		}
	}

	dbCheck := h.checkDatabase()
	checks["database"] = dbCheck
	degrade(dbCheck)

	cacheCheck := h.checkCache(stats.CacheBytes)
	checks["cache"] = cacheCheck
	degrade(cacheCheck)

	hostCheck := h.checkHost(stats.HostErr)
	checks["host"] = hostCheck
	degrade(hostCheck)

	uptime := time.Since(h.startTime)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	dbStatus := "connected"
	if dbCheck.Status != "healthy" {
		dbStatus = "disconnected"
	}

	return &HealthCheck{
		Status:          overallStatus,
		Version:         h.version,
		Mode:            stats.Mode,
		Uptime:          int64(uptime.Seconds()),
		UptimeHuman:     formatDuration(uptime),
		RegistrySongs:   stats.RegistrySongs,
		CacheEntries:    stats.CacheEntries,
		CacheBytes:      stats.CacheBytes,
		ActiveDownloads: stats.ActiveDownloads,
		MemoryUsageMB:   m.Alloc / 1024 / 1024,
		DatabaseStatus:  dbStatus,
		Checks:          checks,
		Timestamp:       time.Now(),
	}
}

// checkDatabase checks database connectivity
func (h *HealthChecker) checkDatabase() Check {
	if h.db == nil {
		return Check{
			Status:  "unhealthy",
			Message: "Database connection not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return Check{
			Status:  "unhealthy",
			Message: "Database ping failed: " + err.Error(),
		}
	}

	return Check{
		Status:  "healthy",
		Message: "Database connection is healthy",
	}
}

func (h *HealthChecker) checkCache(bytes int64) Check {
	if bytes > cacheWarningBytes {
		return Check{
			Status:  "degraded",
			Message: fmt.Sprintf("Offline cache holds %d MB", bytes/1024/1024),
		}
	}
	return Check{
		Status:  "healthy",
		Message: "Offline cache size is normal",
	}
}

// checkHost never reports unhealthy: the whole point of the cache is that
// playback survives without the host.
func (h *HealthChecker) checkHost(hostErr error) Check {
	if hostErr != nil {
		return Check{
			Status:  "degraded",
			Message: "Remote host unreachable: " + hostErr.Error(),
		}
	}
	return Check{
		Status:  "healthy",
		Message: "Remote host reachable",
	}
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
