package metrics

import (
	"time"

	"github.com/cartolens/cartolens/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Resolution metrics
	ResolutionsTotal      = "resolver_resolutions_total"
	ResolutionErrorsTotal = "resolver_resolution_errors_total"

	// Turnstile metrics
	TurnstileEventsTotal = "turnstile_events_total"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// RecordResolution records one locator resolution with its outcome
func RecordResolution(kind string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ResolutionsTotal,
			1,
			map[string]string{
				"kind":   kind,
				"status": status,
			},
		)
	}
}

// RecordResolutionError records a failed resolution by error class
func RecordResolutionError(kind string, errorType string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ResolutionErrorsTotal,
			1,
			map[string]string{
				"kind":       kind,
				"error_type": errorType,
			},
		)
	}
}

// RecordTurnstileEvent records the outcome of a turnstile report
func RecordTurnstileEvent(outcome string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			TurnstileEventsTotal,
			1,
			map[string]string{
				"outcome": outcome,
			},
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
