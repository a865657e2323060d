package metrics

import (
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartolens/cartolens/internal/observability"
)

func useFakeCollector(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: collector,
	})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})

	return collector
}

func TestErrorSeriesUseNamedConstants(t *testing.T) {
	collector := useFakeCollector(t)

	RecordError("NOT_FOUND", 404)
	RecordPanic()
	RecordErrorByEndpoint("/v1/resolve/style", "NOT_FOUND")

	assert.Greater(t, collector.CountMetricsByName(ErrorsTotalName), 0)
	assert.Greater(t, collector.CountMetricsByName(PanicsTotalName), 0)
	assert.Greater(t, collector.CountMetricsByName(ErrorsByEndpointName), 0)
	assert.Equal(t, 0, collector.CountMetricsByName("errors_total"))
}

func TestErrorSeriesWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})

	assert.NotPanics(t, func() {
		RecordError("INTERNAL_ERROR", 500)
		RecordPanic()
		RecordErrorByEndpoint("/health", "INTERNAL_ERROR")
	})
}
