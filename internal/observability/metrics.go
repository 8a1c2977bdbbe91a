// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// RegisterBacklogGauge exposes the number of PENDING pipeline records as an
// observable gauge. The callback queries the store only when scraped; scrape
// errors are logged, never fatal.
func RegisterBacklogGauge(serviceName string, log *slog.Logger, pending func(context.Context) (int64, error)) error {
	meter := otel.Meter(serviceName)
	_, err := meter.Int64ObservableGauge("driveplane.records.pending",
		metric.WithDescription("Number of pipeline records waiting to be processed"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := pending(ctx)
			if err != nil {
				log.Warn("failed to observe pending backlog", "error", err)
				return nil // Don't fail the scrape on store trouble
			}
			obs.Observe(count)
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to register backlog gauge: %w", err)
	}
	return nil
}
