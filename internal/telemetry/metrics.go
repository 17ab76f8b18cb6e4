package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/bundlekit"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Bundler metrics
	BuildsTotal       metric.Int64Counter
	BuildErrorsTotal  metric.Int64Counter
	BuildWarnings     metric.Int64Counter
	BuildDuration     metric.Float64Histogram
	OutputBytes       metric.Int64Histogram
	LoaderInvocations metric.Int64Counter

	// Dev server metrics
	RebuildsTotal     metric.Int64Counter
	LiveReloadClients metric.Int64UpDownCounter
	ReloadsBroadcast  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"bundlekit.builds.total",
		metric.WithDescription("Total number of bundler runs"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"bundlekit.builds.errors.total",
		metric.WithDescription("Total number of bundler runs that reported errors"),
		metric.WithUnit("{build}"),
	)

	m.BuildWarnings, _ = meter.Int64Counter(
		"bundlekit.builds.warnings.total",
		metric.WithDescription("Total number of warnings reported by the bundler"),
		metric.WithUnit("{warning}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"bundlekit.builds.duration",
		metric.WithDescription("Duration of bundler runs"),
		metric.WithUnit("ms"),
	)

	m.OutputBytes, _ = meter.Int64Histogram(
		"bundlekit.builds.output.bytes",
		metric.WithDescription("Total size of the files emitted by a bundler run"),
		metric.WithUnit("By"),
	)

	m.LoaderInvocations, _ = meter.Int64Counter(
		"bundlekit.loaders.invocations.total",
		metric.WithDescription("Total number of loader steps applied to modules"),
		metric.WithUnit("{invocation}"),
	)

	m.RebuildsTotal, _ = meter.Int64Counter(
		"bundlekit.devserver.rebuilds.total",
		metric.WithDescription("Total number of rebuilds triggered by file changes"),
		metric.WithUnit("{build}"),
	)

	m.LiveReloadClients, _ = meter.Int64UpDownCounter(
		"bundlekit.devserver.livereload.clients",
		metric.WithDescription("Number of connected live reload clients"),
		metric.WithUnit("{client}"),
	)

	m.ReloadsBroadcast, _ = meter.Int64Counter(
		"bundlekit.devserver.livereload.broadcasts.total",
		metric.WithDescription("Total number of reload notifications broadcast to clients"),
		metric.WithUnit("{event}"),
	)

	return m
}
