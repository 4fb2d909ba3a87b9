// Package telemetry wraps OpenTelemetry SDK setup for the engine's tick
// loop and LM calls: one TracerProvider and one MeterProvider, configured
// from config.TelemetryConfig. When telemetry is disabled the providers
// are noop and nothing dials out.
package telemetry
