// Package metrics provides the engine's Prometheus instrumentation.
//
// A Collector exposes counters and histograms for the four things worth
// alerting on in a single-writer plan engine: how long a tick takes, how
// LM calls split across outcome codes, how often a fuse trips, and how
// tasks move through the status alphabet. Everything is registered through
// promauto under a caller-supplied namespace so multiple engine instances
// (or tests) don't collide on the default registry.
package metrics
