// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, the run ledger, and outcome publishing. Each satisfies
// progress.Sink.
package sinks
