// Package api hosts the optional status server that runs alongside an
// enrichment run. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /progress for the live counters of the current run.
//   - GET /runs/{run_id} for a ledger row.
package api
