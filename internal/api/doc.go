// Package api hosts the status server that runs alongside a batch. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/runs and /api/runs/{id} for in-flight run progress, fed by the
//     RunTracker progress sink.
package api
