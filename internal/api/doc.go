// Package api hosts the HTTP server, middleware and handlers for feed readers and operators.
// Notable routes:
//   - GET /healthz for health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /feeds listing active feeds with stats.
//   - GET /feeds/{id} serving the stored RSS document with ETag support.
//   - GET /v1/status and POST /v1/update for operators; POST /v1/feeds creates a feed and
//     POST /v1/feeds/{id}/deactivate stops its updates.
package api
