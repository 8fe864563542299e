// Package api hosts the HTTP server, middleware, and REST handlers that expose
// the metadata resolver. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/metadata?url= resolves a URL; DELETE invalidates its cache entry.
//   - GET /v1/metadata/debug?url= and /v1/metadata/history expose the most
//     recent provider attempts.
package api
