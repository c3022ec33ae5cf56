// Package api hosts the HTTP server, middleware and REST handlers. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/crawl (and GET /crawl) to start a crawl run.
//   - GET /api/crawlstat for the boolean completion flag, /api/crawl/status for
//     the full run snapshot.
//   - GET /api/jobs, /api/jobs/random and /api/jobs/{id} to query job records.
package api
