// Package main hosts the job crawler service entrypoint.
//
// Architecture overview:
//   - Sitemap: internal/sitemap downloads the configured sitemap through the Colly fetcher, strips the default
//     namespace and turns each entry into a crawler.SitemapEntry whose id is the numeric trailing path segment of loc.
//     The raw body is optionally archived to memory, disk or GCS under sitemaps/yyyy/mm/dd/<run>-<sha256>.xml.
//   - Reconciliation: internal/reconcile reads the stored ids once and inserts only unseen entries as active jobs with
//     no title. Nothing is ever deactivated or deleted because it vanished from the sitemap.
//   - Status pass: internal/worker revisits every stored job in id order, fetches its page (Colly or headless Chrome),
//     and looks for the title marker. Present marks the job active with a fresh title and timestamp; absent marks it
//     inactive. Sequential mode stops at the first failure; parallel mode counts failures and carries on.
//   - Coordination: internal/coordinator runs sitemap + reconcile on the caller's context, launches the status pass in
//     the background, and rejects overlapping runs. Finished runs are counted in Prometheus and optionally published
//     to Pub/Sub.
//   - Surfaces: internal/api serves /crawl, /api/crawl, /api/crawlstat, /api/crawl/status and the /api/jobs query
//     routes plus /healthz, /readyz and /metrics. internal/scheduler triggers runs from a cron expression.
//
// Quick checklist:
//   - Configure JOBCRAWLER_SITEMAP_URL (required), JOBCRAWLER_STORAGE_BACKEND=memory|postgres|sqlite with
//     JOBCRAWLER_STORAGE_DSN or JOBCRAWLER_STORAGE_PATH, and optionally JOBCRAWLER_SCHEDULE_CRON.
//   - Serve: go run ./cmd/jobcrawler -config config.yaml
//   - One crawl and exit: go run ./cmd/jobcrawler -config config.yaml -once
package main
