// Package crawler defines the shared job-tracking model: sitemap entries, job
// records, run reports, the error taxonomy, and the interfaces implemented by
// fetchers, stores, publishers, and blob archives.
package crawler
