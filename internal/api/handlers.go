package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-job-crawler/internal/coordinator"
	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

type crawlError struct {
	Error string              `json:"error"`
	Run   crawler.RunSnapshot `json:"run"`
}

// startCrawl handles POST /api/crawl. It answers 202 with the run snapshot
// once reconciliation is done and the status pass is running.
func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	snap, err := s.crawler.Start(r.Context())
	if err == nil {
		s.writeJSON(w, http.StatusAccepted, snap)
		return
	}
	if errors.Is(err, crawler.ErrRunInProgress) {
		s.writeJSON(w, http.StatusConflict, crawlError{Error: err.Error(), Run: snap})
		return
	}
	status := crawlErrorStatus(err)
	s.logger.Warn("crawl start failed", zap.Int("status", status), zap.Error(err))
	s.writeJSON(w, status, crawlError{Error: err.Error(), Run: snap})
}

func crawlErrorStatus(err error) int {
	switch {
	case errors.Is(err, crawler.ErrParse), errors.Is(err, crawler.ErrMalformedID):
		return http.StatusUnprocessableEntity
	case errors.Is(err, crawler.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, crawler.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, coordinator.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// crawlStat handles GET /api/crawlstat with a bare JSON boolean.
func (s *Server) crawlStat(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.crawler.Status().Done)
}

func (s *Server) crawlStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.crawler.Status())
}

// listJobs handles GET /api/jobs?is_active=1|0|-1. Without the parameter, or
// with -1, every job is returned.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	var (
		jobs []crawler.JobRecord
		err  error
	)
	switch r.URL.Query().Get("is_active") {
	case "", "-1":
		jobs, err = s.store.ListJobs(ctx)
	case "1":
		jobs, err = s.store.ListJobsByActive(ctx, true)
	case "0":
		jobs, err = s.store.ListJobsByActive(ctx, false)
	default:
		s.writeError(w, http.StatusBadRequest, "is_active must be one of 1, 0, -1")
		return
	}
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, jobs)
}

// randomJobs handles GET /api/jobs/random[?count=N].
func (s *Server) randomJobs(w http.ResponseWriter, r *http.Request) {
	count := s.cfg.RandomJobsCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRandomCount {
			s.writeError(w, http.StatusBadRequest, "count must be between 1 and 100")
			return
		}
		count = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()
	jobs, err := s.store.RandomActiveJobs(ctx, count)
	if err != nil {
		s.logger.Error("random jobs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to sample jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, jobs)
}

// getJob handles GET /api/jobs/{id}. A missing job yields 204 No Content.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		s.writeError(w, http.StatusBadRequest, "job id must be a non-negative integer")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	job, found, err := s.store.FindJob(ctx, id)
	if err != nil {
		s.logger.Error("find job failed", zap.Int64("job_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}
