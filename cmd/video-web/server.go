package main

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/fpang/video-insight/internal/history"
	"github.com/fpang/video-insight/internal/jobs"
	"github.com/fpang/video-insight/internal/media"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// multipartMemory is how much of an upload is buffered in memory before the
// rest spills to disk.
const multipartMemory = 32 << 20

// server holds the dependencies of the HTTP handlers.
type server struct {
	analyzer *analysis.Analyzer
	store    history.Store
	jobs     *jobs.Registry

	// baseCtx parents every job, so jobs outlive the request that started
	// them but stop on shutdown.
	baseCtx   context.Context
	maxUpload int64

	// videos maps a history ID to the spooled copy of an inline video, kept
	// for follow-up chat since inline videos have no remote handle.
	mu     sync.Mutex
	videos map[string]*media.File
}

func newServer(baseCtx context.Context, a *analysis.Analyzer, store history.Store, maxUpload int64) *server {
	return &server{
		analyzer:  a,
		store:     store,
		jobs:      jobs.NewRegistry(),
		baseCtx:   baseCtx,
		maxUpload: maxUpload,
		videos:    make(map[string]*media.File),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(withLogging, withCORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleStartJob)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)

		r.Get("/history", s.handleListHistory)
		r.Get("/history/{id}", s.handleGetHistory)
		r.Delete("/history/{id}", s.handleDeleteHistory)
		r.Post("/history/{id}/chat", s.handleChat)
	})
	return r
}

func (s *server) keepVideo(historyID string, src *media.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[historyID] = src
}

func (s *server) video(historyID string) (*media.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.videos[historyID]
	return src, ok
}

func (s *server) dropVideo(historyID string) {
	s.mu.Lock()
	src, ok := s.videos[historyID]
	delete(s.videos, historyID)
	s.mu.Unlock()
	if ok {
		removeSpool(src.Path)
	}
}

// shutdown cancels the in-flight job and removes every spooled video.
func (s *server) shutdown() {
	s.jobs.CancelAll()
	if j := s.jobs.Active(); j != nil {
		<-j.Done()
	}

	s.mu.Lock()
	videos := s.videos
	s.videos = make(map[string]*media.File)
	s.mu.Unlock()
	for _, src := range videos {
		removeSpool(src.Path)
	}
}

func removeSpool(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove spooled upload")
	}
}
