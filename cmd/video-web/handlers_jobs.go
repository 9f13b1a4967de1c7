package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/fpang/video-insight/internal/history"
	"github.com/fpang/video-insight/internal/jobs"
	"github.com/fpang/video-insight/internal/media"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// handleStartJob accepts a multipart upload (fields "file" and "mode") and
// starts an analysis job. POST /api/jobs
func (s *server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs.Active() != nil {
		httpError(w, http.StatusConflict, jobs.ErrBusy.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httpError(w, http.StatusRequestEntityTooLarge, "视频文件过大")
			return
		}
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	mode := analysis.ModeFast
	if v := r.FormValue("mode"); v != "" {
		m, err := analysis.ParseMode(v)
		if err != nil {
			httpError(w, http.StatusBadRequest, "mode must be 'fast' or 'deep'")
			return
		}
		mode = m
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	mimeType, err := media.ResolveMIMEType(header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		httpError(w, http.StatusUnsupportedMediaType, "不支持的视频格式")
		return
	}

	src, err := spoolUpload(file, header, mimeType)
	if err != nil {
		log.Error().Err(err).Str("file", header.Filename).Msg("Failed to spool upload")
		httpError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	job, err := s.jobs.Start(s.baseCtx, src.Name(), mode, s.analysisRun(src, mode))
	if err != nil {
		removeSpool(src.Path)
		if errors.Is(err, jobs.ErrBusy) {
			httpError(w, http.StatusConflict, err.Error())
			return
		}
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"id": job.ID()})
}

// spoolUpload copies the upload to a temp file that outlives the request.
func spoolUpload(file multipart.File, header *multipart.FileHeader, mimeType string) (*media.File, error) {
	tmp, err := os.CreateTemp("", "video-insight-*"+filepath.Ext(header.Filename))
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	return &media.File{
		Path:        tmp.Name(),
		MediaType:   mimeType,
		Bytes:       n,
		DisplayName: filepath.Base(header.Filename),
	}, nil
}

// analysisRun is the job body: analyze, save to history, then keep or remove
// the spooled file.
func (s *server) analysisRun(src *media.File, mode analysis.Mode) jobs.RunFunc {
	return func(ctx context.Context, report analysis.ProgressFunc) (jobs.Outcome, error) {
		keep := false
		defer func() {
			if !keep {
				removeSpool(src.Path)
			}
		}()

		result, err := s.analyzer.Run(ctx, src, mode, report)
		if err != nil {
			return jobs.Outcome{}, err
		}

		entry := history.NewEntry(src.Name(), result)
		if err := s.store.Save(context.WithoutCancel(ctx), entry); err != nil {
			log.Error().Err(err).Str("file", src.Name()).Msg("Failed to save analysis to history")
			return jobs.Outcome{Result: result}, nil
		}

		if _, remote := result.RemoteReference(); !remote {
			s.keepVideo(entry.ID, src)
			keep = true
		}
		return jobs.Outcome{Result: result, HistoryID: entry.ID}, nil
	}
}

// handleGetJob returns a job snapshot. GET /api/jobs/{id}
func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.Get(chi.URLParam(r, "id"))
	if job == nil {
		httpError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// handleCancelJob requests cancellation. It is idempotent and returns as soon
// as the job's token has fired. POST /api/jobs/{id}/cancel
func (s *server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.jobs.Cancel(id) {
		httpError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"id": id})
}
