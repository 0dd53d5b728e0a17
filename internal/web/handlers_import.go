package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
	"github.com/JonMunkholm/VehicleTaxonomy/internal/filesource"
	"github.com/JonMunkholm/VehicleTaxonomy/internal/web/templates"
)

// maxHistoryLimit caps the limit query parameter of the history endpoint.
const maxHistoryLimit = 500

// handleImport runs a taxonomy import over the request body and waits for
// the report. The CSV is streamed; memory use does not grow with file size.
func (s *Server) handleImport(mode core.ImportMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

		body, err := importBody(r)
		if err != nil {
			s.respondError(w, r, err, errorStatus(err))
			return
		}

		src := filesource.NewStream(chimw.GetReqID(r.Context()), body)
		resp, err := s.service.RunImport(r.Context(), src, mode)
		if err != nil {
			s.respondError(w, r, err, errorStatus(err))
			return
		}
		writeCommand(w, resp)
	}
}

// importBody returns the "file" part of a multipart form, or the raw body
// for any other content type.
func importBody(r *http.Request) (io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBody, err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFile
		}
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errBadBody, err)
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

type jobsResponse struct {
	Jobs    []core.ImportStatus      `json:"jobs"`
	Limiter core.ImportLimiterStatus `json:"limiter"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jobsResponse{
		Jobs:    s.service.ActiveImports(),
		Limiter: s.service.ImportLimiterStatus(),
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.service.CancelImport(jobID); err != nil {
		s.respondError(w, r, err, errorStatus(err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": "cancelling"})
}

func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ImportHistory(r.Context(), s.historyLimit(r))
	if err != nil {
		s.respondError(w, r, err, errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleImportsPage(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ImportHistory(r.Context(), s.historyLimit(r))
	if err != nil {
		s.respondError(w, r, err, errorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ImportsPage(s.service.ActiveImports(), runs).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

// historyLimit reads ?limit=, falling back to the configured default.
func (s *Server) historyLimit(r *http.Request) int {
	limit := s.cfg.Import.HistoryLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	return min(limit, maxHistoryLimit)
}
