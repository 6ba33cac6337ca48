// pkg/server/server.go
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/pipeline"
	"github.com/xtechon/vatflow/pkg/session"
)

// Server exposes the pipeline over HTTP
type Server struct {
	processor *pipeline.Processor
	logger    *zap.Logger
	maxUpload int64
	router    chi.Router
}

// NewServer creates the HTTP server around a processor. maxUpload
// bounds the accepted multipart body size in bytes.
func NewServer(processor *pipeline.Processor, maxUpload int64, logger *zap.Logger) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}

	s := &Server{
		processor: processor,
		logger:    logger.Named("http"),
		maxUpload: maxUpload,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/validate-file", s.handleValidateFile)
	r.Post("/process-vat/{session}", s.handleProcessVAT)
	r.Get("/processing-status/{session}", s.handleStatus)
	r.Get("/download-vat-issues/{session}", s.handleDownloadIssues)
	r.Get("/download-manual-review/{session}", s.handleDownloadManualReview)
	r.Post("/download-vat-report/{session}", s.handleDownloadReport)

	return r
}

// requestLogger logs one line per request with latency and status
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("requestID", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fileValidation is the per-file entry in the validate-file response.
// A file that failed carries Error instead of an outcome; other files
// in the same upload are unaffected.
type fileValidation struct {
	Filename string                      `json:"filename"`
	Outcome  *pipeline.ValidationOutcome `json:"outcome,omitempty"`
	Error    string                      `json:"error,omitempty"`
	Category string                      `json:"category,omitempty"`
}

func (s *Server) handleValidateFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: could not parse upload: %v", pipeline.ErrInputFormat, err))
		return
	}

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		s.respondError(w, r, fmt.Errorf("%w: missing form field %q", pipeline.ErrInputFormat, "file"))
		return
	}

	results := make([]fileValidation, 0, len(headers))
	for _, header := range headers {
		entry := fileValidation{Filename: header.Filename}

		data, err := readUpload(header)
		if err == nil {
			var outcome *pipeline.ValidationOutcome
			outcome, err = s.processor.ValidateFile(r.Context(), data, header.Filename)
			entry.Outcome = outcome
		}
		if err != nil {
			entry.Error = pipeline.UserMessage(err)
			entry.Category = pipeline.Classify(err).String()
			s.logger.Warn("Upload rejected",
				zap.String("filename", header.Filename),
				zap.Error(err))
		}
		results = append(results, entry)
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: could not open upload: %v", pipeline.ErrInputFormat, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read upload: %v", pipeline.ErrInputFormat, err)
	}
	return data, nil
}

func (s *Server) handleProcessVAT(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.processor.ProcessVAT(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.processor.Status(chi.URLParam(r, "session"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleDownloadIssues(w http.ResponseWriter, r *http.Request) {
	data, err := s.processor.IssuesWorkbook(chi.URLParam(r, "session"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondWorkbook(w, "validation_issues.xlsx", data)
}

func (s *Server) handleDownloadManualReview(w http.ResponseWriter, r *http.Request) {
	data, err := s.processor.ManualReviewWorkbook(chi.URLParam(r, "session"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondWorkbook(w, "manual_review.xlsx", data)
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.processor.Report(chi.URLParam(r, "session"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondWorkbook(w, reportFilename(filename), data)
}

// reportFilename derives the download name from the uploaded filename
func reportFilename(uploaded string) string {
	base := uploaded
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			base = base[:i]
			break
		}
	}
	if base == "" {
		base = "report"
	}
	return base + "_vat_report.xlsx"
}

func (s *Server) respondWorkbook(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("Failed to write workbook response", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

// errorResponse is the JSON shape of every error reply
type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	category := pipeline.Classify(err)

	message := pipeline.UserMessage(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
		message = "Session not found or expired. Please validate the file again."
	case category == pipeline.CategoryInputFormat:
		status = http.StatusBadRequest
	case category == pipeline.CategorySchema:
		status = http.StatusUnprocessableEntity
	case category == pipeline.CategoryCollaborator:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	s.respondJSON(w, status, errorResponse{
		Error:    message,
		Category: category.String(),
	})
}
