// Package http exposes the conversion service over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/aretw0/xrkconv"
	"github.com/aretw0/xrkconv/internal/logging"
	"github.com/aretw0/xrkconv/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxUploadBytes bounds the request body when no limit is configured.
const DefaultMaxUploadBytes = 100 << 20

// FormField is the multipart field carrying the upload.
const FormField = "file"

// Parts above this size spill to disk while the form is parsed.
const maxMemory = 32 << 20

// Converter runs one upload through the pipeline.
type Converter interface {
	Convert(ctx context.Context, up xrkconv.Upload) (*xrkconv.Delivery, error)
}

// Server serves POST /convert.
type Server struct {
	Converter      Converter
	MaxUploadBytes int64

	metrics http.Handler
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithMaxUploadBytes caps the request body size.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		s.MaxUploadBytes = n
	}
}

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger configures a logger for request failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for conv.
func NewHandler(conv Converter, opts ...Option) http.Handler {
	s := &Server{
		Converter:      conv,
		MaxUploadBytes: DefaultMaxUploadBytes,
		logger:         logging.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/convert", s.Convert)
	r.Get("/health", s.Health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type rejection struct {
	Error string `json:"error"`
}

// failure is the JSON body returned when a conversion does not deliver.
type failure struct {
	Error          string  `json:"error"`
	Stdout         string  `json:"stdout"`
	Stderr         string  `json:"stderr"`
	ConversionTime float64 `json:"conversion_time"`
}

// Convert handles POST /convert. The body is size-checked and the form field
// resolved before the service sees the request, so malformed requests never
// allocate a workspace.
func (s *Server) Convert(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusBadRequest, rejection{
				Error: fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit),
			})
		case errors.Is(err, http.ErrNotMultipart):
			writeJSON(w, http.StatusBadRequest, rejection{Error: "No file uploaded"})
		default:
			writeJSON(w, http.StatusBadRequest, rejection{Error: "Malformed upload"})
		}
		logger.Info("upload rejected", "err", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(FormField)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, rejection{Error: "No file uploaded"})
		return
	}
	defer file.Close()

	start := s.now()
	d, err := s.Converter.Convert(r.Context(), xrkconv.Upload{Name: header.Filename, Body: file})
	elapsed := s.now().Sub(start)
	if err != nil {
		s.writeFailure(w, r, err, elapsed, logger)
		return
	}
	// Teardown must not start until the body has been written.
	defer d.Close()

	f, err := d.Open()
	if err != nil {
		logger.Error("failed to open artifact", "session_id", d.SessionID, "err", err)
		writeJSON(w, http.StatusInternalServerError, failure{Error: "Converted output unavailable"})
		return
	}
	defer f.Close()

	h := w.Header()
	h.Set("Content-Type", d.ContentType())
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Name}))
	h.Set("X-Conversion-Time", formatSeconds(elapsed))
	h.Set("X-Session-ID", d.SessionID)
	if d.Digest != "" {
		h.Set("X-Content-Digest", "blake3="+d.Digest)
	}
	http.ServeContent(w, r, d.Name, time.Time{}, f)
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error, elapsed time.Duration, logger *slog.Logger) {
	if domain.IsBadRequest(err) {
		writeJSON(w, http.StatusBadRequest, rejection{Error: err.Error()})
		return
	}
	if r.Context().Err() != nil {
		// Nobody is listening; the service already logged the details.
		logger.Info("client went away before conversion finished", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	body := failure{
		Error:          failureMessage(err),
		ConversionTime: elapsed.Seconds(),
	}
	if res := domain.ResultOf(err); res != nil {
		body.Stdout = res.Stdout
		body.Stderr = res.Stderr
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

// failureMessage hides environment detail from the caller; converter
// failures are reported by kind since their streams are returned anyway.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrExecutionTimeout):
		return "Conversion timed out"
	case errors.Is(err, domain.ErrExecutionFailed):
		return "Conversion failed"
	case errors.Is(err, domain.ErrOutputDirectoryMissing), errors.Is(err, domain.ErrNoOutputProduced):
		return "Conversion produced no output"
	case errors.Is(err, domain.ErrSpawn):
		return "Converter could not be started"
	case errors.Is(err, domain.ErrCanceled):
		return "Conversion canceled"
	}
	return "Internal server error"
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
