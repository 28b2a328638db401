// Package receiver implements the upload collector: it parses multipart
// uploads, stores each file under a collision-free name and restores the
// client's file times.
package receiver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fruitsalade/dirsync/internal/alert"
	"github.com/fruitsalade/dirsync/internal/auth"
	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/internal/metrics"
	"github.com/fruitsalade/dirsync/internal/storage"
	"github.com/fruitsalade/dirsync/pkg/protocol"
)

// DefaultMaxUploadSize is the request body limit when none is configured.
const DefaultMaxUploadSize = 100 * 1024 * 1024

// Options configure a Server.
type Options struct {
	MaxUploadSize int64
	SpoolDir      string         // temp files for parts received before relativePath; "" = os.TempDir()
	Verifier      *auth.Verifier // nil disables authentication
	Version       string
}

// Server is the upload collector HTTP server.
type Server struct {
	backend  storage.Backend
	resolver *CollisionResolver
	times    *TimestampApplier
	notifier alert.Notifier
	opts     Options
	now      func() time.Time
}

// NewServer creates a Server storing files in backend and reporting
// failures to notifier.
func NewServer(backend storage.Backend, notifier alert.Notifier, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if notifier == nil {
		notifier = alert.Nop{}
	}
	return &Server{
		backend:  backend,
		resolver: NewCollisionResolver(backend),
		times:    NewTimestampApplier(backend),
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET "+protocol.HealthPath, s.handleHealth)

	var upload http.Handler = http.HandlerFunc(s.handleUpload)
	if s.opts.Verifier != nil {
		upload = s.opts.Verifier.Middleware(upload)
	}
	mux.Handle("POST "+protocol.UploadPath, upload)

	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("upload server is running\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.HealthResponse{Status: "ok", Version: s.opts.Version})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message, details string) {
	s.sendJSON(w, code, protocol.ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
