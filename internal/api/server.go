package api

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"

	"github.com/yangwenmai/storyteller/internal/model"
	"github.com/yangwenmai/storyteller/internal/store"
)

// maxRequestBody is the maximum allowed JSON request body size (1 MB).
const maxRequestBody int64 = 1 << 20

// defaultMaxUpload bounds a multipart photo upload (200 MB).
const defaultMaxUpload int64 = 200 << 20

// Server holds the HTTP handlers and dependencies.
type Server struct {
	store       store.MomentRepository
	sessions    *Registry
	mux         *http.ServeMux
	corsOrigin  string
	maxUpload   int64
	defaultTier model.Tier
	logger      *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithCORSOrigin sets the allowed CORS origin (default "*").
func WithCORSOrigin(origin string) Option {
	return func(s *Server) {
		if origin != "" {
			s.corsOrigin = origin
		}
	}
}

// WithMaxUploadBytes bounds multipart photo uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithDefaultTier sets the tier used by commits that name none.
func WithDefaultTier(t model.Tier) Option {
	return func(s *Server) {
		if t != "" {
			s.defaultTier = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a new API server.
func New(repo store.MomentRepository, sessions *Registry, opts ...Option) *Server {
	srv := &Server{
		store:       repo,
		sessions:    sessions,
		mux:         http.NewServeMux(),
		corsOrigin:  "*",
		maxUpload:   defaultMaxUpload,
		defaultTier: model.TierFree,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.limitBody(jsonContent(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{sid}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{sid}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /api/sessions/{sid}/photos", s.handleAddPhotos)
	s.mux.HandleFunc("DELETE /api/sessions/{sid}/photos/{pid}", s.handleRemovePhoto)
	s.mux.HandleFunc("PUT /api/sessions/{sid}/header/{pid}", s.handleSetHeader)
	s.mux.HandleFunc("PATCH /api/sessions/{sid}/artifact", s.handleEditArtifact)
	s.mux.HandleFunc("PUT /api/sessions/{sid}/tags/{category}/draft", s.handleSetTagDraft)
	s.mux.HandleFunc("POST /api/sessions/{sid}/tags/{category}", s.handleAddTag)
	s.mux.HandleFunc("DELETE /api/sessions/{sid}/tags/{category}/{value}", s.handleRemoveTag)
	s.mux.HandleFunc("POST /api/sessions/{sid}/refine", s.handleRefine)
	s.mux.HandleFunc("POST /api/sessions/{sid}/commit", s.handleCommit)

	s.mux.HandleFunc("GET /api/moments", s.handleListMoments)
	s.mux.HandleFunc("GET /api/moments/counts", s.handleCountMoments)
	s.mux.HandleFunc("GET /api/moments/{id}", s.handleGetMoment)
	s.mux.HandleFunc("PATCH /api/moments/{id}/pin", s.handlePinMoment)
	s.mux.HandleFunc("DELETE /api/moments/{id}", s.handleDeleteMoment)
	s.mux.HandleFunc("GET /api/tiers", s.handleTiers)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// corsMiddleware sets CORS headers for the configured origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody restricts JSON bodies to maxRequestBody and photo uploads to the
// configured upload limit.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := maxRequestBody
		if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
			limit = s.maxUpload
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
