package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/platereader/internal/config"
	"github.com/lehigh-university-libraries/platereader/internal/images"
	"github.com/lehigh-university-libraries/platereader/internal/models"
	"github.com/lehigh-university-libraries/platereader/internal/pipeline"
	"github.com/lehigh-university-libraries/platereader/internal/storage"
)

type Handler struct {
	sessionStore   *storage.SessionStore
	uploads        *storage.Uploads
	fetcher        *images.Fetcher
	pipeline       *pipeline.Orchestrator
	staticDir      string
	maxUploadBytes int64
	maxImagePixels int64
	engine         string
}

func New(cfg *config.Config, orchestrator *pipeline.Orchestrator) *Handler {
	return &Handler{
		sessionStore:   storage.New(cfg.Server.MaxSessions),
		uploads:        storage.NewUploads(cfg.Server.UploadsDir),
		fetcher:        images.NewFetcher(cfg.Server.MaxUploadBytes),
		pipeline:       orchestrator,
		staticDir:      cfg.Server.StaticDir,
		maxUploadBytes: cfg.Server.MaxUploadBytes,
		maxImagePixels: cfg.Server.MaxImagePixels,
		engine:         cfg.OCR.Engine,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", h.HandleSessions)
	mux.HandleFunc("/api/sessions/", h.HandleSessionDetail)
	mux.HandleFunc("/api/upload", h.HandleUpload)
	mux.HandleFunc("/", h.HandleStatic)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message, "status", code)
	http.Error(w, message, code)
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*models.PlateSession, bool) {
	session, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}
