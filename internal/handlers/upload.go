package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/platereader/internal/detector"
	"github.com/lehigh-university-libraries/platereader/internal/imageproc"
	"github.com/lehigh-university-libraries/platereader/internal/images"
	"github.com/lehigh-university-libraries/platereader/internal/models"
	"github.com/lehigh-university-libraries/platereader/internal/pipeline"
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Check if this is a JSON request with image URL
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		h.handleURLUpload(w, r)
		return
	}

	h.handleFileUpload(w, r)
}

func (h *Handler) handleURLUpload(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ImageURL string `json:"image_url"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if request.ImageURL == "" {
		h.writeError(w, "image_url is required", http.StatusBadRequest)
		return
	}

	data, filename, err := h.fetcher.Fetch(r.Context(), request.ImageURL)
	if err != nil {
		if errors.Is(err, images.ErrTooLarge) {
			h.writeError(w, h.tooLargeMessage(), http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, "Failed to process image URL: "+err.Error(), http.StatusBadRequest)
		return
	}

	slog.Info("Fetched image from URL", "url", request.ImageURL, "bytes", len(data))
	h.processUpload(w, r, filename, data)
}

func (h *Handler) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	// multipart overhead on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)

	file, header, err := r.FormFile("files")
	if err != nil {
		file, header, err = r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.writeError(w, h.tooLargeMessage(), http.StatusRequestEntityTooLarge)
				return
			}
			h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	defer file.Close()

	fileData, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if int64(len(fileData)) > h.maxUploadBytes {
		h.writeError(w, h.tooLargeMessage(), http.StatusRequestEntityTooLarge)
		return
	}

	h.processUpload(w, r, header.Filename, fileData)
}

// processUpload validates, persists and runs the pipeline on one image, then
// stores the resulting session.
func (h *Handler) processUpload(w http.ResponseWriter, r *http.Request, filename string, data []byte) {
	contentType := http.DetectContentType(data)
	if !allowedContentTypes[contentType] {
		h.writeError(w, "Unsupported image type "+contentType+" (expected JPEG or PNG)", http.StatusUnsupportedMediaType)
		return
	}

	if _, err := imageproc.CheckDimensions(bytes.NewReader(data), h.maxImagePixels); err != nil {
		if errors.Is(err, imageproc.ErrImageTooLarge) {
			h.writeError(w, fmt.Sprintf("Image dimensions too large (max %d pixels)", h.maxImagePixels), http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, "Failed to decode image: "+err.Error(), http.StatusBadRequest)
		return
	}

	img, err := imageproc.Decode(bytes.NewReader(data))
	if err != nil {
		h.writeError(w, "Failed to decode image: "+err.Error(), http.StatusBadRequest)
		return
	}

	storedName, err := h.uploads.Save(filename, data)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	session := &models.PlateSession{
		ID:               uuid.NewString(),
		OriginalFilename: filename,
		ImagePath:        storedName,
		ImageURL:         "/static/uploads/" + storedName,
		ImageWidth:       img.Bounds().Dx(),
		ImageHeight:      img.Bounds().Dy(),
		Engine:           h.engine,
		CreatedAt:        time.Now(),
	}

	outcome, err := h.pipeline.Process(r.Context(), img)
	session.State = outcome.SessionState()
	session.Message = outcome.Message
	session.Results = outcome.Results
	h.sessionStore.Set(session.ID, session)

	if err != nil {
		var detErr *detector.DetectionError
		if errors.As(err, &detErr) {
			slog.Error("Upload could not be processed", "session_id", session.ID, "err", err)
			h.writeError(w, pipeline.DetectionFailedMessage, http.StatusBadGateway)
			return
		}
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("Upload processed", "session_id", session.ID, "state", session.State, "plates", len(session.Results))
	h.writeJSON(w, session)
}

func (h *Handler) tooLargeMessage() string {
	return fmt.Sprintf("File too large (max %dMB)", h.maxUploadBytes>>20)
}
