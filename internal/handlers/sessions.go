package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/platereader/internal/imageproc"
)

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.writeJSON(w, h.sessionStore.List())
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleSessionDetail serves /api/sessions/{id} and
// /api/sessions/{id}/images/{n}/{crop|annotated}.
func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")

	session, ok := h.getSessionOrError(w, parts[0])
	if !ok {
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case "GET":
			h.writeJSON(w, session)
		case "DELETE":
			h.sessionStore.Delete(session.ID)
			w.WriteHeader(http.StatusNoContent)
		default:
			h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 4 && parts[1] == "images":
		if r.Method != "GET" {
			h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 0 || n >= len(session.Results) {
			h.writeError(w, "Result not found", http.StatusNotFound)
			return
		}
		result := session.Results[n]

		img := result.Annotated
		switch parts[3] {
		case "annotated":
		case "crop":
			img = result.Crop
		default:
			h.writeError(w, "Unknown image kind "+parts[3], http.StatusNotFound)
			return
		}
		if img == nil {
			h.writeError(w, "Image not available", http.StatusNotFound)
			return
		}

		data, err := imageproc.EncodePNG(img)
		if err != nil {
			h.writeError(w, "Failed to encode image: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if _, err := w.Write(data); err != nil {
			h.writeError(w, "Failed to write image: "+err.Error(), http.StatusInternalServerError)
		}
	default:
		h.writeError(w, "Not found", http.StatusNotFound)
	}
}
