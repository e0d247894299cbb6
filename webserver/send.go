package webserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/malonaz/wgpt/internal/attachment"
	"github.com/malonaz/wgpt/internal/session"
)

// maxUploadBytes bounds an attachment-bearing turn.
const maxUploadBytes = 32 << 20

// StreamEvent is the SSE event format consumed by the page.
type StreamEvent struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      *session.Delta `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// handleSendTurn records a user turn and streams the model reply back as
// server-sent events.
func (s *Server) handleSendTurn(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	text := r.FormValue("text")
	useSearchGrounding := r.FormValue("search") == "on" || r.FormValue("search") == "true"

	var files []attachment.File
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			files = append(files, attachment.FromUpload(header))
		}
	}

	deltas, err := s.session.SendTurn(r.Context(), threadID, text, files, useSearchGrounding)
	switch {
	case errors.Is(err, session.ErrEmptyTurn):
		// Caller error; a no-op from the user's perspective.
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, session.ErrStreamInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Set up SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	streamID := uuid.NewString()
	for delta := range deltas {
		writeEvent(w, flusher, StreamEvent{
			Type:      "delta",
			ID:        streamID,
			Timestamp: time.Now(),
			Data:      &delta,
		})
	}
	// The turn has finalized (or failed in-band); the page re-renders from
	// store state either way.
	writeEvent(w, flusher, StreamEvent{
		Type:      "done",
		ID:        streamID,
		Timestamp: time.Now(),
	})
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event StreamEvent) {
	bytes, err := json.Marshal(event)
	if err != nil {
		return
	}
	w.Write([]byte("data: " + string(bytes) + "\n\n"))
	flusher.Flush()
}
