package webserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	if _, err := s.session.NewThread(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSelectThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := s.session.Select(threadID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := s.session.DeleteThread(threadID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	if err := s.session.SelectModel(r.FormValue("model")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
