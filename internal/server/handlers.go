package server

import (
	"embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"taxrag/internal/domain"
)

//go:embed static/index.html
var staticFS embed.FS

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, s.cfg); err != nil {
		s.logger.Error("Failed to render page", slog.String("error", err.Error()))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, s.bot.NewSession())
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	st := newStream(w)
	if req.SessionID == "" {
		session := s.bot.NewSession()
		req.SessionID = session.ID
		st.send(event{Type: eventSession, SessionID: session.ID})
	}
	s.respond(r, st, req.SessionID, req.Message)
}

type flagRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Answer    string `json:"answer"`
	Option    string `json:"option"`
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !slices.Contains(s.cfg.FlaggingOptions, req.Option) {
		writeError(w, http.StatusBadRequest, "unknown flagging option")
		return
	}

	fb := domain.Feedback{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Option:    req.Option,
		Message:   req.Message,
		Answer:    req.Answer,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.feedback.SaveFeedback(r.Context(), fb); err != nil {
		s.logger.Error("Failed to save feedback",
			slog.String("session_id", req.SessionID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "could not save feedback")
		return
	}
	s.logger.Info("Feedback recorded",
		slog.String("session_id", fb.SessionID),
		slog.String("option", fb.Option))
	writeJSON(w, http.StatusCreated, map[string]string{"id": fb.ID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
