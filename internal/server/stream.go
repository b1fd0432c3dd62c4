package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"taxrag/internal/domain"
)

const (
	eventSession  = "session"
	eventThinking = "thinking"
	eventAnswer   = "answer"
	eventSources  = "sources"
	eventError    = "error"
	eventDone     = "done"
)

// event is one NDJSON line of a chat response.
type event struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id,omitempty"`
	Title     string   `json:"title,omitempty"`
	Content   string   `json:"content,omitempty"`
	Status    string   `json:"status,omitempty"`
	Duration  float64  `json:"duration,omitempty"` // seconds
	Sources   []source `json:"sources,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type source struct {
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float64 `json:"score"`
}

type stream struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
}

func newStream(w http.ResponseWriter) *stream {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	f, _ := w.(http.Flusher)
	return &stream{w: w, enc: json.NewEncoder(w), flusher: f}
}

func (s *stream) send(e event) error {
	if err := s.enc.Encode(e); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// respond runs the optional progress phase and then the result phase. The
// progress phase is cosmetic and never changes the answer.
func (s *Server) respond(r *http.Request, st *stream, sessionID, message string) {
	ctx := r.Context()

	if s.cfg.Thinking.Enabled && len(s.cfg.Thinking.Stages) > 0 {
		if err := s.think(ctx, st); err != nil {
			return
		}
	}

	res, err := s.bot.Query(ctx, sessionID, message)
	if err != nil {
		s.logger.Error("Chat query failed",
			slog.String("session_id", sessionID),
			slog.String("kind", domain.KindOf(err).String()),
			slog.String("error", err.Error()))
		st.send(event{Type: eventError, SessionID: sessionID, Error: userMessage(err)})
		return
	}

	// one character per event; the client appends
	for _, ch := range res.Answer {
		if err := st.send(event{Type: eventAnswer, Content: string(ch)}); err != nil {
			return
		}
		if err := s.sleep(ctx, s.cfg.CharDelay); err != nil {
			return
		}
	}

	sources := make([]source, len(res.Sources))
	for i, c := range res.Sources {
		sources[i] = source{Source: c.Chunk.Source, Page: c.Chunk.Page, Score: c.Score}
	}
	st.send(event{Type: eventSources, Sources: sources})
	st.send(event{Type: eventDone, SessionID: sessionID})
}

// think emits the stages reached so far as a bullet list, pausing a random
// delay after each, then a done marker carrying the elapsed time.
func (s *Server) think(ctx context.Context, st *stream) error {
	start := time.Now()
	var acc []string
	for _, stage := range s.cfg.Thinking.Stages {
		acc = append(acc, stage)
		if err := st.send(event{Type: eventThinking, Title: s.cfg.Thinking.Title, Content: bullets(acc)}); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.jitter(s.cfg.Thinking.MaxDelay)); err != nil {
			return err
		}
	}
	return st.send(event{
		Type:     eventThinking,
		Title:    s.cfg.Thinking.Title,
		Content:  bullets(acc),
		Status:   "done",
		Duration: time.Since(start).Seconds(),
	})
}

func bullets(items []string) string {
	return "- " + strings.Join(items, "\n- ")
}

func userMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return "Please enter a question."
	case domain.KindLLM:
		return "The language model is unavailable right now. Please try again."
	case domain.KindEmbedding, domain.KindStorage:
		return "The document index is unavailable right now. Please try again."
	default:
		return "Something went wrong while answering. Please try again."
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomDelay(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
