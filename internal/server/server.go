// Package server serves the chat front end over HTTP.
package server

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"

	"taxrag/config"
	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// Chatbot is the conversational chain behind the front end.
type Chatbot interface {
	NewSession() domain.Session
	Query(ctx context.Context, sessionID, question string) (*domain.QueryResult, error)
}

// Server holds the HTTP routes. Sessions are created lazily: a chat request
// without a session ID starts one and announces it in the stream.
type Server struct {
	bot      Chatbot
	feedback port.FeedbackStore
	cfg      config.WebConfig
	logger   *slog.Logger
	page     *template.Template
	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func(limit time.Duration) time.Duration
}

func New(bot Chatbot, feedback port.FeedbackStore, cfg config.WebConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	page, err := template.ParseFS(staticFS, "static/index.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		bot:      bot,
		feedback: feedback,
		cfg:      cfg,
		logger:   logger,
		page:     page,
		sleep:    sleepCtx,
		jitter:   randomDelay,
	}, nil
}

// Routes registers every endpoint on a new router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleNewSession).Methods(http.MethodPost)
	r.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/api/flag", s.handleFlag).Methods(http.MethodPost)
	return r
}

// Handler wraps the routes with panic recovery and request logging.
func (s *Server) Handler() http.Handler {
	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.Use(negroni.HandlerFunc(s.logRequest))
	n.UseHandler(s.Routes())
	return n
}

func (s *Server) logRequest(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()
	next(w, r)
	status := 0
	if rw, ok := w.(negroni.ResponseWriter); ok {
		status = rw.Status()
	}
	s.logger.Info("HTTP request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("elapsed", time.Since(start)))
}

// Addr is the listen address built from host and port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.Addr(),
		Handler:     s.Handler(),
		IdleTimeout: time.Minute,
		ReadTimeout: 5 * time.Second,
		// answers stream for as long as the model and typing delay take
		WriteTimeout: 0,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving chat front end", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
