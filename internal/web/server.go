// Package web exposes the questionnaire editor as a JSON API: the same
// authoring operations the bot's admin commands offer, plus a couple of
// read-only inspection endpoints. A front-end can sit on top of it; the
// bot works fine without it.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nahida1027/surveybot/internal/service"
)

type Server struct {
	catalog  *service.Catalog
	sessions *service.Sessions
	token    string
	log      *slog.Logger
}

func NewServer(catalog *service.Catalog, sessions *service.Sessions, token string, log *slog.Logger) *Server {
	return &Server{catalog: catalog, sessions: sessions, token: token, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(pr chi.Router) {
		pr.Use(s.auth)
		pr.Get("/api/questions", s.listQuestions)
		pr.Post("/api/questions", s.createQuestion)
		pr.Put("/api/questions/{id}", s.updateQuestion)
		pr.Delete("/api/questions", s.clearAll)
		pr.Get("/api/categories", s.listCategories)
		pr.Get("/api/sessions/active", s.activeSessions)
	})
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("editor api listening", slog.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// auth requires "Authorization: Bearer <token>" when a token is
// configured. With no token the API is open, matching the original
// editor's trust model on a private deployment.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type questionPayload struct {
	Category  string           `json:"category"`
	Text      string           `json:"text"`
	Type      string           `json:"type,omitempty"`
	Options   []service.Option `json:"options,omitempty"`
	Skippable bool             `json:"skippable,omitempty"`
	MediaKind string           `json:"media_kind,omitempty"`
	MediaRef  string           `json:"media_ref,omitempty"`
}

func (p questionPayload) toQuestion() service.Question {
	typ := service.TypeNormal
	if p.Type == string(service.TypeBranch) {
		typ = service.TypeBranch
	}
	return service.Question{
		Category:  p.Category,
		Text:      p.Text,
		Type:      typ,
		Options:   p.Options,
		Skippable: p.Skippable,
		MediaKind: p.MediaKind,
		MediaRef:  p.MediaRef,
	}
}

func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.catalog.All(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	if questions == nil {
		questions = []service.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (s *Server) createQuestion(w http.ResponseWriter, r *http.Request) {
	var p questionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	id, err := s.catalog.Create(r.Context(), p.toQuestion())
	if err != nil {
		if errors.Is(err, service.ErrEmptyField) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"id": id})
}

func (s *Server) updateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question id")
		return
	}
	var p questionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	q := p.toQuestion()
	q.ID = id
	if err := s.catalog.Update(r.Context(), q); err != nil {
		switch {
		case errors.Is(err, service.ErrNoSuchQuestion):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrEmptyField):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.storeError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"id": id})
}

func (s *Server) clearAll(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.ClearAll(r.Context()); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.catalog.Categories(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) activeSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.ActiveUserIDs(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"active": len(ids)})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	s.log.Error("store unavailable", slog.Any("error", err))
	writeError(w, http.StatusServiceUnavailable, "store unavailable")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
