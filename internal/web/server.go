// Package web serves the studydeck JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/exam"
	"github.com/conorfennell/studydeck/internal/generate"
	"github.com/conorfennell/studydeck/internal/review"
	"github.com/conorfennell/studydeck/internal/storage"
	libsync "github.com/conorfennell/studydeck/internal/sync"
)

const maxUploadSize = 32 << 20

// Generator produces exam documents.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (domain.Document, error)
}

// Deps holds the dependencies for the HTTP server. Generator and Syncer may
// be nil; their routes then answer 503.
type Deps struct {
	Session   *exam.Session
	Queue     *review.Queue
	Content   *storage.ContentStore
	Cards     *storage.CardStore
	Generator Generator
	Syncer    *libsync.Syncer
	Library   libsync.Source
	IDs       *exam.IDGenerator
	Logger    *slog.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router *http.ServeMux
	ids    *exam.IDGenerator

	// mu serializes every request: there is one session and one queue.
	mu sync.Mutex
}

// NewServer creates and configures a new server.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		deps:   deps,
		logger: logger,
		router: http.NewServeMux(),
		ids:    deps.IDs,
	}
	if s.ids == nil {
		s.ids = exam.NewIDGenerator(nil)
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	// Exam history
	s.router.HandleFunc("GET /api/exams", s.handleListExams())
	s.router.HandleFunc("POST /api/exams", s.handleLoadExam())
	s.router.HandleFunc("POST /api/exams/{id}/open", s.handleResumeExam())
	s.router.HandleFunc("DELETE /api/exams/{id}", s.handleDeleteExam())

	// Open exam
	s.router.HandleFunc("GET /api/session", s.handleGetSession())
	s.router.HandleFunc("PUT /api/session/answers/{index}", s.handleSetAnswer())
	s.router.HandleFunc("POST /api/session/reveal", s.handleRevealSession())
	s.router.HandleFunc("POST /api/session/submit", s.handleSubmit())
	s.router.HandleFunc("GET /api/session/export", s.handleExport())

	// Results
	s.router.HandleFunc("GET /api/results", s.handleListResults())
	s.router.HandleFunc("DELETE /api/results/{id}", s.handleDeleteResult())

	// Card manager
	s.router.HandleFunc("GET /api/cards", s.handleListCards())
	s.router.HandleFunc("GET /api/cards/tags", s.handleCardTags())
	s.router.HandleFunc("DELETE /api/cards", s.handleDeleteCards())
	s.router.HandleFunc("DELETE /api/cards/{id}", s.handleDeleteCard())

	// Review
	s.router.HandleFunc("POST /api/review", s.handleBuildReview())
	s.router.HandleFunc("GET /api/review", s.handleGetReview())
	s.router.HandleFunc("POST /api/review/reveal", s.handleRevealCard())
	s.router.HandleFunc("POST /api/review/rate", s.handleRate())

	s.router.HandleFunc("POST /api/generate", s.handleGenerate())
	s.router.HandleFunc("POST /api/sync", s.handleSync())
}

type sessionView struct {
	Loaded      bool             `json:"loaded"`
	ID          string           `json:"id,omitempty"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	Revealed    bool             `json:"revealed"`
	Document    *domain.Document `json:"document,omitempty"`
}

func (s *Server) sessionView() sessionView {
	sess := s.deps.Session
	if !sess.Loaded() {
		return sessionView{}
	}
	doc := sess.Document()
	return sessionView{
		Loaded:      true,
		ID:          sess.ID(),
		Fingerprint: sess.Fingerprint(),
		Revealed:    sess.Revealed(),
		Document:    &doc,
	}
}

func (s *Server) handleListExams() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Session.RefreshRecent(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.deps.Session.Recent())
	}
}

// handleLoadExam opens the exam document in the request body.
func (s *Server) handleLoadExam() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := exam.Decode(http.MaxBytesReader(w, r.Body, maxUploadSize))
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.deps.Session.Load(r.Context(), doc, s.ids.Next()); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s.sessionView())
	}
}

func (s *Server) handleResumeExam() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Session.Resume(r.Context(), r.PathValue("id")); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.sessionView())
	}
}

func (s *Server) handleDeleteExam() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Session.Delete(r.Context(), r.PathValue("id")); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.sessionView())
	}
}

func (s *Server) handleSetAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(r.PathValue("index"))
		if err != nil {
			http.Error(w, "Invalid question index", http.StatusBadRequest)
			return
		}
		var body struct {
			Answer string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.deps.Session.SetAnswer(index, body.Answer); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRevealSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.deps.Session.Loaded() {
			s.writeError(w, domain.ErrNoExamLoaded)
			return
		}
		s.deps.Session.SetRevealed(!s.deps.Session.Revealed())
		writeJSON(w, http.StatusOK, s.sessionView())
	}
}

type submitResponse struct {
	Result          domain.Result `json:"result"`
	CreatedCards    []string      `json:"created_cards"`
	DerivationError string        `json:"derivation_error,omitempty"`
}

// handleSubmit grades the open exam. A card derivation failure still answers
// 200 with the recorded result; the failure is reported alongside it.
func (s *Server) handleSubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := s.deps.Session.Submit(r.Context())
		if outcome == nil {
			s.writeError(w, err)
			return
		}
		resp := submitResponse{Result: outcome.Result, CreatedCards: outcome.CreatedCards}
		if resp.CreatedCards == nil {
			resp.CreatedCards = []string{}
		}
		if err != nil {
			s.logger.Warn("Card derivation failed", "exam_id", outcome.Result.ExamID, "error", err)
			resp.DerivationError = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := s.deps.Session.Export()
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "exam_"+s.deps.Session.ID()+".json"))
		w.Write(data)
	}
}

type resultsResponse struct {
	Results []domain.Result   `json:"results"`
	Tags    []string          `json:"tags"`
	Series  []exam.ScorePoint `json:"series,omitempty"`
}

// handleListResults lists results newest first. With ?tag= it also returns
// that tag's score series.
func (s *Server) handleListResults() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := s.deps.Content.ResultsByTime(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp := resultsResponse{Results: results, Tags: exam.ResultTags(results)}
		if tag := r.URL.Query().Get("tag"); tag != "" {
			resp.Series = exam.ScoreSeries(results, tag)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleDeleteResult() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid result ID", http.StatusBadRequest)
			return
		}
		if err := s.deps.Content.DeleteResult(r.Context(), id); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cards []domain.Card
		var err error
		if tag := r.URL.Query().Get("tag"); tag != "" {
			cards, err = s.deps.Cards.AllByTag(r.Context(), tag)
		} else {
			cards, err = s.deps.Cards.AllByDue(r.Context())
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		if cards == nil {
			cards = []domain.Card{}
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

func (s *Server) handleCardTags() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cards, err := s.deps.Cards.AllByDue(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, review.CardTags(cards))
	}
}

// handleDeleteCards deletes the cards listed in the body, or every card with ?all=true.
func (s *Server) handleDeleteCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("all") == "true" {
			if err := s.deps.Cards.Clear(r.Context()); err != nil {
				s.writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		var body struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.IDs) == 0 {
			http.Error(w, "Expected a list of card ids", http.StatusBadRequest)
			return
		}
		if err := s.deps.Cards.DeleteMany(r.Context(), body.IDs); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Cards.Delete(r.Context(), r.PathValue("id")); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type reviewView struct {
	Card     *domain.Card `json:"card"`
	Revealed bool         `json:"revealed"`
	Filter   string       `json:"filter,omitempty"`
	Stats    review.Stats `json:"stats"`
	Tags     []string     `json:"tags"`
}

func (s *Server) reviewView() reviewView {
	q := s.deps.Queue
	tags := q.Tags()
	if tags == nil {
		tags = []string{}
	}
	return reviewView{
		Card:     q.Current(),
		Revealed: q.Revealed(),
		Filter:   q.Filter(),
		Stats:    q.Stats(),
		Tags:     tags,
	}
}

// handleBuildReview rebuilds the review queue, optionally for ?tag=.
func (s *Server) handleBuildReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Queue.Build(r.Context(), r.URL.Query().Get("tag")); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.reviewView())
	}
}

func (s *Server) handleGetReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.reviewView())
	}
}

func (s *Server) handleRevealCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Queue.Current() == nil {
			s.writeError(w, domain.ErrNoCurrentCard)
			return
		}
		s.deps.Queue.Reveal()
		writeJSON(w, http.StatusOK, s.reviewView())
	}
}

// handleRate rates the current card and returns the next one.
func (s *Server) handleRate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Rating string `json:"rating"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		rating, err := domain.ParseRating(body.Rating)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if _, err := s.deps.Queue.Rate(r.Context(), rating); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.reviewView())
	}
}

// handleGenerate generates an exam from the "prompt" form field and any
// "attachments" files, then opens it.
func (s *Server) handleGenerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Generator == nil {
			http.Error(w, "Exam generation is not configured", http.StatusServiceUnavailable)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}

		req := generate.Request{Prompt: r.FormValue("prompt")}
		if r.MultipartForm != nil {
			for _, fh := range r.MultipartForm.File["attachments"] {
				if fh.Size > generate.MaxAttachmentSize {
					http.Error(w, fmt.Sprintf("File %s is too large. Max 4MB.", fh.Filename), http.StatusRequestEntityTooLarge)
					return
				}
				f, err := fh.Open()
				if err != nil {
					http.Error(w, "Invalid attachment", http.StatusBadRequest)
					return
				}
				data, err := io.ReadAll(f)
				f.Close()
				if err != nil {
					http.Error(w, "Invalid attachment", http.StatusBadRequest)
					return
				}
				req.Attachments = append(req.Attachments, generate.Attachment{
					Name:     fh.Filename,
					MIMEType: fh.Header.Get("Content-Type"),
					Data:     data,
				})
			}
		}

		doc, err := s.deps.Generator.Generate(r.Context(), req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.deps.Session.Load(r.Context(), doc, s.ids.NextGenerated()); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s.sessionView())
	}
}

// handleSync runs a library sync in the foreground.
func (s *Server) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Syncer == nil {
			http.Error(w, "No exam library configured", http.StatusServiceUnavailable)
			return
		}
		report, err := s.deps.Syncer.Run(r.Context(), s.deps.Library)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.deps.Session.RefreshRecent(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}

		errs := make([]string, len(report.Errors))
		for i, e := range report.Errors {
			errs[i] = e.Error()
		}
		imported := report.Imported
		if imported == nil {
			imported = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"imported":  imported,
			"unchanged": report.Unchanged,
			"errors":    errs,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRating):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCollaborator):
		status = http.StatusBadGateway
	case errors.Is(err, generate.ErrAttachmentTooLarge):
		status = http.StatusRequestEntityTooLarge
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
