package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/knol"
)

// ContentStore is the part of the content store that a session needs.
type ContentStore interface {
	PutExam(ctx context.Context, rec domain.ExamRecord) error
	GetExam(ctx context.Context, id string) (*domain.ExamRecord, error)
	ExamsByRecency(ctx context.Context) ([]domain.ExamRecord, error)
	DeleteExam(ctx context.Context, id string) error
	AddResult(ctx context.Context, r domain.Result) (int64, error)
}

// Renderer turns explanation Markdown into HTML.
type Renderer interface {
	Render(text string) (string, error)
}

// Outcome is the result of submitting an exam.
type Outcome struct {
	Result       domain.Result
	CreatedCards []string
}

// Session holds the currently open exam. Its working copy carries rendered
// explanations and user answers; persisted history never does.
type Session struct {
	content  ContentStore
	renderer Renderer
	deriver  *Deriver
	logger   *slog.Logger
	now      func() time.Time

	loaded      bool
	id          string
	fingerprint string
	original    domain.Document
	working     domain.Document
	revealed    bool
	recent      []domain.ExamRecord
}

// NewSession creates a session with no exam loaded.
func NewSession(content ContentStore, renderer Renderer, deriver *Deriver, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		content:  content,
		renderer: renderer,
		deriver:  deriver,
		logger:   logger,
		now:      time.Now,
	}
}

// NewRecord builds the history record for a document: a pristine copy of the
// content, with no user answers.
func NewRecord(doc domain.Document, id string, opened time.Time) domain.ExamRecord {
	pristine := doc.Pristine()
	return domain.ExamRecord{
		ID:         id,
		Title:      doc.Title,
		Content:    pristine,
		Tags:       pristine.Tags,
		LastOpened: opened,
	}
}

// Load makes doc the open exam under the given id. The document is validated
// and its explanations rendered before anything is persisted; on success the
// exam's history record is upserted and the recency list refreshed.
func (s *Session) Load(ctx context.Context, doc domain.Document, id string) error {
	if id == "" {
		return fmt.Errorf("%w: exam id is required", domain.ErrValidation)
	}
	if err := Validate(doc); err != nil {
		return err
	}

	fingerprint, err := knol.FingerprintDocument(doc)
	if err != nil {
		return err
	}

	working := doc.Clone()
	for i := range working.Questions {
		q := &working.Questions[i]
		if q.Answer.Explanation == "" {
			continue
		}
		html, err := s.renderer.Render(q.Answer.Explanation)
		if err != nil {
			return fmt.Errorf("%w: rendering explanation of question %d: %v", domain.ErrCollaborator, i, err)
		}
		q.Answer.Explanation = html
	}

	if err := s.content.PutExam(ctx, NewRecord(doc, id, s.now())); err != nil {
		return err
	}

	s.loaded = true
	s.id = id
	s.fingerprint = fingerprint
	s.original = doc.Pristine()
	s.working = working
	s.revealed = false
	s.logger.Info("Exam loaded", "exam_id", id, "title", doc.Title, "questions", len(doc.Questions))

	return s.RefreshRecent(ctx)
}

// Resume reopens an exam from history.
func (s *Session) Resume(ctx context.Context, id string) error {
	rec, err := s.content.GetExam(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: exam %s", domain.ErrNotFound, id)
	}
	return s.Load(ctx, rec.Content, rec.ID)
}

// Delete removes an exam from history. The open exam, if any, stays open.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.content.DeleteExam(ctx, id); err != nil {
		return err
	}
	return s.RefreshRecent(ctx)
}

// RefreshRecent reloads the recency list from the content store.
func (s *Session) RefreshRecent(ctx context.Context) error {
	recent, err := s.content.ExamsByRecency(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh exam history: %w", err)
	}
	s.recent = recent
	return nil
}

// Recent returns the exam history, most recently opened first.
func (s *Session) Recent() []domain.ExamRecord {
	return s.recent
}

// Loaded reports whether an exam is open.
func (s *Session) Loaded() bool {
	return s.loaded
}

// ID returns the id of the open exam.
func (s *Session) ID() string {
	return s.id
}

// Fingerprint returns the content fingerprint of the open exam.
func (s *Session) Fingerprint() string {
	return s.fingerprint
}

// Document returns a copy of the working document.
func (s *Session) Document() domain.Document {
	return s.working.Clone()
}

// Revealed reports whether answers are shown.
func (s *Session) Revealed() bool {
	return s.revealed
}

// SetRevealed shows or hides answers.
func (s *Session) SetRevealed(v bool) {
	s.revealed = v
}

// SetAnswer records the user's answer to the question at index.
func (s *Session) SetAnswer(index int, answer string) error {
	if !s.loaded {
		return domain.ErrNoExamLoaded
	}
	if index < 0 || index >= len(s.working.Questions) {
		return fmt.Errorf("%w: question %d", domain.ErrNotFound, index)
	}
	s.working.Questions[index].UserAnswer = answer
	return nil
}

// Export returns the working document, including user answers, as indented JSON.
func (s *Session) Export() ([]byte, error) {
	if !s.loaded {
		return nil, domain.ErrNoExamLoaded
	}
	return json.MarshalIndent(s.working, "", "  ")
}

// Submit grades every question, records the result and derives cards for the
// missed questions. The result is written before derivation starts; a
// derivation failure is returned alongside the outcome and matches
// ErrDerivation. Answers are revealed once grading is recorded.
func (s *Session) Submit(ctx context.Context) (*Outcome, error) {
	if !s.loaded {
		return nil, domain.ErrNoExamLoaded
	}

	var score int
	var missed []Missed
	for i, q := range s.working.Questions {
		if CheckAnswer(q) {
			score++
			continue
		}
		missed = append(missed, Missed{Position: i, Question: s.original.Questions[i]})
	}

	result := domain.Result{
		ExamID:    s.id,
		ExamTitle: s.working.Title,
		Tags:      append([]string(nil), s.working.Tags...),
		Score:     score,
		Total:     len(s.working.Questions),
		Timestamp: s.now(),
	}
	id, err := s.content.AddResult(ctx, result)
	if err != nil {
		return nil, err
	}
	result.ID = id
	s.logger.Info("Exam submitted", "exam_id", s.id, "score", score, "total", result.Total)

	outcome := &Outcome{Result: result}
	var derr error
	if len(missed) > 0 {
		src := Source{ExamID: s.id, Fingerprint: s.fingerprint, Tags: s.working.Tags}
		outcome.CreatedCards, derr = s.deriver.Derive(ctx, src, missed)
	}
	s.revealed = true

	if derr != nil {
		if !errors.Is(derr, ErrDerivation) {
			derr = fmt.Errorf("%w: %w", ErrDerivation, derr)
		}
		return outcome, derr
	}
	return outcome, nil
}
