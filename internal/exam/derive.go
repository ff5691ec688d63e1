package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/fsrs"
)

// ErrDerivation is matched by every error returned from Deriver.Derive.
var ErrDerivation = errors.New("card derivation failed")

// CardStore is the part of the card store that derivation needs.
type CardStore interface {
	Get(ctx context.Context, id string) (*domain.Card, error)
	Put(ctx context.Context, c domain.Card) error
}

// Source identifies the exam that missed questions come from.
type Source struct {
	ExamID      string
	Fingerprint string
	Tags        []string
}

// Missed is a question answered incorrectly, with its position in the
// exam's full question list.
type Missed struct {
	Position int
	Question domain.Question
}

// QuestionID returns the explicit id of the question, or its position when it
// has none.
func (m Missed) QuestionID() string {
	if m.Question.ID != "" {
		return string(m.Question.ID)
	}
	return strconv.Itoa(m.Position)
}

// QuestionError is the failure to derive the card for one question.
type QuestionError struct {
	QuestionID string
	Err        error
}

func (e *QuestionError) Error() string {
	return fmt.Sprintf("question %s: %v", e.QuestionID, e.Err)
}

func (e *QuestionError) Unwrap() error {
	return e.Err
}

// DerivationError aggregates the questions for which no card could be created.
type DerivationError struct {
	Attempted int
	Failures  []*QuestionError
}

func (e *DerivationError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%v: %d of %d questions: %s", ErrDerivation, len(e.Failures), e.Attempted, strings.Join(msgs, "; "))
}

func (e *DerivationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrDerivation)
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Deriver creates flashcards for missed questions. Creation is keyed on the
// card id, so a question never yields more than one card.
type Deriver struct {
	cards     CardStore
	scheduler fsrs.Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewDeriver creates a Deriver.
func NewDeriver(cards CardStore, scheduler fsrs.Scheduler, logger *slog.Logger) *Deriver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Deriver{
		cards:     cards,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// Derive creates a card for each missed question that does not have one yet
// and returns the ids of the created cards. Questions are processed one at a
// time; a failure on one question does not stop the others and is reported in
// a *DerivationError.
func (d *Deriver) Derive(ctx context.Context, src Source, missed []Missed) ([]string, error) {
	var created []string
	var failures []*QuestionError

	for _, m := range missed {
		qid := m.QuestionID()
		id, err := d.deriveOne(ctx, src, qid, m.Question)
		if err != nil {
			d.logger.Warn("Failed to derive card", "exam_id", src.ExamID, "question_id", qid, "error", err)
			failures = append(failures, &QuestionError{QuestionID: qid, Err: err})
			continue
		}
		if id != "" {
			created = append(created, id)
		}
	}

	if len(failures) > 0 {
		return created, &DerivationError{Attempted: len(missed), Failures: failures}
	}
	return created, nil
}

// deriveOne returns the id of the created card, or "" if the card already exists.
func (d *Deriver) deriveOne(ctx context.Context, src Source, qid string, q domain.Question) (string, error) {
	id := domain.CardID(src.Fingerprint, qid)

	existing, err := d.cards.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", nil
	}

	state, err := d.scheduler.InitialState(d.now())
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCollaborator, err)
	}

	q = q.Clone()
	card := domain.Card{
		ID:             id,
		Front:          q.Prompt,
		Back:           q.Answer,
		Options:        q.Options,
		Tags:           append([]string(nil), src.Tags...),
		QuestionID:     qid,
		ExamID:         src.ExamID,
		SourceExamHash: src.Fingerprint,
		Scheduling:     state,
	}
	if err := d.cards.Put(ctx, card); err != nil {
		return "", err
	}

	d.logger.Info("New card created", "card_id", id, "exam_id", src.ExamID)
	return id, nil
}
