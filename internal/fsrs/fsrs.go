package fsrs

import (
	"fmt"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	gofsrs "github.com/open-spaced-repetition/go-fsrs/v3"
)

// Scheduler computes the spaced-repetition state of cards.
// Higher ratings never produce an earlier due instant than lower ratings for
// the same prior state, and no rating produces a due instant before now.
type Scheduler interface {
	// InitialState returns the state of a brand-new card as of now.
	InitialState(now time.Time) (domain.SchedulerState, error)
	// NextState returns the card's state after a review with the given rating.
	NextState(card domain.Card, rating domain.Rating, now time.Time) (domain.SchedulerState, error)
}

// Params holds the parameters for the FSRS algorithm.
type Params struct {
	DesiredRetention float64 // desired retention rate (e.g., 0.9 for 90%)
	MaximumInterval  float64 // longest allowed interval in days
	EnableFuzz       bool    // spread review intervals randomly
	EnableShortTerm  bool    // use minute-scale learning steps
}

// DefaultParams provides a set of sensible default parameters to start with.
func DefaultParams() *Params {
	return &Params{
		DesiredRetention: 0.9,
		MaximumInterval:  36500,
		EnableFuzz:       false,
		EnableShortTerm:  true,
	}
}

// FSRS is a Scheduler backed by the FSRS algorithm.
type FSRS struct {
	fsrs *gofsrs.FSRS
}

var _ Scheduler = (*FSRS)(nil)

// New creates an FSRS scheduler. A nil params uses DefaultParams.
func New(p *Params) *FSRS {
	if p == nil {
		p = DefaultParams()
	}
	param := gofsrs.DefaultParam()
	if p.DesiredRetention > 0 {
		param.RequestRetention = p.DesiredRetention
	}
	if p.MaximumInterval > 0 {
		param.MaximumInterval = p.MaximumInterval
	}
	param.EnableFuzz = p.EnableFuzz
	param.EnableShortTerm = p.EnableShortTerm
	return &FSRS{fsrs: gofsrs.NewFSRS(param)}
}

// InitialState returns a New card due immediately.
func (f *FSRS) InitialState(now time.Time) (domain.SchedulerState, error) {
	c := gofsrs.NewCard()
	c.Due = now
	return fromFSRS(c), nil
}

// NextState calculates the next state of the card based on a review.
func (f *FSRS) NextState(card domain.Card, rating domain.Rating, now time.Time) (domain.SchedulerState, error) {
	if !rating.IsValid() {
		return domain.SchedulerState{}, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}

	infos := f.fsrs.Repeat(toFSRS(card.Scheduling), now)
	info, ok := infos[gofsrs.Rating(rating)]
	if !ok {
		return domain.SchedulerState{}, fmt.Errorf("%w: no schedule for rating %s", domain.ErrCollaborator, rating)
	}

	next := fromFSRS(info.Card)
	if next.Due.Before(now) {
		return domain.SchedulerState{}, fmt.Errorf("%w: scheduler returned due date %s before %s",
			domain.ErrCollaborator, next.Due.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return next, nil
}

func toFSRS(s domain.SchedulerState) gofsrs.Card {
	return gofsrs.Card{
		Due:           s.Due,
		Stability:     s.Stability,
		Difficulty:    s.Difficulty,
		ElapsedDays:   s.ElapsedDays,
		ScheduledDays: s.ScheduledDays,
		Reps:          s.Reps,
		Lapses:        s.Lapses,
		State:         gofsrs.State(s.State),
		LastReview:    s.LastReview,
	}
}

func fromFSRS(c gofsrs.Card) domain.SchedulerState {
	return domain.SchedulerState{
		Due:           c.Due,
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   c.ElapsedDays,
		ScheduledDays: c.ScheduledDays,
		Reps:          c.Reps,
		Lapses:        c.Lapses,
		State:         domain.ReviewState(c.State),
		LastReview:    c.LastReview,
	}
}
