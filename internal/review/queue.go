// Package review runs a spaced-repetition review over the cards that are due.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/fsrs"
)

// CardStore is the part of the card store that the queue needs.
type CardStore interface {
	AllByDue(ctx context.Context) ([]domain.Card, error)
	Review(ctx context.Context, c domain.Card, log domain.ReviewLog) (bool, error)
}

// Stats summarizes the whole card collection.
type Stats struct {
	DueCount      int `json:"due_count"`
	LearningCount int `json:"learning_count"`
	ReviewCount   int `json:"review_count"`
	Total         int `json:"total"`
}

// Queue holds the due cards in review order. The head of the queue is the
// current card.
type Queue struct {
	store     CardStore
	scheduler fsrs.Scheduler
	logger    *slog.Logger
	now       func() time.Time

	filter   string
	cards    []domain.Card
	stats    Stats
	tags     []string
	revealed bool
}

// NewQueue creates an empty queue. Call Build to fill it.
func NewQueue(store CardStore, scheduler fsrs.Scheduler, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Queue{
		store:     store,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// Build reloads the queue from the store. Stats and tags cover every card;
// the queue itself holds the cards due now, restricted to tag when it is not
// empty, in ascending due order.
func (q *Queue) Build(ctx context.Context, tag string) error {
	all, err := q.store.AllByDue(ctx)
	if err != nil {
		return fmt.Errorf("failed to build review queue: %w", err)
	}

	now := q.now()
	var stats Stats
	var due []domain.Card
	for _, c := range all {
		stats.Total++
		switch {
		case c.Scheduling.State == domain.Review:
			stats.ReviewCount++
		case c.Scheduling.State.IsLearning():
			stats.LearningCount++
		}
		if !c.IsDue(now) {
			continue
		}
		stats.DueCount++
		if tag != "" && !c.HasTag(tag) {
			continue
		}
		due = append(due, c)
	}

	q.filter = tag
	q.cards = due
	q.stats = stats
	q.tags = CardTags(all)
	q.revealed = false
	q.logger.Info("Review queue built", "due", len(due), "total", stats.Total, "tag", tag)
	return nil
}

// CardTags returns the distinct tags across cards, sorted.
func CardTags(cards []domain.Card) []string {
	set := make(map[string]struct{})
	for _, c := range cards {
		for _, t := range c.Tags {
			set[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Current returns the card under review, or nil when nothing is due.
func (q *Queue) Current() *domain.Card {
	if len(q.cards) == 0 {
		return nil
	}
	c := q.cards[0]
	return &c
}

// Len returns the number of cards left in the queue.
func (q *Queue) Len() int {
	return len(q.cards)
}

// Reveal shows the back of the current card.
func (q *Queue) Reveal() {
	q.revealed = true
}

// Revealed reports whether the back of the current card is shown.
func (q *Queue) Revealed() bool {
	return q.revealed
}

// Stats returns the stats from the last build.
func (q *Queue) Stats() Stats {
	return q.stats
}

// Tags returns the distinct tags across all cards, sorted.
func (q *Queue) Tags() []string {
	return q.tags
}

// Filter returns the tag the queue is restricted to, or "".
func (q *Queue) Filter() string {
	return q.filter
}

// Rate records a review of the current card and advances the queue. When the
// last card is rated the queue is rebuilt with the same filter. A card deleted
// since the queue was built is skipped without being written, and Rate returns
// a nil card. On error the queue is left as it was.
func (q *Queue) Rate(ctx context.Context, rating domain.Rating) (*domain.Card, error) {
	if len(q.cards) == 0 {
		return nil, domain.ErrNoCurrentCard
	}
	if !rating.IsValid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}

	card := q.cards[0]
	now := q.now()
	next, err := q.scheduler.NextState(card, rating, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCollaborator, err)
	}
	card.Scheduling = next

	log := domain.ReviewLog{CardID: card.ID, Timestamp: now, Rating: rating, State: next.State}
	found, err := q.store.Review(ctx, card, log)
	if err != nil {
		return nil, err
	}
	var rated *domain.Card
	if found {
		rated = &card
		q.logger.Info("Card reviewed", "card_id", card.ID, "rating", rating.String(), "state", next.State.String(), "due", next.Due)
	} else {
		q.logger.Warn("Card no longer exists, skipping", "card_id", card.ID)
	}

	q.cards = q.cards[1:]
	q.revealed = false
	if len(q.cards) == 0 {
		if err := q.Build(ctx, q.filter); err != nil {
			return rated, err
		}
	}
	return rated, nil
}
