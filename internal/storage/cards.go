package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/jmoiron/sqlx"
)

// CardStore persists flashcards with secondary access by due date and tag.
type CardStore struct {
	conn *sqlx.DB
}

const cardColumns = `c.id, c.front, c.back, c.options, c.tags, c.question_id, c.exam_id,
	c.source_exam_hash, c.due, c.stability, c.difficulty, c.elapsed_days,
	c.scheduled_days, c.reps, c.lapses, c.state, c.last_review`

type cardRow struct {
	ID             string  `db:"id"`
	Front          string  `db:"front"`
	Back           string  `db:"back"`
	Options        string  `db:"options"`
	Tags           string  `db:"tags"`
	QuestionID     string  `db:"question_id"`
	ExamID         string  `db:"exam_id"`
	SourceExamHash string  `db:"source_exam_hash"`
	Due            any     `db:"due"`
	Stability      float64 `db:"stability"`
	Difficulty     float64 `db:"difficulty"`
	ElapsedDays    int64   `db:"elapsed_days"`
	ScheduledDays  int64   `db:"scheduled_days"`
	Reps           int64   `db:"reps"`
	Lapses         int64   `db:"lapses"`
	State          int     `db:"state"`
	LastReview     any     `db:"last_review"`
}

func (r cardRow) card() (domain.Card, error) {
	c := domain.Card{
		ID:             r.ID,
		Front:          r.Front,
		QuestionID:     r.QuestionID,
		ExamID:         r.ExamID,
		SourceExamHash: r.SourceExamHash,
		Scheduling: domain.SchedulerState{
			Stability:     r.Stability,
			Difficulty:    r.Difficulty,
			ElapsedDays:   uint64(r.ElapsedDays),
			ScheduledDays: uint64(r.ScheduledDays),
			Reps:          uint64(r.Reps),
			Lapses:        uint64(r.Lapses),
			State:         domain.ReviewState(r.State),
		},
	}

	if err := json.Unmarshal([]byte(r.Back), &c.Back); err != nil {
		return c, fmt.Errorf("failed to decode back of card %s: %w", r.ID, err)
	}
	var err error
	if c.Options, err = decodeStrings(r.Options); err != nil {
		return c, fmt.Errorf("failed to decode options of card %s: %w", r.ID, err)
	}
	if c.Tags, err = decodeStrings(r.Tags); err != nil {
		return c, fmt.Errorf("failed to decode tags of card %s: %w", r.ID, err)
	}
	if c.Scheduling.Due, err = decodeInstant(r.Due); err != nil {
		return c, fmt.Errorf("failed to decode due date of card %s: %w", r.ID, err)
	}
	if c.Scheduling.LastReview, err = decodeInstant(r.LastReview); err != nil {
		return c, fmt.Errorf("failed to decode last review of card %s: %w", r.ID, err)
	}
	return c, nil
}

// Put inserts a card or overwrites the card with the same id, including its
// tag index entries, in a single transaction.
func (s *CardStore) Put(ctx context.Context, c domain.Card) error {
	back, err := encodeJSON(c.Back)
	if err != nil {
		return domain.NewStoreError("card", "encode", err)
	}
	options, err := encodeStrings(c.Options)
	if err != nil {
		return domain.NewStoreError("card", "encode", err)
	}
	tags, err := encodeStrings(c.Tags)
	if err != nil {
		return domain.NewStoreError("card", "encode", err)
	}

	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return domain.NewStoreError("card", "put", err)
	}
	defer tx.Rollback()

	st := c.Scheduling
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cards (id, front, back, options, tags, question_id, exam_id, source_exam_hash,
			due, stability, difficulty, elapsed_days, scheduled_days, reps, lapses, state, last_review)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			front = excluded.front,
			back = excluded.back,
			options = excluded.options,
			tags = excluded.tags,
			question_id = excluded.question_id,
			exam_id = excluded.exam_id,
			source_exam_hash = excluded.source_exam_hash,
			due = excluded.due,
			stability = excluded.stability,
			difficulty = excluded.difficulty,
			elapsed_days = excluded.elapsed_days,
			scheduled_days = excluded.scheduled_days,
			reps = excluded.reps,
			lapses = excluded.lapses,
			state = excluded.state,
			last_review = excluded.last_review
	`,
		c.ID, c.Front, back, options, tags, c.QuestionID, c.ExamID, c.SourceExamHash,
		encodeInstant(st.Due), st.Stability, st.Difficulty,
		int64(st.ElapsedDays), int64(st.ScheduledDays), int64(st.Reps), int64(st.Lapses),
		int(st.State), encodeInstant(st.LastReview),
	)
	if err != nil {
		return domain.NewStoreError("card", "put", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM card_tags WHERE card_id = ?`, c.ID); err != nil {
		return domain.NewStoreError("card", "put", err)
	}
	seen := make(map[string]bool, len(c.Tags))
	for _, tag := range c.Tags {
		if seen[tag] {
			continue
		}
		seen[tag] = true
		if _, err := tx.ExecContext(ctx, `INSERT INTO card_tags (card_id, tag) VALUES (?, ?)`, c.ID, tag); err != nil {
			return domain.NewStoreError("card", "put", err)
		}
	}

	return domain.NewStoreError("card", "put", tx.Commit())
}

// Get retrieves a card by id. It returns nil, nil when the card does not exist.
func (s *CardStore) Get(ctx context.Context, id string) (*domain.Card, error) {
	var row cardRow
	err := s.conn.GetContext(ctx, &row, `SELECT `+cardColumns+` FROM cards c WHERE c.id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, domain.NewStoreError("card", "get", err)
	}
	c, err := row.card()
	if err != nil {
		return nil, domain.NewStoreError("card", "get", err)
	}
	return &c, nil
}

// AllByDue returns every card ordered by ascending due instant. Cards with
// equal due instants keep their insertion order.
func (s *CardStore) AllByDue(ctx context.Context) ([]domain.Card, error) {
	return s.selectByDue(ctx, "list", `SELECT `+cardColumns+` FROM cards c ORDER BY c.rowid`)
}

// AllByTag returns the cards whose tag set contains tag, ordered by due instant.
func (s *CardStore) AllByTag(ctx context.Context, tag string) ([]domain.Card, error) {
	return s.selectByDue(ctx, "list by tag", `
		SELECT `+cardColumns+`
		FROM cards c JOIN card_tags t ON t.card_id = c.id
		WHERE t.tag = ?
		ORDER BY c.rowid
	`, tag)
}

// selectByDue sorts in Go rather than SQL: the due column may mix numeric and
// text encodings, which only compare correctly once normalized.
func (s *CardStore) selectByDue(ctx context.Context, op, query string, args ...any) ([]domain.Card, error) {
	var rows []cardRow
	if err := s.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.NewStoreError("card", op, err)
	}

	cards := make([]domain.Card, 0, len(rows))
	for _, row := range rows {
		c, err := row.card()
		if err != nil {
			return nil, domain.NewStoreError("card", op, err)
		}
		cards = append(cards, c)
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Scheduling.Due.Before(cards[j].Scheduling.Due)
	})
	return cards, nil
}

// Delete removes a card and its tag index entries. Deleting an absent id is a no-op.
func (s *CardStore) Delete(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	return domain.NewStoreError("card", "delete", err)
}

// DeleteMany removes the given cards in a single transaction.
func (s *CardStore) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM cards WHERE id IN (?)`, ids)
	if err != nil {
		return domain.NewStoreError("card", "delete many", err)
	}
	_, err = s.conn.ExecContext(ctx, s.conn.Rebind(query), args...)
	return domain.NewStoreError("card", "delete many", err)
}

// Clear removes every card.
func (s *CardStore) Clear(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM cards`)
	return domain.NewStoreError("card", "clear", err)
}

// Review stores the scheduling state of a rated card together with its
// review log entry in a single transaction. Only the scheduling columns are
// written. It returns false, and writes nothing, when the card no longer exists.
func (s *CardStore) Review(ctx context.Context, c domain.Card, log domain.ReviewLog) (bool, error) {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return false, domain.NewStoreError("card", "review", err)
	}
	defer tx.Rollback()

	st := c.Scheduling
	res, err := tx.ExecContext(ctx, `
		UPDATE cards SET
			due = ?, stability = ?, difficulty = ?, elapsed_days = ?,
			scheduled_days = ?, reps = ?, lapses = ?, state = ?, last_review = ?
		WHERE id = ?
	`,
		encodeInstant(st.Due), st.Stability, st.Difficulty, int64(st.ElapsedDays),
		int64(st.ScheduledDays), int64(st.Reps), int64(st.Lapses), int(st.State),
		encodeInstant(st.LastReview), c.ID,
	)
	if err != nil {
		return false, domain.NewStoreError("card", "review", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.NewStoreError("card", "review", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, rating, state, reviewed_at)
		VALUES (?, ?, ?, ?)
	`, c.ID, int(log.Rating), int(log.State), log.Timestamp.UnixMilli())
	if err != nil {
		return false, domain.NewStoreError("review log", "add", err)
	}

	if err := tx.Commit(); err != nil {
		return false, domain.NewStoreError("card", "review", err)
	}
	return true, nil
}

// ReviewLogs returns a card's review history, oldest first.
func (s *CardStore) ReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	var rows []struct {
		CardID     string `db:"card_id"`
		Rating     int    `db:"rating"`
		State      int    `db:"state"`
		ReviewedAt int64  `db:"reviewed_at"`
	}
	err := s.conn.SelectContext(ctx, &rows, `
		SELECT card_id, rating, state, reviewed_at
		FROM review_logs WHERE card_id = ? ORDER BY id
	`, cardID)
	if err != nil {
		return nil, domain.NewStoreError("review log", "list", err)
	}

	logs := make([]domain.ReviewLog, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, domain.ReviewLog{
			CardID:    r.CardID,
			Timestamp: time.UnixMilli(r.ReviewedAt),
			Rating:    domain.Rating(r.Rating),
			State:     domain.ReviewState(r.State),
		})
	}
	return logs, nil
}
