package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/jmoiron/sqlx"
)

// ContentStore persists exam records and submission results.
type ContentStore struct {
	conn *sqlx.DB
}

type examRow struct {
	ID         string `db:"id"`
	Title      string `db:"title"`
	Content    string `db:"content"`
	Tags       string `db:"tags"`
	LastOpened int64  `db:"last_opened"`
}

func (r examRow) record() (domain.ExamRecord, error) {
	rec := domain.ExamRecord{
		ID:         r.ID,
		Title:      r.Title,
		LastOpened: time.UnixMilli(r.LastOpened),
	}
	if err := json.Unmarshal([]byte(r.Content), &rec.Content); err != nil {
		return rec, fmt.Errorf("failed to decode content of exam %s: %w", r.ID, err)
	}
	tags, err := decodeStrings(r.Tags)
	if err != nil {
		return rec, fmt.Errorf("failed to decode tags of exam %s: %w", r.ID, err)
	}
	rec.Tags = tags
	return rec, nil
}

// PutExam inserts or replaces the exam record with the same id.
func (s *ContentStore) PutExam(ctx context.Context, rec domain.ExamRecord) error {
	content, err := encodeJSON(rec.Content)
	if err != nil {
		return domain.NewStoreError("exam", "encode", err)
	}
	tags, err := encodeStrings(rec.Tags)
	if err != nil {
		return domain.NewStoreError("exam", "encode", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO exams (id, title, content, tags, last_opened)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			tags = excluded.tags,
			last_opened = excluded.last_opened
	`, rec.ID, rec.Title, content, tags, rec.LastOpened.UnixMilli())
	return domain.NewStoreError("exam", "put", err)
}

// GetExam retrieves an exam record by id. It returns nil, nil when the record
// does not exist.
func (s *ContentStore) GetExam(ctx context.Context, id string) (*domain.ExamRecord, error) {
	var row examRow
	err := s.conn.GetContext(ctx, &row, `
		SELECT id, title, content, tags, last_opened
		FROM exams WHERE id = ?
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Exam not found
		}
		return nil, domain.NewStoreError("exam", "get", err)
	}
	rec, err := row.record()
	if err != nil {
		return nil, domain.NewStoreError("exam", "get", err)
	}
	return &rec, nil
}

// ExamsByRecency returns every exam record, most recently opened first.
func (s *ContentStore) ExamsByRecency(ctx context.Context) ([]domain.ExamRecord, error) {
	var rows []examRow
	err := s.conn.SelectContext(ctx, &rows, `
		SELECT id, title, content, tags, last_opened
		FROM exams ORDER BY last_opened DESC, rowid DESC
	`)
	if err != nil {
		return nil, domain.NewStoreError("exam", "list", err)
	}

	records := make([]domain.ExamRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, domain.NewStoreError("exam", "list", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteExam removes an exam record. Deleting an absent id is a no-op.
func (s *ContentStore) DeleteExam(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM exams WHERE id = ?`, id)
	return domain.NewStoreError("exam", "delete", err)
}

type resultRow struct {
	ID        int64  `db:"id"`
	ExamID    string `db:"exam_id"`
	ExamTitle string `db:"exam_title"`
	Tags      string `db:"tags"`
	Score     int    `db:"score"`
	Total     int    `db:"total"`
	Timestamp int64  `db:"timestamp"`
}

// AddResult appends a result and returns its assigned id.
func (s *ContentStore) AddResult(ctx context.Context, r domain.Result) (int64, error) {
	tags, err := encodeStrings(r.Tags)
	if err != nil {
		return 0, domain.NewStoreError("result", "encode", err)
	}
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO results (exam_id, exam_title, tags, score, total, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ExamID, r.ExamTitle, tags, r.Score, r.Total, r.Timestamp.UnixMilli())
	if err != nil {
		return 0, domain.NewStoreError("result", "add", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, domain.NewStoreError("result", "add", err)
	}
	return id, nil
}

// ResultsByTime returns every result, newest first.
func (s *ContentStore) ResultsByTime(ctx context.Context) ([]domain.Result, error) {
	var rows []resultRow
	err := s.conn.SelectContext(ctx, &rows, `
		SELECT id, exam_id, exam_title, tags, score, total, timestamp
		FROM results ORDER BY timestamp DESC, id DESC
	`)
	if err != nil {
		return nil, domain.NewStoreError("result", "list", err)
	}

	results := make([]domain.Result, 0, len(rows))
	for _, row := range rows {
		tags, err := decodeStrings(row.Tags)
		if err != nil {
			return nil, domain.NewStoreError("result", "list", err)
		}
		results = append(results, domain.Result{
			ID:        row.ID,
			ExamID:    row.ExamID,
			ExamTitle: row.ExamTitle,
			Tags:      tags,
			Score:     row.Score,
			Total:     row.Total,
			Timestamp: time.UnixMilli(row.Timestamp),
		})
	}
	return results, nil
}

// DeleteResult removes a result. Deleting an absent id is a no-op.
func (s *ContentStore) DeleteResult(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id)
	return domain.NewStoreError("result", "delete", err)
}
