package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/exam"
	"github.com/conorfennell/studydeck/internal/generate"
	"github.com/conorfennell/studydeck/internal/render"
	"github.com/conorfennell/studydeck/internal/review"
	"github.com/conorfennell/studydeck/internal/storage"
	libsync "github.com/conorfennell/studydeck/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arithmeticJSON = `{"exam_title": "T", "tags": ["math"], "questions": [{"id": "q1", "prompt": "2+2?", "options": ["3", "4"], "answer": {"solution": "b) 4", "explanation": "*four*"}}]}`

type stubScheduler struct{}

func (stubScheduler) InitialState(now time.Time) (domain.SchedulerState, error) {
	return domain.SchedulerState{Due: now.Add(-time.Second), State: domain.New}, nil
}

func (stubScheduler) NextState(card domain.Card, rating domain.Rating, now time.Time) (domain.SchedulerState, error) {
	return domain.SchedulerState{Due: now.Add(24 * time.Hour), State: domain.Review, Reps: card.Scheduling.Reps + 1}, nil
}

type stubGenerator struct {
	got generate.Request
}

func (g *stubGenerator) Generate(ctx context.Context, req generate.Request) (domain.Document, error) {
	g.got = req
	return exam.Decode(strings.NewReader(arithmeticJSON))
}

type testServer struct {
	*Server
	db  *storage.DB
	gen *stubGenerator
	lib string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	deriver := exam.NewDeriver(db.Cards(), stubScheduler{}, nil)
	session := exam.NewSession(db.Content(), render.NewMarkdown(), deriver, nil)
	queue := review.NewQueue(db.Cards(), stubScheduler{}, nil)
	gen := &stubGenerator{}
	lib := t.TempDir()

	s := NewServer(Deps{
		Session:   session,
		Queue:     queue,
		Content:   db.Content(),
		Cards:     db.Cards(),
		Generator: gen,
		Syncer:    libsync.New(db.Content(), t.TempDir(), nil),
		Library:   libsync.Source{Dir: lib},
	})
	return &testServer{Server: s, db: db, gen: gen, lib: lib}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestExamFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/exams", arithmeticJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[sessionView](t, rec)
	assert.True(t, view.Loaded)
	require.NotNil(t, view.Document)
	assert.Equal(t, "<p><em>four</em></p>\n", view.Document.Questions[0].Answer.Explanation)

	rec = ts.do(t, http.MethodPut, "/api/session/answers/0", `{"answer": "a"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/session/submit", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decode[submitResponse](t, rec)
	assert.Equal(t, 0, submitted.Result.Score)
	assert.Equal(t, 1, submitted.Result.Total)
	require.Len(t, submitted.CreatedCards, 1)
	assert.Equal(t, view.Fingerprint+"_q_q1", submitted.CreatedCards[0])
	assert.Empty(t, submitted.DerivationError)

	rec = ts.do(t, http.MethodGet, "/api/session", "")
	assert.True(t, decode[sessionView](t, rec).Revealed)

	rec = ts.do(t, http.MethodGet, "/api/session/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "exam_"+view.ID+".json")
	assert.Contains(t, rec.Body.String(), `"user_answer": "a"`)

	rec = ts.do(t, http.MethodGet, "/api/exams", "")
	exams := decode[[]domain.ExamRecord](t, rec)
	require.Len(t, exams, 1)
	assert.Equal(t, "*four*", exams[0].Content.Questions[0].Answer.Explanation)

	rec = ts.do(t, http.MethodGet, "/api/results?tag=math", "")
	results := decode[resultsResponse](t, rec)
	require.Len(t, results.Results, 1)
	assert.Equal(t, []string{"math"}, results.Tags)
	require.Len(t, results.Series, 1)
	assert.Equal(t, float64(0), results.Series[0].Percent)

	rec = ts.do(t, http.MethodDelete, "/api/results/"+jsonInt(results.Results[0].ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/exams/"+view.ID+"/open", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[sessionView](t, rec).Revealed)

	rec = ts.do(t, http.MethodDelete, "/api/exams/"+view.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/exams/"+view.ID+"/open", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadInvalidExam(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/exams", `{"exam_title": "T"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "questions is required")

	rec = ts.do(t, http.MethodPost, "/api/session/submit", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewAndCardManager(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/exams", arithmeticJSON).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/session/submit", "").Code)

	rec := ts.do(t, http.MethodPost, "/api/review?tag=math", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[reviewView](t, rec)
	require.NotNil(t, view.Card)
	assert.Equal(t, "2+2?", view.Card.Front)
	assert.Equal(t, review.Stats{DueCount: 1, LearningCount: 1, Total: 1}, view.Stats)
	assert.Equal(t, []string{"math"}, view.Tags)

	rec = ts.do(t, http.MethodPost, "/api/review/reveal", "")
	assert.True(t, decode[reviewView](t, rec).Revealed)

	rec = ts.do(t, http.MethodPost, "/api/review/rate", `{"rating": "meh"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/review/rate", `{"rating": "good"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decode[reviewView](t, rec)
	assert.Nil(t, view.Card)
	assert.Equal(t, review.Stats{ReviewCount: 1, Total: 1}, view.Stats)

	rec = ts.do(t, http.MethodPost, "/api/review/rate", `{"rating": "good"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/cards?tag=math", "")
	cards := decode[[]domain.Card](t, rec)
	require.Len(t, cards, 1)
	assert.Equal(t, "[\"math\"]\n", ts.do(t, http.MethodGet, "/api/cards/tags", "").Body.String())

	rec = ts.do(t, http.MethodDelete, "/api/cards", `{"ids": ["`+cards[0].ID+`"]}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "[]\n", ts.do(t, http.MethodGet, "/api/cards", "").Body.String())

	rec = ts.do(t, http.MethodDelete, "/api/cards?all=true", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGenerate(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("prompt", "arithmetic"))
	fw, err := mw.CreateFormFile("attachments", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("two plus two"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/generate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[sessionView](t, rec)
	assert.True(t, strings.HasPrefix(view.ID, "gen_"))
	assert.Equal(t, "arithmetic", ts.gen.got.Prompt)
	require.Len(t, ts.gen.got.Attachments, 1)
	assert.Equal(t, "notes.txt", ts.gen.got.Attachments[0].Name)
	assert.Equal(t, []byte("two plus two"), ts.gen.got.Attachments[0].Data)
}

func TestSync(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.lib, "t.json"), []byte(arithmeticJSON), 0o644))

	rec := ts.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[map[string]any](t, rec)
	assert.Len(t, report["imported"], 1)

	exams := decode[[]domain.ExamRecord](t, ts.do(t, http.MethodGet, "/api/exams", ""))
	require.Len(t, exams, 1)
	assert.True(t, strings.HasPrefix(exams[0].ID, "lib_"))
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
