package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolutionJSON(t *testing.T) {
	t.Run("single string", func(t *testing.T) {
		var s Solution
		require.NoError(t, json.Unmarshal([]byte(`"Paris"`), &s))
		assert.False(t, s.Multiple)
		assert.Equal(t, []string{"Paris"}, s.Values)

		out, err := json.Marshal(s)
		require.NoError(t, err)
		assert.JSONEq(t, `"Paris"`, string(out))
	})

	t.Run("list of strings", func(t *testing.T) {
		var s Solution
		require.NoError(t, json.Unmarshal([]byte(`["a", "b"]`), &s))
		assert.True(t, s.Multiple)
		assert.Equal(t, []string{"a", "b"}, s.Values)

		out, err := json.Marshal(s)
		require.NoError(t, err)
		assert.JSONEq(t, `["a","b"]`, string(out))
	})

	t.Run("rejects other shapes", func(t *testing.T) {
		var s Solution
		assert.Error(t, json.Unmarshal([]byte(`42`), &s))
		assert.Error(t, json.Unmarshal([]byte(`[1, 2]`), &s))
		assert.Error(t, json.Unmarshal([]byte(`{"x": 1}`), &s))
	})
}

func TestQuestionIDAcceptsNumbers(t *testing.T) {
	var q Question
	require.NoError(t, json.Unmarshal([]byte(`{"id": 7, "prompt": "p", "answer": {"solution": "x"}}`), &q))
	assert.Equal(t, QuestionID("7"), q.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "q1", "prompt": "p", "answer": {"solution": "x"}}`), &q))
	assert.Equal(t, QuestionID("q1"), q.ID)

	assert.Error(t, json.Unmarshal([]byte(`{"id": true}`), &q))
}

func TestDocumentCloneDoesNotAlias(t *testing.T) {
	doc := Document{
		Title: "T",
		Tags:  []string{"math"},
		Questions: []Question{{
			ID:      "q1",
			Prompt:  "2+2?",
			Options: []string{"3", "4"},
			Answer:  AnswerBlock{Solution: SingleSolution("b) 4")},
		}},
	}

	c := doc.Clone()
	c.Tags[0] = "changed"
	c.Questions[0].Options[0] = "changed"
	c.Questions[0].Answer.Solution.Values[0] = "changed"
	c.Questions[0].UserAnswer = "a"

	assert.Equal(t, "math", doc.Tags[0])
	assert.Equal(t, "3", doc.Questions[0].Options[0])
	assert.Equal(t, "b) 4", doc.Questions[0].Answer.Solution.Values[0])
	assert.Empty(t, doc.Questions[0].UserAnswer)
}

func TestPristineClearsUserAnswers(t *testing.T) {
	doc := Document{Questions: []Question{{Prompt: "p", UserAnswer: "x"}}}
	p := doc.Pristine()
	assert.Empty(t, p.Questions[0].UserAnswer)
	assert.Equal(t, "x", doc.Questions[0].UserAnswer)
}

func TestParseRating(t *testing.T) {
	r, err := ParseRating("Good")
	require.NoError(t, err)
	assert.Equal(t, Good, r)

	r, err = ParseRating("1")
	require.NoError(t, err)
	assert.Equal(t, Again, r)

	_, err = ParseRating("perfect")
	assert.ErrorIs(t, err, ErrInvalidRating)
}

func TestStoreErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStoreError("card", "put", cause)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, NewStoreError("card", "put", nil))
}
