package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Document is an exam: a title, an optional tag set and an ordered list of questions.
type Document struct {
	Title     string     `json:"exam_title"`
	Tags      []string   `json:"tags,omitempty"`
	Questions []Question `json:"questions" validate:"required,min=1,dive"`
}

// Question is a single exam question. A non-empty Options list marks it as
// multiple choice.
type Question struct {
	ID         QuestionID  `json:"id,omitempty"`
	Prompt     string      `json:"prompt" validate:"required"`
	Options    []string    `json:"options,omitempty"`
	Answer     AnswerBlock `json:"answer"`
	UserAnswer string      `json:"user_answer,omitempty"`
}

// IsMultipleChoice reports whether the question offers options.
func (q Question) IsMultipleChoice() bool {
	return len(q.Options) > 0
}

// AnswerBlock holds the accepted solutions and an optional explanation.
type AnswerBlock struct {
	Solution    Solution `json:"solution"`
	Explanation string   `json:"explanation,omitempty"`
}

// Solution is either a single accepted answer or a list of accepted answers.
// The variant is kept so the document serializes back to the shape it was read from.
type Solution struct {
	Values   []string `validate:"required,min=1,dive,required"`
	Multiple bool
}

// SingleSolution returns a solution with exactly one accepted answer.
func SingleSolution(s string) Solution {
	return Solution{Values: []string{s}}
}

// MultipleSolution returns a solution accepting any of the given answers.
func MultipleSolution(values ...string) Solution {
	return Solution{Values: values, Multiple: true}
}

// MarshalJSON writes a string for a single solution and an array otherwise.
func (s Solution) MarshalJSON() ([]byte, error) {
	if s.Multiple {
		if s.Values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(s.Values)
	}
	if len(s.Values) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(s.Values[0])
}

// UnmarshalJSON accepts a JSON string or an array of strings.
func (s *Solution) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = Solution{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = SingleSolution(v)
		return nil
	case len(data) > 0 && data[0] == '[':
		var vs []string
		if err := json.Unmarshal(data, &vs); err != nil {
			return errors.New("solution list must contain only strings")
		}
		*s = MultipleSolution(vs...)
		return nil
	default:
		return errors.New("solution must be a string or a list of strings")
	}
}

// QuestionID is an explicit question identifier. Documents may carry it as a
// JSON string or number; it is always handled as a string.
type QuestionID string

// UnmarshalJSON accepts strings and numbers.
func (id *QuestionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = QuestionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("question id must be a string or a number")
	}
	*id = QuestionID(n.String())
	return nil
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.Tags = cloneStrings(d.Tags)
	if d.Questions != nil {
		out.Questions = make([]Question, len(d.Questions))
		for i, q := range d.Questions {
			out.Questions[i] = q.Clone()
		}
	}
	return out
}

// Pristine returns a deep copy with every user answer cleared.
func (d Document) Pristine() Document {
	out := d.Clone()
	for i := range out.Questions {
		out.Questions[i].UserAnswer = ""
	}
	return out
}

// Clone returns a deep copy of the question.
func (q Question) Clone() Question {
	out := q
	out.Options = cloneStrings(q.Options)
	out.Answer.Solution.Values = cloneStrings(q.Answer.Solution.Values)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// ExamRecord is the persisted history entry for an exam. Content is always the
// pristine document: no rendered markup, no user answers.
type ExamRecord struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    Document  `json:"content"`
	Tags       []string  `json:"tags"`
	LastOpened time.Time `json:"last_opened"`
}

// Result is the immutable score of one exam submission.
type Result struct {
	ID        int64     `json:"id"`
	ExamID    string    `json:"exam_id"`
	ExamTitle string    `json:"exam_title"`
	Tags      []string  `json:"tags"`
	Score     int       `json:"score"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// Percent returns the score as a percentage of the total.
func (r Result) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Score) / float64(r.Total) * 100
}
