package exam

import (
	"testing"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCheckAnswer(t *testing.T) {
	tests := []struct {
		name     string
		question domain.Question
		want     bool
	}{
		{
			name:     "case and whitespace insensitive",
			question: domain.Question{Prompt: "Capital?", Answer: domain.AnswerBlock{Solution: domain.SingleSolution("Paris")}, UserAnswer: " paris "},
			want:     true,
		},
		{
			name:     "empty answer",
			question: domain.Question{Prompt: "Capital?", Answer: domain.AnswerBlock{Solution: domain.SingleSolution("Paris")}},
			want:     false,
		},
		{
			name:     "whitespace-only answer",
			question: domain.Question{Prompt: "Capital?", Answer: domain.AnswerBlock{Solution: domain.SingleSolution("Paris")}, UserAnswer: "   "},
			want:     false,
		},
		{
			name: "option letter matches labelled solution",
			question: domain.Question{
				Prompt:     "Capital?",
				Options:    []string{"a) Paris", "b) Lyon"},
				Answer:     domain.AnswerBlock{Solution: domain.SingleSolution("a) Paris")},
				UserAnswer: "a",
			},
			want: true,
		},
		{
			name: "option letter with dot label",
			question: domain.Question{
				Prompt:     "Capital?",
				Options:    []string{"A. Paris", "B. Lyon"},
				Answer:     domain.AnswerBlock{Solution: domain.SingleSolution("A. Paris")},
				UserAnswer: "A",
			},
			want: true,
		},
		{
			name: "wrong option letter",
			question: domain.Question{
				Prompt:     "Capital?",
				Options:    []string{"a) Paris", "b) Lyon"},
				Answer:     domain.AnswerBlock{Solution: domain.SingleSolution("a) Paris")},
				UserAnswer: "b",
			},
			want: false,
		},
		{
			name:     "free text requires exact match",
			question: domain.Question{Prompt: "Capital?", Answer: domain.AnswerBlock{Solution: domain.SingleSolution("Paris")}, UserAnswer: "par"},
			want:     false,
		},
		{
			name:     "free text does not use option prefix rule",
			question: domain.Question{Prompt: "Dish?", Answer: domain.AnswerBlock{Solution: domain.SingleSolution("a) la carte")}, UserAnswer: "a"},
			want:     false,
		},
		{
			name:     "any of multiple solutions",
			question: domain.Question{Prompt: "Colour?", Answer: domain.AnswerBlock{Solution: domain.MultipleSolution("grey", "gray")}, UserAnswer: "Gray"},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckAnswer(tt.question))
		})
	}
}
