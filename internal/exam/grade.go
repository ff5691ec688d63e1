package exam

import (
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
)

// CheckAnswer reports whether the question's user answer matches any of its
// solutions, ignoring case and surrounding whitespace.
//
// For multiple-choice questions an answer also matches a solution that starts
// with the answer followed by ")" or ".", so "a" matches "a) Paris". This is
// loose: "a" also matches a solution like "a. la carte". Free-text questions
// need an exact match.
func CheckAnswer(q domain.Question) bool {
	answer := normalize(q.UserAnswer)
	if answer == "" {
		return false
	}

	for _, sol := range q.Answer.Solution.Values {
		s := normalize(sol)
		if s == answer {
			return true
		}
		if q.IsMultipleChoice() && (strings.HasPrefix(s, answer+")") || strings.HasPrefix(s, answer+".")) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
