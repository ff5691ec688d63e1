package domain

import (
	"fmt"
	"strings"
	"time"
)

// Card is a flashcard derived from a missed exam question.
type Card struct {
	ID             string         `json:"id"`
	Front          string         `json:"front"`
	Back           AnswerBlock    `json:"back"`
	Options        []string       `json:"options"`
	Tags           []string       `json:"tags"`
	QuestionID     string         `json:"question_id"`
	ExamID         string         `json:"exam_id"`
	SourceExamHash string         `json:"source_exam_hash"`
	Scheduling     SchedulerState `json:"scheduling"`
}

// CardID composes the identity of the card derived from a question of the
// exam with the given fingerprint.
func CardID(fingerprint, questionID string) string {
	return fingerprint + "_q_" + questionID
}

// IsDue reports whether the card is eligible for review at now.
func (c Card) IsDue(now time.Time) bool {
	return !c.Scheduling.Due.After(now)
}

// HasTag reports whether tag is in the card's tag set.
func (c Card) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SchedulerState is the spaced-repetition state of a card.
// LastReview is the zero time until the first review.
type SchedulerState struct {
	Due           time.Time   `json:"due"`
	Stability     float64     `json:"stability"`
	Difficulty    float64     `json:"difficulty"`
	ElapsedDays   uint64      `json:"elapsed_days"`
	ScheduledDays uint64      `json:"scheduled_days"`
	Reps          uint64      `json:"reps"`
	Lapses        uint64      `json:"lapses"`
	State         ReviewState `json:"state"`
	LastReview    time.Time   `json:"last_review"`
}

// ReviewState is the phase of a card's spaced-repetition lifecycle.
type ReviewState int

const (
	New        ReviewState = 0
	Learning   ReviewState = 1
	Review     ReviewState = 2
	Relearning ReviewState = 3
)

var reviewStateNames = [...]string{New: "New", Learning: "Learning", Review: "Review", Relearning: "Relearning"}

func (s ReviewState) String() string {
	if s >= New && s <= Relearning {
		return reviewStateNames[s]
	}
	return fmt.Sprintf("ReviewState(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s ReviewState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ReviewState) UnmarshalText(text []byte) error {
	for i, name := range reviewStateNames {
		if name == string(text) {
			*s = ReviewState(i)
			return nil
		}
	}
	return fmt.Errorf("invalid review state: %q", text)
}

// IsLearning reports whether the card is still in a short-term phase.
func (s ReviewState) IsLearning() bool {
	return s == New || s == Learning || s == Relearning
}

// Rating is the user's recall assessment for a review. Higher is better.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

var ratingNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// IsValid reports whether r is one of Again, Hard, Good or Easy.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating accepts a rating name ("good") or its number ("3").
func ParseRating(s string) (Rating, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range ratingNames {
		if name != "" && (name == s || fmt.Sprint(i) == s) {
			return Rating(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
}

// ReviewLog records a single review event for a card.
type ReviewLog struct {
	CardID    string      `json:"card_id"`
	Timestamp time.Time   `json:"timestamp"`
	Rating    Rating      `json:"rating"`
	State     ReviewState `json:"state"`
}
