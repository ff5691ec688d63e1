package exam

import (
	"strconv"
	"sync"
	"time"
)

// NewExamID returns a timestamp-based id for an exam opened from a file.
func NewExamID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// NewGeneratedExamID returns the id for an exam produced by the generator.
func NewGeneratedExamID(now time.Time) string {
	return "gen_" + NewExamID(now)
}

// IDGenerator hands out millisecond timestamp ids that never repeat, even when
// two exams are opened within the same millisecond.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator creates an IDGenerator reading the clock from now, or
// time.Now when now is nil.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

func (g *IDGenerator) next() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return time.UnixMilli(ms)
}

// Next returns an id for an exam opened from a file.
func (g *IDGenerator) Next() string {
	return NewExamID(g.next())
}

// NextGenerated returns an id for a generated exam.
func (g *IDGenerator) NextGenerated() string {
	return NewGeneratedExamID(g.next())
}
