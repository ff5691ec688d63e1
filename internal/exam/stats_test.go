package exam

import (
	"testing"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestResultStats(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	results := []domain.Result{
		{ID: 3, Tags: []string{"geo"}, Score: 3, Total: 4, Timestamp: base.Add(2 * time.Hour)},
		{ID: 2, Tags: []string{"math"}, Score: 1, Total: 1, Timestamp: base.Add(time.Hour)},
		{ID: 1, Tags: []string{"geo", "europe"}, Score: 1, Total: 2, Timestamp: base},
	}

	assert.Equal(t, []string{"europe", "geo", "math"}, ResultTags(results))

	series := ScoreSeries(results, "geo")
	assert.Equal(t, []ScorePoint{
		{ResultID: 1, Timestamp: base, Percent: 50},
		{ResultID: 3, Timestamp: base.Add(2 * time.Hour), Percent: 75},
	}, series)

	assert.Empty(t, ScoreSeries(results, "history"))
	assert.Empty(t, ResultTags(nil))
}
