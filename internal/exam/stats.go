package exam

import (
	"sort"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// ScorePoint is one result on a score-over-time series.
type ScorePoint struct {
	ResultID  int64     `json:"result_id"`
	Timestamp time.Time `json:"timestamp"`
	Percent   float64   `json:"percent"`
}

// ResultTags returns the distinct tags across results, sorted.
func ResultTags(results []domain.Result) []string {
	set := make(map[string]struct{})
	for _, r := range results {
		for _, t := range r.Tags {
			set[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// ScoreSeries returns the results tagged with tag as percentages, oldest first.
func ScoreSeries(results []domain.Result, tag string) []ScorePoint {
	var points []ScorePoint
	for _, r := range results {
		if !hasTag(r.Tags, tag) {
			continue
		}
		points = append(points, ScorePoint{ResultID: r.ID, Timestamp: r.Timestamp, Percent: r.Percent()})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
