package grading

import (
	"fmt"
	"math"
	"strings"

	"github.com/mind-engage/mindengage-assess/internal/exam"
)

// RubricScore is a reviewer's per-criterion award folded into one item score.
type RubricScore struct {
	Points float64
	Notes  string // "clarity: 2/3; structure: 1/2", criteria in rubric order
}

// ScoreRubric totals awarded points per criterion. Every key must name a
// criterion and stay within its max; criteria left out score zero. The total
// is capped at the rubric's Max when one is set.
func ScoreRubric(r exam.Rubric, awarded map[string]float64) (RubricScore, error) {
	for key, v := range awarded {
		c, ok := r.Criterion(key)
		if !ok {
			return RubricScore{}, fmt.Errorf("unknown rubric criterion %q", key)
		}
		if math.IsNaN(v) || v < 0 || v > c.MaxPoints {
			return RubricScore{}, fmt.Errorf("criterion %q must be between 0 and %g", key, c.MaxPoints)
		}
	}
	total := 0.0
	notes := make([]string, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		v := awarded[c.Key]
		total += v
		notes = append(notes, fmt.Sprintf("%s: %g/%g", c.Key, v, c.MaxPoints))
	}
	if r.Max > 0 && total > r.Max {
		total = r.Max
	}
	return RubricScore{Points: total, Notes: strings.Join(notes, "; ")}, nil
}
