package grading

import (
	"fmt"
	"math"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/exam"
)

// Manual is a reviewer-supplied score for a subjective question.
type Manual struct {
	Points   float64
	Notes    string
	GradedBy string
	GradedAt time.Time
}

// Outcome is the full scoring of one attempt.
type Outcome struct {
	Results    []exam.ItemResult
	Score      float64
	Percentage float64
	Passed     bool
	Complete   bool // every item has points awarded
}

// Status is the post-submission status the outcome implies.
func (o Outcome) Status() exam.Status {
	if o.Complete {
		return exam.StatusGraded
	}
	return exam.StatusPendingReview
}

// Score grades every question of a against answers and the manual grades
// recorded so far. It is pure: the same inputs always give the same outcome,
// and results follow the assessment's question order.
func Score(a exam.Assessment, answers map[string]exam.Answer, manual map[string]Manual) (Outcome, error) {
	out := Outcome{Results: make([]exam.ItemResult, 0, len(a.Questions)), Complete: true}
	for _, q := range a.Questions {
		ans, answered := answers[q.ID]
		res, err := gradeItem(q, ans, answered, manual)
		if err != nil {
			return Outcome{}, err
		}
		if res.PointsAwarded == nil {
			out.Complete = false
		} else {
			out.Score += *res.PointsAwarded
		}
		out.Results = append(out.Results, res)
	}
	out.Percentage = Percentage(out.Score, a.TotalPoints())
	out.Passed = out.Percentage >= a.PassingScorePercent
	return out, nil
}

func gradeItem(q exam.Question, ans exam.Answer, answered bool, manual map[string]Manual) (exam.ItemResult, error) {
	res := exam.ItemResult{QuestionID: q.ID, Type: q.Type, MaxPoints: q.Points}
	var correct bool
	switch q.Type {
	case exam.TypeMultipleChoice:
		correct = answered && gradeMultipleChoice(q, ans)
	case exam.TypeTrueFalse:
		correct = answered && gradeTrueFalse(q, ans)
	case exam.TypeFillBlank:
		correct = answered && gradeFillBlank(q, ans)
	case exam.TypeCoding, exam.TypeEssay:
		res.NeedsManual = true
		if m, ok := manual[q.ID]; ok {
			pts := m.Points
			res.PointsAwarded = &pts
			res.GradingNotes = m.Notes
			res.GradedBy = m.GradedBy
			if !m.GradedAt.IsZero() {
				at := m.GradedAt
				res.GradedAt = &at
			}
		}
		return res, nil
	default:
		return exam.ItemResult{}, fmt.Errorf("%w: question %s has unknown type %q", exam.ErrInvariantViolation, q.ID, q.Type)
	}
	pts := 0.0
	if correct {
		pts = q.Points
	}
	res.IsCorrect = &correct
	res.PointsAwarded = &pts
	return res, nil
}

// Binary: the chosen set must equal the correct set exactly.
func gradeMultipleChoice(q exam.Question, ans exam.Answer) bool {
	return setEqual(toSet(ans.Values()), toSet(q.CorrectOptions()))
}

func gradeTrueFalse(q exam.Question, ans exam.Answer) bool {
	vals := ans.Values()
	if len(vals) != 1 {
		return false
	}
	key := q.CorrectOptions()
	return len(key) == 1 && equalTrimmed(vals[0], key[0])
}

func gradeFillBlank(q exam.Question, ans exam.Answer) bool {
	vals := ans.Values()
	return len(vals) == 1 && matchBlank(vals[0], q.AcceptedAnswers)
}

// Percentage is score/total as a percent rounded to one decimal place.
func Percentage(score, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(score/total*1000) / 10
}

// CheckInvariants verifies the aggregate fields of at against its results
// and the assessment it was scored with.
func CheckInvariants(a exam.Assessment, at exam.Attempt) error {
	sum := 0.0
	pending := false
	for _, r := range at.Results {
		if r.PointsAwarded == nil {
			pending = true
			continue
		}
		if *r.PointsAwarded < 0 || *r.PointsAwarded > r.MaxPoints {
			return fmt.Errorf("%w: %s awarded %.2f of %.2f", exam.ErrInvariantViolation, r.QuestionID, *r.PointsAwarded, r.MaxPoints)
		}
		sum += *r.PointsAwarded
	}
	if math.Abs(sum-at.Score) > 1e-9 {
		return fmt.Errorf("%w: score %.4f != sum of awarded %.4f", exam.ErrInvariantViolation, at.Score, sum)
	}
	if want := Percentage(at.Score, a.TotalPoints()); at.Percentage != want {
		return fmt.Errorf("%w: percentage %.1f != %.1f", exam.ErrInvariantViolation, at.Percentage, want)
	}
	if at.Passed != (at.Percentage >= a.PassingScorePercent) {
		return fmt.Errorf("%w: passed flag disagrees with threshold", exam.ErrInvariantViolation)
	}
	if pending && at.Status == exam.StatusGraded {
		return fmt.Errorf("%w: graded attempt with unscored items", exam.ErrInvariantViolation)
	}
	return nil
}
