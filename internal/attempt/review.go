package attempt

import (
	"context"

	"github.com/mind-engage/mindengage-assess/internal/exam"
)

// ReviewItem pairs a question with the learner's answer and its result.
// Key holds the correct answers and is empty unless the assessment allows
// revealing them.
type ReviewItem struct {
	Question exam.Question    `json:"question"`
	Answer   *exam.Answer     `json:"answer,omitempty"`
	Result   *exam.ItemResult `json:"result,omitempty"`
	Key      []string         `json:"key,omitempty"`
}

type Review struct {
	Attempt exam.Attempt `json:"attempt"`
	Title   string       `json:"title"`
	Items   []ReviewItem `json:"items"`
}

// Review assembles the learner-facing view of an attempt. While the attempt
// is open, and whenever the assessment hides answers, no key is included.
func (e *Engine) Review(ctx context.Context, attemptID string) (Review, error) {
	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Review{}, err
	}
	as, err := e.store.GetAssessmentVersion(ctx, a.AssessmentID, a.AssessmentVersion)
	if err != nil {
		return Review{}, err
	}
	reveal := as.ShowCorrectAnswers && a.Status != exam.StatusInProgress

	rv := Review{Attempt: a, Title: as.Title, Items: make([]ReviewItem, 0, len(as.Questions))}
	for _, q := range as.Questions {
		it := ReviewItem{Question: q.StripKey()}
		if ans, ok := a.Answers[q.ID]; ok {
			ans := ans
			it.Answer = &ans
		}
		if r, ok := a.Result(q.ID); ok {
			it.Result = &r
		}
		if reveal {
			it.Question = q
			if q.Type == exam.TypeFillBlank {
				it.Key = append([]string(nil), q.AcceptedAnswers...)
			} else {
				it.Key = q.CorrectOptions()
			}
		}
		rv.Items = append(rv.Items, it)
	}
	return rv, nil
}
