package attempt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mind-engage/mindengage-assess/internal/events"
	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/grading"
	"github.com/mind-engage/mindengage-assess/internal/metrics"
)

// GradeInput awards points for one subjective item. With Criteria set the
// points and notes come from the question's rubric, and PointsAwarded may be
// left at zero or must agree with the rubric total.
type GradeInput struct {
	QuestionID    string             `json:"question_id"`
	PointsAwarded float64            `json:"points_awarded"`
	Notes         string             `json:"notes,omitempty"`
	Criteria      map[string]float64 `json:"criteria,omitempty"`
}

// resolve returns the points and notes g awards on q, or the reason it is
// rejected.
func (g GradeInput) resolve(q exam.Question) (float64, string, string) {
	points, notes := g.PointsAwarded, g.Notes
	if g.Criteria != nil {
		if q.Rubric == nil {
			return 0, "", "question has no rubric"
		}
		rs, err := grading.ScoreRubric(*q.Rubric, g.Criteria)
		if err != nil {
			return 0, "", err.Error()
		}
		if g.PointsAwarded != 0 && g.PointsAwarded != rs.Points {
			return 0, "", fmt.Sprintf("points_awarded %g disagrees with rubric total %g", g.PointsAwarded, rs.Points)
		}
		points, notes = rs.Points, rs.Notes
		if g.Notes != "" {
			notes += "; " + g.Notes
		}
	}
	if math.IsNaN(points) || points < 0 || points > q.Points {
		return 0, "", fmt.Sprintf("points must be between 0 and %g", q.Points)
	}
	return points, notes, ""
}

type GradeRejection struct {
	QuestionID string `json:"question_id"`
	Reason     string `json:"reason"`
}

type GradeResult struct {
	Attempt  exam.Attempt     `json:"attempt"`
	Applied  []string         `json:"applied"`
	Rejected []GradeRejection `json:"rejected,omitempty"`
}

// ApplyManualGrades records reviewer points for subjective items and
// rescores the attempt from scratch. Entries are validated one at a time;
// a bad entry is rejected without blocking the rest. Re-grading a graded
// attempt is allowed.
func (e *Engine) ApplyManualGrades(ctx context.Context, attemptID, reviewerID string, grades []GradeInput) (GradeResult, error) {
	unlock, err := e.locker.Lock(ctx, attemptKey(attemptID))
	if err != nil {
		return GradeResult{}, err
	}
	defer unlock()

	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return GradeResult{}, err
	}
	if a.Status != exam.StatusPendingReview && a.Status != exam.StatusGraded {
		return GradeResult{Attempt: a}, exam.ErrAttemptNotSubmitted
	}
	as, err := e.store.GetAssessmentVersion(ctx, a.AssessmentID, a.AssessmentVersion)
	if err != nil {
		return GradeResult{}, err
	}

	now := e.clock()
	res := GradeResult{Attempt: a}
	manual := manualFrom(a)
	for _, g := range grades {
		reason := ""
		q, ok := as.Question(g.QuestionID)
		switch {
		case !ok:
			reason = "unknown question"
		case !q.Type.Subjective():
			reason = "question is auto-graded"
		default:
			var points float64
			var notes string
			if points, notes, reason = g.resolve(q); reason == "" {
				manual[g.QuestionID] = grading.Manual{Points: points, Notes: notes, GradedBy: reviewerID, GradedAt: now}
				res.Applied = append(res.Applied, g.QuestionID)
				continue
			}
		}
		res.Rejected = append(res.Rejected, GradeRejection{g.QuestionID, reason})
		metrics.GradeEntries.WithLabelValues("rejected").Inc()
	}
	if len(res.Applied) == 0 {
		return res, fmt.Errorf("%w: no grade entry accepted", exam.ErrInvalidGrade)
	}
	metrics.GradeEntries.WithLabelValues("applied").Add(float64(len(res.Applied)))
	sort.Strings(res.Applied)

	wasGraded := a.Status == exam.StatusGraded
	next, err := rescore(as, a.Clone(), manual)
	if err != nil {
		return GradeResult{}, err
	}
	saved, err := e.store.UpdateAttempt(ctx, next)
	if errors.Is(err, exam.ErrVersionConflict) {
		return GradeResult{}, fmt.Errorf("attempt %s changed during grading: %w", attemptID, err)
	}
	if err != nil {
		return GradeResult{}, err
	}
	res.Attempt = saved

	switch {
	case wasGraded:
		e.events.Publish(ctx, events.FromAttempt(events.AttemptRegraded, saved, reviewerID, now))
	case saved.Status == exam.StatusGraded:
		metrics.FinalPercentage.Observe(saved.Percentage)
		e.events.Publish(ctx, events.FromAttempt(events.AttemptGraded, saved, reviewerID, now))
	}
	return res, nil
}

// ListPendingReview returns attempts awaiting or past manual review,
// newest first. An empty assessmentID spans every assessment.
func (e *Engine) ListPendingReview(ctx context.Context, assessmentID string) ([]exam.Attempt, error) {
	return e.store.ListAttempts(ctx, exam.AttemptFilter{
		AssessmentID: assessmentID,
		Statuses:     []exam.Status{exam.StatusPendingReview, exam.StatusGraded},
	})
}
