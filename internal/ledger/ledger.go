// Package ledger answers read-only questions about a learner's attempt
// history. It never writes; attempts change only through the attempt engine.
package ledger

import (
	"context"
	"math"
	"sort"

	"github.com/mind-engage/mindengage-assess/internal/exam"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*pageSize well inside int range on every platform.
	MaxPage = 1_000_000
)

type Reader interface {
	ListAttempts(ctx context.Context, f exam.AttemptFilter) ([]exam.Attempt, error)
	CountAttempts(ctx context.Context, assessmentID, learnerID string) (int, error)
}

type Ledger struct {
	r Reader
}

func New(r Reader) *Ledger { return &Ledger{r: r} }

// AttemptsUsed counts every attempt the learner began, whatever its status.
func (l *Ledger) AttemptsUsed(ctx context.Context, learnerID, assessmentID string) (int, error) {
	return l.r.CountAttempts(ctx, assessmentID, learnerID)
}

// BestScore returns the graded attempt with the highest percentage. Ties go
// to the earlier attempt. ok is false when nothing is graded yet.
func (l *Ledger) BestScore(ctx context.Context, learnerID, assessmentID string) (best exam.Attempt, ok bool, err error) {
	list, err := l.r.ListAttempts(ctx, exam.AttemptFilter{
		AssessmentID: assessmentID,
		LearnerID:    learnerID,
		Statuses:     []exam.Status{exam.StatusGraded},
	})
	if err != nil {
		return exam.Attempt{}, false, err
	}
	for _, a := range list {
		if !ok || a.Percentage > best.Percentage ||
			(a.Percentage == best.Percentage && a.AttemptNumber < best.AttemptNumber) {
			best, ok = a, true
		}
	}
	return best, ok, nil
}

type Page struct {
	Items    []exam.Attempt `json:"items"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	HasMore  bool           `json:"has_more"`
}

// History lists a learner's attempts newest first. page is 1-based;
// assessmentID may be empty for all assessments.
func (l *Ledger) History(ctx context.Context, learnerID, assessmentID string, page, pageSize int) (Page, error) {
	switch {
	case page < 1:
		page = 1
	case page > MaxPage:
		page = MaxPage
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	list, err := l.r.ListAttempts(ctx, exam.AttemptFilter{
		AssessmentID: assessmentID,
		LearnerID:    learnerID,
		Limit:        pageSize + 1,
		Offset:       (page - 1) * pageSize,
	})
	if err != nil {
		return Page{}, err
	}
	p := Page{Page: page, PageSize: pageSize, Items: list}
	if len(list) > pageSize {
		p.Items = list[:pageSize]
		p.HasMore = true
	}
	return p, nil
}

// Stats summarizes one assessment. Averages and pass rate cover graded
// attempts only; PassRate is a percentage.
type Stats struct {
	AssessmentID      string  `json:"assessment_id"`
	Attempts          int     `json:"attempts"`
	Graded            int     `json:"graded"`
	AveragePercentage float64 `json:"average_percentage"`
	PassRate          float64 `json:"pass_rate"`
}

func (l *Ledger) Statistics(ctx context.Context, assessmentID string) (Stats, error) {
	list, err := l.r.ListAttempts(ctx, exam.AttemptFilter{AssessmentID: assessmentID})
	if err != nil {
		return Stats{}, err
	}
	return summarize(assessmentID, list), nil
}

// StatisticsByAssessment groups statistics per assessment, optionally for a
// single learner, ordered by assessment id.
func (l *Ledger) StatisticsByAssessment(ctx context.Context, learnerID string) ([]Stats, error) {
	list, err := l.r.ListAttempts(ctx, exam.AttemptFilter{LearnerID: learnerID})
	if err != nil {
		return nil, err
	}
	groups := map[string][]exam.Attempt{}
	for _, a := range list {
		groups[a.AssessmentID] = append(groups[a.AssessmentID], a)
	}
	out := make([]Stats, 0, len(groups))
	for id, as := range groups {
		out = append(out, summarize(id, as))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssessmentID < out[j].AssessmentID })
	return out, nil
}

func summarize(assessmentID string, list []exam.Attempt) Stats {
	s := Stats{AssessmentID: assessmentID, Attempts: len(list)}
	sum, passed := 0.0, 0
	for _, a := range list {
		if a.Status != exam.StatusGraded {
			continue
		}
		s.Graded++
		sum += a.Percentage
		if a.Passed {
			passed++
		}
	}
	if s.Graded > 0 {
		s.AveragePercentage = round1(sum / float64(s.Graded))
		s.PassRate = round1(float64(passed) / float64(s.Graded) * 100)
	}
	return s
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
