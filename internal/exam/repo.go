package exam

import "context"

type ListOpts struct {
	Q      string
	Limit  int
	Offset int
}

type AssessmentSummary struct {
	ID           string  `json:"id"`
	Version      int     `json:"version"`
	Title        string  `json:"title"`
	Questions    int     `json:"questions"`
	TotalPoints  float64 `json:"total_points"`
	TimeLimitSec *int    `json:"time_limit_sec"`
	MaxAttempts  int     `json:"max_attempts"`
	CreatedAt    int64   `json:"created_at"`
}

func summarize(a Assessment) AssessmentSummary {
	return AssessmentSummary{
		ID:           a.ID,
		Version:      a.Version,
		Title:        a.Title,
		Questions:    len(a.Questions),
		TotalPoints:  a.TotalPoints(),
		TimeLimitSec: a.TimeLimitSec,
		MaxAttempts:  a.MaxAttempts,
		CreatedAt:    a.CreatedAt,
	}
}

type Store interface {
	// PutAssessment stores a new version of the assessment and returns it
	// with Version and CreatedAt set. Earlier versions stay readable.
	PutAssessment(ctx context.Context, a Assessment) (Assessment, error)
	GetAssessment(ctx context.Context, id string) (Assessment, error) // latest version, full answer key
	GetAssessmentVersion(ctx context.Context, id string, version int) (Assessment, error)
	ListAssessments(ctx context.Context, opts ListOpts) ([]AssessmentSummary, error)

	// CreateAttempt fails with ErrAttemptAlreadyInProgress when the learner
	// already has an open attempt or the attempt number is taken.
	CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// UpdateAttempt writes a if its Version still matches the stored one and
	// returns it with the version bumped; otherwise ErrVersionConflict.
	UpdateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	ListAttempts(ctx context.Context, f AttemptFilter) ([]Attempt, error)
	CountAttempts(ctx context.Context, assessmentID, learnerID string) (int, error)
	// ListOpenTimed returns every in-progress attempt that has a deadline.
	ListOpenTimed(ctx context.Context) ([]Attempt, error)
}
