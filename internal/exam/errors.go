package exam

import "errors"

// Policy violations: expected, user facing, not retryable without a state change.
var (
	ErrAttemptLimitExceeded     = errors.New("attempt limit exceeded")
	ErrPrerequisiteNotMet       = errors.New("prerequisite not met")
	ErrAttemptAlreadyInProgress = errors.New("attempt already in progress")
	ErrAttemptAlreadySubmitted  = errors.New("attempt already submitted")
	ErrAttemptNotSubmitted      = errors.New("attempt not submitted")
)

var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrQuestionNotFound   = errors.New("question not found")

	ErrInvalidAssessment = errors.New("invalid assessment")
	ErrInvalidAnswer     = errors.New("invalid answer")
	ErrInvalidGrade      = errors.New("invalid grade")

	// ErrPrerequisiteCheckFailed means the course service could not answer
	// within the retry budget.
	ErrPrerequisiteCheckFailed = errors.New("prerequisite check failed")

	// ErrVersionConflict is returned when a write lost an optimistic
	// concurrency race.
	ErrVersionConflict = errors.New("attempt version conflict")

	// ErrInvariantViolation marks a programming error; the offending state is
	// never written.
	ErrInvariantViolation = errors.New("invariant violation")
)
