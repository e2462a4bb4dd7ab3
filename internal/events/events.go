// Package events carries attempt lifecycle notifications to telemetry and
// notification collaborators. Publishing never blocks the caller.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/exam"
)

type Type string

const (
	AttemptStarted   Type = "attempt.started"
	AttemptSubmitted Type = "attempt.submitted"
	AttemptGraded    Type = "attempt.graded"
	AttemptRegraded  Type = "attempt.regraded"
)

type Event struct {
	Type          Type        `json:"type"`
	AttemptID     string      `json:"attempt_id"`
	AssessmentID  string      `json:"assessment_id"`
	LearnerID     string      `json:"learner_id"`
	AttemptNumber int         `json:"attempt_number"`
	Status        exam.Status `json:"status"`
	Score         float64     `json:"score"`
	Percentage    float64     `json:"percentage"`
	Passed        bool        `json:"passed"`
	AutoSubmitted bool        `json:"auto_submitted,omitempty"`
	Actor         string      `json:"actor,omitempty"`
	At            time.Time   `json:"at"`
}

// FromAttempt builds an event snapshot of a.
func FromAttempt(t Type, a exam.Attempt, actor string, at time.Time) Event {
	return Event{
		Type:          t,
		AttemptID:     a.ID,
		AssessmentID:  a.AssessmentID,
		LearnerID:     a.LearnerID,
		AttemptNumber: a.AttemptNumber,
		Status:        a.Status,
		Score:         a.Score,
		Percentage:    a.Percentage,
		Passed:        a.Passed,
		AutoSubmitted: a.AutoSubmitted,
		Actor:         actor,
		At:            at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) {}

// Fanout delivers each event to every publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		p.Publish(ctx, e)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types for one attempt, in publish order.
func (r *Recorder) Types(attemptID string) []Type {
	var out []Type
	for _, e := range r.Events() {
		if e.AttemptID == attemptID {
			out = append(out, e.Type)
		}
	}
	return out
}
