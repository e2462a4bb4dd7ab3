// Package attempt runs the lifecycle of one learner's pass through an
// assessment: begin, answer, submit (by the learner or the clock), scoring,
// and manual grading of subjective items.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-assess/internal/events"
	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/grading"
	"github.com/mind-engage/mindengage-assess/internal/ledger"
	"github.com/mind-engage/mindengage-assess/internal/metrics"
	"github.com/mind-engage/mindengage-assess/internal/prereq"
)

type Clock func() time.Time

// Countdown is the auto-submit timer as the engine sees it.
type Countdown interface {
	Arm(attemptID string, deadline time.Time)
	Disarm(attemptID string)
}

type Options struct {
	// GracePeriod is the slack allowed past the deadline before the server
	// treats a submission as timed out.
	GracePeriod time.Duration
	Now         Clock
	Locker      Locker
	Prereq      prereq.Checker
	Events      events.Publisher
	Countdown   Countdown
	NewID       func() string
}

type Engine struct {
	store     exam.Store
	ledger    *ledger.Ledger
	grace     time.Duration
	now       Clock
	locker    Locker
	prereq    prereq.Checker
	events    events.Publisher
	countdown Countdown
	newID     func() string
}

func NewEngine(store exam.Store, opts Options) *Engine {
	e := &Engine{
		store:     store,
		ledger:    ledger.New(store),
		grace:     opts.GracePeriod,
		now:       opts.Now,
		locker:    opts.Locker,
		prereq:    opts.Prereq,
		events:    opts.Events,
		countdown: opts.Countdown,
		newID:     opts.NewID,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.locker == nil {
		e.locker = NewLocalLocker()
	}
	if e.prereq == nil {
		e.prereq = prereq.AllowAll{}
	}
	if e.events == nil {
		e.events = events.Noop{}
	}
	if e.countdown == nil {
		e.countdown = noCountdown{}
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// clock returns the current time at the millisecond precision the stores keep.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

type SubmitRequest struct {
	Trigger exam.Trigger `json:"trigger"`
	// ClientElapsedSec is the browser's own timer reading. It is only
	// compared with the server's measurement and never trusted.
	ClientElapsedSec *int `json:"client_elapsed_sec,omitempty"`
}

// Begin opens a new attempt for learnerID.
func (e *Engine) Begin(ctx context.Context, learnerID, assessmentID string) (exam.Attempt, error) {
	if learnerID == "" {
		return exam.Attempt{}, errors.New("learner id required")
	}
	as, err := e.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return exam.Attempt{}, err
	}

	unlock, err := e.locker.Lock(ctx, "begin:"+assessmentID+":"+learnerID)
	if err != nil {
		return exam.Attempt{}, err
	}
	defer unlock()

	open, err := e.store.ListAttempts(ctx, exam.AttemptFilter{
		AssessmentID: assessmentID,
		LearnerID:    learnerID,
		Statuses:     []exam.Status{exam.StatusInProgress},
	})
	if err != nil {
		return exam.Attempt{}, err
	}
	for _, o := range open {
		if !e.overdue(o) {
			metrics.BeginRejected.WithLabelValues("in_progress").Inc()
			return exam.Attempt{}, exam.ErrAttemptAlreadyInProgress
		}
		// the timer missed it (restart, partition); close it out now
		if _, err := e.Submit(ctx, o.ID, SubmitRequest{Trigger: exam.TriggerTimer}); err != nil &&
			!errors.Is(err, exam.ErrAttemptAlreadySubmitted) {
			return exam.Attempt{}, fmt.Errorf("close overdue attempt %s: %w", o.ID, err)
		}
	}

	used, err := e.ledger.AttemptsUsed(ctx, learnerID, assessmentID)
	if err != nil {
		return exam.Attempt{}, err
	}
	if as.MaxAttempts > 0 && used >= as.MaxAttempts {
		metrics.BeginRejected.WithLabelValues("limit").Inc()
		return exam.Attempt{}, exam.ErrAttemptLimitExceeded
	}

	if as.PrerequisiteLessonID != "" {
		ok, err := e.prereq.IsPrerequisiteSatisfied(ctx, learnerID, as.PrerequisiteLessonID)
		if err != nil {
			metrics.BeginRejected.WithLabelValues("prerequisite_unavailable").Inc()
			log.Printf("prerequisite check for %s/%s: %v", learnerID, as.PrerequisiteLessonID, err)
			return exam.Attempt{}, fmt.Errorf("%w: %v", exam.ErrPrerequisiteCheckFailed, err)
		}
		if !ok {
			metrics.BeginRejected.WithLabelValues("prerequisite").Inc()
			return exam.Attempt{}, exam.ErrPrerequisiteNotMet
		}
	}

	now := e.clock()
	a := exam.Attempt{
		ID:                e.newID(),
		AssessmentID:      as.ID,
		AssessmentVersion: as.Version,
		LearnerID:         learnerID,
		AttemptNumber:     used + 1,
		Status:            exam.StatusInProgress,
		StartedAt:         now,
		Answers:           map[string]exam.Answer{},
	}
	if as.Timed() {
		d := now.Add(as.TimeLimit())
		a.Deadline = &d
	}
	a, err = e.store.CreateAttempt(ctx, a)
	if err != nil {
		return exam.Attempt{}, err
	}
	if a.Deadline != nil {
		e.countdown.Arm(a.ID, *a.Deadline)
	}
	metrics.AttemptsStarted.Inc()
	e.events.Publish(ctx, events.FromAttempt(events.AttemptStarted, a, learnerID, now))
	return a, nil
}

// RecordAnswer stores one answer on an open attempt. Answers freeze at the
// deadline: a write at or after it closes the attempt instead. Grace applies
// to Submit only.
func (e *Engine) RecordAnswer(ctx context.Context, attemptID, questionID string, ans exam.Answer) (exam.Attempt, error) {
	unlock, err := e.locker.Lock(ctx, attemptKey(attemptID))
	if err != nil {
		return exam.Attempt{}, err
	}
	defer unlock()

	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return exam.Attempt{}, err
	}
	if a.Status != exam.StatusInProgress {
		return a, exam.ErrAttemptAlreadySubmitted
	}
	if e.pastDeadline(a) {
		closed, err := e.submitLocked(ctx, a, SubmitRequest{Trigger: exam.TriggerTimer})
		if err != nil && !errors.Is(err, exam.ErrAttemptAlreadySubmitted) {
			return exam.Attempt{}, err
		}
		return closed, exam.ErrAttemptAlreadySubmitted
	}
	as, err := e.store.GetAssessmentVersion(ctx, a.AssessmentID, a.AssessmentVersion)
	if err != nil {
		return exam.Attempt{}, err
	}
	q, ok := as.Question(questionID)
	if !ok {
		return exam.Attempt{}, fmt.Errorf("%w: %s", exam.ErrQuestionNotFound, questionID)
	}
	if err := ans.CheckShape(q); err != nil {
		return exam.Attempt{}, err
	}
	if a.Answers == nil {
		a.Answers = map[string]exam.Answer{}
	}
	a.Answers[questionID] = ans
	return e.store.UpdateAttempt(ctx, a)
}

// Submit moves an open attempt to submitted and scores it. A second submit,
// whoever triggers it, returns the stored attempt with
// ErrAttemptAlreadySubmitted.
func (e *Engine) Submit(ctx context.Context, attemptID string, req SubmitRequest) (exam.Attempt, error) {
	unlock, err := e.locker.Lock(ctx, attemptKey(attemptID))
	if err != nil {
		return exam.Attempt{}, err
	}
	defer unlock()

	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return exam.Attempt{}, err
	}
	return e.submitLocked(ctx, a, req)
}

// AutoSubmit is the timer's entry point.
func (e *Engine) AutoSubmit(ctx context.Context, attemptID string) (exam.Attempt, error) {
	return e.Submit(ctx, attemptID, SubmitRequest{Trigger: exam.TriggerTimer})
}

// OpenTimedAttempts lists attempts the timer must watch.
func (e *Engine) OpenTimedAttempts(ctx context.Context) ([]exam.Attempt, error) {
	return e.store.ListOpenTimed(ctx)
}

func (e *Engine) submitLocked(ctx context.Context, a exam.Attempt, req SubmitRequest) (exam.Attempt, error) {
	if a.Status != exam.StatusInProgress {
		return a, exam.ErrAttemptAlreadySubmitted
	}
	as, err := e.store.GetAssessmentVersion(ctx, a.AssessmentID, a.AssessmentVersion)
	if err != nil {
		return exam.Attempt{}, err
	}

	now := e.clock()
	elapsed := now.Sub(a.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	taken := int(elapsed / time.Second)
	trigger := req.Trigger
	if trigger == "" {
		trigger = exam.TriggerUser
	}
	auto := trigger == exam.TriggerTimer
	if !as.Timed() && auto {
		log.Printf("attempt %s: timer trigger on untimed assessment %s, treating as user submit", a.ID, as.ID)
		auto = false
	}
	if as.Timed() {
		limit := *as.TimeLimitSec
		if elapsed > as.TimeLimit()+e.grace {
			if !auto {
				log.Printf("attempt %s: submitted %s after start, past limit %ds + grace; forcing auto-submit", a.ID, elapsed, limit)
			}
			auto = true
		}
		if auto && taken > limit {
			taken = limit
		}
	}
	if req.ClientElapsedSec != nil {
		diff := time.Duration(*req.ClientElapsedSec)*time.Second - elapsed
		if diff < 0 {
			diff = -diff
		}
		if diff > e.grace+time.Second {
			log.Printf("attempt %s: client timer reports %ds, server measured %s; using server time", a.ID, *req.ClientElapsedSec, elapsed)
		}
	}

	next := a.Clone()
	next.Status = exam.StatusSubmitted
	next.SubmittedAt = &now
	next.TimeTakenSec = taken
	next.AutoSubmitted = auto
	next, err = rescore(as, next, manualFrom(next))
	if err != nil {
		log.Printf("attempt %s: scoring refused: %v", a.ID, err)
		return exam.Attempt{}, err
	}

	saved, err := e.store.UpdateAttempt(ctx, next)
	if errors.Is(err, exam.ErrVersionConflict) {
		// another process got there first
		cur, gerr := e.store.GetAttempt(ctx, a.ID)
		if gerr == nil && cur.Status != exam.StatusInProgress {
			return cur, exam.ErrAttemptAlreadySubmitted
		}
		return exam.Attempt{}, err
	}
	if err != nil {
		return exam.Attempt{}, err
	}

	e.countdown.Disarm(saved.ID)
	metrics.AttemptsSubmitted.WithLabelValues(string(trigger), strconv.FormatBool(saved.AutoSubmitted)).Inc()
	e.events.Publish(ctx, events.FromAttempt(events.AttemptSubmitted, saved, actorFor(trigger, saved), now))
	if saved.Status == exam.StatusGraded {
		metrics.FinalPercentage.Observe(saved.Percentage)
		e.events.Publish(ctx, events.FromAttempt(events.AttemptGraded, saved, "system", now))
	}
	return saved, nil
}

// AttachFlags merges opaque proctoring attributes onto an attempt. They are
// stored for reviewers and never affect scoring.
func (e *Engine) AttachFlags(ctx context.Context, attemptID string, flags map[string]string) (exam.Attempt, error) {
	unlock, err := e.locker.Lock(ctx, attemptKey(attemptID))
	if err != nil {
		return exam.Attempt{}, err
	}
	defer unlock()

	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return exam.Attempt{}, err
	}
	if len(flags) == 0 {
		return a, nil
	}
	if a.Flags == nil {
		a.Flags = map[string]string{}
	}
	for k, v := range flags {
		a.Flags[k] = v
	}
	return e.store.UpdateAttempt(ctx, a)
}

func (e *Engine) Get(ctx context.Context, attemptID string) (exam.Attempt, error) {
	return e.store.GetAttempt(ctx, attemptID)
}

// Remaining reports the server's view of the time left on an attempt.
// timed is false for untimed assessments.
func (e *Engine) Remaining(ctx context.Context, attemptID string) (left time.Duration, timed bool, err error) {
	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return 0, false, err
	}
	if a.Deadline == nil {
		return 0, false, nil
	}
	if a.Status != exam.StatusInProgress {
		return 0, true, nil
	}
	left = a.Deadline.Sub(e.clock())
	if left < 0 {
		left = 0
	}
	return left, true, nil
}

// overdue reports an open timed attempt past its deadline plus grace.
func (e *Engine) overdue(a exam.Attempt) bool {
	return a.Status == exam.StatusInProgress && a.Deadline != nil &&
		e.clock().After(a.Deadline.Add(e.grace))
}

func (e *Engine) pastDeadline(a exam.Attempt) bool {
	return a.Status == exam.StatusInProgress && a.Deadline != nil &&
		!e.clock().Before(*a.Deadline)
}

// rescore recomputes every result and aggregate of a from its answers and
// the given manual grades and moves it to the status the outcome implies.
func rescore(as exam.Assessment, a exam.Attempt, manual map[string]grading.Manual) (exam.Attempt, error) {
	out, err := grading.Score(as, a.Answers, manual)
	if err != nil {
		return exam.Attempt{}, err
	}
	status := out.Status()
	if !exam.CanTransition(a.Status, status) {
		return exam.Attempt{}, fmt.Errorf("%w: %s -> %s", exam.ErrInvariantViolation, a.Status, status)
	}
	a.Status = status
	a.Results = out.Results
	a.Score = out.Score
	a.Percentage = out.Percentage
	a.Passed = out.Passed
	if err := grading.CheckInvariants(as, a); err != nil {
		return exam.Attempt{}, err
	}
	return a, nil
}

func manualFrom(a exam.Attempt) map[string]grading.Manual {
	m := map[string]grading.Manual{}
	for _, r := range a.Results {
		if !r.NeedsManual || r.PointsAwarded == nil {
			continue
		}
		g := grading.Manual{Points: *r.PointsAwarded, Notes: r.GradingNotes, GradedBy: r.GradedBy}
		if r.GradedAt != nil {
			g.GradedAt = *r.GradedAt
		}
		m[r.QuestionID] = g
	}
	return m
}

func attemptKey(id string) string { return "attempt:" + id }

func actorFor(t exam.Trigger, a exam.Attempt) string {
	if t == exam.TriggerTimer {
		return "timer"
	}
	return a.LearnerID
}

type noCountdown struct{}

func (noCountdown) Arm(string, time.Time) {}
func (noCountdown) Disarm(string)         {}
