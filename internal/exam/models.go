package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeTrueFalse      QuestionType = "true_false"
	TypeFillBlank      QuestionType = "fill_blank"
	TypeCoding         QuestionType = "coding"
	TypeEssay          QuestionType = "essay"
)

// Subjective reports whether answers of this type are scored by a reviewer.
func (t QuestionType) Subjective() bool {
	return t == TypeCoding || t == TypeEssay
}

func (t QuestionType) Valid() bool {
	switch t {
	case TypeMultipleChoice, TypeTrueFalse, TypeFillBlank, TypeCoding, TypeEssay:
		return true
	}
	return false
}

type Option struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Text      string `json:"text" yaml:"text"`
	IsCorrect bool   `json:"is_correct,omitempty" yaml:"is_correct,omitempty"`
}

// Criterion is one line of a reviewer rubric.
type Criterion struct {
	Key       string  `json:"key" yaml:"key"`
	Desc      string  `json:"desc,omitempty" yaml:"desc,omitempty"`
	MaxPoints float64 `json:"max_points" yaml:"max_points"`
}

// Rubric breaks a coding or essay question's points into criteria. Max, when
// set, caps the rubric total below the sum of the criteria.
type Rubric struct {
	Criteria []Criterion `json:"criteria" yaml:"criteria"`
	Max      float64     `json:"max_points,omitempty" yaml:"max_points,omitempty"`
}

func (r Rubric) Criterion(key string) (Criterion, bool) {
	for _, c := range r.Criteria {
		if c.Key == key {
			return c, true
		}
	}
	return Criterion{}, false
}

type Question struct {
	ID              string       `json:"id" yaml:"id"`
	Type            QuestionType `json:"type" yaml:"type"`
	Prompt          string       `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Points          float64      `json:"points" yaml:"points"`
	Options         []Option     `json:"options,omitempty" yaml:"options,omitempty"`
	AcceptedAnswers []string     `json:"accepted_answers,omitempty" yaml:"accepted_answers,omitempty"`
	Rubric          *Rubric      `json:"rubric,omitempty" yaml:"rubric,omitempty"`
}

// CorrectOptions returns the texts of options flagged correct, in authoring order.
func (q Question) CorrectOptions() []string {
	var out []string
	for _, o := range q.Options {
		if o.IsCorrect {
			out = append(out, o.Text)
		}
	}
	return out
}

// StripKey returns a copy that is safe to show to a learner mid-attempt.
func (q Question) StripKey() Question {
	out := q
	out.AcceptedAnswers = nil
	if len(q.Options) > 0 {
		out.Options = make([]Option, len(q.Options))
		for i, o := range q.Options {
			out.Options[i] = Option{ID: o.ID, Text: o.Text}
		}
	}
	return out
}

func (q Question) validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("question id is required")
	}
	if !q.Type.Valid() {
		return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
	if q.Points <= 0 {
		return fmt.Errorf("question %s: points must be positive", q.ID)
	}
	correct := len(q.CorrectOptions())
	switch q.Type {
	case TypeMultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("question %s: multiple choice needs at least 2 options", q.ID)
		}
		if correct == 0 {
			return fmt.Errorf("question %s: multiple choice needs a correct option", q.ID)
		}
	case TypeTrueFalse:
		if len(q.Options) != 2 {
			return fmt.Errorf("question %s: true/false needs exactly 2 options", q.ID)
		}
		if correct != 1 {
			return fmt.Errorf("question %s: true/false needs exactly 1 correct option", q.ID)
		}
	case TypeFillBlank:
		ok := false
		for _, a := range q.AcceptedAnswers {
			if strings.TrimSpace(a) != "" {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("question %s: fill blank needs an accepted answer", q.ID)
		}
	case TypeCoding, TypeEssay:
		if q.Rubric != nil {
			if err := q.Rubric.validate(); err != nil {
				return fmt.Errorf("question %s: %v", q.ID, err)
			}
		}
	}
	if q.Rubric != nil && !q.Type.Subjective() {
		return fmt.Errorf("question %s: only coding and essay questions take a rubric", q.ID)
	}
	if q.Type == TypeMultipleChoice || q.Type == TypeTrueFalse {
		seen := map[string]bool{}
		for _, o := range q.Options {
			if seen[o.Text] {
				return fmt.Errorf("question %s: duplicate option %q", q.ID, o.Text)
			}
			seen[o.Text] = true
		}
	}
	return nil
}

func (r Rubric) validate() error {
	if len(r.Criteria) == 0 {
		return fmt.Errorf("rubric needs at least one criterion")
	}
	if r.Max < 0 {
		return fmt.Errorf("rubric max_points must not be negative")
	}
	seen := map[string]bool{}
	for _, c := range r.Criteria {
		if strings.TrimSpace(c.Key) == "" {
			return fmt.Errorf("rubric criterion key is required")
		}
		if seen[c.Key] {
			return fmt.Errorf("duplicate rubric criterion %q", c.Key)
		}
		seen[c.Key] = true
		if c.MaxPoints <= 0 {
			return fmt.Errorf("rubric criterion %q: max_points must be positive", c.Key)
		}
	}
	return nil
}

type Assessment struct {
	ID                   string     `json:"id" yaml:"id"`
	Version              int        `json:"version" yaml:"-"`
	Title                string     `json:"title" yaml:"title"`
	Questions            []Question `json:"questions" yaml:"questions"`
	PassingScorePercent  float64    `json:"passing_score_percent" yaml:"passing_score_percent"`
	TimeLimitSec         *int       `json:"time_limit_sec" yaml:"time_limit_sec"` // nil = untimed
	MaxAttempts          int        `json:"max_attempts" yaml:"max_attempts"`     // 0 = unlimited
	ShowCorrectAnswers   bool       `json:"show_correct_answers" yaml:"show_correct_answers"`
	PrerequisiteLessonID string     `json:"prerequisite_lesson_id,omitempty" yaml:"prerequisite_lesson_id,omitempty"`

	CreatedAt int64 `json:"created_at,omitempty" yaml:"-"`
}

func (a Assessment) TotalPoints() float64 {
	total := 0.0
	for _, q := range a.Questions {
		total += q.Points
	}
	return total
}

func (a Assessment) Timed() bool { return a.TimeLimitSec != nil }

func (a Assessment) TimeLimit() time.Duration {
	if a.TimeLimitSec == nil {
		return 0
	}
	return time.Duration(*a.TimeLimitSec) * time.Second
}

func (a Assessment) Question(id string) (Question, bool) {
	for _, q := range a.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// HasSubjective reports whether any question needs a reviewer.
func (a Assessment) HasSubjective() bool {
	for _, q := range a.Questions {
		if q.Type.Subjective() {
			return true
		}
	}
	return false
}

// LearnerView hides every answer key.
func (a Assessment) LearnerView() Assessment {
	out := a
	out.Questions = make([]Question, len(a.Questions))
	for i, q := range a.Questions {
		out.Questions[i] = q.StripKey()
	}
	return out
}

// Validate checks the structural rules every stored assessment must satisfy.
func (a Assessment) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidAssessment)
	}
	if len(a.Questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrInvalidAssessment)
	}
	if a.PassingScorePercent < 0 || a.PassingScorePercent > 100 {
		return fmt.Errorf("%w: passing_score_percent must be within 0..100", ErrInvalidAssessment)
	}
	if a.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must not be negative", ErrInvalidAssessment)
	}
	if a.TimeLimitSec != nil && *a.TimeLimitSec <= 0 {
		return fmt.Errorf("%w: time_limit_sec must be positive when set", ErrInvalidAssessment)
	}
	seen := map[string]bool{}
	for _, q := range a.Questions {
		if err := q.validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAssessment, err)
		}
		if seen[q.ID] {
			return fmt.Errorf("%w: duplicate question id %s", ErrInvalidAssessment, q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}

// Answer is either a single string or a set of strings. On the wire it is a
// bare JSON string or an array of strings.
type Answer struct {
	Text    string
	Choices []string
	set     bool // Choices was given, even if empty
}

func TextAnswer(s string) Answer            { return Answer{Text: s} }
func ChoiceAnswer(choices ...string) Answer { return Answer{Choices: choices, set: true} }

func (a Answer) IsSet() bool { return a.set || a.Choices != nil }

// Values returns the answer as a list regardless of its shape.
func (a Answer) Values() []string {
	if a.IsSet() {
		return a.Choices
	}
	return []string{a.Text}
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsSet() {
		if a.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Choices)
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var cs []string
		if err := json.Unmarshal(b, &cs); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
		}
		if cs == nil {
			cs = []string{}
		}
		*a = Answer{Choices: cs, set: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: answer must be a string or a list of strings", ErrInvalidAnswer)
	}
	*a = Answer{Text: s}
	return nil
}

// CheckShape verifies the answer can be scored against q.
func (a Answer) CheckShape(q Question) error {
	switch q.Type {
	case TypeMultipleChoice:
		// a single string is read as a one-element set
		return nil
	case TypeTrueFalse, TypeFillBlank, TypeCoding, TypeEssay:
		if a.IsSet() && len(a.Choices) > 1 {
			return fmt.Errorf("%w: question %s takes a single value", ErrInvalidAnswer, q.ID)
		}
		return nil
	}
	return fmt.Errorf("%w: question %s has unknown type %q", ErrInvalidAnswer, q.ID, q.Type)
}

type Status string

const (
	StatusInProgress    Status = "in_progress"
	StatusSubmitted     Status = "submitted"
	StatusPendingReview Status = "pending_review"
	StatusGraded        Status = "graded"
)

// CanTransition reports whether from -> to is a legal lifecycle step.
// graded -> graded is the in-place re-grade.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusInProgress:
		return to == StatusSubmitted
	case StatusSubmitted:
		return to == StatusPendingReview || to == StatusGraded
	case StatusPendingReview:
		return to == StatusPendingReview || to == StatusGraded
	case StatusGraded:
		return to == StatusGraded
	}
	return false
}

type Trigger string

const (
	TriggerUser  Trigger = "user"
	TriggerTimer Trigger = "timer"
)

type ItemResult struct {
	QuestionID    string       `json:"question_id"`
	Type          QuestionType `json:"type"`
	IsCorrect     *bool        `json:"is_correct,omitempty"`
	PointsAwarded *float64     `json:"points_awarded"`
	MaxPoints     float64      `json:"max_points"`
	NeedsManual   bool         `json:"needs_manual,omitempty"`
	GradingNotes  string       `json:"grading_notes,omitempty"`
	GradedBy      string       `json:"graded_by,omitempty"`
	GradedAt      *time.Time   `json:"graded_at,omitempty"`
}

// Pending reports a subjective item still waiting for a reviewer.
func (r ItemResult) Pending() bool { return r.PointsAwarded == nil }

type Attempt struct {
	ID                string            `json:"id"`
	AssessmentID      string            `json:"assessment_id"`
	AssessmentVersion int               `json:"assessment_version"`
	LearnerID         string            `json:"learner_id"`
	AttemptNumber     int               `json:"attempt_number"`
	Status            Status            `json:"status"`
	StartedAt         time.Time         `json:"started_at"`
	Deadline          *time.Time        `json:"deadline,omitempty"`
	SubmittedAt       *time.Time        `json:"submitted_at,omitempty"`
	TimeTakenSec      int               `json:"time_taken_sec"`
	AutoSubmitted     bool              `json:"auto_submitted"`
	Answers           map[string]Answer `json:"answers"`
	Results           []ItemResult      `json:"results,omitempty"`
	Score             float64           `json:"score"`
	Percentage        float64           `json:"percentage"`
	Passed            bool              `json:"passed"`
	Flags             map[string]string `json:"flags,omitempty"`
	Version           int               `json:"version"`
}

// Clone deep-copies the mutable maps and slices.
func (a Attempt) Clone() Attempt {
	out := a
	if a.Answers != nil {
		out.Answers = make(map[string]Answer, len(a.Answers))
		for k, v := range a.Answers {
			if v.Choices != nil {
				v.Choices = append([]string(nil), v.Choices...)
			}
			out.Answers[k] = v
		}
	}
	if a.Results != nil {
		out.Results = make([]ItemResult, len(a.Results))
		copy(out.Results, a.Results)
	}
	if a.Flags != nil {
		out.Flags = make(map[string]string, len(a.Flags))
		for k, v := range a.Flags {
			out.Flags[k] = v
		}
	}
	return out
}

// Result returns the stored result for a question.
func (a Attempt) Result(questionID string) (ItemResult, bool) {
	for _, r := range a.Results {
		if r.QuestionID == questionID {
			return r, true
		}
	}
	return ItemResult{}, false
}

// AttemptFilter narrows attempt listings. Stores return newest first
// (started_at desc, attempt_number desc).
type AttemptFilter struct {
	AssessmentID string
	LearnerID    string
	Statuses     []Status
	Limit        int // 0 = no limit
	Offset       int
}

func (f AttemptFilter) match(a Attempt) bool {
	if f.AssessmentID != "" && a.AssessmentID != f.AssessmentID {
		return false
	}
	if f.LearnerID != "" && a.LearnerID != f.LearnerID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if a.Status == s {
			return true
		}
	}
	return false
}
