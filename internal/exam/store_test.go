package exam_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/exam"
)

func sample(id string) exam.Assessment {
	limit := 120
	return exam.Assessment{
		ID:                  id,
		Title:               "Sample " + id,
		PassingScorePercent: 60,
		TimeLimitSec:        &limit,
		MaxAttempts:         2,
		Questions: []exam.Question{
			{ID: "q1", Type: exam.TypeMultipleChoice, Points: 1, Options: []exam.Option{
				{Text: "A", IsCorrect: true}, {Text: "B"},
			}},
			{ID: "q2", Type: exam.TypeEssay, Points: 4, Prompt: "Discuss."},
		},
	}
}

func newAttempt(id, assessmentID, learner string, n int, started time.Time) exam.Attempt {
	return exam.Attempt{
		ID:                id,
		AssessmentID:      assessmentID,
		AssessmentVersion: 1,
		LearnerID:         learner,
		AttemptNumber:     n,
		Status:            exam.StatusInProgress,
		StartedAt:         started,
		Answers:           map[string]exam.Answer{},
	}
}

func stores(t *testing.T) map[string]exam.Store {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return map[string]exam.Store{
		"memory": exam.NewInMemoryStore(),
		"sqlite": exam.NewSQLStore(conn, db.DriverSQLite.SQLName()),
	}
}

func TestStore_AssessmentVersions(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			v1, err := s.PutAssessment(ctx, sample("a"))
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if v1.Version != 1 {
				t.Fatalf("first version = %d", v1.Version)
			}
			edit := sample("a")
			edit.Title = "Edited"
			v2, _ := s.PutAssessment(ctx, edit)
			if v2.Version != 2 {
				t.Fatalf("second version = %d", v2.Version)
			}
			latest, err := s.GetAssessment(ctx, "a")
			if err != nil || latest.Title != "Edited" || latest.Version != 2 {
				t.Fatalf("latest = %+v err=%v", latest, err)
			}
			old, err := s.GetAssessmentVersion(ctx, "a", 1)
			if err != nil || old.Title != "Sample a" {
				t.Fatalf("v1 = %+v err=%v", old, err)
			}
			if *old.TimeLimitSec != 120 || len(old.Questions) != 2 || !old.Questions[0].Options[0].IsCorrect {
				t.Fatalf("v1 lost fields: %+v", old)
			}
			if _, err := s.GetAssessment(ctx, "missing"); !errors.Is(err, exam.ErrAssessmentNotFound) {
				t.Fatalf("want not found, got %v", err)
			}
			if _, err := s.PutAssessment(ctx, exam.Assessment{ID: "bad"}); !errors.Is(err, exam.ErrInvalidAssessment) {
				t.Fatalf("invalid assessment stored: %v", err)
			}
			list, err := s.ListAssessments(ctx, exam.ListOpts{Q: "edit"})
			if err != nil || len(list) != 1 || list[0].Version != 2 {
				t.Fatalf("list = %+v err=%v", list, err)
			}
		})
	}
}

func TestStore_AttemptLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.PutAssessment(ctx, sample("a"))
			start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			a := newAttempt("t1", "a", "lee", 1, start)
			deadline := start.Add(2 * time.Minute)
			a.Deadline = &deadline

			created, err := s.CreateAttempt(ctx, a)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created.Version != 1 {
				t.Fatalf("version = %d", created.Version)
			}
			if _, err := s.CreateAttempt(ctx, newAttempt("t2", "a", "lee", 2, start)); !errors.Is(err, exam.ErrAttemptAlreadyInProgress) {
				t.Fatalf("second open attempt: %v", err)
			}

			created.Answers["q1"] = exam.ChoiceAnswer("A")
			created.Flags = map[string]string{"focus_lost": "2"}
			upd, err := s.UpdateAttempt(ctx, created)
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if upd.Version != 2 {
				t.Fatalf("version after update = %d", upd.Version)
			}
			if _, err := s.UpdateAttempt(ctx, created); !errors.Is(err, exam.ErrVersionConflict) {
				t.Fatalf("stale write: want ErrVersionConflict, got %v", err)
			}

			open, _ := s.ListOpenTimed(ctx)
			if len(open) != 1 || open[0].ID != "t1" {
				t.Fatalf("open timed = %+v", open)
			}

			pts, ok := 1.0, true
			sub := start.Add(time.Minute)
			upd.Status = exam.StatusGraded
			upd.SubmittedAt = &sub
			upd.TimeTakenSec = 60
			upd.Results = []exam.ItemResult{{QuestionID: "q1", Type: exam.TypeMultipleChoice, IsCorrect: &ok, PointsAwarded: &pts, MaxPoints: 1}}
			upd.Score, upd.Percentage = 1, 20
			if _, err := s.UpdateAttempt(ctx, upd); err != nil {
				t.Fatalf("final update: %v", err)
			}

			got, err := s.GetAttempt(ctx, "t1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != exam.StatusGraded || got.Version != 3 || !got.StartedAt.Equal(start) || !got.SubmittedAt.Equal(sub) {
				t.Fatalf("got %+v", got)
			}
			if got.Answers["q1"].Values()[0] != "A" || got.Flags["focus_lost"] != "2" || *got.Results[0].PointsAwarded != 1 {
				t.Fatalf("payload lost: %+v", got)
			}
			if open, _ := s.ListOpenTimed(ctx); len(open) != 0 {
				t.Fatalf("closed attempt still listed as open")
			}

			// a new attempt is allowed once the first is closed
			if _, err := s.CreateAttempt(ctx, newAttempt("t2", "a", "lee", 2, start.Add(time.Hour))); err != nil {
				t.Fatalf("create after close: %v", err)
			}
			if _, err := s.CreateAttempt(ctx, newAttempt("t3", "a", "lee", 2, start.Add(2*time.Hour))); err == nil {
				t.Fatalf("duplicate attempt number accepted")
			}
			if _, err := s.GetAttempt(ctx, "nope"); !errors.Is(err, exam.ErrAttemptNotFound) {
				t.Fatalf("want not found, got %v", err)
			}
		})
	}
}

func TestStore_ListAttemptsFilterAndOrder(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.PutAssessment(ctx, sample("a"))
			s.PutAssessment(ctx, sample("b"))
			base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
			for i, tc := range []struct {
				id, assessment, learner string
				n                       int
				status                  exam.Status
			}{
				{"x1", "a", "kim", 1, exam.StatusGraded},
				{"x2", "a", "kim", 2, exam.StatusPendingReview},
				{"x3", "b", "kim", 1, exam.StatusInProgress},
				{"x4", "a", "ray", 1, exam.StatusGraded},
			} {
				a := newAttempt(tc.id, tc.assessment, tc.learner, tc.n, base.Add(time.Duration(i)*time.Hour))
				c, err := s.CreateAttempt(ctx, a)
				if err != nil {
					t.Fatalf("create %s: %v", tc.id, err)
				}
				c.Status = tc.status
				if _, err := s.UpdateAttempt(ctx, c); err != nil {
					t.Fatalf("update %s: %v", tc.id, err)
				}
			}

			kim, _ := s.ListAttempts(ctx, exam.AttemptFilter{LearnerID: "kim"})
			if ids(kim) != "x3,x2,x1" {
				t.Fatalf("newest first: got %s", ids(kim))
			}
			review, _ := s.ListAttempts(ctx, exam.AttemptFilter{
				AssessmentID: "a",
				Statuses:     []exam.Status{exam.StatusPendingReview, exam.StatusGraded},
			})
			if ids(review) != "x4,x2,x1" {
				t.Fatalf("status filter: got %s", ids(review))
			}
			paged, _ := s.ListAttempts(ctx, exam.AttemptFilter{LearnerID: "kim", Limit: 1, Offset: 1})
			if ids(paged) != "x2" {
				t.Fatalf("paging: got %s", ids(paged))
			}
			if n, _ := s.CountAttempts(ctx, "a", "kim"); n != 2 {
				t.Fatalf("count = %d", n)
			}
		})
	}
}

func ids(as []exam.Attempt) string {
	out := ""
	for i, a := range as {
		if i > 0 {
			out += ","
		}
		out += a.ID
	}
	return out
}
