package grading_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/grading"
)

func mcq(id string, correct ...string) exam.Question {
	opts := []exam.Option{}
	isCorrect := map[string]bool{}
	for _, c := range correct {
		isCorrect[c] = true
	}
	for _, t := range []string{"A", "B", "C", "D"} {
		opts = append(opts, exam.Option{Text: t, IsCorrect: isCorrect[t]})
	}
	return exam.Question{ID: id, Type: exam.TypeMultipleChoice, Points: 1, Options: opts}
}

func fourMCQ() exam.Assessment {
	return exam.Assessment{
		ID:                  "quiz-1",
		PassingScorePercent: 75,
		Questions:           []exam.Question{mcq("q1", "A"), mcq("q2", "B"), mcq("q3", "C"), mcq("q4", "A", "D")},
	}
}

func TestScore_ThreeOfFourPasses(t *testing.T) {
	a := fourMCQ()
	answers := map[string]exam.Answer{
		"q1": exam.ChoiceAnswer("A"),
		"q2": exam.ChoiceAnswer("B"),
		"q3": exam.ChoiceAnswer("C"),
		"q4": exam.ChoiceAnswer("A"), // subset of the key: wrong
	}
	out, err := grading.Score(a, answers, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if out.Score != 3 || out.Percentage != 75.0 || !out.Passed {
		t.Fatalf("got score=%v pct=%v passed=%v; want 3, 75.0, true", out.Score, out.Percentage, out.Passed)
	}
	if !out.Complete || out.Status() != exam.StatusGraded {
		t.Fatalf("objective-only outcome should be complete")
	}
	if *out.Results[3].IsCorrect {
		t.Fatalf("partial subset must be incorrect")
	}
}

func TestScore_MultipleChoiceOrderIndependent(t *testing.T) {
	a := exam.Assessment{ID: "x", Questions: []exam.Question{mcq("q", "A", "D")}}
	out, err := grading.Score(a, map[string]exam.Answer{"q": exam.ChoiceAnswer("D", "A")}, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if out.Score != 1 {
		t.Fatalf("expected full credit for reordered set, got %v", out.Score)
	}
	out, _ = grading.Score(a, map[string]exam.Answer{"q": exam.ChoiceAnswer("A", "B", "D")}, nil)
	if out.Score != 0 {
		t.Fatalf("superset must score 0, got %v", out.Score)
	}
}

func TestScore_TrueFalse(t *testing.T) {
	q := exam.Question{ID: "tf", Type: exam.TypeTrueFalse, Points: 2, Options: []exam.Option{
		{Text: "True"}, {Text: "False", IsCorrect: true},
	}}
	a := exam.Assessment{ID: "x", PassingScorePercent: 50, Questions: []exam.Question{q}}
	cases := []struct {
		ans  exam.Answer
		want float64
	}{
		{exam.TextAnswer("False"), 2},
		{exam.TextAnswer(" False "), 2},
		{exam.TextAnswer("True"), 0},
		{exam.ChoiceAnswer("False"), 2},
		{exam.ChoiceAnswer(), 0},
	}
	for _, c := range cases {
		out, err := grading.Score(a, map[string]exam.Answer{"tf": c.ans}, nil)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if out.Score != c.want {
			t.Fatalf("answer %+v: got %v want %v", c.ans, out.Score, c.want)
		}
	}
}

func TestScore_FillBlankTrimmedCaseInsensitive(t *testing.T) {
	q := exam.Question{ID: "fb", Type: exam.TypeFillBlank, Points: 1, AcceptedAnswers: []string{"Paris", "paris "}}
	a := exam.Assessment{ID: "x", Questions: []exam.Question{q}}
	for _, in := range []string{" PARIS", "paris", "Paris\t"} {
		out, err := grading.Score(a, map[string]exam.Answer{"fb": exam.TextAnswer(in)}, nil)
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		if out.Score != 1 {
			t.Fatalf("%q should match", in)
		}
	}
	for _, in := range []string{"Pariss", "", "Paris."} {
		out, _ := grading.Score(a, map[string]exam.Answer{"fb": exam.TextAnswer(in)}, nil)
		if out.Score != 0 {
			t.Fatalf("%q should not match", in)
		}
	}
}

func TestScore_EssayHeldUntilGraded(t *testing.T) {
	a := exam.Assessment{ID: "mixed", PassingScorePercent: 50, Questions: []exam.Question{
		mcq("m1", "A"), mcq("m2", "B"),
		{ID: "e1", Type: exam.TypeEssay, Points: 3},
	}}
	answers := map[string]exam.Answer{
		"m1": exam.ChoiceAnswer("A"),
		"m2": exam.ChoiceAnswer("B"),
		"e1": exam.TextAnswer("an essay"),
	}
	out, err := grading.Score(a, answers, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if out.Complete || out.Status() != exam.StatusPendingReview {
		t.Fatalf("essay without a grade must keep the outcome pending")
	}
	if out.Score != 2 {
		t.Fatalf("score = %v, want 2", out.Score)
	}
	if out.Results[2].PointsAwarded != nil || !out.Results[2].NeedsManual {
		t.Fatalf("essay points must stay unset: %+v", out.Results[2])
	}

	out, err = grading.Score(a, answers, map[string]grading.Manual{
		"e1": {Points: 2, Notes: "solid", GradedBy: "rev", GradedAt: time.Unix(100, 0)},
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !out.Complete || out.Score != 4 || out.Percentage != 100.0 {
		t.Fatalf("after grading got complete=%v score=%v pct=%v", out.Complete, out.Score, out.Percentage)
	}
	if out.Results[2].GradingNotes != "solid" || out.Results[2].GradedBy != "rev" {
		t.Fatalf("manual notes lost: %+v", out.Results[2])
	}
}

func TestScore_Deterministic(t *testing.T) {
	a := fourMCQ()
	answers := map[string]exam.Answer{"q1": exam.ChoiceAnswer("A"), "q4": exam.ChoiceAnswer("D", "A")}
	first, err := grading.Score(a, answers, nil)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, _ := grading.Score(a, answers, nil)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestScore_UnknownTypeIsError(t *testing.T) {
	a := exam.Assessment{ID: "x", Questions: []exam.Question{{ID: "q", Type: "matching", Points: 1}}}
	if _, err := grading.Score(a, nil, nil); !errors.Is(err, exam.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestPercentageRounding(t *testing.T) {
	cases := []struct{ score, total, want float64 }{
		{1, 3, 33.3},
		{2, 3, 66.7},
		{0, 4, 0},
		{4, 4, 100},
		{1, 8, 12.5},
	}
	for _, c := range cases {
		if got := grading.Percentage(c.score, c.total); got != c.want {
			t.Fatalf("Percentage(%v,%v) = %v, want %v", c.score, c.total, got, c.want)
		}
	}
}

func TestCheckInvariants(t *testing.T) {
	a := fourMCQ()
	out, _ := grading.Score(a, map[string]exam.Answer{"q1": exam.ChoiceAnswer("A")}, nil)
	at := exam.Attempt{Status: out.Status(), Results: out.Results, Score: out.Score, Percentage: out.Percentage, Passed: out.Passed}
	if err := grading.CheckInvariants(a, at); err != nil {
		t.Fatalf("consistent attempt rejected: %v", err)
	}
	bad := at
	bad.Score = 2
	if err := grading.CheckInvariants(a, bad); !errors.Is(err, exam.ErrInvariantViolation) {
		t.Fatalf("score mismatch not caught: %v", err)
	}
	bad = at
	bad.Passed = true
	if err := grading.CheckInvariants(a, bad); !errors.Is(err, exam.ErrInvariantViolation) {
		t.Fatalf("passed mismatch not caught: %v", err)
	}
}
