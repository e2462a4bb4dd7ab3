package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/ledger"
)

func TestWriteStatistics(t *testing.T) {
	a := exam.Assessment{
		ID: "quiz", Version: 2, Title: "Quiz", PassingScorePercent: 60,
		Questions: []exam.Question{{ID: "q", Type: exam.TypeEssay, Points: 4}},
	}
	sub := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)
	attempts := []exam.Attempt{
		{ID: "t1", LearnerID: "ana", AttemptNumber: 1, AssessmentVersion: 2, Status: exam.StatusGraded,
			StartedAt: sub.Add(-5 * time.Minute), SubmittedAt: &sub, TimeTakenSec: 300, Score: 3, Percentage: 75, Passed: true},
		{ID: "t2", LearnerID: "ben", AttemptNumber: 1, AssessmentVersion: 2, Status: exam.StatusInProgress,
			StartedAt: sub},
	}
	st := ledger.Stats{AssessmentID: "quiz", Attempts: 2, Graded: 1, AveragePercentage: 75, PassRate: 100}

	var buf bytes.Buffer
	if err := WriteStatistics(&buf, a, st, attempts); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()

	if v, _ := f.GetCellValue(summarySheet, "B1"); v != "quiz" {
		t.Fatalf("summary B1 = %q", v)
	}
	if v, _ := f.GetCellValue(summarySheet, "B9"); v != "100" {
		t.Fatalf("pass rate cell = %q", v)
	}
	rows, err := f.GetRows(attemptsSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("want header + 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "t1" || rows[1][4] != "graded" || rows[1][6] != "2024-01-01T10:05:00Z" {
		t.Fatalf("row 1 = %v", rows[1])
	}
	if rows[2][6] != "" {
		t.Fatalf("open attempt has a submit time: %v", rows[2])
	}
}
