// Package report renders assessment statistics as spreadsheets for course
// staff.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/ledger"
)

const (
	summarySheet  = "Summary"
	attemptsSheet = "Attempts"
)

var attemptHeader = []interface{}{
	"Attempt", "Learner", "Number", "Version", "Status", "Started", "Submitted",
	"Time taken (s)", "Auto-submitted", "Score", "Percentage", "Passed",
}

// WriteStatistics writes a two-sheet workbook: aggregate figures for the
// assessment and one row per attempt in the order given.
func WriteStatistics(w io.Writer, a exam.Assessment, st ledger.Stats, attempts []exam.Attempt) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", summarySheet)
	summary := [][]interface{}{
		{"Assessment", a.ID},
		{"Title", a.Title},
		{"Version", a.Version},
		{"Total points", a.TotalPoints()},
		{"Passing score (%)", a.PassingScorePercent},
		{"Attempts", st.Attempts},
		{"Graded", st.Graded},
		{"Average percentage", st.AveragePercentage},
		{"Pass rate (%)", st.PassRate},
	}
	for i, row := range summary {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 22); err != nil {
		return err
	}

	if _, err := f.NewSheet(attemptsSheet); err != nil {
		return fmt.Errorf("add attempts sheet: %w", err)
	}
	if err := setRow(f, attemptsSheet, 1, attemptHeader); err != nil {
		return err
	}
	for i, at := range attempts {
		submitted := ""
		if at.SubmittedAt != nil {
			submitted = at.SubmittedAt.UTC().Format(time.RFC3339)
		}
		row := []interface{}{
			at.ID, at.LearnerID, at.AttemptNumber, at.AssessmentVersion, string(at.Status),
			at.StartedAt.UTC().Format(time.RFC3339), submitted,
			at.TimeTakenSec, at.AutoSubmitted, at.Score, at.Percentage, at.Passed,
		}
		if err := setRow(f, attemptsSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}
