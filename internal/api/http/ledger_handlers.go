package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/attempt"
	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/report"
)

// GET /learners/{learnerID}/attempts?assessment_id=&page=1&page_size=20
func HistoryHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		p, err := eng.Ledger().History(r.Context(),
			chi.URLParam(r, "learnerID"),
			strings.TrimSpace(q.Get("assessment_id")),
			parseIntDefault(q.Get("page"), 1),
			parseIntDefault(q.Get("page_size"), 0),
		)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, p)
	}
}

// GET /learners/{learnerID}/assessments/{assessmentID}/best
func BestScoreHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		best, ok, err := eng.Ledger().BestScore(r.Context(), chi.URLParam(r, "learnerID"), chi.URLParam(r, "assessmentID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			http.Error(w, "no graded attempt", http.StatusNotFound)
			return
		}
		respondJSON(w, http.StatusOK, best)
	}
}

// GET /assessments/{assessmentID}/statistics
func StatisticsHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := eng.Ledger().Statistics(r.Context(), chi.URLParam(r, "assessmentID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, st)
	}
}

// GET /statistics?learner_id=
func StatisticsByAssessmentHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := eng.Ledger().StatisticsByAssessment(r.Context(), strings.TrimSpace(r.URL.Query().Get("learner_id")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// GET /assessments/{assessmentID}/report.xlsx
func StatisticsReportHandler(store exam.Store, eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "assessmentID")
		a, err := store.GetAssessment(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		st, err := eng.Ledger().Statistics(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		list, err := store.ListAttempts(r.Context(), exam.AttemptFilter{AssessmentID: id})
		if err != nil {
			writeError(w, r, err)
			return
		}
		var buf bytes.Buffer
		if err := report.WriteStatistics(&buf, a, st, list); err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-statistics.xlsx"`, id))
		_, _ = w.Write(buf.Bytes())
	}
}
