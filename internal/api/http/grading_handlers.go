package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/attempt"
	authmw "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/exam"
)

// GET /grading/pending?assessment_id=
func PendingReviewHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := eng.ListPendingReview(r.Context(), strings.TrimSpace(r.URL.Query().Get("assessment_id")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

type applyGradesReq struct {
	Grades []attempt.GradeInput `json:"grades"`
}

// POST /attempts/{attemptID}/grades
// Entries are applied one by one; rejected entries come back with a reason
// while the accepted ones still take effect.
func ApplyGradesHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		var req applyGradesReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Grades) == 0 {
			http.Error(w, "grades required", http.StatusBadRequest)
			return
		}
		reviewer := authmw.SubjectFromContext(r.Context())
		res, err := eng.ApplyManualGrades(r.Context(), attemptID, reviewer, req.Grades)
		if errors.Is(err, exam.ErrInvalidGrade) {
			respondJSON(w, http.StatusUnprocessableEntity, res)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

type auditEntry struct {
	Offset    int64           `json:"offset"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

// GET /attempts/{attemptID}/events
func AuditTrailHandler(eng *attempt.Engine, audit AuditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := eng.Get(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		evs, err := audit.ByKey(r.Context(), a.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]auditEntry, 0, len(evs))
		for _, e := range evs {
			out = append(out, auditEntry{Offset: e.Offset, Type: e.Type, Data: json.RawMessage(e.DataJSON), CreatedAt: e.CreatedAt})
		}
		respondJSON(w, http.StatusOK, out)
	}
}
