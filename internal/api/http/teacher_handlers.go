package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

const maxDefinitionBytes = 2 << 20

// POST /assessments  (JSON or YAML definition)
// Posting an existing id stores a new version; running attempts keep theirs.
func PutAssessmentHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxDefinitionBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		a, err := exam.DecodeAssessment(body)
		if err != nil {
			writeError(w, r, err)
			return
		}
		saved, err := store.PutAssessment(r.Context(), a)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"status": "ok", "id": saved.ID, "version": saved.Version})
	}
}

// GET /assessments/{assessmentID}
// Authors get the answer key; everyone else gets the learner view.
func GetAssessmentHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.GetAssessment(r.Context(), chi.URLParam(r, "assessmentID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !rbac.Allowed(r.Context(), "assessment:create") {
			a = a.LearnerView()
		}
		respondJSON(w, http.StatusOK, a)
	}
}

// GET /assessments?q=&limit=50&offset=0
func ListAssessmentsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListAssessments(r.Context(), exam.ListOpts{
			Q:      strings.TrimSpace(r.URL.Query().Get("q")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
