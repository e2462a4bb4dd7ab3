package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mind-engage/mindengage-assess/internal/exam"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{exam.ErrAttemptLimitExceeded, "attempt_limit_exceeded", http.StatusConflict},
	{exam.ErrAttemptAlreadyInProgress, "attempt_already_in_progress", http.StatusConflict},
	{exam.ErrAttemptAlreadySubmitted, "attempt_already_submitted", http.StatusConflict},
	{exam.ErrAttemptNotSubmitted, "attempt_not_submitted", http.StatusConflict},
	{exam.ErrVersionConflict, "version_conflict", http.StatusConflict},
	{exam.ErrPrerequisiteNotMet, "prerequisite_not_met", http.StatusForbidden},
	{exam.ErrAssessmentNotFound, "assessment_not_found", http.StatusNotFound},
	{exam.ErrAttemptNotFound, "attempt_not_found", http.StatusNotFound},
	{exam.ErrQuestionNotFound, "question_not_found", http.StatusNotFound},
	{exam.ErrInvalidAssessment, "invalid_assessment", http.StatusBadRequest},
	{exam.ErrInvalidAnswer, "invalid_answer", http.StatusBadRequest},
	{exam.ErrInvalidGrade, "invalid_grade", http.StatusUnprocessableEntity},
	{exam.ErrPrerequisiteCheckFailed, "prerequisite_check_failed", http.StatusServiceUnavailable},
	{exam.ErrInvariantViolation, "internal", http.StatusInternalServerError},
}

// classify maps an engine error to its wire code and HTTP status.
func classify(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return "internal", http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := classify(err)
	msg := err.Error()
	if status >= 500 && status != http.StatusServiceUnavailable {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		msg = "internal error"
	}
	respondJSON(w, status, errorBody{Error: code, Message: msg})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
