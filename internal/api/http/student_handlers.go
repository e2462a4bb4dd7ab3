package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/attempt"
	authmw "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/exam"
)

// POST /assessments/{assessmentID}/attempts
// The learner is always the authenticated subject.
func BeginAttemptHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learner := authmw.SubjectFromContext(r.Context())
		a, err := eng.Begin(r.Context(), learner, chi.URLParam(r, "assessmentID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, a)
	}
}

// loadOwned fetches the attempt and checks the caller may act on it. It
// writes the error response itself and returns false on failure.
func loadOwned(w http.ResponseWriter, r *http.Request, eng *attempt.Engine) (exam.Attempt, bool) {
	a, err := eng.Get(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, r, err)
		return exam.Attempt{}, false
	}
	if !canSeeAttempt(r, a) {
		// do not reveal other learners' attempt ids
		writeError(w, r, exam.ErrAttemptNotFound)
		return exam.Attempt{}, false
	}
	return a, true
}

// PUT /attempts/{attemptID}/answers/{questionID}  {"answer": "text" | ["a","b"]}
func RecordAnswerHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadOwned(w, r, eng)
		if !ok {
			return
		}
		var req struct {
			Answer *exam.Answer `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if errors.Is(err, exam.ErrInvalidAnswer) {
				writeError(w, r, err)
				return
			}
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Answer == nil {
			http.Error(w, "answer required", http.StatusBadRequest)
			return
		}
		updated, err := eng.RecordAnswer(r.Context(), a.ID, chi.URLParam(r, "questionID"), *req.Answer)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, updated)
	}
}

// POST /attempts/{attemptID}/submit  {"client_elapsed_sec": 42}
// Submissions over HTTP are always user triggered; only the server timer
// submits with the timer trigger.
func SubmitAttemptHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadOwned(w, r, eng)
		if !ok {
			return
		}
		var req struct {
			ClientElapsedSec *int `json:"client_elapsed_sec"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		out, err := eng.Submit(r.Context(), a.ID, attempt.SubmitRequest{
			Trigger:          exam.TriggerUser,
			ClientElapsedSec: req.ClientElapsedSec,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// POST /attempts/{attemptID}/flags  {"tab_switches": "3"}
func AttachFlagsHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadOwned(w, r, eng)
		if !ok {
			return
		}
		var flags map[string]string
		if err := json.NewDecoder(r.Body).Decode(&flags); err != nil {
			http.Error(w, "flags must be an object of strings", http.StatusBadRequest)
			return
		}
		out, err := eng.AttachFlags(r.Context(), a.ID, flags)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadOwned(w, r, eng)
		if !ok {
			return
		}
		respondJSON(w, http.StatusOK, a)
	}
}

// GET /attempts/{attemptID}/review
func ReviewHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadOwned(w, r, eng)
		if !ok {
			return
		}
		rv, err := eng.Review(r.Context(), a.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, rv)
	}
}

// GET /attempts/{attemptID}/timer
// The countdown shown to the learner is a hint; the server decides.
func TimerHandler(eng *attempt.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := loadOwned(w, r, eng)
		if !ok {
			return
		}
		left, timed, err := eng.Remaining(r.Context(), a.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := struct {
			Timed        bool        `json:"timed"`
			Status       exam.Status `json:"status"`
			RemainingSec int         `json:"remaining_sec"`
			Deadline     *time.Time  `json:"deadline,omitempty"`
		}{Timed: timed, Status: a.Status, RemainingSec: int(left / time.Second), Deadline: a.Deadline}
		respondJSON(w, http.StatusOK, out)
	}
}
