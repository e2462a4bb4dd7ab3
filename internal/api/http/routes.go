package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/attempt"
	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
)

// AuditReader reads the recorded lifecycle events of one attempt.
type AuditReader interface {
	ByKey(ctx context.Context, key string) ([]syncx.Event, error)
}

// Mount registers the assessment API on a router that already carries the
// JWT middleware. audit may be nil, which leaves out the events route.
func Mount(r chi.Router, store exam.Store, eng *attempt.Engine, audit AuditReader) {
	r.With(rbac.Require("assessment:create")).Post("/assessments", PutAssessmentHandler(store))
	r.With(rbac.Require("assessment:view")).Get("/assessments", ListAssessmentsHandler(store))
	r.With(rbac.Require("assessment:view")).Get("/assessments/{assessmentID}", GetAssessmentHandler(store))
	r.With(rbac.Require("attempt:create")).Post("/assessments/{assessmentID}/attempts", BeginAttemptHandler(eng))
	r.With(rbac.Require("stats:view")).Get("/assessments/{assessmentID}/statistics", StatisticsHandler(eng))
	r.With(rbac.RequireAll("stats:report", "assessment:view")).Get("/assessments/{assessmentID}/report.xlsx", StatisticsReportHandler(store, eng))
	r.With(rbac.Require("stats:view")).Get("/statistics", StatisticsByAssessmentHandler(eng))

	r.Route("/attempts/{attemptID}", func(ar chi.Router) {
		ar.With(rbac.Require("attempt:save")).Put("/answers/{questionID}", RecordAnswerHandler(eng))
		ar.With(rbac.Require("attempt:submit")).Post("/submit", SubmitAttemptHandler(eng))
		ar.With(rbac.Require("attempt:flag")).Post("/flags", AttachFlagsHandler(eng))
		ar.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/", GetAttemptHandler(eng))
		ar.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/review", ReviewHandler(eng))
		ar.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/timer", TimerHandler(eng))
		ar.With(rbac.Require("attempt:grade")).Post("/grades", ApplyGradesHandler(eng))
		if audit != nil {
			ar.With(rbac.Require("attempt:view-all")).Get("/events", AuditTrailHandler(eng, audit))
		}
	})
	r.With(rbac.Require("attempt:grade")).Get("/grading/pending", PendingReviewHandler(eng))

	learner := func(r *http.Request) string { return chi.URLParam(r, "learnerID") }
	r.With(rbac.RequireLearner("history:view-own", "history:view-all", learner)).
		Get("/learners/{learnerID}/attempts", HistoryHandler(eng))
	r.With(rbac.RequireLearner("history:view-own", "history:view-all", learner)).
		Get("/learners/{learnerID}/assessments/{assessmentID}/best", BestScoreHandler(eng))
}

// canSeeAttempt lets reviewers read every attempt and learners only their own.
func canSeeAttempt(r *http.Request, a exam.Attempt) bool {
	return rbac.CanActFor(r.Context(), a.LearnerID, "attempt:view-own", "attempt:view-all")
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
