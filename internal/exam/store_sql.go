package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an opened handle; driverName is the database/sql driver
// name ("sqlite" or "pgx"). Both accept $N placeholders.
func NewSQLStore(db *sql.DB, driverName string) *SQLStore {
	return &SQLStore{db: sqlx.NewDb(db, driverName)}
}

type assessmentRow struct {
	ID                   string        `db:"id"`
	Version              int           `db:"version"`
	Title                string        `db:"title"`
	PassingScorePercent  float64       `db:"passing_score_percent"`
	TimeLimitSec         sql.NullInt64 `db:"time_limit_sec"`
	MaxAttempts          int           `db:"max_attempts"`
	ShowCorrectAnswers   bool          `db:"show_correct_answers"`
	PrerequisiteLessonID string        `db:"prerequisite_lesson_id"`
	QuestionsJSON        string        `db:"questions_json"`
	CreatedAt            int64         `db:"created_at"`
}

func (r assessmentRow) toAssessment() (Assessment, error) {
	a := Assessment{
		ID:                   r.ID,
		Version:              r.Version,
		Title:                r.Title,
		PassingScorePercent:  r.PassingScorePercent,
		MaxAttempts:          r.MaxAttempts,
		ShowCorrectAnswers:   r.ShowCorrectAnswers,
		PrerequisiteLessonID: r.PrerequisiteLessonID,
		CreatedAt:            r.CreatedAt,
	}
	if r.TimeLimitSec.Valid {
		v := int(r.TimeLimitSec.Int64)
		a.TimeLimitSec = &v
	}
	if err := json.Unmarshal([]byte(r.QuestionsJSON), &a.Questions); err != nil {
		return Assessment{}, fmt.Errorf("decode questions of %s v%d: %w", r.ID, r.Version, err)
	}
	return a, nil
}

const assessmentCols = `id,version,title,passing_score_percent,time_limit_sec,max_attempts,
	show_correct_answers,prerequisite_lesson_id,questions_json,created_at`

func (s *SQLStore) PutAssessment(ctx context.Context, a Assessment) (Assessment, error) {
	if err := a.Validate(); err != nil {
		return Assessment{}, err
	}
	qj, err := json.Marshal(a.Questions)
	if err != nil {
		return Assessment{}, err
	}
	var limit sql.NullInt64
	if a.TimeLimitSec != nil {
		limit = sql.NullInt64{Int64: int64(*a.TimeLimitSec), Valid: true}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Assessment{}, err
	}
	defer tx.Rollback()

	var latest int
	if err := tx.GetContext(ctx, &latest, `SELECT COALESCE(MAX(version),0) FROM assessments WHERE id=$1`, a.ID); err != nil {
		return Assessment{}, err
	}
	a.Version = latest + 1
	a.CreatedAt = time.Now().Unix()
	_, err = tx.ExecContext(ctx, `INSERT INTO assessments (`+assessmentCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.Version, a.Title, a.PassingScorePercent, limit, a.MaxAttempts,
		a.ShowCorrectAnswers, a.PrerequisiteLessonID, string(qj), a.CreatedAt)
	if err != nil {
		return Assessment{}, err
	}
	if err := tx.Commit(); err != nil {
		return Assessment{}, err
	}
	return a, nil
}

func (s *SQLStore) GetAssessment(ctx context.Context, id string) (Assessment, error) {
	var r assessmentRow
	err := s.db.GetContext(ctx, &r, `SELECT `+assessmentCols+` FROM assessments
		WHERE id=$1 ORDER BY version DESC LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Assessment{}, ErrAssessmentNotFound
	}
	if err != nil {
		return Assessment{}, err
	}
	return r.toAssessment()
}

func (s *SQLStore) GetAssessmentVersion(ctx context.Context, id string, version int) (Assessment, error) {
	var r assessmentRow
	err := s.db.GetContext(ctx, &r, `SELECT `+assessmentCols+` FROM assessments WHERE id=$1 AND version=$2`, id, version)
	if errors.Is(err, sql.ErrNoRows) {
		return Assessment{}, fmt.Errorf("%w: %s v%d", ErrAssessmentNotFound, id, version)
	}
	if err != nil {
		return Assessment{}, err
	}
	return r.toAssessment()
}

func (s *SQLStore) ListAssessments(ctx context.Context, opts ListOpts) ([]AssessmentSummary, error) {
	query := `SELECT ` + assessmentCols + ` FROM assessments a
		WHERE version = (SELECT MAX(version) FROM assessments b WHERE b.id = a.id)`
	args := []any{}
	if q := strings.TrimSpace(opts.Q); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		query += fmt.Sprintf(` AND LOWER(title) LIKE $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, id`
	query, args = withPaging(query, args, opts.Limit, opts.Offset)

	var rows []assessmentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]AssessmentSummary, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAssessment()
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(a))
	}
	return out, nil
}

type attemptRow struct {
	ID                string        `db:"id"`
	AssessmentID      string        `db:"assessment_id"`
	AssessmentVersion int           `db:"assessment_version"`
	LearnerID         string        `db:"learner_id"`
	AttemptNumber     int           `db:"attempt_number"`
	Status            string        `db:"status"`
	StartedAt         int64         `db:"started_at"`
	Deadline          sql.NullInt64 `db:"deadline"`
	SubmittedAt       sql.NullInt64 `db:"submitted_at"`
	TimeTakenSec      int           `db:"time_taken_sec"`
	AutoSubmitted     bool          `db:"auto_submitted"`
	AnswersJSON       string        `db:"answers_json"`
	ResultsJSON       string        `db:"results_json"`
	Score             float64       `db:"score"`
	Percentage        float64       `db:"percentage"`
	Passed            bool          `db:"passed"`
	FlagsJSON         string        `db:"flags_json"`
	Version           int           `db:"version"`
}

const attemptCols = `id,assessment_id,assessment_version,learner_id,attempt_number,status,
	started_at,deadline,submitted_at,time_taken_sec,auto_submitted,answers_json,results_json,
	score,percentage,passed,flags_json,version`

func toRow(a Attempt) (attemptRow, error) {
	r := attemptRow{
		ID:                a.ID,
		AssessmentID:      a.AssessmentID,
		AssessmentVersion: a.AssessmentVersion,
		LearnerID:         a.LearnerID,
		AttemptNumber:     a.AttemptNumber,
		Status:            string(a.Status),
		StartedAt:         a.StartedAt.UnixMilli(),
		Deadline:          nullMillis(a.Deadline),
		SubmittedAt:       nullMillis(a.SubmittedAt),
		TimeTakenSec:      a.TimeTakenSec,
		AutoSubmitted:     a.AutoSubmitted,
		Score:             a.Score,
		Percentage:        a.Percentage,
		Passed:            a.Passed,
		Version:           a.Version,
	}
	answers := a.Answers
	if answers == nil {
		answers = map[string]Answer{}
	}
	results := a.Results
	if results == nil {
		results = []ItemResult{}
	}
	flags := a.Flags
	if flags == nil {
		flags = map[string]string{}
	}
	for _, v := range []struct {
		dst *string
		src any
	}{{&r.AnswersJSON, answers}, {&r.ResultsJSON, results}, {&r.FlagsJSON, flags}} {
		b, err := json.Marshal(v.src)
		if err != nil {
			return attemptRow{}, err
		}
		*v.dst = string(b)
	}
	return r, nil
}

func (r attemptRow) toAttempt() (Attempt, error) {
	a := Attempt{
		ID:                r.ID,
		AssessmentID:      r.AssessmentID,
		AssessmentVersion: r.AssessmentVersion,
		LearnerID:         r.LearnerID,
		AttemptNumber:     r.AttemptNumber,
		Status:            Status(r.Status),
		StartedAt:         time.UnixMilli(r.StartedAt).UTC(),
		Deadline:          fromMillis(r.Deadline),
		SubmittedAt:       fromMillis(r.SubmittedAt),
		TimeTakenSec:      r.TimeTakenSec,
		AutoSubmitted:     r.AutoSubmitted,
		Score:             r.Score,
		Percentage:        r.Percentage,
		Passed:            r.Passed,
		Version:           r.Version,
		Answers:           map[string]Answer{},
	}
	if err := json.Unmarshal([]byte(r.AnswersJSON), &a.Answers); err != nil {
		return Attempt{}, fmt.Errorf("decode answers of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.ResultsJSON), &a.Results); err != nil {
		return Attempt{}, fmt.Errorf("decode results of %s: %w", r.ID, err)
	}
	if len(a.Results) == 0 {
		a.Results = nil
	}
	if err := json.Unmarshal([]byte(r.FlagsJSON), &a.Flags); err != nil {
		a.Flags = nil
	}
	if len(a.Flags) == 0 {
		a.Flags = nil
	}
	return a, nil
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	a.Version = 1
	r, err := toRow(a)
	if err != nil {
		return Attempt{}, err
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO attempts (`+attemptCols+`) VALUES
		(:id,:assessment_id,:assessment_version,:learner_id,:attempt_number,:status,
		 :started_at,:deadline,:submitted_at,:time_taken_sec,:auto_submitted,:answers_json,:results_json,
		 :score,:percentage,:passed,:flags_json,:version)`, r)
	if err != nil {
		if isUniqueViolation(err) {
			return Attempt{}, ErrAttemptAlreadyInProgress
		}
		if isForeignKeyViolation(err) {
			return Attempt{}, ErrAssessmentNotFound
		}
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	var r attemptRow
	err := s.db.GetContext(ctx, &r, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, err
	}
	return r.toAttempt()
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	r, err := toRow(a)
	if err != nil {
		return Attempt{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET
		status=$1, submitted_at=$2, time_taken_sec=$3, auto_submitted=$4, answers_json=$5,
		results_json=$6, score=$7, percentage=$8, passed=$9, flags_json=$10, version=version+1
		WHERE id=$11 AND version=$12`,
		r.Status, r.SubmittedAt, r.TimeTakenSec, r.AutoSubmitted, r.AnswersJSON,
		r.ResultsJSON, r.Score, r.Percentage, r.Passed, r.FlagsJSON, r.ID, r.Version)
	if err != nil {
		return Attempt{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Attempt{}, err
	}
	if n == 0 {
		if _, gerr := s.GetAttempt(ctx, a.ID); errors.Is(gerr, ErrAttemptNotFound) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, ErrVersionConflict
	}
	a.Version++
	return a, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, f AttemptFilter) ([]Attempt, error) {
	query := `SELECT ` + attemptCols + ` FROM attempts WHERE 1=1`
	args := []any{}
	if f.AssessmentID != "" {
		args = append(args, f.AssessmentID)
		query += fmt.Sprintf(` AND assessment_id=$%d`, len(args))
	}
	if f.LearnerID != "" {
		args = append(args, f.LearnerID)
		query += fmt.Sprintf(` AND learner_id=$%d`, len(args))
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			args = append(args, string(st))
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		query += ` AND status IN (` + strings.Join(ph, ",") + `)`
	}
	query += ` ORDER BY started_at DESC, attempt_number DESC, id DESC`
	query, args = withPaging(query, args, f.Limit, f.Offset)
	return s.selectAttempts(ctx, query, args...)
}

func (s *SQLStore) CountAttempts(ctx context.Context, assessmentID, learnerID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM attempts WHERE assessment_id=$1 AND learner_id=$2`,
		assessmentID, learnerID)
	return n, err
}

func (s *SQLStore) ListOpenTimed(ctx context.Context) ([]Attempt, error) {
	return s.selectAttempts(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE status=$1 AND deadline IS NOT NULL ORDER BY started_at DESC`, string(StatusInProgress))
}

func (s *SQLStore) selectAttempts(ctx context.Context, query string, args ...any) ([]Attempt, error) {
	var rows []attemptRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]Attempt, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAttempt()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func withPaging(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
		if offset > 0 {
			args = append(args, offset)
			query += fmt.Sprintf(` OFFSET $%d`, len(args))
		}
	}
	return query, args
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
