package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// SQLName is the database/sql driver name registered for d.
func (d Driver) SQLName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "file:assess.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
		if dsn == "" {
			dsn = "postgres://localhost:5432/assess?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(driver.SQLName(), dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

// sqliteDSN makes every pooled connection enforce foreign keys. A PRAGMA run
// through db.Exec only reaches the one connection that executed it.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS assessments (
  id TEXT NOT NULL,
  version INTEGER NOT NULL,
  title TEXT NOT NULL,
  passing_score_percent REAL NOT NULL,
  time_limit_sec INTEGER,
  max_attempts INTEGER NOT NULL DEFAULT 0,
  show_correct_answers BOOLEAN NOT NULL DEFAULT 0,
  prerequisite_lesson_id TEXT NOT NULL DEFAULT '',
  questions_json TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (id, version)
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  assessment_id TEXT NOT NULL,
  assessment_version INTEGER NOT NULL,
  learner_id TEXT NOT NULL,
  attempt_number INTEGER NOT NULL,
  status TEXT NOT NULL,
  started_at INTEGER NOT NULL,               -- unix millis
  deadline INTEGER,
  submitted_at INTEGER,
  time_taken_sec INTEGER NOT NULL DEFAULT 0,
  auto_submitted BOOLEAN NOT NULL DEFAULT 0,
  answers_json TEXT NOT NULL,
  results_json TEXT NOT NULL DEFAULT '[]',
  score REAL NOT NULL DEFAULT 0,
  percentage REAL NOT NULL DEFAULT 0,
  passed BOOLEAN NOT NULL DEFAULT 0,
  flags_json TEXT NOT NULL DEFAULT '{}',
  version INTEGER NOT NULL DEFAULT 1,
  FOREIGN KEY (assessment_id, assessment_version) REFERENCES assessments(id, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS attempts_number_uq
  ON attempts (assessment_id, learner_id, attempt_number);
CREATE UNIQUE INDEX IF NOT EXISTS attempts_open_uq
  ON attempts (assessment_id, learner_id) WHERE status = 'in_progress';
CREATE INDEX IF NOT EXISTS attempts_learner_idx ON attempts (learner_id, started_at);
CREATE INDEX IF NOT EXISTS attempts_status_idx ON attempts (status, assessment_id);

CREATE TABLE IF NOT EXISTS event_log (
  "offset" INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g., attempt.graded
  key TEXT NOT NULL,                         -- natural key: attemptID
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS assessments (
  id TEXT NOT NULL,
  version INTEGER NOT NULL,
  title TEXT NOT NULL,
  passing_score_percent DOUBLE PRECISION NOT NULL,
  time_limit_sec INTEGER,
  max_attempts INTEGER NOT NULL DEFAULT 0,
  show_correct_answers BOOLEAN NOT NULL DEFAULT FALSE,
  prerequisite_lesson_id TEXT NOT NULL DEFAULT '',
  questions_json TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  PRIMARY KEY (id, version)
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  assessment_id TEXT NOT NULL,
  assessment_version INTEGER NOT NULL,
  learner_id TEXT NOT NULL,
  attempt_number INTEGER NOT NULL,
  status TEXT NOT NULL,
  started_at BIGINT NOT NULL,
  deadline BIGINT,
  submitted_at BIGINT,
  time_taken_sec INTEGER NOT NULL DEFAULT 0,
  auto_submitted BOOLEAN NOT NULL DEFAULT FALSE,
  answers_json TEXT NOT NULL,
  results_json TEXT NOT NULL DEFAULT '[]',
  score DOUBLE PRECISION NOT NULL DEFAULT 0,
  percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
  passed BOOLEAN NOT NULL DEFAULT FALSE,
  flags_json TEXT NOT NULL DEFAULT '{}',
  version INTEGER NOT NULL DEFAULT 1,
  FOREIGN KEY (assessment_id, assessment_version) REFERENCES assessments(id, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS attempts_number_uq
  ON attempts (assessment_id, learner_id, attempt_number);
CREATE UNIQUE INDEX IF NOT EXISTS attempts_open_uq
  ON attempts (assessment_id, learner_id) WHERE status = 'in_progress';
CREATE INDEX IF NOT EXISTS attempts_learner_idx ON attempts (learner_id, started_at);
CREATE INDEX IF NOT EXISTS attempts_status_idx ON attempts (status, assessment_id);

CREATE TABLE IF NOT EXISTS event_log (
  "offset" BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
