package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"buildrelay/internal/logger"
	"buildrelay/internal/storage/models"
)

const timeFormat = "2006-01-02 15:04:05.000000"

// ErrNotFound is returned when a build does not exist
var ErrNotFound = errors.New("not found")

// Store persists builds and audit logs in SQLite
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the SQLite database at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLite has a single writer; a small pool keeps readers concurrent
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database initialized successfully", "path", dbPath)
	return s, nil
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_name TEXT NOT NULL,
		branch_name TEXT NOT NULL,
		sha1 TEXT NOT NULL DEFAULT '',
		commit_message TEXT NOT NULL DEFAULT '',
		room_id TEXT NOT NULL DEFAULT '',
		job_name TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		number INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_builds_reference ON builds(reference);
	CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		api_key TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status INTEGER NOT NULL,
		action TEXT,
		target TEXT,
		result TEXT,
		error TEXT
	)
	`)
	return err
}

// Ping checks the database connection
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateBuild inserts b in the pending status and returns its id
func (s *Store) CreateBuild(ctx context.Context, b models.Build) (int64, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (repo_name, branch_name, sha1, commit_message, room_id, job_name, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.RepoName, b.BranchName, b.SHA1, b.CommitMessage, b.RoomID, b.JobName, models.StatusPending, b.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("insert build: %w", err)
	}
	return res.LastInsertId()
}

// MarkQueued records the reference of a dispatched build. A status already
// reported by a CI callback is kept.
func (s *Store) MarkQueued(ctx context.Context, id int64, reference string) error {
	return s.update(ctx,
		`UPDATE builds SET status = CASE WHEN status = ? THEN ? ELSE status END, reference = ? WHERE id = ?`,
		models.StatusPending, models.StatusQueued, reference, id)
}

// MarkSkipped records that the build was skipped
func (s *Store) MarkSkipped(ctx context.Context, id int64, at time.Time) error {
	return s.update(ctx, `UPDATE builds SET status = ?, completed_at = ? WHERE id = ?`, models.StatusSkipped, at.Format(timeFormat), id)
}

// finalGuard keeps callbacks from rewriting a build that already has an outcome
const finalGuard = ` AND status NOT IN ('` + models.StatusSuccess + `', '` + models.StatusFailure + `', '` + models.StatusSkipped + `')`

// MarkStarted records that the CI server started the build.
// It reports false when the build had already finished.
func (s *Store) MarkStarted(ctx context.Context, id int64, url string, number int, at time.Time) (bool, error) {
	return s.transition(ctx, id,
		`UPDATE builds SET status = ?, url = CASE WHEN ? = '' THEN url ELSE ? END, number = ?, started_at = ? WHERE id = ?`+finalGuard,
		models.StatusStarted, url, url, number, at.Format(timeFormat), id)
}

// MarkCompleted records the outcome of the build. Only the first outcome
// counts: it reports false when the build had already finished.
func (s *Store) MarkCompleted(ctx context.Context, id int64, green bool, url string, number int, at time.Time) (bool, error) {
	status := models.StatusFailure
	if green {
		status = models.StatusSuccess
	}
	return s.transition(ctx, id,
		`UPDATE builds SET status = ?, url = CASE WHEN ? = '' THEN url ELSE ? END, number = ?, started_at = COALESCE(started_at, ?), completed_at = ? WHERE id = ?`+finalGuard,
		status, url, url, number, at.Format(timeFormat), at.Format(timeFormat), id)
}

// transition runs a guarded update. No affected row means either an unknown
// build or one the guard refused.
func (s *Store) transition(ctx context.Context, id int64, query string, args ...any) (bool, error) {
	err := s.update(ctx, query, args...)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if _, err := s.GetBuild(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.Error("Failed to update build", "error", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const buildColumns = `id, repo_name, branch_name, sha1, commit_message, room_id, job_name, reference, url, number, status, created_at, started_at, completed_at`

// GetBuild returns the build with the given id
func (s *Store) GetBuild(ctx context.Context, id int64) (models.Build, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Build{}, ErrNotFound
	}
	return b, err
}

// ListBuilds returns builds newest first
func (s *Store) ListBuilds(ctx context.Context, limit, offset int) ([]models.Build, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+buildColumns+` FROM builds ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	builds := []models.Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (models.Build, error) {
	var (
		b                  models.Build
		created            string
		started, completed sql.NullString
	)
	if err := row.Scan(&b.ID, &b.RepoName, &b.BranchName, &b.SHA1, &b.CommitMessage, &b.RoomID, &b.JobName,
		&b.Reference, &b.URL, &b.Number, &b.Status, &created, &started, &completed); err != nil {
		return models.Build{}, err
	}

	b.CreatedAt = parseTime(created)
	if started.Valid {
		t := parseTime(started.String)
		b.StartedAt = &t
	}
	if completed.Valid {
		t := parseTime(completed.String)
		b.CompletedAt = &t
	}
	return b, nil
}

// parseTime accepts timestamps with or without microseconds
func parseTime(value string) time.Time {
	for _, layout := range []string{timeFormat, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// InsertAuditLog inserts a new audit log entry
func (s *Store) InsertAuditLog(ctx context.Context, log models.AuditLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (timestamp, api_key, method, path, status, action, target, result, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.Timestamp.Format(timeFormat),
		log.APIKey,
		log.Method,
		log.Path,
		log.Status,
		log.Action,
		log.Target,
		log.Result,
		log.Error,
	)
	if err != nil {
		logger.Error("Failed to insert audit log", "error", err)
		return err
	}
	return nil
}

// GetAuditLogs retrieves audit logs newest first
func (s *Store) GetAuditLogs(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, api_key, method, path, status, action, target, result, error FROM audit_logs ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var (
			log                          models.AuditLog
			timestamp                    string
			action, target, result, errs sql.NullString
		)
		if err := rows.Scan(&log.ID, &timestamp, &log.APIKey, &log.Method, &log.Path, &log.Status, &action, &target, &result, &errs); err != nil {
			return nil, err
		}
		log.Timestamp = parseTime(timestamp)
		log.Action = action.String
		log.Target = target.String
		log.Result = result.String
		log.Error = errs.String
		logs = append(logs, log)
	}

	return logs, rows.Err()
}
