package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/ghprofile/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "ghprofile.db"

// timeLayout is fixed width so that ORDER BY on the text column is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// HistoryDB stores the reports of past runs in SQLite.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database inside dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

func (hdb *HistoryDB) createTables() error {
	schema := `
	-- One row per run; the full report is kept as JSON.
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		repository TEXT,
		transport TEXT,
		dry_run INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		succeeded INTEGER NOT NULL,
		successes INTEGER NOT NULL,
		failures INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_username ON runs(username);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a finished run. Saving the same run twice replaces it.
func (hdb *HistoryDB) SaveRun(ctx context.Context, report *model.RunReport) error {
	if report == nil {
		return errors.New("nil run report")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	var finished sql.NullString
	if !report.FinishedAt.IsZero() {
		finished = sql.NullString{String: formatTime(report.FinishedAt), Valid: true}
	}

	query := `
	INSERT INTO runs (id, username, repository, transport, dry_run, state,
		succeeded, successes, failures, started_at, finished_at, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		state = excluded.state,
		succeeded = excluded.succeeded,
		successes = excluded.successes,
		failures = excluded.failures,
		finished_at = excluded.finished_at,
		report_json = excluded.report_json
	`

	_, err = hdb.db.ExecContext(ctx, query,
		report.ID,
		report.Username,
		report.Repository,
		report.Transport,
		report.DryRun,
		string(report.State),
		report.Succeeded(),
		report.Successes(),
		len(report.Failures()),
		formatTime(report.StartedAt),
		finished,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// RunSummary is the metadata of a stored run, for listings that do not need
// the full report.
type RunSummary struct {
	ID         string
	Username   string
	Repository string
	Transport  string
	DryRun     bool
	State      model.State
	Succeeded  bool
	Successes  int
	Failures   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the run duration, or zero when unknown.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// ListRuns returns the most recent runs first. An empty username lists every
// account; limit <= 0 means no limit.
func (hdb *HistoryDB) ListRuns(ctx context.Context, username string, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, username, repository, transport, dry_run, state,
		succeeded, successes, failures, started_at, finished_at
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if username != "" {
		query += " AND username = ?"
		args = append(args, username)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var s RunSummary
		var repository, transport, finished sql.NullString
		var state, started string

		err := rows.Scan(
			&s.ID,
			&s.Username,
			&repository,
			&transport,
			&s.DryRun,
			&state,
			&s.Succeeded,
			&s.Successes,
			&s.Failures,
			&started,
			&finished,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		s.Repository = repository.String
		s.Transport = transport.String
		s.State = model.State(state)
		s.StartedAt = parseTimestamp(started)
		if finished.Valid {
			s.FinishedAt = parseTimestamp(finished.String)
		}
		results = append(results, s)
	}

	return results, rows.Err()
}

// GetRun retrieves the full report of a run. It returns nil, nil when the
// run does not exist.
func (hdb *HistoryDB) GetRun(ctx context.Context, id string) (*model.RunReport, error) {
	var reportJSON string
	err := hdb.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// PruneRuns deletes every run of username except the keep most recent ones
// and returns the number of deleted rows.
func (hdb *HistoryDB) PruneRuns(ctx context.Context, username string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	query := `
	DELETE FROM runs
	WHERE username = ? AND id NOT IN (
		SELECT id FROM runs WHERE username = ? ORDER BY started_at DESC LIMIT ?
	)
	`

	result, err := hdb.db.ExecContext(ctx, query, username, username, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return result.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05", // SQLite default datetime format
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse s using each known format and returns
// the zero time when none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
