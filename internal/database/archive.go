package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/headscrape/internal/model"
)

// FileName is the archive file created inside the data directory.
const FileName = "headscrape.db"

// Archive provides SQLite-based storage for scrape runs.
type Archive struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures Archive behavior.
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

// Open opens or creates the archive in dbDir.
func Open(dbDir string, opts Options) (*Archive, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrArchiveMissing, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
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

	a := &Archive{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := a.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return a, nil
}

// Path returns the database file path.
func (a *Archive) Path() string {
	return a.dbPath
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		total INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		message TEXT,
		attempts INTEGER NOT NULL,
		proxy_layer TEXT,
		proxy TEXT,
		fields_json TEXT,
		digest TEXT,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_results_target ON results(target);
	CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
	`

	_, err := a.db.ExecContext(context.Background(), schema)
	return err
}

// Run summarizes one archived batch.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Succeeded  int
	Failed     int
}

// Entry is one archived result.
type Entry struct {
	RunID    string
	Target   string
	Status   model.ResultStatus
	Reason   string
	Message  string
	Attempts int
	Layer    string
	Proxy    string
	Fields   map[string]string

	// Digest is the SHA3-256 of Fields. Empty for failures.
	Digest string

	// PreviousDigest is the digest of the preceding successful entry for
	// the same target, if any.
	PreviousDigest string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Changed reports whether the profile differs from the previous
// successful scrape of the same target.
func (e Entry) Changed() bool {
	return e.Digest != "" && e.PreviousDigest != "" && e.Digest != e.PreviousDigest
}

// Digest returns the hex SHA3-256 of fields, independent of map order.
// nil and empty maps have no digest.
func Digest(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte(0)
		sb.WriteString(fields[k])
		sb.WriteByte('\n')
	}

	sum := sha3.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// SaveRun stores results as a new run and returns its ID.
func (a *Archive) SaveRun(ctx context.Context, startedAt, finishedAt time.Time, results []model.ScrapeResult) (string, error) {
	runID := uuid.NewString()
	summary := model.Summarize(results)

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, started_at, finished_at, total, succeeded, failed)
	VALUES (?, ?, ?, ?, ?, ?)`,
		runID,
		formatTimestamp(startedAt),
		formatTimestamp(finishedAt),
		summary.Total,
		summary.Succeeded,
		summary.Failed,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO results (run_id, target, status, reason, message, attempts,
		proxy_layer, proxy, fields_json, digest, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		var fieldsJSON, reason string
		if r.OK() {
			data, err := json.Marshal(r.Fields)
			if err != nil {
				return "", fmt.Errorf("failed to serialize fields of %s: %w", r.Target, err)
			}
			fieldsJSON = string(data)
		} else {
			reason = r.Reason.String()
		}

		_, err = stmt.ExecContext(ctx,
			runID,
			r.Target,
			string(r.Status),
			reason,
			r.Message,
			r.Attempts,
			r.Layer,
			r.Proxy,
			fieldsJSON,
			Digest(r.Fields),
			formatTimestamp(r.StartedAt),
			formatTimestamp(r.FinishedAt),
		)
		if err != nil {
			return "", fmt.Errorf("failed to save result for %s: %w", r.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// History returns the archived results for target, newest first.
// limit <= 0 returns every entry.
func (a *Archive) History(ctx context.Context, target string, limit int) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx, `
	SELECT run_id, target, status, reason, message, attempts, proxy_layer, proxy,
		fields_json, digest, started_at, finished_at
	FROM results
	WHERE target = ?
	ORDER BY id ASC`, target)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var (
		entries    []Entry
		lastDigest string
	)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if e.Digest != "" {
			e.PreviousDigest = lastDigest
			lastDigest = e.Digest
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Latest returns the most recent archived result for target.
func (a *Archive) Latest(ctx context.Context, target string) (*Entry, error) {
	entries, err := a.History(ctx, target, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	return &entries[0], nil
}

// Targets lists every archived target in alphabetical order.
func (a *Archive) Targets(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT target FROM results ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

// Runs returns archived runs, newest first.
func (a *Archive) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, started_at, finished_at, total, succeeded, failed FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Total, &r.Succeeded, &r.Failed); err != nil {
			return nil, err
		}
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                                         Entry
		status                                    string
		reason, message, layer, proxy             sql.NullString
		fieldsJSON, digest, startedAt, finishedAt sql.NullString
	)
	err := rows.Scan(&e.RunID, &e.Target, &status, &reason, &message, &e.Attempts,
		&layer, &proxy, &fieldsJSON, &digest, &startedAt, &finishedAt)
	if err != nil {
		return Entry{}, err
	}

	e.Status = model.ResultStatus(status)
	e.Reason = reason.String
	e.Message = message.String
	e.Layer = layer.String
	e.Proxy = proxy.String
	e.Digest = digest.String
	e.StartedAt = parseTimestamp(startedAt.String)
	e.FinishedAt = parseTimestamp(finishedAt.String)

	if fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &e.Fields); err != nil {
			return Entry{}, fmt.Errorf("failed to parse archived fields: %w", err)
		}
	}
	return e, nil
}

// IsNotFound reports whether err means nothing was archived.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats the archive may hold.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseTimestamp returns the zero time for empty or unparsable values.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
