package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/imgfetch/internal/model"
)

// FileName is the name of the catalog database file.
const FileName = "imgfetch.db"

var (
	// ErrRunNotFound is returned when no run matches the requested ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRun is returned when an ID prefix matches several runs.
	ErrAmbiguousRun = errors.New("run ID prefix matches more than one run")
)

// Catalog is the SQLite history of fetch runs and their per-URL outcomes.
// It is a record for humans; the hash index file in each output directory
// remains the authority for deduplication.
type Catalog struct {
	db     *sql.DB
	dbPath string
}

// Options configures Catalog behavior.
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

// DefaultDir returns the directory the catalog lives in by default,
// $XDG_DATA_HOME/imgfetch.
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "imgfetch")
}

// Open opens or creates the catalog in dbDir.
func Open(dbDir string, opts Options) (*Catalog, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	c := &Catalog{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := c.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return c, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Path returns the database file path.
func (c *Catalog) Path() string {
	return c.dbPath
}

func (c *Catalog) createTables() error {
	schema := `
	-- One row per invocation of the fetch command
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		output_dir TEXT NOT NULL,
		saved INTEGER NOT NULL DEFAULT 0,
		duplicate INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		fatal TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per URL outcome
	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		outcome TEXT NOT NULL,
		cause TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		exif_json TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL,
		UNIQUE(run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_run ON fetches(run_id);
	CREATE INDEX IF NOT EXISTS idx_fetches_fingerprint ON fetches(fingerprint);
	`

	_, err := c.db.ExecContext(context.Background(), schema)
	return err
}

// Run is a stored fetch run.
type Run struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	OutputDir  string        `json:"output_dir"`
	Summary    model.Summary `json:"summary"`
	Fatal      string        `json:"fatal,omitempty"`
}

// Finished reports whether FinishRun was called for the run.
func (r *Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// FetchRecord is a stored per-URL outcome.
type FetchRecord struct {
	ID          int64                `json:"-"`
	RunID       string               `json:"run_id"`
	Index       int                  `json:"index"`
	URL         string               `json:"url"`
	Kind        model.OutcomeKind    `json:"kind"`
	Cause       string               `json:"cause,omitempty"`
	StatusCode  int                  `json:"status_code,omitempty"`
	Detail      string               `json:"detail,omitempty"`
	Fingerprint string               `json:"fingerprint,omitempty"`
	Path        string               `json:"path,omitempty"`
	ContentType string               `json:"content_type,omitempty"`
	Size        int64                `json:"size,omitempty"`
	Duration    time.Duration        `json:"duration_ns,omitempty"`
	Metadata    *model.ImageMetadata `json:"metadata,omitempty"`
	RecordedAt  time.Time            `json:"recorded_at"`
}

// StartRun inserts a new run. When run.ID is empty a random UUID is
// assigned and written back.
func (c *Catalog) StartRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, output_dir) VALUES (?, ?, ?)`,
		run.ID, formatTimestamp(run.StartedAt), run.OutputDir,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordOutcome stores one outcome of a run. Recording the same index twice
// replaces the earlier row.
func (c *Catalog) RecordOutcome(ctx context.Context, runID string, o model.Outcome) error {
	var exifJSON string
	if !o.Metadata.IsEmpty() {
		data, err := json.Marshal(o.Metadata)
		if err != nil {
			return fmt.Errorf("failed to serialize metadata: %w", err)
		}
		exifJSON = string(data)
	}

	var fingerprint string
	if !o.Fingerprint.IsZero() {
		fingerprint = o.Fingerprint.String()
	}

	query := `
	INSERT INTO fetches (run_id, position, url, outcome, cause, status_code, detail,
		fingerprint, path, content_type, size, duration_ns, exif_json, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, position) DO UPDATE SET
		url = excluded.url,
		outcome = excluded.outcome,
		cause = excluded.cause,
		status_code = excluded.status_code,
		detail = excluded.detail,
		fingerprint = excluded.fingerprint,
		path = excluded.path,
		content_type = excluded.content_type,
		size = excluded.size,
		duration_ns = excluded.duration_ns,
		exif_json = excluded.exif_json,
		recorded_at = excluded.recorded_at
	`

	_, err := c.db.ExecContext(ctx, query,
		runID,
		o.Index,
		o.URL,
		string(o.Kind),
		o.Cause(),
		o.StatusCode,
		o.Detail,
		fingerprint,
		o.Path,
		o.ContentType,
		o.Size,
		int64(o.Duration),
		exifJSON,
		formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert fetch record: %w", err)
	}
	return nil
}

// FinishRun stores the end time, counts and fatal message of a run.
func (c *Catalog) FinishRun(ctx context.Context, runID string, finished time.Time, summary model.Summary, fatal string) error {
	result, err := c.db.ExecContext(ctx, `
	UPDATE runs SET finished_at = ?, saved = ?, duplicate = ?, rejected = ?, failed = ?, fatal = ?
	WHERE id = ?`,
		formatTimestamp(finished),
		summary.Saved, summary.Duplicate, summary.Rejected, summary.Failed,
		fatal, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, output_dir, saved, duplicate, rejected, failed, fatal`

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (c *Catalog) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns the run whose ID equals id or, failing that, the single
// run whose ID starts with id.
func (c *Catalog) GetRun(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRunNotFound
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR substr(id, 1, ?) = ? ORDER BY id = ? DESC LIMIT 2`,
		id, len(id), id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRun, id)
	}
}

const fetchColumns = `id, run_id, position, url, outcome, cause, status_code, detail,
	fingerprint, path, content_type, size, duration_ns, exif_json, recorded_at`

// ListFetches returns the outcomes of a run in input order.
func (c *Catalog) ListFetches(ctx context.Context, runID string) ([]FetchRecord, error) {
	return c.queryFetches(ctx,
		`SELECT `+fetchColumns+` FROM fetches WHERE run_id = ? ORDER BY position`, runID)
}

// FindByFingerprint returns every saved or duplicate outcome with the given
// content fingerprint, oldest first.
func (c *Catalog) FindByFingerprint(ctx context.Context, fp model.Fingerprint) ([]FetchRecord, error) {
	return c.queryFetches(ctx,
		`SELECT `+fetchColumns+` FROM fetches WHERE fingerprint = ? ORDER BY recorded_at, id`, fp.String())
}

func (c *Catalog) queryFetches(ctx context.Context, query string, args ...any) ([]FetchRecord, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fetches: %w", err)
	}
	defer rows.Close()

	var records []FetchRecord
	for rows.Next() {
		var (
			rec        FetchRecord
			kind       string
			durationNS int64
			exifJSON   string
			recorded   string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Index,
			&rec.URL,
			&kind,
			&rec.Cause,
			&rec.StatusCode,
			&rec.Detail,
			&rec.Fingerprint,
			&rec.Path,
			&rec.ContentType,
			&rec.Size,
			&durationNS,
			&exifJSON,
			&recorded,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fetch record: %w", err)
		}

		rec.Kind = model.OutcomeKind(kind)
		rec.Duration = time.Duration(durationNS)
		rec.RecordedAt = parseTimestamp(recorded)
		if exifJSON != "" {
			var meta model.ImageMetadata
			if err := json.Unmarshal([]byte(exifJSON), &meta); err != nil {
				return nil, fmt.Errorf("failed to deserialize metadata: %w", err)
			}
			rec.Metadata = &meta
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(rows rowScanner) (*Run, error) {
	var (
		run      Run
		started  string
		finished string
	)
	if err := rows.Scan(
		&run.ID,
		&started,
		&finished,
		&run.OutputDir,
		&run.Summary.Saved,
		&run.Summary.Duplicate,
		&run.Summary.Rejected,
		&run.Summary.Failed,
		&run.Fatal,
	); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = parseTimestamp(started)
	if finished != "" {
		run.FinishedAt = parseTimestamp(finished)
	}
	return &run, nil
}

// RunRecorder records outcomes of one run into the catalog.
type RunRecorder struct {
	catalog *Catalog
	runID   string
}

// Recorder returns a RunRecorder for runID.
func (c *Catalog) Recorder(runID string) *RunRecorder {
	return &RunRecorder{catalog: c, runID: runID}
}

// Record stores o under the recorder's run.
func (r *RunRecorder) Record(ctx context.Context, o model.Outcome) error {
	return r.catalog.RecordOutcome(ctx, r.runID, o)
}

// timestampLayout sorts lexically in time order, which ORDER BY relies on.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats are the layouts parseTimestamp accepts.
var timestampFormats = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// parseTimestamp returns the zero time when s matches no known layout.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
