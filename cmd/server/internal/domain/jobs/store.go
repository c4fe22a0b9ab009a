// Package jobs persists fact-check jobs: a sqlite table for lookups, a
// per-job artifact directory and a cache of finished jobs.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/factlens/pkg/logger"
)

var (
	// ErrNotFound is returned when no job matches.
	ErrNotFound = errors.New("job not found")
	// ErrJobRunning is returned when deleting a job that has not finished.
	ErrJobRunning = errors.New("job is still running")
	// ErrJobFinished is returned when updating a completed or failed job.
	ErrJobFinished = errors.New("job already finished")
)

// Artifact file names inside a job directory.
const (
	ArtifactJob        = "job.json"
	ArtifactTranscript = "transcript.txt"
	ArtifactReport     = "report.json"
	ArtifactRaw        = "raw.json"
)

const jobColumns = `id, url, normalized_url, output_language, status, progress, thought_summaries,
	transcript, report, error, title, thumbnail_url, translated_from, created_at, updated_at`

// Store is the job repository. Update runs read-modify-write under one
// mutex, so each record has a single writer at a time.
type Store struct {
	db     *sql.DB
	paths  *dependency.PathManager
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithCache enables the finished-job cache.
func WithCache(c *Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) <dataDir>/jobs.db.
func Open(dataDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "jobs"), 0o755); err != nil {
		return nil, fmt.Errorf("jobs: mkdir %s: %w", dataDir, err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dataDir, "jobs.db"))
	if err != nil {
		return nil, fmt.Errorf("jobs: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobs: init schema: %w", err)
	}

	s := &Store{db: db, paths: dependency.NewPathManager(dataDir), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDefault(s.logger).With("component", "job_store")
	return s, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
		id                TEXT PRIMARY KEY,
		url               TEXT NOT NULL,
		normalized_url    TEXT NOT NULL,
		output_language   TEXT NOT NULL,
		status            TEXT NOT NULL,
		progress          INTEGER NOT NULL DEFAULT 0,
		thought_summaries TEXT NOT NULL DEFAULT '[]',
		transcript        TEXT NOT NULL DEFAULT '',
		report            TEXT,
		error             TEXT NOT NULL DEFAULT '',
		title             TEXT NOT NULL DEFAULT '',
		thumbnail_url     TEXT NOT NULL DEFAULT '',
		translated_from   TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_lookup
		ON jobs (normalized_url, output_language, status, updated_at)`)
	return err
}

// Close closes the database and the cache.
func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return s.db.Close()
}

// Create inserts a new job and writes its job.json.
func (s *Store) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return errors.New("jobs: empty id")
	}
	now := s.now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.ThoughtSummaries == nil {
		job.ThoughtSummaries = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	args, err := rowArgs(job)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("jobs: insert %s: %w", job.ID, err)
	}
	if _, err := s.paths.EnsureJobDir(job.ID); err != nil {
		return err
	}
	s.writeJobFile(job)
	return nil
}

// Get returns a copy of the job.
func (s *Store) Get(ctx context.Context, id string) (*models.Job, error) {
	if s.cache != nil {
		if job, ok := s.cache.Get(ctx, id); ok {
			return job, nil
		}
	}
	// 未命中时在锁内查询并回填，避免与 Delete/Update 交错写回旧数据
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.queryOne(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, job)
	}
	return job, nil
}

// Update applies fn to the current job and persists the result. id, url,
// normalized_url, output_language and created_at cannot change, progress
// never decreases and finished jobs are immutable.
func (s *Store) Update(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.queryOne(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, ErrJobFinished
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if !next.Status.Valid() {
		return nil, fmt.Errorf("jobs: invalid status %q", next.Status)
	}
	next.ID = current.ID
	next.URL = current.URL
	next.NormalizedURL = current.NormalizedURL
	next.OutputLanguage = current.OutputLanguage
	next.CreatedAt = current.CreatedAt
	next.Progress = clampProgress(next.Progress)
	if next.Progress < current.Progress {
		next.Progress = current.Progress
	}
	next.UpdatedAt = s.now().UTC()
	if next.UpdatedAt.Before(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt
	}

	args, err := rowArgs(next)
	if err != nil {
		return nil, err
	}
	// rowArgs starts with id; the UPDATE takes it last.
	_, err = s.db.ExecContext(ctx, `UPDATE jobs SET url = ?, normalized_url = ?, output_language = ?,
		status = ?, progress = ?, thought_summaries = ?, transcript = ?, report = ?, error = ?,
		title = ?, thumbnail_url = ?, translated_from = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, append(args[1:], args[0])...)
	if err != nil {
		return nil, fmt.Errorf("jobs: update %s: %w", id, err)
	}

	s.writeJobFile(next)
	if s.cache != nil {
		s.cache.Set(ctx, next)
	}
	return next.Clone(), nil
}

// FindCompleted returns the most recent completed job for the key.
func (s *Store) FindCompleted(ctx context.Context, normalizedURL, lang string) (*models.Job, error) {
	return s.queryOne(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE normalized_url = ? AND output_language = ? AND status = ?
		ORDER BY updated_at DESC LIMIT 1`, normalizedURL, lang, string(models.StatusCompleted))
}

// FindCompletedAnyLanguage returns the most recent completed job for the URL
// in a language other than exceptLang.
func (s *Store) FindCompletedAnyLanguage(ctx context.Context, normalizedURL, exceptLang string) (*models.Job, error) {
	return s.queryOne(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE normalized_url = ? AND output_language <> ? AND status = ? AND report IS NOT NULL
		ORDER BY updated_at DESC LIMIT 1`, normalizedURL, exceptLang, string(models.StatusCompleted))
}

// ListHistory returns up to limit jobs, most recently updated first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]models.HistoryItem, error) {
	if limit <= 0 {
		limit = 50
	}
	jobs, err := s.queryMany(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY updated_at DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	items := make([]models.HistoryItem, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, j.ToHistoryItem())
	}
	return items, nil
}

// ListUnfinished returns every job that is not completed or failed.
func (s *Store) ListUnfinished(ctx context.Context) ([]*models.Job, error) {
	return s.queryMany(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status NOT IN (?, ?) ORDER BY created_at`,
		string(models.StatusCompleted), string(models.StatusFailed))
}

// Delete removes a finished job and its directory.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.queryOne(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return ErrJobRunning
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("jobs: delete %s: %w", id, err)
	}
	s.removeJobDir(ctx, id)
	return nil
}

// DeleteAll removes every job. It refuses while any job is unfinished.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var running int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status NOT IN (?, ?)`,
		string(models.StatusCompleted), string(models.StatusFailed)).Scan(&running); err != nil {
		return 0, fmt.Errorf("jobs: count running: %w", err)
	}
	if running > 0 {
		return 0, ErrJobRunning
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("jobs: list ids: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return 0, fmt.Errorf("jobs: delete all: %w", err)
	}
	for _, id := range ids {
		s.removeJobDir(ctx, id)
	}
	return len(ids), nil
}

// MarkInterrupted fails every unfinished job with message. Used at startup,
// when no job goroutine can still be alive.
func (s *Store) MarkInterrupted(ctx context.Context, message string) (int, error) {
	unfinished, err := s.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, j := range unfinished {
		_, err := s.Update(ctx, j.ID, func(job *models.Job) error {
			job.Status = models.StatusFailed
			job.Error = message
			job.Report = nil
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrJobFinished) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

// WriteArtifact atomically writes a file into the job directory.
func (s *Store) WriteArtifact(id, name string, data []byte) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("jobs: invalid artifact name %q", name)
	}
	dir, err := s.paths.EnsureJobDir(id)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename tmp file: %w", err)
	}
	return nil
}

// WriteJSONArtifact marshals v with indentation and writes it as name.
func (s *Store) WriteJSONArtifact(id, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return s.WriteArtifact(id, name, data)
}

// ReadArtifact reads a file from the job directory.
func (s *Store) ReadArtifact(id, name string) ([]byte, error) {
	return os.ReadFile(s.paths.GetArtifactPath(id, name))
}

func (s *Store) writeJobFile(job *models.Job) {
	if err := s.WriteJSONArtifact(job.ID, ArtifactJob, job); err != nil {
		s.logger.Warn("failed to write job.json", "job_id", job.ID, "error", err)
	}
}

func (s *Store) removeJobDir(ctx context.Context, id string) {
	if s.cache != nil {
		s.cache.Delete(ctx, id)
	}
	if err := os.RemoveAll(s.paths.GetJobDir(id)); err != nil {
		s.logger.Warn("failed to remove job directory", "job_id", id, "error", err)
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func rowArgs(job *models.Job) ([]any, error) {
	thoughts, err := json.Marshal(job.ThoughtSummaries)
	if err != nil {
		return nil, fmt.Errorf("marshal thoughts: %w", err)
	}
	var report any
	if job.Report != nil {
		data, err := json.Marshal(job.Report)
		if err != nil {
			return nil, fmt.Errorf("marshal report: %w", err)
		}
		report = string(data)
	}
	return []any{
		job.ID, job.URL, job.NormalizedURL, job.OutputLanguage, string(job.Status), job.Progress,
		string(thoughts), job.Transcript, report, job.Error, job.Title, job.ThumbnailURL,
		job.TranslatedFrom, job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano(),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job       models.Job
		status    string
		thoughts  string
		report    sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&job.ID, &job.URL, &job.NormalizedURL, &job.OutputLanguage, &status, &job.Progress,
		&thoughts, &job.Transcript, &report, &job.Error, &job.Title, &job.ThumbnailURL,
		&job.TranslatedFrom, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	job.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if err := json.Unmarshal([]byte(thoughts), &job.ThoughtSummaries); err != nil || job.ThoughtSummaries == nil {
		job.ThoughtSummaries = []string{}
	}
	if report.Valid && report.String != "" {
		var r models.Report
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return nil, fmt.Errorf("jobs: corrupt report for %s: %w", job.ID, err)
		}
		job.Report = &r
	}
	return &job, nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

func (s *Store) queryMany(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs: query: %w", err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}
