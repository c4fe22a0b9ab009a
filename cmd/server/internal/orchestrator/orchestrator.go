// Package orchestrator runs fact-check jobs: it deduplicates analyze
// requests, drives each job through its states and records progress in the
// job store as it goes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/houzhh15/factlens/cmd/server/internal/domain/jobs"
	"github.com/houzhh15/factlens/cmd/server/internal/metrics"
	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/media"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/report"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
	"github.com/houzhh15/factlens/pkg/logger"
)

// Config holds the pipeline knobs of the orchestrator.
type Config struct {
	ChunkSeconds int
	MaxWorkers   int
	JobTimeout   time.Duration
	MaxURLLength int
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		ChunkSeconds: chunker.DefaultChunkSeconds,
		MaxWorkers:   3,
		JobTimeout:   60 * time.Minute,
		MaxURLLength: media.DefaultMaxURLLength,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ChunkSeconds <= 0 {
		c.ChunkSeconds = def.ChunkSeconds
	}
	if c.MaxWorkers < 1 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = def.JobTimeout
	}
	if c.MaxURLLength <= 0 {
		c.MaxURLLength = def.MaxURLLength
	}
}

// Resolver fetches captions or audio for a URL.
type Resolver interface {
	Resolve(ctx context.Context, jobID, rawURL string, notify func(media.Phase)) (*media.Resolution, error)
}

// Splitter cuts an audio file into ordered chunks.
type Splitter interface {
	Split(ctx context.Context, audioPath string, chunkSeconds int) ([]chunker.AudioChunk, error)
}

// Translator renders reports and progress notes in another language.
type Translator interface {
	Translate(ctx context.Context, src *models.Report, target string) (*models.Report, error)
	TranslateThought(ctx context.Context, text, lang string) string
}

// Deps are the collaborators of the orchestrator. Translator may be nil, in
// which case requests in a new language always run the full pipeline.
type Deps struct {
	Store       *jobs.Store
	Resolver    Resolver
	Splitter    Splitter
	Transcriber transcribe.Transcriber
	FactChecker factcheck.FactChecker
	Normalizer  *report.Normalizer
	Translator  Translator
	Logger      *slog.Logger
}

// AnalyzeRequest asks for a fact-check of URL in OutputLanguage.
type AnalyzeRequest struct {
	URL            string `json:"url"`
	OutputLanguage string `json:"output_language"`
	Force          bool   `json:"force"`
}

// AnalyzeResult tells the caller which job to poll.
type AnalyzeResult struct {
	JobID         string `json:"job_id"`
	Cached        bool   `json:"cached"`
	IsTranslation bool   `json:"is_translation"`
}

type inFlightJob struct {
	id          string
	translation bool
}

// Orchestrator owns job lifecycles. All dedup decisions happen under mu, so
// at most one job runs per (normalized URL, language) unless forced.
type Orchestrator struct {
	cfg         Config
	store       *jobs.Store
	resolver    Resolver
	splitter    Splitter
	coordinator *Coordinator
	factChecker factcheck.FactChecker
	normalizer  *report.Normalizer
	translator  Translator
	logger      *slog.Logger
	newID       func() string

	mu       sync.Mutex
	inFlight map[string]inFlightJob // key -> running job
	closed   bool

	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates an orchestrator. Call Start before accepting requests.
func New(cfg Config, deps Deps) *Orchestrator {
	cfg.applyDefaults()
	l := logger.OrDefault(deps.Logger)
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = report.NewNormalizer(report.WithLogger(l))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:         cfg,
		store:       deps.Store,
		resolver:    deps.Resolver,
		splitter:    deps.Splitter,
		coordinator: NewCoordinator(deps.Transcriber, cfg.MaxWorkers, l),
		factChecker: deps.FactChecker,
		normalizer:  normalizer,
		translator:  deps.Translator,
		logger:      l.With("component", "orchestrator"),
		newID:       func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		inFlight:    make(map[string]inFlightJob),
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Start fails every job left unfinished by a previous process.
func (o *Orchestrator) Start(ctx context.Context) error {
	n, err := o.store.MarkInterrupted(ctx, interruptedMessage)
	if err != nil {
		return fmt.Errorf("mark interrupted jobs: %w", err)
	}
	if n > 0 {
		o.logger.Warn("marked interrupted jobs as failed", "count", n)
	}
	return nil
}

// Shutdown stops accepting jobs and waits for running ones until ctx ends,
// then cancels whatever is still running.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.logger.Warn("shutdown deadline reached, cancelling running jobs")
		o.cancel()
		<-done
		return ctx.Err()
	}
}

func cacheKey(normalizedURL, lang string) string {
	return normalizedURL + "|" + lang
}

// Analyze resolves a request to a job: an in-flight job for the same key, a
// completed one, a translation of a completed job in another language, or a
// new pipeline run.
func (o *Orchestrator) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	if err := media.ValidateURL(req.URL, o.cfg.MaxURLLength); err != nil {
		return nil, err
	}
	lang, ok := models.CanonicalLanguage(req.OutputLanguage)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, req.OutputLanguage)
	}
	rawURL := strings.TrimSpace(req.URL)
	normalized, err := jobs.NormalizeURL(rawURL)
	if err != nil {
		return nil, errs.NewUnsupportedURLError("URL cannot be normalized")
	}
	key := cacheKey(normalized, lang)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrShuttingDown
	}

	if !req.Force {
		if running, ok := o.inFlight[key]; ok {
			metrics.RecordCacheLookup("attached")
			return &AnalyzeResult{JobID: running.id, IsTranslation: running.translation}, nil
		}

		cached, err := o.store.FindCompleted(ctx, normalized, lang)
		switch {
		case err == nil:
			metrics.RecordCacheLookup("hit")
			o.logger.Info("analyze served from cache", "job_id", cached.ID, "lang", lang)
			return &AnalyzeResult{JobID: cached.ID, Cached: true, IsTranslation: cached.TranslatedFrom != ""}, nil
		case !errors.Is(err, jobs.ErrNotFound):
			return nil, err
		}

		if o.translator != nil {
			src, err := o.store.FindCompletedAnyLanguage(ctx, normalized, lang)
			switch {
			case err == nil:
				metrics.RecordCacheLookup("translation")
				job, err := o.createJob(ctx, rawURL, normalized, lang, src)
				if err != nil {
					return nil, err
				}
				o.launch(key, job, src)
				return &AnalyzeResult{JobID: job.ID, IsTranslation: true}, nil
			case !errors.Is(err, jobs.ErrNotFound):
				return nil, err
			}
		}
	}

	metrics.RecordCacheLookup("miss")
	job, err := o.createJob(ctx, rawURL, normalized, lang, nil)
	if err != nil {
		return nil, err
	}
	o.launch(key, job, nil)
	return &AnalyzeResult{JobID: job.ID}, nil
}

func (o *Orchestrator) createJob(ctx context.Context, rawURL, normalized, lang string, src *models.Job) (*models.Job, error) {
	job := &models.Job{
		ID:               o.newID(),
		URL:              rawURL,
		NormalizedURL:    normalized,
		OutputLanguage:   lang,
		Status:           models.StatusQueued,
		ThoughtSummaries: []string{},
	}
	if src != nil {
		job.TranslatedFrom = src.ID
		job.Title = src.Title
		job.ThumbnailURL = src.ThumbnailURL
		job.Transcript = src.Transcript
	}
	if err := o.store.Create(ctx, job); err != nil {
		return nil, err
	}
	o.logger.Info("job created", "job_id", job.ID, "url", rawURL, "lang", lang, "translated_from", job.TranslatedFrom)
	return job, nil
}

// launch registers the job as in flight and starts its goroutine. Caller holds mu.
func (o *Orchestrator) launch(key string, job *models.Job, src *models.Job) {
	o.inFlight[key] = inFlightJob{id: job.ID, translation: src != nil}
	o.wg.Add(1)
	metrics.JobsInFlight.Inc()

	go func() {
		defer o.wg.Done()
		defer metrics.JobsInFlight.Dec()
		defer o.release(key, job.ID)

		ctx, cancel := context.WithTimeout(o.baseCtx, o.cfg.JobTimeout)
		defer cancel()

		var err error
		if src != nil {
			err = o.runTranslation(ctx, job, src)
		} else {
			err = o.runPipeline(ctx, job)
		}
		if err != nil {
			o.fail(job.ID, err)
			return
		}
		metrics.RecordJobFinished(string(models.StatusCompleted))
	}()
}

func (o *Orchestrator) release(key, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.inFlight[key]; ok && cur.id == id {
		delete(o.inFlight, key)
	}
}

// fail records err on the job. It uses its own context since the job context
// may be the reason for the failure.
func (o *Orchestrator) fail(id string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := failureMessage(err, o.cfg.JobTimeout)
	_, uerr := o.store.Update(ctx, id, func(j *models.Job) error {
		j.Status = models.StatusFailed
		j.Error = msg
		j.Report = nil
		return nil
	})
	if uerr != nil {
		o.logger.Error("failed to record job failure", "job_id", id, "error", uerr, "cause", err)
	}
	o.logger.Error("job failed", "job_id", id, "code", string(errs.CodeOf(err)), "error", err)
	metrics.RecordJobFinished(string(models.StatusFailed))
}

// Get returns the stored job.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Job, error) {
	return o.store.Get(ctx, id)
}

// History lists past jobs, most recent first.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]models.HistoryItem, error) {
	return o.store.ListHistory(ctx, limit)
}

// Delete removes one finished job.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	return o.store.Delete(ctx, id)
}

// DeleteAll removes every job; it refuses while any job is running.
func (o *Orchestrator) DeleteAll(ctx context.Context) (int, error) {
	return o.store.DeleteAll(ctx)
}
