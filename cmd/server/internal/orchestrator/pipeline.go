package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/houzhh15/factlens/cmd/server/internal/domain/jobs"
	"github.com/houzhh15/factlens/cmd/server/internal/metrics"
	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/media"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
	"github.com/houzhh15/factlens/pkg/logger"
)

// Progress milestones. Transcription owns the range between
// progressTranscribeStart and progressTranscribeEnd.
const (
	progressFetchingTranscript = 5
	progressDownloading        = 10
	progressTranscribeStart    = 10
	progressTranscribeEnd      = 50
	progressFactChecking       = 60
	progressTranslating        = 70
	progressFactChecked        = 90
	progressCompleted          = 100
)

// TranscriptionProgress maps done/total chunks onto the transcription range.
func TranscriptionProgress(done, total int) int {
	if total <= 0 {
		return progressTranscribeStart
	}
	if done > total {
		done = total
	}
	return progressTranscribeStart + (progressTranscribeEnd-progressTranscribeStart)*done/total
}

// advance moves the job to status and progress and appends note when set.
func (o *Orchestrator) advance(ctx context.Context, id string, status models.JobStatus, progress int, note string) error {
	_, err := o.store.Update(ctx, id, func(j *models.Job) error {
		j.Status = status
		j.Progress = progress
		if note != "" {
			j.ThoughtSummaries = append(j.ThoughtSummaries, note)
		}
		return nil
	})
	return err
}

func (o *Orchestrator) addThought(ctx context.Context, id, note string) {
	if strings.TrimSpace(note) == "" {
		return
	}
	_, err := o.store.Update(ctx, id, func(j *models.Job) error {
		j.ThoughtSummaries = append(j.ThoughtSummaries, note)
		return nil
	})
	if err != nil && !errors.Is(err, jobs.ErrJobFinished) {
		o.logger.Warn("failed to append thought", "job_id", id, "error", err)
	}
}

// stageTimer logs stage start and, on finish, its duration and outcome.
type stageTimer struct {
	o     *Orchestrator
	jobID string
	stage models.JobStatus
	start time.Time
}

func (o *Orchestrator) beginStage(jobID string, stage models.JobStatus) *stageTimer {
	logger.LogStage(o.logger, jobID, string(stage), "start", 0, "")
	return &stageTimer{o: o, jobID: jobID, stage: stage, start: time.Now()}
}

func (s *stageTimer) end(err error) {
	elapsed := time.Since(s.start)
	metrics.RecordStageDuration(string(s.stage), elapsed.Seconds())
	if err != nil {
		code := string(errs.CodeOf(err))
		if code == "" {
			code = "UNKNOWN"
		}
		logger.LogStage(s.o.logger, s.jobID, string(s.stage), "error", elapsed.Milliseconds(), code)
		return
	}
	logger.LogStage(s.o.logger, s.jobID, string(s.stage), "success", elapsed.Milliseconds(), "")
}

// runPipeline takes a queued job through resolve, transcription and fact-check.
func (o *Orchestrator) runPipeline(ctx context.Context, job *models.Job) error {
	log := o.logger.With("job_id", job.ID)

	transcript, meta, err := o.acquireTranscript(ctx, job)
	if err != nil {
		return err
	}
	if strings.TrimSpace(transcript) == "" {
		return errs.NewValidationError("no speech could be transcribed from this video", nil)
	}
	if err := o.store.WriteArtifact(job.ID, jobs.ArtifactTranscript, []byte(transcript)); err != nil {
		log.Warn("failed to write transcript artifact", "error", err)
	}

	_, err = o.store.Update(ctx, job.ID, func(j *models.Job) error {
		j.Status = models.StatusFactChecking
		j.Progress = progressFactChecking
		j.Transcript = transcript
		j.ThoughtSummaries = append(j.ThoughtSummaries, "Fact-checking the claims against web sources")
		return nil
	})
	if err != nil {
		return err
	}

	st := o.beginStage(job.ID, models.StatusFactChecking)
	rep, err := o.factCheck(ctx, job, transcript, meta.Title)
	st.end(err)
	if err != nil {
		return err
	}

	_, err = o.store.Update(ctx, job.ID, func(j *models.Job) error {
		j.Progress = progressFactChecked
		return nil
	})
	if err != nil {
		return err
	}
	return o.complete(ctx, job.ID, rep)
}

// acquireTranscript returns caption text, or downloads and transcribes audio.
func (o *Orchestrator) acquireTranscript(ctx context.Context, job *models.Job) (string, media.VideoMetadata, error) {
	log := o.logger.With("job_id", job.ID)

	var (
		phaseMu sync.Mutex
		current *stageTimer
	)
	notify := func(p media.Phase) {
		phaseMu.Lock()
		defer phaseMu.Unlock()
		if current != nil {
			current.end(nil)
		}
		status, progress, note := models.StatusDownloading, progressDownloading, "Downloading the audio track"
		if p == media.PhaseCaptions {
			status, progress, note = models.StatusFetchingTranscript, progressFetchingTranscript, "Fetching the video captions"
		}
		current = o.beginStage(job.ID, status)
		if err := o.advance(ctx, job.ID, status, progress, note); err != nil {
			log.Warn("failed to record phase", "phase", string(p), "error", err)
		}
	}

	res, err := o.resolver.Resolve(ctx, job.ID, job.URL, notify)
	phaseMu.Lock()
	if current != nil {
		current.end(err)
	}
	phaseMu.Unlock()
	if err != nil {
		return "", media.VideoMetadata{}, err
	}
	o.recordMetadata(ctx, job.ID, res.Metadata)

	if res.HasTranscript() {
		log.Info("using captions", "chars", len(res.Transcript))
		return res.Transcript, res.Metadata, nil
	}
	if res.Audio == nil {
		return "", res.Metadata, errs.NewDownloadError("resolver returned neither captions nor audio", nil)
	}
	defer func() {
		if err := res.Audio.Cleanup(); err != nil {
			log.Warn("failed to remove audio", "dir", res.Audio.Dir, "error", err)
		}
	}()

	st := o.beginStage(job.ID, models.StatusTranscribing)
	text, err := o.transcribeAudio(ctx, job.ID, res.Audio.Path, res.Metadata)
	st.end(err)
	return text, res.Metadata, err
}

func (o *Orchestrator) transcribeAudio(ctx context.Context, jobID, audioPath string, meta media.VideoMetadata) (string, error) {
	if err := o.advance(ctx, jobID, models.StatusTranscribing, progressTranscribeStart, "Transcribing the audio"); err != nil {
		return "", err
	}
	chunks, err := o.splitter.Split(ctx, audioPath, o.cfg.ChunkSeconds)
	if err != nil {
		return "", err
	}
	if len(chunks) > 1 {
		o.addThought(ctx, jobID, fmt.Sprintf("Split the audio into %d parts", len(chunks)))
	}

	opts := transcribe.TranscribeOptions{Language: meta.Language, Prompt: transcribe.PromptFor(meta.Title)}
	return o.coordinator.TranscribeAll(ctx, chunks, opts, func(_ chunker.AudioChunk, done, total int) {
		note := ""
		if total > 1 {
			note = fmt.Sprintf("Transcribed part %d/%d", done, total)
		}
		if err := o.advance(ctx, jobID, models.StatusTranscribing, TranscriptionProgress(done, total), note); err != nil {
			o.logger.Warn("failed to record chunk progress", "job_id", jobID, "error", err)
		}
	})
}

func (o *Orchestrator) recordMetadata(ctx context.Context, id string, meta media.VideoMetadata) {
	if meta.Title == "" && meta.ThumbnailURL == "" {
		return
	}
	_, err := o.store.Update(ctx, id, func(j *models.Job) error {
		if meta.Title != "" {
			j.Title = meta.Title
		}
		if meta.ThumbnailURL != "" {
			j.ThumbnailURL = meta.ThumbnailURL
		}
		return nil
	})
	if err != nil {
		o.logger.Warn("failed to record metadata", "job_id", id, "error", err)
	}
}

// factCheck runs the provider and normalizes its output. Provider thoughts
// are translated and appended in arrival order without blocking the stream.
func (o *Orchestrator) factCheck(ctx context.Context, job *models.Job, transcript, title string) (*models.Report, error) {
	thoughts := make(chan string, 64)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for t := range thoughts {
			if o.translator != nil {
				t = o.translator.TranslateThought(ctx, t, job.OutputLanguage)
			}
			o.addThought(ctx, job.ID, t)
		}
	}()

	emit := func(t string) {
		select {
		case thoughts <- t:
		case <-ctx.Done():
		}
	}
	raw, err := o.factChecker.FactCheck(ctx, factcheck.Request{
		Transcript:     transcript,
		OutputLanguage: job.OutputLanguage,
		Title:          title,
		URL:            job.URL,
	}, emit)
	close(thoughts)
	<-drained
	if err != nil {
		return nil, err
	}

	if len(raw.Raw) > 0 {
		if err := o.store.WriteArtifact(job.ID, jobs.ArtifactRaw, raw.Raw); err != nil {
			o.logger.Warn("failed to write raw artifact", "job_id", job.ID, "error", err)
		}
	}
	return o.normalizer.Normalize(raw)
}

// runTranslation renders the report of src in the job's language.
func (o *Orchestrator) runTranslation(ctx context.Context, job, src *models.Job) error {
	if src.Report == nil {
		return errs.NewValidationError("source job has no report to translate", nil)
	}
	note := fmt.Sprintf("Translating the existing report into %s", models.LanguageName(job.OutputLanguage))
	if err := o.advance(ctx, job.ID, models.StatusTranslating, progressTranslating, note); err != nil {
		return err
	}
	o.carryTranscript(ctx, job, src)

	st := o.beginStage(job.ID, models.StatusTranslating)
	translated, err := o.translator.Translate(ctx, src.Report, job.OutputLanguage)
	st.end(err)
	if err != nil {
		return err
	}
	return o.complete(ctx, job.ID, translated)
}

// carryTranscript copies the source transcript into the translation job,
// falling back to the source's transcript.txt when its row has none.
func (o *Orchestrator) carryTranscript(ctx context.Context, job, src *models.Job) {
	transcript := src.Transcript
	if transcript == "" {
		data, err := o.store.ReadArtifact(src.ID, jobs.ArtifactTranscript)
		if err != nil {
			return
		}
		transcript = string(data)
		if _, err := o.store.Update(ctx, job.ID, func(j *models.Job) error {
			j.Transcript = transcript
			return nil
		}); err != nil {
			o.logger.Warn("failed to record transcript", "job_id", job.ID, "error", err)
		}
	}
	if err := o.store.WriteArtifact(job.ID, jobs.ArtifactTranscript, []byte(transcript)); err != nil {
		o.logger.Warn("failed to write transcript artifact", "job_id", job.ID, "error", err)
	}
}

// complete persists the report artifact and marks the job completed.
func (o *Orchestrator) complete(ctx context.Context, id string, rep *models.Report) error {
	if err := o.store.WriteJSONArtifact(id, jobs.ArtifactReport, rep); err != nil {
		o.logger.Warn("failed to write report artifact", "job_id", id, "error", err)
	}
	_, err := o.store.Update(ctx, id, func(j *models.Job) error {
		j.Status = models.StatusCompleted
		j.Progress = progressCompleted
		j.Report = rep
		j.Error = ""
		return nil
	})
	if err != nil {
		return err
	}
	o.logger.Info("job completed", "job_id", id, "score", rep.OverallScore, "verdict", string(rep.OverallVerdict))
	return nil
}
