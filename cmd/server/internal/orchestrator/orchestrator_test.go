package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/factlens/cmd/server/internal/domain/jobs"
	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/media"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe/transcribetest"
)

type fakeResolver struct {
	calls atomic.Int32
	fn    func(ctx context.Context, jobID, rawURL string, notify func(media.Phase)) (*media.Resolution, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, jobID, rawURL string, notify func(media.Phase)) (*media.Resolution, error) {
	f.calls.Add(1)
	return f.fn(ctx, jobID, rawURL, notify)
}

func captions(text string) *fakeResolver {
	return &fakeResolver{fn: func(_ context.Context, _, _ string, notify func(media.Phase)) (*media.Resolution, error) {
		notify(media.PhaseCaptions)
		return &media.Resolution{Transcript: text, Metadata: media.VideoMetadata{Title: "A video", ThumbnailURL: "https://img/1.jpg"}}, nil
	}}
}

type fakeSplitter struct {
	calls  atomic.Int32
	chunks []chunker.AudioChunk
	err    error
}

func (f *fakeSplitter) Split(ctx context.Context, audioPath string, chunkSeconds int) ([]chunker.AudioChunk, error) {
	f.calls.Add(1)
	return f.chunks, f.err
}

type fakeFactChecker struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req factcheck.Request, thought factcheck.ThoughtFunc) (*factcheck.RawReport, error)
}

func (f *fakeFactChecker) FactCheck(ctx context.Context, req factcheck.Request, thought factcheck.ThoughtFunc) (*factcheck.RawReport, error) {
	f.calls.Add(1)
	return f.fn(ctx, req, thought)
}

func (f *fakeFactChecker) Name() string { return "fake:factcheck" }

func returning(fields map[string]any) *fakeFactChecker {
	return &fakeFactChecker{fn: func(_ context.Context, _ factcheck.Request, thought factcheck.ThoughtFunc) (*factcheck.RawReport, error) {
		thought.Emit("Looking up sources")
		return &factcheck.RawReport{Fields: fields, Provider: "fake", Model: "m", Raw: json.RawMessage(`{"id":"resp_1"}`)}, nil
	}}
}

func supportedReport() map[string]any {
	return map[string]any{
		"summary":     "The video is accurate.",
		"whats_right": []any{"the dates"},
		"claims": []any{
			map[string]any{"claim": "The bridge opened in 1932", "verdict": "supported", "weight": 60.0, "confidence": 100.0},
		},
	}
}

type fakeTranslator struct {
	calls atomic.Int32
	err   error
}

func (f *fakeTranslator) Translate(ctx context.Context, src *models.Report, target string) (*models.Report, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := src.Clone()
	out.Summary = "[" + target + "] " + src.Summary
	return out, nil
}

func (f *fakeTranslator) TranslateThought(ctx context.Context, text, lang string) string {
	if lang == "en" {
		return text
	}
	return "[" + lang + "] " + text
}

type harness struct {
	o           *Orchestrator
	store       *jobs.Store
	resolver    *fakeResolver
	splitter    *fakeSplitter
	transcriber *transcribetest.FakeTranscriber
	checker     *fakeFactChecker
	translator  *fakeTranslator
}

func newHarness(t *testing.T, resolver *fakeResolver, checker *fakeFactChecker, withTranslator bool) *harness {
	t.Helper()
	store, err := jobs.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:       store,
		resolver:    resolver,
		splitter:    &fakeSplitter{},
		transcriber: transcribetest.New("stt"),
		checker:     checker,
	}
	deps := Deps{
		Store:       store,
		Resolver:    resolver,
		Splitter:    h.splitter,
		Transcriber: h.transcriber,
		FactChecker: checker,
	}
	if withTranslator {
		h.translator = &fakeTranslator{}
		deps.Translator = h.translator
	}
	h.o = New(Config{MaxWorkers: 2, JobTimeout: 10 * time.Second}, deps)
	require.NoError(t, h.o.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.o.Shutdown(ctx)
	})
	return h
}

func waitForStatus(t *testing.T, o *Orchestrator, id string, want models.JobStatus) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := o.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestAnalyzeCaptionsSkipTranscription(t *testing.T) {
	h := newHarness(t, captions("Hello world."), returning(supportedReport()), true)

	res, err := h.o.Analyze(context.Background(), AnalyzeRequest{URL: "https://www.youtube.com/watch?v=abc", OutputLanguage: "fr"})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.False(t, res.IsTranslation)

	job := waitForStatus(t, h.o, res.JobID, models.StatusCompleted)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "Hello world.", job.Transcript)
	assert.Equal(t, "A video", job.Title)
	require.NotNil(t, job.Report)
	assert.Equal(t, 100, job.Report.OverallScore)
	assert.Equal(t, models.VerdictAccurate, job.Report.OverallVerdict)

	assert.Zero(t, h.splitter.calls.Load())
	assert.Empty(t, h.transcriber.Calls())
	assert.Contains(t, job.ThoughtSummaries, "Fetching the video captions")
	assert.Contains(t, job.ThoughtSummaries, "[fr] Looking up sources")
	for _, note := range job.ThoughtSummaries {
		assert.NotContains(t, note, "Downloading")
		assert.NotContains(t, note, "Transcribing")
	}

	for _, name := range []string{jobs.ArtifactJob, jobs.ArtifactTranscript, jobs.ArtifactReport, jobs.ArtifactRaw} {
		_, err := h.store.ReadArtifact(res.JobID, name)
		assert.NoError(t, err, name)
	}
}

func TestAnalyzeAudioChunksJoinInIndexOrder(t *testing.T) {
	audioDir := filepath.Join(t.TempDir(), "media")
	require.NoError(t, os.MkdirAll(audioDir, 0o755))
	audioPath := filepath.Join(audioDir, "audio.mp3")
	require.NoError(t, os.WriteFile(audioPath, []byte("mp3"), 0o644))

	resolver := &fakeResolver{fn: func(_ context.Context, _, _ string, notify func(media.Phase)) (*media.Resolution, error) {
		notify(media.PhaseDownload)
		return &media.Resolution{Audio: &media.AudioFile{Path: audioPath, Dir: audioDir}}, nil
	}}
	var gotTranscript atomic.Value
	checker := &fakeFactChecker{fn: func(_ context.Context, req factcheck.Request, _ factcheck.ThoughtFunc) (*factcheck.RawReport, error) {
		gotTranscript.Store(req.Transcript)
		return &factcheck.RawReport{Fields: supportedReport()}, nil
	}}
	h := newHarness(t, resolver, checker, false)
	h.splitter.chunks = []chunker.AudioChunk{
		{Index: 0, Path: "part_000.mp3", DurationSeconds: 900},
		{Index: 1, Path: "part_001.mp3", OffsetSeconds: 900, DurationSeconds: 900},
		{Index: 2, Path: "part_002.mp3", OffsetSeconds: 1800, DurationSeconds: 600},
	}
	h.transcriber.Handler = func(_ context.Context, path string, opts transcribe.TranscribeOptions) (string, error) {
		// Earlier chunks finish last.
		time.Sleep(time.Duration(3-opts.ChunkIndex) * 20 * time.Millisecond)
		return fmt.Sprintf("part %d", opts.ChunkIndex), nil
	}

	res, err := h.o.Analyze(context.Background(), AnalyzeRequest{URL: "https://vimeo.com/1", OutputLanguage: "en"})
	require.NoError(t, err)
	job := waitForStatus(t, h.o, res.JobID, models.StatusCompleted)

	assert.Equal(t, "part 0\n\npart 1\n\npart 2", job.Transcript)
	assert.Equal(t, job.Transcript, gotTranscript.Load())
	assert.Len(t, h.transcriber.Calls(), 3)
	assert.Contains(t, job.ThoughtSummaries, "Downloading the audio track")
	assert.Contains(t, job.ThoughtSummaries, "Transcribed part 3/3")

	_, err = os.Stat(audioDir)
	assert.True(t, os.IsNotExist(err), "audio directory is removed after transcription")
}

func TestAnalyzeCacheHitAndForce(t *testing.T) {
	h := newHarness(t, captions("text"), returning(supportedReport()), false)
	ctx := context.Background()

	first, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "en"})
	require.NoError(t, err)
	waitForStatus(t, h.o, first.JobID, models.StatusCompleted)

	again, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://www.youtube.com/watch?v=abc&utm_source=x", OutputLanguage: "en-US"})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, first.JobID, again.JobID)
	assert.EqualValues(t, 1, h.checker.calls.Load())

	forced, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "en", Force: true})
	require.NoError(t, err)
	assert.False(t, forced.Cached)
	assert.NotEqual(t, first.JobID, forced.JobID)
	waitForStatus(t, h.o, forced.JobID, models.StatusCompleted)
	assert.EqualValues(t, 2, h.checker.calls.Load())
}

func TestAnalyzeAttachesToInFlightJob(t *testing.T) {
	release := make(chan struct{})
	checker := &fakeFactChecker{fn: func(ctx context.Context, _ factcheck.Request, _ factcheck.ThoughtFunc) (*factcheck.RawReport, error) {
		<-release
		return &factcheck.RawReport{Fields: supportedReport()}, nil
	}}
	h := newHarness(t, captions("text"), checker, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*AnalyzeResult, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "en"})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, results[0].JobID, res.JobID)
		assert.False(t, res.Cached)
	}

	close(release)
	waitForStatus(t, h.o, results[0].JobID, models.StatusCompleted)
	assert.EqualValues(t, 1, h.checker.calls.Load())
	assert.EqualValues(t, 1, h.resolver.calls.Load())
}

func TestAnalyzeTranslationShortcut(t *testing.T) {
	h := newHarness(t, captions("text"), returning(supportedReport()), true)
	ctx := context.Background()

	src, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "en"})
	require.NoError(t, err)
	original := waitForStatus(t, h.o, src.JobID, models.StatusCompleted)

	res, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "fr"})
	require.NoError(t, err)
	assert.True(t, res.IsTranslation)
	assert.False(t, res.Cached)
	assert.NotEqual(t, src.JobID, res.JobID)

	job := waitForStatus(t, h.o, res.JobID, models.StatusCompleted)
	assert.Equal(t, src.JobID, job.TranslatedFrom)
	assert.Equal(t, "fr", job.OutputLanguage)
	assert.Equal(t, original.Transcript, job.Transcript)
	require.NotNil(t, job.Report)
	assert.Equal(t, original.Report.OverallScore, job.Report.OverallScore)
	assert.Equal(t, original.Report.OverallVerdict, job.Report.OverallVerdict)
	assert.Equal(t, "[fr] The video is accurate.", job.Report.Summary)
	assert.EqualValues(t, 1, h.resolver.calls.Load())
	assert.EqualValues(t, 1, h.checker.calls.Load())

	cached, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "fr"})
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.True(t, cached.IsTranslation)
	assert.Equal(t, res.JobID, cached.JobID)
}

func TestAnalyzeTranslationReadsTranscriptArtifact(t *testing.T) {
	h := newHarness(t, captions("Hello world."), returning(supportedReport()), true)
	ctx := context.Background()

	src, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "en"})
	require.NoError(t, err)
	waitForStatus(t, h.o, src.JobID, models.StatusCompleted)
	_, err = h.store.Update(ctx, src.JobID, func(j *models.Job) error {
		j.Transcript = ""
		return nil
	})
	require.NoError(t, err)

	res, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "de"})
	require.NoError(t, err)
	require.True(t, res.IsTranslation)
	job := waitForStatus(t, h.o, res.JobID, models.StatusCompleted)

	assert.Equal(t, "Hello world.", job.Transcript)
	data, err := h.store.ReadArtifact(res.JobID, jobs.ArtifactTranscript)
	require.NoError(t, err)
	assert.Equal(t, "Hello world.", string(data))
}

func TestAnalyzePassesTitleToTranscriber(t *testing.T) {
	audioDir := filepath.Join(t.TempDir(), "media")
	require.NoError(t, os.MkdirAll(audioDir, 0o755))
	resolver := &fakeResolver{fn: func(_ context.Context, _, _ string, notify func(media.Phase)) (*media.Resolution, error) {
		notify(media.PhaseDownload)
		return &media.Resolution{
			Audio:    &media.AudioFile{Path: filepath.Join(audioDir, "audio.mp3"), Dir: audioDir},
			Metadata: media.VideoMetadata{Title: "Golden Gate  Bridge\nfacts", Language: "en"},
		}, nil
	}}
	h := newHarness(t, resolver, returning(supportedReport()), false)
	h.splitter.chunks = []chunker.AudioChunk{{Index: 0, Path: "part_000.mp3"}}
	var got atomic.Value
	h.transcriber.Handler = func(_ context.Context, _ string, opts transcribe.TranscribeOptions) (string, error) {
		got.Store(opts)
		return "text", nil
	}

	res, err := h.o.Analyze(context.Background(), AnalyzeRequest{URL: "https://vimeo.com/1", OutputLanguage: "en"})
	require.NoError(t, err)
	waitForStatus(t, h.o, res.JobID, models.StatusCompleted)

	opts, ok := got.Load().(transcribe.TranscribeOptions)
	require.True(t, ok)
	assert.Equal(t, "en", opts.Language)
	assert.Equal(t, transcribe.PromptFor("Golden Gate  Bridge\nfacts"), opts.Prompt)
	assert.Contains(t, opts.Prompt, `"Golden Gate Bridge facts"`)
}

func TestAnalyzeTranslationFailureFailsJob(t *testing.T) {
	h := newHarness(t, captions("text"), returning(supportedReport()), true)
	h.translator.err = errs.NewProviderError("translation quota exceeded", false, nil)
	ctx := context.Background()

	src, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "en"})
	require.NoError(t, err)
	waitForStatus(t, h.o, src.JobID, models.StatusCompleted)

	res, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "de"})
	require.NoError(t, err)
	job := waitForStatus(t, h.o, res.JobID, models.StatusFailed)
	assert.Equal(t, "translation quota exceeded", job.Error)
	assert.Nil(t, job.Report)
	assert.Equal(t, 70, job.Progress)
}

func TestAnalyzeFailurePreservesDiagnostics(t *testing.T) {
	dir := t.TempDir()
	resolver := &fakeResolver{fn: func(_ context.Context, _, _ string, notify func(media.Phase)) (*media.Resolution, error) {
		notify(media.PhaseDownload)
		return &media.Resolution{Audio: &media.AudioFile{Path: filepath.Join(dir, "audio.mp3"), Dir: dir}}, nil
	}}
	h := newHarness(t, resolver, returning(supportedReport()), false)
	h.splitter.chunks = []chunker.AudioChunk{{Index: 0, Path: "a"}, {Index: 1, Path: "b"}}
	h.transcriber.Handler = func(_ context.Context, _ string, opts transcribe.TranscribeOptions) (string, error) {
		if opts.ChunkIndex == 1 {
			return "", errs.NewProviderError("invalid api key", false, nil)
		}
		return "ok", nil
	}

	res, err := h.o.Analyze(context.Background(), AnalyzeRequest{URL: "https://vimeo.com/1", OutputLanguage: "en"})
	require.NoError(t, err)
	job := waitForStatus(t, h.o, res.JobID, models.StatusFailed)

	assert.Equal(t, "invalid api key", job.Error)
	assert.Nil(t, job.Report)
	assert.Empty(t, job.Transcript)
	assert.Contains(t, job.ThoughtSummaries, "Downloading the audio track")
	assert.GreaterOrEqual(t, job.Progress, 10)
	assert.Less(t, job.Progress, 60)
	assert.Zero(t, h.checker.calls.Load())
}

func TestAnalyzeDownloadErrorMessage(t *testing.T) {
	resolver := &fakeResolver{fn: func(_ context.Context, _, _ string, notify func(media.Phase)) (*media.Resolution, error) {
		notify(media.PhaseDownload)
		return nil, errs.NewDownloadError("HTTP Error 503", nil)
	}}
	h := newHarness(t, resolver, returning(supportedReport()), false)

	res, err := h.o.Analyze(context.Background(), AnalyzeRequest{URL: "https://vimeo.com/1", OutputLanguage: "en"})
	require.NoError(t, err)
	job := waitForStatus(t, h.o, res.JobID, models.StatusFailed)
	assert.Equal(t, "Download failed: HTTP Error 503", job.Error)
	assert.Equal(t, 10, job.Progress)
}

func TestAnalyzeClampsOutOfRangeProviderReport(t *testing.T) {
	h := newHarness(t, captions("text"), returning(map[string]any{
		"overall_score":   150.0,
		"overall_verdict": "super_true",
		"summary":         "odd",
	}), false)

	res, err := h.o.Analyze(context.Background(), AnalyzeRequest{URL: "https://youtu.be/x", OutputLanguage: "en"})
	require.NoError(t, err)
	job := waitForStatus(t, h.o, res.JobID, models.StatusCompleted)
	require.NotNil(t, job.Report)
	assert.Equal(t, 100, job.Report.OverallScore)
	assert.Equal(t, models.VerdictUnverifiable, job.Report.OverallVerdict)
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	h := newHarness(t, captions("text"), returning(supportedReport()), false)
	ctx := context.Background()

	_, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "ftp://example.com/v", OutputLanguage: "en"})
	assert.Equal(t, errs.UNSUPPORTED_URL, errs.CodeOf(err))

	_, err = h.o.Analyze(ctx, AnalyzeRequest{URL: "https://" + strings.Repeat("a", 3000) + ".com", OutputLanguage: "en"})
	assert.Equal(t, errs.UNSUPPORTED_URL, errs.CodeOf(err))

	_, err = h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "klingon"})
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)

	res, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc"})
	require.NoError(t, err)
	job := waitForStatus(t, h.o, res.JobID, models.StatusCompleted)
	assert.Equal(t, models.DefaultLanguage, job.OutputLanguage)
}

func TestStartMarksInterruptedJobs(t *testing.T) {
	dir := t.TempDir()
	store, err := jobs.Open(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.Job{ID: "stale", URL: "https://youtu.be/a", NormalizedURL: "https://youtube.com/watch?v=a", OutputLanguage: "en", Status: models.StatusQueued}))
	_, err = store.Update(ctx, "stale", func(j *models.Job) error {
		j.Status = models.StatusTranscribing
		j.Progress = 30
		return nil
	})
	require.NoError(t, err)
	defer store.Close()

	o := New(Config{}, Deps{Store: store, Transcriber: transcribetest.New("stt")})
	require.NoError(t, o.Start(ctx))

	job, err := o.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.True(t, strings.HasPrefix(job.Error, "INTERRUPTED"), job.Error)
	assert.Equal(t, 30, job.Progress)
}

func TestShutdownRejectsNewJobs(t *testing.T) {
	h := newHarness(t, captions("text"), returning(supportedReport()), false)
	require.NoError(t, h.o.Shutdown(context.Background()))

	_, err := h.o.Analyze(context.Background(), AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "en"})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestDeleteRefusesRunningJob(t *testing.T) {
	release := make(chan struct{})
	checker := &fakeFactChecker{fn: func(ctx context.Context, _ factcheck.Request, _ factcheck.ThoughtFunc) (*factcheck.RawReport, error) {
		<-release
		return &factcheck.RawReport{Fields: supportedReport()}, nil
	}}
	h := newHarness(t, captions("text"), checker, false)
	ctx := context.Background()

	res, err := h.o.Analyze(ctx, AnalyzeRequest{URL: "https://youtu.be/abc", OutputLanguage: "en"})
	require.NoError(t, err)
	assert.ErrorIs(t, h.o.Delete(ctx, res.JobID), jobs.ErrJobRunning)
	_, err = h.o.DeleteAll(ctx)
	assert.ErrorIs(t, err, jobs.ErrJobRunning)

	close(release)
	waitForStatus(t, h.o, res.JobID, models.StatusCompleted)
	require.NoError(t, h.o.Delete(ctx, res.JobID))

	items, err := h.o.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}
