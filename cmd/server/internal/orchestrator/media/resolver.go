// Package media resolves a video URL into either caption text or a local
// audio file using yt-dlp.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/pkg/logger"
	"github.com/houzhh15/factlens/pkg/retry"
)

// Phase tells the caller which kind of work the resolver is about to do.
type Phase string

const (
	PhaseCaptions Phase = "fetching_transcript"
	PhaseDownload Phase = "downloading"
)

// Config controls yt-dlp invocations.
type Config struct {
	CookiesFile      string
	DownloadTimeout  time.Duration
	MetadataTimeout  time.Duration
	DownloadAttempts int
	// RetryBaseDelay overrides the first backoff delay between download attempts.
	RetryBaseDelay time.Duration
}

// VideoMetadata is the subset of yt-dlp metadata the pipeline keeps.
type VideoMetadata struct {
	Title           string  `json:"title,omitempty"`
	ThumbnailURL    string  `json:"thumbnail_url,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Language        string  `json:"language,omitempty"`
}

// AudioFile is a downloaded audio file inside its own job-scoped directory.
type AudioFile struct {
	Path string
	Dir  string
}

// Cleanup removes the audio file together with its directory.
func (a *AudioFile) Cleanup() error {
	if a == nil || a.Dir == "" {
		return nil
	}
	return os.RemoveAll(a.Dir)
}

// Resolution is either caption text or a downloaded audio file.
type Resolution struct {
	Transcript string
	Audio      *AudioFile
	Metadata   VideoMetadata
}

// HasTranscript reports whether captions were used.
func (r *Resolution) HasTranscript() bool {
	return r != nil && strings.TrimSpace(r.Transcript) != ""
}

// Resolver implements caption-first media resolution.
type Resolver struct {
	client *dependency.DependencyClient
	cfg    Config
	logger *slog.Logger
}

// NewResolver creates a resolver on top of a dependency client.
func NewResolver(client *dependency.DependencyClient, cfg Config, l *slog.Logger) *Resolver {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 15 * time.Minute
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = 2 * time.Minute
	}
	if cfg.DownloadAttempts <= 0 {
		cfg.DownloadAttempts = 3
	}
	return &Resolver{
		client: client,
		cfg:    cfg,
		logger: logger.OrDefault(l).With("component", "media"),
	}
}

type ytDlpInfo struct {
	Title      string `json:"title"`
	FullTitle  string `json:"fulltitle"`
	Thumbnail  string `json:"thumbnail"`
	Thumbnails []struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"thumbnails"`
	Duration          float64        `json:"duration"`
	Language          string         `json:"language"`
	Subtitles         map[string]any `json:"subtitles"`
	AutomaticCaptions map[string]any `json:"automatic_captions"`
}

func (i *ytDlpInfo) metadata() VideoMetadata {
	md := VideoMetadata{
		Title:           strings.TrimSpace(firstNonEmpty(i.Title, i.FullTitle)),
		ThumbnailURL:    strings.TrimSpace(i.Thumbnail),
		DurationSeconds: i.Duration,
		Language:        i.Language,
	}
	if md.ThumbnailURL == "" {
		bestRes := -1
		for _, t := range i.Thumbnails {
			if t.URL == "" {
				continue
			}
			if res := t.Width * t.Height; res > bestRes {
				md.ThumbnailURL = t.URL
				bestRes = res
			}
		}
	}
	return md
}

// Resolve returns captions for YouTube videos that expose them in the video's
// own language, otherwise downloads the audio track. notify, when set, is
// called before each phase starts.
func (r *Resolver) Resolve(ctx context.Context, jobID, rawURL string, notify func(Phase)) (*Resolution, error) {
	if notify == nil {
		notify = func(Phase) {}
	}
	log := r.logger.With("job_id", jobID)

	info, err := r.dumpInfo(ctx, rawURL)
	if err != nil {
		if code := errs.CodeOf(err); code == errs.UNSUPPORTED_URL || code == errs.RESOURCE_UNAVAILABLE {
			return nil, err
		}
		log.Warn("metadata lookup failed, continuing without it", "error", err)
	}

	res := &Resolution{}
	if info != nil {
		res.Metadata = info.metadata()
	}

	if IsYouTubeURL(rawURL) && info != nil {
		notify(PhaseCaptions)
		transcript, err := r.fetchCaptions(ctx, jobID, rawURL, info)
		if err != nil {
			log.Info("captions unavailable, falling back to audio", "reason", err.Error())
		} else if strings.TrimSpace(transcript) != "" {
			res.Transcript = transcript
			return res, nil
		}
	}

	notify(PhaseDownload)
	audio, err := r.downloadAudioWithRetry(ctx, jobID, rawURL)
	if err != nil {
		return nil, err
	}
	res.Audio = audio
	return res, nil
}

func (r *Resolver) withCookies(args []string) []string {
	if r.cfg.CookiesFile == "" {
		return args
	}
	return append([]string{"--cookies", r.cfg.CookiesFile}, args...)
}

func (r *Resolver) dumpInfo(ctx context.Context, rawURL string) (*ytDlpInfo, error) {
	args := r.withCookies([]string{"--no-playlist", "--dump-single-json", rawURL})
	resp, err := r.client.Run(ctx, dependency.CommandYtDlp, args, r.cfg.MetadataTimeout)
	if err != nil {
		return nil, classifyYtDlpError(err)
	}
	var info ytDlpInfo
	if err := json.Unmarshal([]byte(resp.Stdout), &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp JSON: %w", err)
	}
	return &info, nil
}

func (r *Resolver) fetchCaptions(ctx context.Context, jobID, rawURL string, info *ytDlpInfo) (string, error) {
	lang := strings.TrimSpace(info.Language)
	if lang == "" {
		return "", errors.New("video language unknown")
	}

	var track string
	auto := false
	if len(info.Subtitles) > 0 {
		track = pickSubLang(info.Subtitles, lang)
	} else if len(info.AutomaticCaptions) > 0 {
		track = pickSubLang(info.AutomaticCaptions, lang)
		auto = true
	}
	if track == "" {
		return "", errors.New("no caption tracks")
	}

	dir, err := r.client.PathManager().NewMediaDir(jobID)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	writeFlag := "--write-subs"
	if auto {
		writeFlag = "--write-auto-subs"
	}
	args := r.withCookies([]string{
		"--no-playlist", "--skip-download", writeFlag,
		"--sub-langs", track,
		"--sub-format", "vtt/srt/ttml/best",
		"-o", filepath.Join(dir, "transcript.%(ext)s"),
		rawURL,
	})
	if _, err := r.client.Run(ctx, dependency.CommandYtDlp, args, r.cfg.DownloadTimeout); err != nil {
		return "", err
	}

	path, err := selectSubtitleFile(dir, track)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return CleanSubtitleText(strings.ToValidUTF8(string(data), "�")), nil
}

func (r *Resolver) downloadAudioWithRetry(ctx context.Context, jobID, rawURL string) (*AudioFile, error) {
	policy := retry.DefaultPolicy(errs.IsRetryable)
	policy.MaxAttempts = r.cfg.DownloadAttempts
	if r.cfg.RetryBaseDelay > 0 {
		policy.BaseDelay = r.cfg.RetryBaseDelay
	}
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		r.logger.Warn("audio download failed, retrying",
			"job_id", jobID, "attempt", attempt, "wait", wait, "error", err)
	}
	return retry.Do(ctx, policy, func(ctx context.Context) (*AudioFile, error) {
		return r.downloadAudio(ctx, jobID, rawURL)
	})
}

func (r *Resolver) downloadAudio(ctx context.Context, jobID, rawURL string) (*AudioFile, error) {
	dir, err := r.client.PathManager().NewMediaDir(jobID)
	if err != nil {
		return nil, errs.NewDownloadError("cannot create media directory", err)
	}
	audio := &AudioFile{Path: filepath.Join(dir, "audio.mp3"), Dir: dir}

	args := r.withCookies([]string{
		"--no-playlist", "-x",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"-o", filepath.Join(dir, "audio.%(ext)s"),
		rawURL,
	})
	if _, err := r.client.Run(ctx, dependency.CommandYtDlp, args, r.cfg.DownloadTimeout); err != nil {
		_ = audio.Cleanup()
		return nil, classifyYtDlpError(err)
	}

	if _, err := os.Stat(audio.Path); err != nil {
		found, _ := filepath.Glob(filepath.Join(dir, "audio.*"))
		names := make([]string, len(found))
		for i, f := range found {
			names[i] = filepath.Base(f)
		}
		_ = audio.Cleanup()
		return nil, errs.NewDownloadError(fmt.Sprintf("expected audio.mp3 not found, got %v", names), err)
	}
	return audio, nil
}

var unavailableMarkers = []string{
	"private video",
	"video unavailable",
	"is unavailable",
	"has been removed",
	"no longer available",
	"available in your country",
	"geo restrict",
	"geo-restrict",
	"sign in to confirm your age",
	"age-restricted",
	"age restricted",
	"members-only",
	"members only",
	"join this channel",
	"copyright",
	"account associated with this video has been terminated",
}

// classifyYtDlpError maps a failed yt-dlp invocation onto the error taxonomy.
func classifyYtDlpError(err error) error {
	detail := err.Error()
	var cmdErr *dependency.CommandError
	if errors.As(err, &cmdErr) && strings.TrimSpace(cmdErr.Stderr) != "" {
		detail = cmdErr.Stderr
	}
	msg := lastErrorLine(detail)
	lower := strings.ToLower(detail)

	if strings.Contains(lower, "unsupported url") {
		return errs.NewUnsupportedURLError(msg)
	}
	for _, marker := range unavailableMarkers {
		if strings.Contains(lower, marker) {
			return errs.NewResourceUnavailableError(msg, err)
		}
	}
	return errs.NewDownloadError(msg, err)
}

// lastErrorLine returns the last "ERROR:" line of yt-dlp output, or the last
// non-empty line.
func lastErrorLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := ""
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if last == "" {
			last = line
		}
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if last == "" {
		return "yt-dlp failed"
	}
	return last
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
