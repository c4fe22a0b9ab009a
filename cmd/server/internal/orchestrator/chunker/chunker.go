// Package chunker splits long audio files into fixed-length, non-overlapping
// segments for transcription.
package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/pkg/logger"
)

const (
	DefaultChunkSeconds = 900
	MinChunkSeconds     = 60
)

// AudioChunk is one segment of the source audio.
type AudioChunk struct {
	Index           int     `json:"index"`
	Path            string  `json:"path"`
	OffsetSeconds   float64 `json:"offset_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Chunker measures and splits audio with ffprobe and ffmpeg.
type Chunker struct {
	client *dependency.DependencyClient
	logger *slog.Logger
}

// New creates a Chunker.
func New(client *dependency.DependencyClient, l *slog.Logger) *Chunker {
	return &Chunker{client: client, logger: logger.OrDefault(l).With("component", "chunker")}
}

// Split returns the ordered chunks of audioPath. Audio no longer than
// chunkSeconds yields exactly one chunk pointing at the source file.
// Segments are written to a "parts" directory next to the source.
func (c *Chunker) Split(ctx context.Context, audioPath string, chunkSeconds int) ([]AudioChunk, error) {
	if chunkSeconds <= 0 {
		chunkSeconds = DefaultChunkSeconds
	}
	if chunkSeconds < MinChunkSeconds {
		chunkSeconds = MinChunkSeconds
	}

	total, err := c.client.ProbeDuration(ctx, audioPath)
	if err != nil {
		return nil, errs.NewChunkingError("cannot measure audio duration", err)
	}

	if total <= float64(chunkSeconds) {
		return []AudioChunk{{Index: 0, Path: audioPath, DurationSeconds: total}}, nil
	}

	partsDir := filepath.Join(filepath.Dir(audioPath), "parts")
	if err := os.MkdirAll(partsDir, 0o755); err != nil {
		return nil, errs.NewChunkingError("cannot create parts directory", err)
	}

	if err := c.client.SegmentAudio(ctx, audioPath, partsDir, chunkSeconds, false); err != nil {
		c.logger.Warn("stream copy split failed, re-encoding", "path", audioPath, "error", err)
		if err := resetDir(partsDir); err != nil {
			return nil, errs.NewChunkingError("cannot reset parts directory", err)
		}
		if err := c.client.SegmentAudio(ctx, audioPath, partsDir, chunkSeconds, true); err != nil {
			return nil, errs.NewChunkingError("ffmpeg could not split the audio", err)
		}
	}

	parts, err := filepath.Glob(filepath.Join(partsDir, "part_*.mp3"))
	if err != nil {
		return nil, errs.NewChunkingError("cannot list audio parts", err)
	}
	if len(parts) == 0 {
		return nil, errs.NewChunkingError("ffmpeg produced no audio parts", nil)
	}
	sort.Strings(parts)
	if want := ExpectedChunks(total, chunkSeconds); len(parts) != want {
		// ffmpeg cuts on frame boundaries and can emit a trailing sliver.
		c.logger.Warn("unexpected audio part count",
			"path", audioPath,
			"expected", want,
			"parts", len(parts))
	}

	size := float64(chunkSeconds)
	chunks := make([]AudioChunk, len(parts))
	for i, p := range parts {
		offset := float64(i) * size
		chunks[i] = AudioChunk{
			Index:           i,
			Path:            p,
			OffsetSeconds:   offset,
			DurationSeconds: math.Max(0, math.Min(size, total-offset)),
		}
	}

	c.logger.Info("audio split",
		"path", audioPath,
		"duration_seconds", total,
		"chunk_seconds", chunkSeconds,
		"chunks", len(chunks))
	return chunks, nil
}

// ExpectedChunks returns how many chunks Split produces for a duration.
func ExpectedChunks(totalSeconds float64, chunkSeconds int) int {
	if totalSeconds <= float64(chunkSeconds) {
		return 1
	}
	return int(math.Ceil(totalSeconds / float64(chunkSeconds)))
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	return os.MkdirAll(dir, 0o755)
}
