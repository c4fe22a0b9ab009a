package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/houzhh15/factlens/cmd/server/internal/metrics"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
	"github.com/houzhh15/factlens/pkg/logger"
)

// ChunkDoneFunc is called once per finished chunk with the number of chunks
// done so far. Calls are serialized and done increases by one each time.
type ChunkDoneFunc func(chunk chunker.AudioChunk, done, total int)

// Coordinator transcribes the chunks of one job on a bounded worker pool.
type Coordinator struct {
	transcriber transcribe.Transcriber
	maxWorkers  int
	logger      *slog.Logger
}

// NewCoordinator creates a Coordinator. maxWorkers below 1 means sequential.
func NewCoordinator(t transcribe.Transcriber, maxWorkers int, l *slog.Logger) *Coordinator {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Coordinator{
		transcriber: t,
		maxWorkers:  maxWorkers,
		logger:      logger.OrDefault(l).With("component", "coordinator"),
	}
}

// TranscribeAll transcribes every chunk and joins the texts in index order,
// whatever order the calls finish in. The first failing chunk cancels the
// remaining calls and fails the whole call; no partial transcript is returned.
func (c *Coordinator) TranscribeAll(ctx context.Context, chunks []chunker.AudioChunk, base transcribe.TranscribeOptions, onDone ChunkDoneFunc) (string, error) {
	if len(chunks) == 0 {
		return "", errs.NewChunkingError("no audio chunks to transcribe", nil)
	}

	texts := make([]string, len(chunks))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			opts := base
			opts.ChunkIndex = chunk.Index
			opts.ChunkCount = len(chunks)

			start := time.Now()
			res, err := c.transcriber.Transcribe(gctx, chunk.Path, &opts)
			metrics.RecordChunkProcessed(err == nil)
			if err != nil {
				c.logger.Warn("chunk transcription failed",
					"chunk", chunk.Index, "chunks", len(chunks), "error", err)
				if errs.CodeOf(err) == "" {
					err = errs.NewProviderError(fmt.Sprintf("transcription of part %d failed", chunk.Index+1), false, err)
				}
				return err
			}
			texts[i] = strings.TrimSpace(res.Text)
			c.logger.Debug("chunk transcribed",
				"chunk", chunk.Index, "chars", len(texts[i]), "duration_ms", time.Since(start).Milliseconds())

			mu.Lock()
			done++
			if onDone != nil {
				onDone(chunk, done, len(chunks))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return JoinTranscripts(texts), nil
}

// JoinTranscripts concatenates chunk texts in order, separated by a blank
// line. Empty chunks (silence) are skipped.
func JoinTranscripts(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
