// Package degradation switches transcription between a primary and a fallback
// provider based on the primary's health.
package degradation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/health"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
	"github.com/houzhh15/factlens/pkg/logger"
	"github.com/houzhh15/factlens/pkg/metrics"
)

// DegradationController manages which transcriber is active. It is itself a
// transcribe.Transcriber, so the coordinator stays unaware of the switch.
//
// Thread-safety: All public methods are thread-safe via sync.RWMutex.
type DegradationController struct {
	primaryTranscriber  transcribe.Transcriber
	fallbackTranscriber transcribe.Transcriber
	healthChecker       *health.HealthChecker
	currentTranscriber  transcribe.Transcriber // protected by mu
	mu                  sync.RWMutex
	isDegraded          bool // protected by mu
	logger              *slog.Logger
}

// NewDegradationController creates a controller that starts on the primary transcriber.
func NewDegradationController(
	primary transcribe.Transcriber,
	fallback transcribe.Transcriber,
	hc *health.HealthChecker,
) *DegradationController {
	return &DegradationController{
		primaryTranscriber:  primary,
		fallbackTranscriber: fallback,
		healthChecker:       hc,
		currentTranscriber:  primary,
		logger:              logger.OrDefault(nil).With("component", "degradation"),
	}
}

// GetTranscriber returns the active transcriber, switching between primary
// and fallback based on the latest health status.
func (dc *DegradationController) GetTranscriber() transcribe.Transcriber {
	status := dc.healthChecker.GetStatus()

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if !status.IsHealthy && !dc.isDegraded {
		dc.logger.Warn("degrading to fallback transcriber",
			"primary", dc.primaryTranscriber.Name(),
			"fallback", dc.fallbackTranscriber.Name(),
			"reason", status.ErrorMessage)
		metrics.RecordDegradationEvent(dc.primaryTranscriber.Name(), dc.fallbackTranscriber.Name())
		dc.currentTranscriber = dc.fallbackTranscriber
		dc.isDegraded = true
	}

	if status.IsHealthy && dc.isDegraded {
		dc.logger.Info("recovering to primary transcriber", "primary", dc.primaryTranscriber.Name())
		metrics.RecordDegradationEvent(dc.fallbackTranscriber.Name(), dc.primaryTranscriber.Name())
		dc.currentTranscriber = dc.primaryTranscriber
		dc.isDegraded = false
	}

	return dc.currentTranscriber
}

// IsDegraded returns whether the fallback transcriber is active.
func (dc *DegradationController) IsDegraded() bool {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.isDegraded
}

// Transcribe delegates to the active transcriber.
func (dc *DegradationController) Transcribe(ctx context.Context, audioPath string, options *transcribe.TranscribeOptions) (*transcribe.TranscriptionResult, error) {
	return dc.GetTranscriber().Transcribe(ctx, audioPath, options)
}

// HealthCheck reports healthy while either transcriber can serve requests.
func (dc *DegradationController) HealthCheck(ctx context.Context) (bool, error) {
	ok, err := dc.primaryTranscriber.HealthCheck(ctx)
	if ok {
		return true, nil
	}
	if fbOK, _ := dc.fallbackTranscriber.HealthCheck(ctx); fbOK {
		return true, nil
	}
	return false, err
}

// Name returns the name of the active transcriber.
func (dc *DegradationController) Name() string {
	return dc.GetTranscriber().Name()
}
