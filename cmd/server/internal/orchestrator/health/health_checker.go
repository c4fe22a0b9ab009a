// Package health provides health checking for transcription providers.
// It implements periodic health probes with configurable intervals and failure thresholds.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
	"github.com/houzhh15/factlens/pkg/logger"
)

// ServiceStatus represents the current health state of a transcription provider.
// All fields are safe for JSON serialization and can be exposed via API endpoints.
type ServiceStatus struct {
	// IsHealthy indicates whether the service passed recent health checks
	IsHealthy bool `json:"is_healthy"`

	// LastCheckTime records when the most recent health check was performed
	LastCheckTime time.Time `json:"last_check_time"`

	// ConsecutiveFails counts how many health checks have failed in a row
	// Reset to 0 when a check succeeds
	ConsecutiveFails int `json:"consecutive_fails"`

	// ErrorMessage contains the last error message if health check failed
	ErrorMessage string `json:"error_message"`
}

// HealthChecker performs periodic health checks on a Transcriber.
// It tracks consecutive failures to trigger degradation.
//
// Thread-safety: All public methods are thread-safe via sync.RWMutex.
type HealthChecker struct {
	transcriber   transcribe.Transcriber
	status        *ServiceStatus // protected by mu
	mu            sync.RWMutex
	checkInterval time.Duration
	failThreshold int
	stopOnce      sync.Once
	stopChan      chan struct{}
	logger        *slog.Logger
}

// NewHealthChecker creates a new HealthChecker.
//
// The health checker starts in a healthy state (optimistic assumption).
// Call Start() to begin periodic health checks.
func NewHealthChecker(transcriber transcribe.Transcriber, checkInterval time.Duration, failThreshold int) *HealthChecker {
	if failThreshold < 1 {
		failThreshold = 1
	}
	return &HealthChecker{
		transcriber:   transcriber,
		checkInterval: checkInterval,
		failThreshold: failThreshold,
		stopChan:      make(chan struct{}),
		logger:        logger.OrDefault(nil).With("component", "health", "transcriber", transcriber.Name()),
		status: &ServiceStatus{
			IsHealthy:     true,
			LastCheckTime: time.Now(),
		},
	}
}

// WithLogger replaces the checker's logger.
func (hc *HealthChecker) WithLogger(l *slog.Logger) *HealthChecker {
	hc.logger = logger.OrDefault(l).With("component", "health", "transcriber", hc.transcriber.Name())
	return hc
}

// Start begins periodic health checking. It performs an immediate check, then
// checks at regular intervals until Stop() is called or ctx is cancelled.
// Start blocks; run it in a goroutine.
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	hc.CheckNow(ctx)

	for {
		select {
		case <-ticker.C:
			hc.CheckNow(ctx)
		case <-hc.stopChan:
			hc.logger.Info("health checker stopped")
			return
		case <-ctx.Done():
			hc.logger.Info("health checker context cancelled")
			return
		}
	}
}

// CheckNow executes a single health check and updates the status.
func (hc *HealthChecker) CheckNow(ctx context.Context) ServiceStatus {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	isHealthy, err := hc.transcriber.HealthCheck(checkCtx)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.status.LastCheckTime = time.Now()

	if isHealthy {
		if !hc.status.IsHealthy {
			hc.logger.Info("health check passed, provider recovered")
		}
		hc.status.IsHealthy = true
		hc.status.ConsecutiveFails = 0
		hc.status.ErrorMessage = ""
		return *hc.status
	}

	hc.status.ConsecutiveFails++
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	hc.status.ErrorMessage = fmt.Sprintf("Health check failed: %s", errMsg)

	if hc.status.ConsecutiveFails >= hc.failThreshold {
		hc.status.IsHealthy = false
		hc.logger.Error("health check failed, marking as unhealthy",
			"consecutive_fails", hc.status.ConsecutiveFails, "error", errMsg)
	} else {
		hc.logger.Warn("health check failed",
			"consecutive_fails", hc.status.ConsecutiveFails, "threshold", hc.failThreshold, "error", errMsg)
	}
	return *hc.status
}

// GetStatus returns a copy of the current health status.
func (hc *HealthChecker) GetStatus() ServiceStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return *hc.status
}

// Stop gracefully terminates the health checking loop.
// It is safe to call Stop multiple times.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopChan) })
}
