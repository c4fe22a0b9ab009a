package dependency

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PathManager provides utilities for constructing and validating file paths
// within the data directory.
//
// Layout: {base}/jobs/{job_id}/
//   - job.json, transcript.txt, report.json, raw.json
//   - media/{uuid}/: downloaded audio, caption files and chunk parts of one resolve
type PathManager struct {
	baseDir string // Base directory, e.g., "data"
}

// NewPathManager creates a new PathManager instance.
func NewPathManager(baseDir string) *PathManager {
	return &PathManager{baseDir: baseDir}
}

// BaseDir returns the configured base directory.
func (pm *PathManager) BaseDir() string {
	return pm.baseDir
}

// GetJobDir returns the root directory for a job.
// Example: GetJobDir("4f1c...") -> "data/jobs/4f1c..."
func (pm *PathManager) GetJobDir(jobID string) string {
	return filepath.Join(pm.baseDir, "jobs", jobID)
}

// GetArtifactPath returns the path for a job artifact such as "report.json".
func (pm *PathManager) GetArtifactPath(jobID, filename string) string {
	return filepath.Join(pm.GetJobDir(jobID), filename)
}

// GetMediaRoot returns the directory holding media scratch dirs of a job.
func (pm *PathManager) GetMediaRoot(jobID string) string {
	return filepath.Join(pm.GetJobDir(jobID), "media")
}

// NewMediaDir creates a collision-free scratch directory for one media acquisition.
// Concurrent resolves for the same job never share a directory.
func (pm *PathManager) NewMediaDir(jobID string) (string, error) {
	dir := filepath.Join(pm.GetMediaRoot(jobID), uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	return dir, nil
}

// ValidatePath checks if a path is within the data directory and doesn't contain dangerous patterns.
func (pm *PathManager) ValidatePath(path string) error {
	// 1. Prohibit path traversal
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains dangerous characters '..'")
	}

	// 2. Path must be within base directory
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absBaseDir, err := filepath.Abs(pm.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if absPath != absBaseDir && !strings.HasPrefix(absPath, absBaseDir+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside data directory (%s)", path, pm.baseDir)
	}

	// 3. Prohibit symbolic links
	info, err := os.Lstat(path)
	if err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("symbolic links are not allowed")
	}

	return nil
}

// EnsureJobDir creates the job directory if it doesn't exist.
func (pm *PathManager) EnsureJobDir(jobID string) (string, error) {
	dir := pm.GetJobDir(jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create job directory: %w", err)
	}
	return dir, nil
}
