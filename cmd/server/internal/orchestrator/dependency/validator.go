package dependency

import (
	"fmt"
	"path/filepath"
	"strings"
)

var forbiddenPrefixes = []string{"/etc", "/sys", "/proc", "/dev"}

// ValidateCommandRequest performs security checks before command execution.
// It validates:
//  1. Command whitelist (if configured)
//  2. Filesystem arguments (no path traversal, no system directories,
//     absolute paths must stay inside DataDir or an allowed root)
//  3. Working directory validation (must be within DataDir)
//
// URL arguments and flags are not treated as paths.
func ValidateCommandRequest(req CommandRequest, config ExecutorConfig) error {
	// 1. Check command whitelist
	if len(config.AllowedCommands) > 0 {
		allowed := false
		for _, cmd := range config.AllowedCommands {
			if req.Command == cmd {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("command %s is not in whitelist (allowed: %v)", req.Command, config.AllowedCommands)
		}
	}

	// 2. Check argument safety
	roots := append([]string{config.DataDir}, config.AllowedRoots...)
	for _, arg := range req.Args {
		if !looksLikePath(arg) {
			continue
		}
		if strings.Contains(arg, "..") {
			return fmt.Errorf("argument contains dangerous characters '..' (path traversal attempt): %s", arg)
		}
		for _, prefix := range forbiddenPrefixes {
			if arg == prefix || strings.HasPrefix(arg, prefix+"/") {
				return fmt.Errorf("argument attempts to access forbidden system directory %s: %s", prefix, arg)
			}
		}
		if filepath.IsAbs(arg) && config.DataDir != "" && !withinAny(arg, roots) {
			return fmt.Errorf("argument path %s is outside the data directory", arg)
		}
	}

	// 3. Check working directory (if specified)
	if req.WorkingDir != "" && config.DataDir != "" {
		pm := NewPathManager(config.DataDir)
		if err := pm.ValidatePath(req.WorkingDir); err != nil {
			return fmt.Errorf("invalid working directory: %w", err)
		}
	}

	return nil
}

// looksLikePath reports whether an argument should be checked as a filesystem path.
func looksLikePath(arg string) bool {
	if arg == "" || strings.HasPrefix(arg, "-") || strings.Contains(arg, "://") {
		return false
	}
	return strings.HasPrefix(arg, "/") || strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") || strings.Contains(arg, string(filepath.Separator))
}

func withinAny(path string, roots []string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if abs == absRoot || strings.HasPrefix(abs, absRoot+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
