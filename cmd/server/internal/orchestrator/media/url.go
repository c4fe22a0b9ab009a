package media

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
)

// DefaultMaxURLLength is used when no limit is configured.
const DefaultMaxURLLength = 2048

// SupportedPlatforms is advertised by the health endpoint. Anything yt-dlp can
// extract is accepted; captions are only attempted for YouTube.
var SupportedPlatforms = []string{"youtube", "tiktok", "instagram", "x", "facebook", "vimeo"}

// ValidateURL checks that raw is an absolute http(s) URL within maxLen.
func ValidateURL(raw string, maxLen int) error {
	raw = strings.TrimSpace(raw)
	if maxLen <= 0 {
		maxLen = DefaultMaxURLLength
	}
	if raw == "" {
		return errs.NewUnsupportedURLError("URL is empty")
	}
	if len(raw) > maxLen {
		return errs.NewUnsupportedURLError(fmt.Sprintf("URL is longer than %d characters", maxLen))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errs.NewUnsupportedURLError("URL cannot be parsed")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errs.NewUnsupportedURLError("only http and https URLs are supported")
	}
	if u.Hostname() == "" {
		return errs.NewUnsupportedURLError("URL has no host")
	}
	return nil
}

// IsYouTubeURL reports whether raw points at a YouTube host. A missing scheme
// is tolerated; user info and port are ignored.
func IsYouTubeURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, suffix := range []string{"youtube.com", "youtu.be", "youtube-nocookie.com"} {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
