package jobs

import (
	"errors"
	"net/url"
	"strings"
)

var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"si":      true,
	"igshid":  true,
	"feature": true,
	"ref":     true,
	"ref_src": true,
}

// s and t are share trackers except on YouTube, where t is the start offset.
var shareParams = map[string]bool{"s": true, "t": true}

// NormalizeURL returns the cache key form of raw: lowercase, without
// tracking parameters, fragment, www./m. prefixes or trailing slash, with
// youtu.be and shorts links rewritten to watch?v=.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("url must be absolute")
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	if port := u.Port(); port != "" {
		host += ":" + port
	}
	youtube := host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com")

	query := u.Query()
	path := u.Path
	switch {
	case host == "youtu.be":
		if id := strings.Trim(path, "/"); id != "" {
			host, path = "youtube.com", "/watch"
			query.Set("v", id)
		}
	case youtube && strings.HasPrefix(path, "/shorts/"):
		if id := strings.Trim(strings.TrimPrefix(path, "/shorts/"), "/"); id != "" {
			path = "/watch"
			query.Set("v", id)
		}
	}

	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || trackingParams[lower] || (!youtube && shareParams[lower]) {
			query.Del(key)
		}
	}

	out := url.URL{
		Scheme:   strings.ToLower(u.Scheme),
		Host:     host,
		Path:     strings.TrimRight(path, "/"),
		RawQuery: query.Encode(),
	}
	return strings.ToLower(out.String()), nil
}
