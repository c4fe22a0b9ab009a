package media

import (
	"errors"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/simhash"
)

var (
	vttTimestampRe = regexp.MustCompile(`^\s*\d{1,2}:\d{2}(?::\d{2})?\.\d{3}\s+-->\s+\d{1,2}:\d{2}(?::\d{2})?\.\d{3}\b`)
	srtTimestampRe = regexp.MustCompile(`^\s*\d{1,2}:\d{2}:\d{2},\d{3}\s+-->\s+\d{1,2}:\d{2}:\d{2},\d{3}\b`)
	htmlTagRe      = regexp.MustCompile(`<[^>]+>`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
)

var subtitleExtPreference = []string{".vtt", ".srt", ".ttml", ".srv3", ".srv2", ".srv1", ".json3", ".ass"}

// pickSubLang chooses the track key for preferred: exact match, base code,
// first "base-" variant, otherwise the lexicographically first key.
func pickSubLang(available map[string]any, preferred string) string {
	if len(available) == 0 {
		return ""
	}
	keys := make([]string, 0, len(available))
	byLower := make(map[string]string, len(available))
	for k := range available {
		keys = append(keys, k)
		byLower[strings.ToLower(k)] = k
	}
	sort.Strings(keys)

	p := strings.ToLower(strings.TrimSpace(preferred))
	if p != "" {
		if k, ok := byLower[p]; ok {
			return k
		}
		base, _, _ := strings.Cut(p, "-")
		if k, ok := byLower[base]; ok {
			return k
		}
		for _, k := range keys {
			if strings.HasPrefix(strings.ToLower(k), base+"-") {
				return k
			}
		}
	}
	return keys[0]
}

// selectSubtitleFile picks the best subtitle file yt-dlp wrote into dir.
func selectSubtitleFile(dir, lang string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var candidates []string
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if e.IsDir() || !strings.HasPrefix(name, "transcript.") {
			continue
		}
		if isSubtitleExt(filepath.Ext(name)) {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return "", errors.New("no subtitle file found after yt-dlp download")
	}
	sort.Strings(candidates)

	marker := "." + strings.ToLower(lang) + "."
	if matched := filterNames(candidates, func(n string) bool { return strings.Contains(n, marker) }); len(matched) > 0 {
		candidates = matched
	}
	if manual := filterNames(candidates, func(n string) bool { return !strings.Contains(n, ".auto.") }); len(manual) > 0 {
		candidates = manual
	}
	for _, ext := range subtitleExtPreference {
		for _, n := range candidates {
			if strings.EqualFold(filepath.Ext(n), ext) {
				return filepath.Join(dir, n), nil
			}
		}
	}
	return filepath.Join(dir, candidates[0]), nil
}

func isSubtitleExt(ext string) bool {
	for _, e := range subtitleExtPreference {
		if ext == e {
			return true
		}
	}
	return false
}

func filterNames(names []string, keep func(string) bool) []string {
	var out []string
	for _, n := range names {
		if keep(strings.ToLower(n)) {
			out = append(out, n)
		}
	}
	return out
}

// CleanSubtitleText turns a VTT/SRT/TTML document into plain transcript text.
func CleanSubtitleText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []string
	skipBlock := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			skipBlock = false
			if len(out) > 0 && out[len(out)-1] != "" {
				out = append(out, "")
			}
			continue
		}
		if skipBlock {
			continue
		}

		upper := strings.ToUpper(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(upper, "WEBVTT"):
			continue
		case strings.HasPrefix(lower, "kind:"), strings.HasPrefix(lower, "language:"):
			continue
		case strings.HasPrefix(upper, "NOTE"), strings.HasPrefix(upper, "STYLE"), strings.HasPrefix(upper, "REGION"):
			skipBlock = true
			continue
		case isDigits(line):
			continue
		case vttTimestampRe.MatchString(line), srtTimestampRe.MatchString(line), strings.Contains(line, "-->"):
			continue
		}

		cleaned := strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(line, "")))
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}

	joined := strings.TrimSpace(blankRunRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n"))
	return dedupeRepeatedLines(joined)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// dedupeRepeatedLines removes consecutive duplicate lines, but only when the
// repetition is clearly an artifact of the caption track.
func dedupeRepeatedLines(text string) string {
	raw := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if raw == "" {
		return raw
	}
	lines := strings.Split(raw, "\n")

	var prints []simhash.Fingerprint
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			prints = append(prints, simhash.NewFingerprint(line))
		}
	}
	if len(prints) < 6 {
		return raw
	}

	maxRun, run, dupPairs := 1, 1, 0
	for i := 1; i < len(prints); i++ {
		if simhash.IsNearDuplicate(prints[i], prints[i-1]) {
			dupPairs++
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 1
		}
	}
	dupRatio := float64(dupPairs) / float64(len(prints)-1)
	if maxRun < 3 && dupRatio < 0.4 {
		return raw
	}

	var out []string
	var last *simhash.Fingerprint
	pendingBlank := false
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			pendingBlank = true
			continue
		}
		fp := simhash.NewFingerprint(stripped)
		if last != nil && simhash.IsNearDuplicate(fp, *last) {
			continue
		}
		if pendingBlank && len(out) > 0 {
			out = append(out, "")
		}
		out = append(out, stripped)
		pendingBlank = false
		last = &fp
	}
	return strings.TrimSpace(blankRunRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n"))
}
