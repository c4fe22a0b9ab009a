package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickSubLang(t *testing.T) {
	tests := []struct {
		name      string
		available []string
		preferred string
		want      string
	}{
		{"exact", []string{"en", "en-US", "fr"}, "en-US", "en-US"},
		{"case insensitive", []string{"pt-BR"}, "PT-br", "pt-BR"},
		{"base code", []string{"de", "en"}, "en-GB", "en"},
		{"regional variant", []string{"fr", "en-orig", "en-US"}, "en", "en-US"},
		{"first sorted otherwise", []string{"ja", "de"}, "ar", "de"},
		{"empty", nil, "en", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			available := map[string]any{}
			for _, k := range tt.available {
				available[k] = []any{}
			}
			assert.Equal(t, tt.want, pickSubLang(available, tt.preferred))
		})
	}
}

func TestSelectSubtitleFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"transcript.en.auto.vtt", "transcript.en.ttml", "transcript.en.vtt", "transcript.de.vtt", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	path, err := selectSubtitleFile(dir, "en")
	require.NoError(t, err)
	assert.Equal(t, "transcript.en.vtt", filepath.Base(path))

	_, err = selectSubtitleFile(t.TempDir(), "en")
	assert.Error(t, err)
}

func TestCleanSubtitleText_SRT(t *testing.T) {
	srt := "1\r\n00:00:01,000 --> 00:00:02,000\r\nFirst line\r\n\r\n2\r\n00:00:02,000 --> 00:00:03,000\r\n<i>Second</i> line\r\n"
	assert.Equal(t, "First line\n\nSecond line", CleanSubtitleText(srt))
}

func TestCleanSubtitleText_SkipsNoteAndStyleBlocks(t *testing.T) {
	vtt := "WEBVTT\n\nNOTE this is a comment\nstill comment\n\nSTYLE\n::cue { color: red }\n\n00:00.000 --> 00:01.000\nSpoken words\n"
	assert.Equal(t, "Spoken words", CleanSubtitleText(vtt))
}

func TestDedupeRepeatedLines(t *testing.T) {
	t.Run("pathological repetition collapses", func(t *testing.T) {
		text := strings.Join([]string{
			"we went to the market", "we went to the market", "we went to the market",
			"and bought some apples", "and bought some apples",
			"then we came home", "then we came home",
		}, "\n")
		assert.Equal(t, "we went to the market\nand bought some apples\nthen we came home", dedupeRepeatedLines(text))
	})

	t.Run("near duplicate rolling captions collapse", func(t *testing.T) {
		text := strings.Join([]string{
			"the unemployment rate fell to four percent",
			"The unemployment rate fell to four percent.",
			"the unemployment rate fell to four percent",
			"inflation stayed high all year long",
			"inflation stayed high all year long",
			"wages did not keep up at all",
		}, "\n")
		out := dedupeRepeatedLines(text)
		assert.Equal(t, 1, strings.Count(strings.ToLower(out), "unemployment"))
		assert.Equal(t, 1, strings.Count(out, "inflation"))
	})

	t.Run("short text untouched", func(t *testing.T) {
		text := "yes\nyes\nyes"
		assert.Equal(t, text, dedupeRepeatedLines(text))
	})

	t.Run("occasional repeat untouched", func(t *testing.T) {
		text := "a b\nc d\ne f\ne f\ng h\ni j\nk l\nm n"
		assert.Equal(t, text, dedupeRepeatedLines(text))
	})
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://www.youtube.com/watch?v=abc", 0))
	assert.NoError(t, ValidateURL("  http://vimeo.com/1 ", 0))
	assert.Error(t, ValidateURL("", 0))
	assert.Error(t, ValidateURL("ftp://example.com/a", 0))
	assert.Error(t, ValidateURL("https://", 0))
	assert.Error(t, ValidateURL("https://example.com/"+strings.Repeat("a", 50), 30))
}

func TestIsYouTubeURL(t *testing.T) {
	tests := map[string]bool{
		"https://www.youtube.com/watch?v=abc":    true,
		"https://m.youtube.com/shorts/abc":       true,
		"youtu.be/abc":                           true,
		"https://user@youtube-nocookie.com:443/": true,
		"https://notyoutube.com/watch":           false,
		"https://vimeo.com/1":                    false,
		"":                                       false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsYouTubeURL(in), in)
	}
}
