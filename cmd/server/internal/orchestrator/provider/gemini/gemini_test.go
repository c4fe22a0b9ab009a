package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
)

func testConfig(url, model string) Config {
	return Config{
		APIKey:      "g-key",
		BaseURL:     url,
		Model:       model,
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}
}

func textResponse(text string) string {
	data, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{"text": text}}},
		}},
	})
	return string(data)
}

func TestNormalizeModel(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", NormalizeModel("Gemini  2.5 Flash"))
	assert.Equal(t, "gemini-3-pro-preview", NormalizeModel("gemini 3 preview"))
	assert.Equal(t, "gemini-2.5-pro", NormalizeModel("models/gemini-2.5-pro"))
	assert.True(t, IsGeminiModel("models/gemini-2.5-pro"))
	assert.True(t, IsGeminiModel(" Gemini 2.5 Flash"))
	assert.False(t, IsGeminiModel("gpt-4o-transcribe"))
}

func TestThinkingLevel(t *testing.T) {
	assert.Equal(t, "low", thinkingLevel("gemini-3-pro-preview", "LOW"))
	assert.Equal(t, "", thinkingLevel("gemini-3-pro-preview", "medium"))
	assert.Equal(t, "", thinkingLevel("gemini-2.5-flash", "high"))
}

func TestTranscribeInlineAudio(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "part_001.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("mp3-bytes"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		parts := req.Contents[0].Parts
		require.Len(t, parts, 2)
		assert.Contains(t, parts[0].Text, "Return only the transcript text")
		require.NotNil(t, parts[1].InlineData)
		assert.Equal(t, "audio/mpeg", parts[1].InlineData.MimeType)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("mp3-bytes")), parts[1].InlineData.Data)
		fmt.Fprint(w, textResponse(" bonjour \n"))
	}))
	defer srv.Close()

	tr := NewTranscriber(testConfig(srv.URL, "Gemini 2.5 Flash"))
	res, err := tr.Transcribe(context.Background(), audio, nil)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", res.Text)
	assert.Equal(t, "gemini:gemini-2.5-flash", tr.Name())
}

func TestTranscribeRetriesServerError(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("x"), 0o644))

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, textResponse("ok"))
	}))
	defer srv.Close()

	res, err := NewTranscriber(testConfig(srv.URL, "gemini-2.5-flash")).Transcribe(context.Background(), audio, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestTranscribeBlockedPrompt(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("x"), 0o644))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	_, err := NewTranscriber(testConfig(srv.URL, "gemini-2.5-flash")).Transcribe(context.Background(), audio, nil)
	require.Error(t, err)
	assert.False(t, errs.IsRetryable(err))
	assert.Contains(t, err.Error(), "SAFETY")
}

func sseChunk(w http.ResponseWriter, chunk map[string]any) {
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\r\n\r\n", data)
}

func TestFactCheckStreamWithThoughtsAndGrounding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-3-pro-preview:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, factcheck.SystemPrompt, req.SystemInstruction.Parts[0].Text)
		_, hasSearch := req.Tools[0]["google_search"]
		assert.True(t, hasSearch)
		require.NotNil(t, req.GenerationConfig.ThinkingConfig)
		assert.True(t, req.GenerationConfig.ThinkingConfig.IncludeThoughts)
		assert.Equal(t, "high", req.GenerationConfig.ThinkingConfig.ThinkingLevel)

		sseChunk(w, map[string]any{"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{"text": "Looking up the claim", "thought": true}}},
		}}})
		sseChunk(w, map[string]any{"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{"text": "```json\n{\"overall_score\": 42,"}}},
		}}})
		sseChunk(w, map[string]any{"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{map[string]any{"text": " \"claims\": []}\n```"}}},
			"groundingMetadata": map[string]any{"groundingChunks": []any{
				map[string]any{"web": map[string]any{"uri": "https://example.org/a", "title": "example.org"}},
				map[string]any{"web": map[string]any{"uri": "https://example.org/a", "title": "dup"}},
			}},
		}}, "modelVersion": "gemini-3-pro-preview-001"})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, "gemini 3 preview")
	cfg.ThinkingLevel = "high"
	var thoughts []string
	raw, err := NewFactChecker(cfg).FactCheck(context.Background(), factcheck.Request{Transcript: "t", OutputLanguage: "de"}, func(s string) {
		thoughts = append(thoughts, s)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Looking up the claim"}, thoughts)
	assert.Equal(t, float64(42), raw.Fields["overall_score"])
	require.Len(t, raw.GroundingSources, 1)
	assert.Equal(t, "https://example.org/a", raw.GroundingSources[0].URL)
	assert.Contains(t, string(raw.Raw), "gemini-3-pro-preview-001")
}

func TestFactCheckRepairsInvalidJSON(t *testing.T) {
	var repairCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
			sseChunk(w, map[string]any{"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": "{overall_score: 10,"}}},
			}}})
			return
		}
		atomic.AddInt32(&repairCalls, 1)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Empty(t, req.Tools)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "{overall_score: 10,")
		fmt.Fprint(w, textResponse(`{"overall_score": 10}`))
	}))
	defer srv.Close()

	raw, err := NewFactChecker(testConfig(srv.URL, "gemini-2.5-pro")).FactCheck(context.Background(), factcheck.Request{Transcript: "t"}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(10), raw.Fields["overall_score"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&repairCalls))
	assert.Contains(t, string(raw.Raw), `"repaired":true`)
}

func TestFactCheckRepairFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
			sseChunk(w, map[string]any{"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": "nope"}}},
			}}})
			return
		}
		fmt.Fprint(w, textResponse("still nope"))
	}))
	defer srv.Close()

	_, err := NewFactChecker(testConfig(srv.URL, "gemini-2.5-pro")).FactCheck(context.Background(), factcheck.Request{Transcript: "t"}, nil)
	require.Error(t, err)
	assert.Equal(t, errs.PROVIDER_ERROR, errs.CodeOf(err))
}

func TestCompleteJSONRetriesWithRepairPrompt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		require.NotNil(t, req.GenerationConfig.Temperature)
		assert.Equal(t, 0.3, *req.GenerationConfig.Temperature)
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, textResponse("summary: hola"))
			return
		}
		assert.Contains(t, req.Contents[0].Parts[0].Text, "summary: hola")
		fmt.Fprint(w, textResponse(`{"summary":"hola"}`))
	}))
	defer srv.Close()

	obj, err := NewCompleter(testConfig(srv.URL, "gemini-2.5-flash")).CompleteJSON(context.Background(), factcheck.CompletionRequest{
		Prompt:      "translate",
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "hola", obj["summary"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCompleteTextSkipsThoughtParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"thinking","thought":true},{"text":"Hallo"}]}}]}`)
	}))
	defer srv.Close()

	text, err := NewCompleter(testConfig(srv.URL, "gemini-2.5-flash")).CompleteText(context.Background(), factcheck.CompletionRequest{
		Prompt:          "translate",
		MaxOutputTokens: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hallo", text)
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash", r.URL.Path)
		fmt.Fprint(w, `{"name":"models/gemini-2.5-flash"}`)
	}))
	defer srv.Close()

	ok, err := NewCompleter(testConfig(srv.URL, "gemini-2.5-flash")).HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
