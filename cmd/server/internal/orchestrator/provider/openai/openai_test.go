package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
)

func testConfig(url, model string) Config {
	return Config{
		APIKey:      "sk-test",
		BaseURL:     url,
		Model:       model,
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "part_000.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3fake"), 0o644))
	return path
}

func TestTranscribeSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "gpt-4o-transcribe", r.FormValue("model"))
		assert.Equal(t, "text", r.FormValue("response_format"))
		assert.Equal(t, transcribe.DefaultPrompt, r.FormValue("prompt"))
		assert.Equal(t, "en", r.FormValue("language"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "part_000.mp3", hdr.Filename)
		assert.Equal(t, "ID3fake", string(data))

		fmt.Fprint(w, "  hello world \n")
	}))
	defer srv.Close()

	tr := NewTranscriber(testConfig(srv.URL, "gpt-4o-transcribe"))
	res, err := tr.Transcribe(context.Background(), writeAudio(t), &transcribe.TranscribeOptions{Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Text)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, "openai:gpt-4o-transcribe", tr.Name())
}

func TestTranscribeRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the body must be replayed on every attempt
		require.NoError(t, r.ParseMultipartForm(1<<20))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	res, err := NewTranscriber(testConfig(srv.URL, "whisper-1")).Transcribe(context.Background(), writeAudio(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTranscribeAuthFailureIsFatal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewTranscriber(testConfig(srv.URL, "whisper-1")).Transcribe(context.Background(), writeAudio(t), nil)
	require.Error(t, err)
	assert.Equal(t, errs.PROVIDER_ERROR, errs.CodeOf(err))
	assert.False(t, errs.IsRetryable(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTranscribeMissingFile(t *testing.T) {
	_, err := NewTranscriber(testConfig("http://127.0.0.1:1", "whisper-1")).Transcribe(context.Background(), "/nonexistent.mp3", nil)
	require.Error(t, err)
	assert.False(t, errs.IsRetryable(err))
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models/whisper-1" {
			fmt.Fprint(w, `{"id":"whisper-1"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ok, err := NewTranscriber(testConfig(srv.URL, "whisper-1")).HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewTranscriber(testConfig(srv.URL, "missing")).HealthCheck(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func sse(w http.ResponseWriter, events ...map[string]any) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, ev := range events {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev["type"], data)
	}
}

func TestFactCheckStream(t *testing.T) {
	report := `{"overall_score":80,"overall_verdict":"mostly_accurate","claims":[]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])
		assert.Equal(t, "gpt-5.2", body["model"])
		reasoning := body["reasoning"].(map[string]any)
		assert.Equal(t, "low", reasoning["effort"])
		assert.Equal(t, "auto", reasoning["summary"])
		tools := body["tools"].([]any)
		assert.Equal(t, "web_search", tools[0].(map[string]any)["type"])
		format := body["text"].(map[string]any)["format"].(map[string]any)
		assert.Equal(t, "json_schema", format["type"])

		sse(w,
			map[string]any{"type": "response.created"},
			map[string]any{"type": "response.reasoning_summary_text.delta", "delta": "Searching "},
			map[string]any{"type": "response.reasoning_summary_text.delta", "delta": "sources"},
			map[string]any{"type": "response.reasoning_summary_text.done", "text": "Searching sources"},
			map[string]any{"type": "response.reasoning_summary_part.done", "part": map[string]any{"type": "summary_text", "text": "Searching sources"}},
			map[string]any{"type": "response.output_text.delta", "delta": report[:20]},
			map[string]any{"type": "response.output_text.delta", "delta": report[20:]},
			map[string]any{"type": "response.output_text.annotation.added", "annotation": map[string]any{"type": "url_citation", "url": "https://who.int", "title": "WHO"}},
			map[string]any{"type": "response.completed", "response": map[string]any{
				"id": "resp_1",
				"output": []any{map[string]any{
					"type": "message",
					"content": []any{map[string]any{
						"type": "output_text",
						"text": report,
						"annotations": []any{
							map[string]any{"type": "url_citation", "url": "https://who.int", "title": "WHO"},
							map[string]any{"type": "url_citation", "url": "https://cdc.gov", "title": "CDC"},
						},
					}},
				}},
			}},
		)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, "gpt-5.2")
	cfg.ReasoningEffort = "LOW"
	fc := NewFactChecker(cfg)

	var thoughts []string
	raw, err := fc.FactCheck(context.Background(), factcheck.Request{Transcript: "t", OutputLanguage: "en"}, func(s string) {
		thoughts = append(thoughts, s)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Searching sources"}, thoughts)
	assert.Equal(t, float64(80), raw.Fields["overall_score"])
	require.Len(t, raw.GroundingSources, 2)
	assert.Equal(t, "https://who.int", raw.GroundingSources[0].URL)
	assert.Equal(t, "https://cdc.gov", raw.GroundingSources[1].URL)
	assert.Equal(t, "openai", raw.Provider)
	assert.Contains(t, string(raw.Raw), "resp_1")
}

func TestFactCheckMalformedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse(w,
			map[string]any{"type": "response.output_text.delta", "delta": "not json at all"},
			map[string]any{"type": "response.completed", "response": map[string]any{"id": "r"}},
		)
	}))
	defer srv.Close()

	_, err := NewFactChecker(testConfig(srv.URL, "gpt-5.2")).FactCheck(context.Background(), factcheck.Request{Transcript: "t"}, nil)
	require.Error(t, err)
	assert.Equal(t, errs.PROVIDER_ERROR, errs.CodeOf(err))
}

func TestFactCheckFailedEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse(w, map[string]any{"type": "response.failed", "response": map[string]any{
			"error": map[string]any{"code": "server_error", "message": "boom"},
		}})
	}))
	defer srv.Close()

	_, err := NewFactChecker(testConfig(srv.URL, "gpt-5.2")).FactCheck(context.Background(), factcheck.Request{Transcript: "t"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestCompleteJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4.1-mini", body["model"])
		assert.Equal(t, 0.3, body["temperature"])
		fmt.Fprint(w, `{"output":[{"type":"message","content":[{"type":"output_text","text":"`+"```json\\n{\\\"summary\\\":\\\"bonjour\\\"}\\n```"+`"}]}]}`)
	}))
	defer srv.Close()

	obj, err := NewCompleter(testConfig(srv.URL, "gpt-4.1-mini")).CompleteJSON(context.Background(), factcheck.CompletionRequest{
		Prompt:      "translate",
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "bonjour", obj["summary"])
}

func TestCompleteTextOmitsTemperatureForReasoningModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, has := body["temperature"]
		assert.False(t, has)
		fmt.Fprint(w, `{"output":[{"type":"reasoning"},{"type":"message","content":[{"type":"output_text","text":"hola"}]}]}`)
	}))
	defer srv.Close()

	text, err := NewCompleter(testConfig(srv.URL, "gpt-5.2")).CompleteText(context.Background(), factcheck.CompletionRequest{
		Prompt:      "translate",
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "hola", text)
}
