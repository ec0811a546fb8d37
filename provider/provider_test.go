package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/minios-linux/batchtr/logging"
	"github.com/minios-linux/batchtr/translate"
)

const answer = `[{"line": 1, "text": ["Xin chào."]}, {"line": 2, "text": ["Tạm biệt."]}]`

func newTestClient(t *testing.T, cfg Config) translate.Client {
	t.Helper()
	c, err := New(context.Background(), cfg,
		WithLogger(logging.Discard()),
		WithBackoff(time.Millisecond, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func anthropicServer(t *testing.T, calls *int32, handle func(n int32, w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handle(atomic.AddInt32(calls, 1), w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeAnthropic(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"content":     []map[string]string{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
		"usage":       map[string]int{"input_tokens": 40, "output_tokens": 12},
	})
}

func TestAnthropicTranslateChunk(t *testing.T) {
	var calls int32
	srv := anthropicServer(t, &calls, func(_ int32, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q, want /messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "claude-test" {
			t.Errorf("model = %q, want claude-test", req.Model)
		}
		if !strings.Contains(req.System, "into Vietnamese") {
			t.Errorf("system prompt does not name the language: %q", req.System)
		}
		if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "<paragraph>Hello.</paragraph>") {
			t.Errorf("messages = %+v", req.Messages)
		}
		writeAnthropic(w, answer)
	})

	c := newTestClient(t, Config{ID: ProviderAnthropic, BaseURL: srv.URL, APIKey: "test-key", Model: "claude-test"})
	res, err := c.TranslateChunk(context.Background(), translate.Request{
		Seq:      3,
		Language: "Vietnamese",
		Lines:    []string{"Hello.", "Goodbye."},
	})
	if err != nil {
		t.Fatalf("TranslateChunk() error: %v", err)
	}
	if res.Seq != 3 {
		t.Errorf("Seq = %d, want 3", res.Seq)
	}
	if want := []string{"Xin chào.", "Tạm biệt."}; !reflect.DeepEqual(res.Translated, want) {
		t.Errorf("Translated = %q, want %q", res.Translated, want)
	}
	if res.Usage.PromptTokens != 40 || res.Usage.CompletionTokens != 12 || res.Usage.TotalTokens != 52 {
		t.Errorf("Usage = %+v", res.Usage)
	}
	if res.Usage.Model != "claude-test" {
		t.Errorf("Usage.Model = %q", res.Usage.Model)
	}
}

func TestRequestModelOverridesDefault(t *testing.T) {
	var calls int32
	srv := anthropicServer(t, &calls, func(_ int32, w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "claude-override" {
			t.Errorf("model = %q, want claude-override", req.Model)
		}
		writeAnthropic(w, answer)
	})

	c := newTestClient(t, Config{ID: ProviderAnthropic, BaseURL: srv.URL, APIKey: "k", Model: "claude-test"})
	if _, err := c.TranslateChunk(context.Background(), translate.Request{Model: "claude-override", Language: "vi", Lines: []string{"a", "b"}}); err != nil {
		t.Fatalf("TranslateChunk() error: %v", err)
	}
}

func TestRateLimitIsRetried(t *testing.T) {
	var calls int32
	srv := anthropicServer(t, &calls, func(n int32, w http.ResponseWriter, _ *http.Request) {
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
			return
		}
		writeAnthropic(w, answer)
	})

	c := newTestClient(t, Config{ID: ProviderAnthropic, BaseURL: srv.URL, APIKey: "k", Model: "m", MaxRetries: 2})
	res, err := c.TranslateChunk(context.Background(), translate.Request{Language: "vi", Lines: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("TranslateChunk() error: %v", err)
	}
	if len(res.Translated) != 2 {
		t.Fatalf("Translated = %q", res.Translated)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestServerErrorExhaustsRetries(t *testing.T) {
	var calls int32
	srv := anthropicServer(t, &calls, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	c := newTestClient(t, Config{ID: ProviderAnthropic, BaseURL: srv.URL, APIKey: "k", Model: "m", MaxRetries: 2})
	_, err := c.TranslateChunk(context.Background(), translate.Request{Language: "vi", Lines: []string{"a"}})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("error = %v, want StatusError 502", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3 (1 + 2 retries)", got)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := anthropicServer(t, &calls, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"max_tokens is too large"}}`))
	})

	c := newTestClient(t, Config{ID: ProviderAnthropic, BaseURL: srv.URL, APIKey: "k", Model: "m", MaxRetries: 3})
	_, err := c.TranslateChunk(context.Background(), translate.Request{Language: "vi", Lines: []string{"a"}})
	if err == nil || !strings.Contains(err.Error(), "max_tokens is too large") {
		t.Fatalf("error = %v, want API message", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestUnparseableAnswerYieldsEmptyTranslation(t *testing.T) {
	var calls int32
	srv := anthropicServer(t, &calls, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		writeAnthropic(w, "I'm sorry, I can't help with that.")
	})

	c := newTestClient(t, Config{ID: ProviderAnthropic, BaseURL: srv.URL, APIKey: "k", Model: "m"})
	res, err := c.TranslateChunk(context.Background(), translate.Request{Seq: 1, Language: "vi", Lines: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("TranslateChunk() error: %v, want nil", err)
	}
	if len(res.Translated) != 0 {
		t.Fatalf("Translated = %q, want empty", res.Translated)
	}
	if !res.Mismatch() {
		t.Fatal("Mismatch() = false, want true")
	}
	if !reflect.DeepEqual(res.Original, []string{"a", "b"}) {
		t.Fatalf("Original = %q", res.Original)
	}
}

func TestOpenAICompatibleTranslateChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "gpt-test" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": "```json\n" + answer + "\n```"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 30, "completion_tokens": 10, "total_tokens": 40},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, Config{ID: ProviderOpenAI, BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "gpt-test"})
	res, err := c.TranslateChunk(context.Background(), translate.Request{Language: "Vietnamese", Lines: []string{"Hello.", "Goodbye."}})
	if err != nil {
		t.Fatalf("TranslateChunk() error: %v", err)
	}
	if want := []string{"Xin chào.", "Tạm biệt."}; !reflect.DeepEqual(res.Translated, want) {
		t.Errorf("Translated = %q, want %q", res.Translated, want)
	}
	if res.Usage.TotalTokens != 40 {
		t.Errorf("Usage = %+v", res.Usage)
	}
}

func TestOpenAIServerErrorIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{ID: ProviderOllama, BaseURL: srv.URL, Model: "llama", MaxRetries: 1})
	_, err := c.TranslateChunk(context.Background(), translate.Request{Language: "vi", Lines: []string{"a"}})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want StatusError 500", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestGeminiTranslateChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Errorf("x-goog-api-key = %q", r.Header.Get("x-goog-api-key"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]string{{"text": answer}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]int{"promptTokenCount": 21, "candidatesTokenCount": 9, "totalTokenCount": 30},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, Config{ID: ProviderGoogle, BaseURL: srv.URL, APIKey: "g-key", Model: "gemini-test"})
	res, err := c.TranslateChunk(context.Background(), translate.Request{Language: "Vietnamese", Lines: []string{"Hello.", "Goodbye."}})
	if err != nil {
		t.Fatalf("TranslateChunk() error: %v", err)
	}
	if want := []string{"Xin chào.", "Tạm biệt."}; !reflect.DeepEqual(res.Translated, want) {
		t.Errorf("Translated = %q, want %q", res.Translated, want)
	}
	if res.Usage.PromptTokens != 21 || res.Usage.TotalTokens != 30 {
		t.Errorf("Usage = %+v", res.Usage)
	}
}

func TestGeminiRateLimitCarriesRetryDelay(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED",
			"details": [{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "12s"}]}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{ID: ProviderGoogle, BaseURL: srv.URL, APIKey: "g-key", Model: "gemini-test"})
	_, err := c.TranslateChunk(context.Background(), translate.Request{Language: "Vietnamese", Lines: []string{"Hello."}})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("TranslateChunk() error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusTooManyRequests || se.RetryAfter != 17*time.Second {
		t.Errorf("StatusError = {%d, %v}, want {429, 17s}", se.StatusCode, se.RetryAfter)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestGeminiError(t *testing.T) {
	retryInfo := []map[string]any{{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "1.5s"}}
	plain := errors.New("dial tcp: connection refused")

	tests := []struct {
		name      string
		in        error
		wantCode  int
		wantAfter time.Duration
	}{
		{"rate limit with retry info", genai.APIError{Code: 429, Message: "quota", Details: retryInfo}, 429, 6500 * time.Millisecond},
		{"rate limit without details", genai.APIError{Code: 429, Message: "quota"}, 429, 0},
		{"server error ignores details", genai.APIError{Code: 503, Message: "busy", Details: retryInfo}, 503, 0},
		{"wrapped api error", fmt.Errorf("generate: %w", genai.APIError{Code: 400, Message: "bad"}), 400, 0},
		{"not an api error", plain, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := geminiError(tc.in)
			var se *StatusError
			if !errors.As(err, &se) {
				if tc.wantCode != 0 {
					t.Fatalf("geminiError() = %v, want *StatusError", err)
				}
				if err != tc.in {
					t.Fatalf("geminiError() = %v, want the error unchanged", err)
				}
				return
			}
			if se.StatusCode != tc.wantCode || se.RetryAfter != tc.wantAfter {
				t.Errorf("StatusError = {%d, %v}, want {%d, %v}", se.StatusCode, se.RetryAfter, tc.wantCode, tc.wantAfter)
			}
		})
	}
}

func TestResolveAndValidate(t *testing.T) {
	cfg := Resolve("Groq", Config{APIKey: "gsk", Model: "llama-3.3", MaxRetries: 4})
	if cfg.ID != ProviderGroq || cfg.BaseURL != "https://api.groq.com/openai/v1" || cfg.MaxRetries != 4 {
		t.Fatalf("Resolve(Groq) = %+v", cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	custom := Resolve("my-endpoint", Config{Model: "m"})
	if custom.ID != ProviderCustomOpenAI {
		t.Fatalf("Resolve(unknown).ID = %q, want %q", custom.ID, ProviderCustomOpenAI)
	}
	if err := Validate(custom); err == nil {
		t.Fatal("Validate(custom without base URL) = nil, want error")
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing model", Config{ID: ProviderOllama}},
		{"missing key", Config{ID: ProviderOpenAI, Model: "gpt"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(tc.cfg); err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if _, err := New(context.Background(), tc.cfg); err == nil {
				t.Fatal("New() = nil error, want error")
			}
		})
	}

	if err := Validate(Config{ID: ProviderOllama, Model: "llama"}); err != nil {
		t.Fatalf("Validate(ollama without key) error: %v", err)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	s := strings.Repeat("Tạm biệt ", 80)
	for n := 1; n < 40; n++ {
		if got := truncate(s, n); !utf8.ValidString(got) {
			t.Fatalf("truncate(_, %d) = %q is not valid UTF-8", n, got)
		}
	}
	if got := truncate("Tạm", 2); got != "T..." {
		t.Errorf("truncate(\"Tạm\", 2) = %q, want %q", got, "T...")
	}
	if got := truncate("ok", 5); got != "ok" {
		t.Errorf("truncate(\"ok\", 5) = %q", got)
	}
}

func TestParseRetryDelay(t *testing.T) {
	googleBody := []byte(`{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"30s"}]}}`)

	cases := []struct {
		header string
		body   []byte
		want   time.Duration
	}{
		{"7", nil, 7 * time.Second},
		{"", googleBody, 35 * time.Second},
		{"", []byte("not json"), 0},
		{"soon", []byte(`{}`), 0},
	}
	for _, tc := range cases {
		if got := parseRetryDelay(tc.header, tc.body); got != tc.want {
			t.Errorf("parseRetryDelay(%q, %s) = %v, want %v", tc.header, tc.body, got, tc.want)
		}
	}
}
