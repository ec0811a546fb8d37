package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minios-linux/batchtr/prompt"
	"github.com/minios-linux/batchtr/translate"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 8192
)

// anthropic talks to the Messages API over plain HTTP.
type anthropic struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func newAnthropic(cfg Config, httpClient *http.Client) *anthropic {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultProviders()[ProviderAnthropic].BaseURL
	}
	return &anthropic{
		endpoint: strings.TrimRight(base, "/") + "/messages",
		apiKey:   cfg.APIKey,
		http:     httpClient,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *anthropic) complete(ctx context.Context, model string, p prompt.Prompt) (string, translate.Usage, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   anthropicMaxTokens,
		System:      p.System,
		Temperature: 0.3,
		Messages:    []anthropicMessage{{Role: "user", Content: p.User}},
	})
	if err != nil {
		return "", translate.Usage{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", translate.Usage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", translate.Usage{}, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", translate.Usage{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		var errResp anthropicError
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			se.Body = errResp.Error.Type + ": " + errResp.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			se.RetryAfter = parseRetryDelay(resp.Header.Get("Retry-After"), respBody)
		}
		return "", translate.Usage{}, se
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", translate.Usage{}, fmt.Errorf("unmarshal response: %w", err)
	}

	usage := translate.Usage{
		PromptTokens:     apiResp.Usage.InputTokens,
		CompletionTokens: apiResp.Usage.OutputTokens,
		TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), usage, nil
}
