package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/minios-linux/batchtr/prompt"
	"github.com/minios-linux/batchtr/translate"
)

// paragraphSchema constrains Gemini's answer to list[Paragraph].
var paragraphSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"line": {Type: genai.TypeInteger},
			"text": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"line", "text"},
	},
}

type gemini struct {
	client *genai.Client
}

func newGemini(ctx context.Context, cfg Config, httpClient *http.Client) (*gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &gemini{client: client}, nil
}

func (g *gemini) complete(ctx context.Context, model string, p prompt.Prompt) (string, translate.Usage, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.3),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    paragraphSchema,
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(p.User), config)
	if err != nil {
		return "", translate.Usage{}, geminiError(err)
	}

	var usage translate.Usage
	if md := resp.UsageMetadata; md != nil {
		usage.PromptTokens = int(md.PromptTokenCount)
		usage.CompletionTokens = int(md.CandidatesTokenCount)
		usage.TotalTokens = int(md.TotalTokenCount)
	}
	return resp.Text(), usage, nil
}

// geminiError maps an API failure to a StatusError. A 429 carries the
// RetryInfo delay from the error details when Google sends one.
func geminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Code == 0 {
		return err
	}
	se := &StatusError{StatusCode: apiErr.Code, Body: apiErr.Message}
	if apiErr.Code == http.StatusTooManyRequests && len(apiErr.Details) > 0 {
		body, jerr := json.Marshal(map[string]any{"error": map[string]any{"details": apiErr.Details}})
		if jerr == nil {
			se.RetryAfter = parseRetryDelay("", body)
		}
	}
	return se
}
