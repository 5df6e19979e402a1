package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"CodeChat/internal/backend"
)

// OpenAI calls an OpenAI-compatible chat completions API (OpenAI, Grok).
// Tools are not forwarded.
type OpenAI struct {
	name    string
	baseURL string
	apiKey  string
	hc      *http.Client
}

// NewOpenAI creates an OpenAI-compatible backend reported under name.
func NewOpenAI(name, baseURL, apiKey string, hc *http.Client) *OpenAI {
	return &OpenAI{name: name, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, hc: hc}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	reqBody := backend.OpenAIRequest{
		Model:       model,
		Messages:    toPlainMessages(req.System, req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	var apiResp backend.OpenAIResponse
	if err := postJSON(ctx, o.hc, o.baseURL+"/v1/chat/completions", headers, reqBody, &apiResp, decodeOpenAIError); err != nil {
		return nil, err
	}

	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from %s", o.name)
	}
	return &Response{
		Text:       apiResp.Choices[0].Message.Content,
		StopReason: apiResp.Choices[0].FinishReason,
		Model:      apiResp.Model,
		Usage: Usage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
		},
	}, nil
}

// toPlainMessages flattens a conversation for text-only chat APIs. Tool
// traffic is never produced for these backends since they get no tools.
func toPlainMessages(system string, msgs []Message) []backend.OpenAIMessage {
	out := make([]backend.OpenAIMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, backend.OpenAIMessage{Role: "system", Content: system})
	}
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		out = append(out, backend.OpenAIMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func decodeOpenAIError(body []byte) (string, string) {
	var e backend.OpenAIError
	if err := json.Unmarshal(body, &e); err != nil {
		return "", ""
	}
	typ := e.Error.Type
	if code, ok := e.Error.Code.(string); ok && code != "" {
		typ = code
	}
	return typ, e.Error.Message
}
