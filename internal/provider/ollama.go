package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"CodeChat/internal/backend"
)

// Ollama calls a local Ollama server. It needs no credential.
type Ollama struct {
	baseURL string
	hc      *http.Client
}

// NewOllama creates the Ollama backend.
func NewOllama(baseURL string, hc *http.Client) *Ollama {
	return &Ollama{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	reqBody := backend.OllamaRequest{
		Model:    model,
		Messages: toPlainMessages(req.System, req.Messages),
		Stream:   false,
		Options:  &backend.OllamaOptions{NumPredict: req.MaxTokens},
	}
	if req.Temperature != nil {
		reqBody.Options.Temperature = *req.Temperature
	}

	var apiResp backend.OllamaResponse
	if err := postJSON(ctx, o.hc, o.baseURL+"/api/chat", nil, reqBody, &apiResp, decodeOllamaError); err != nil {
		return nil, err
	}

	return &Response{
		Text:       apiResp.Message.Content,
		StopReason: "stop",
		Model:      apiResp.Model,
		Usage: Usage{
			InputTokens:  apiResp.PromptEvalCount,
			OutputTokens: apiResp.EvalCount,
		},
	}, nil
}

// ListModels fetches the installed models from /api/tags.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	var tagsResp backend.OllamaTagsResponse
	if err := getJSON(ctx, o.hc, o.baseURL+"/api/tags", &tagsResp, decodeOllamaError); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tagsResp.Models))
	for _, m := range tagsResp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func decodeOllamaError(body []byte) (string, string) {
	var e backend.OllamaError
	if err := json.Unmarshal(body, &e); err != nil {
		return "", ""
	}
	return "", e.Error
}
