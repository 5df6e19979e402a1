package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"CodeChat/internal/backend"
)

// Anthropic calls the Anthropic Messages API.
type Anthropic struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// NewAnthropic creates the Anthropic backend.
func NewAnthropic(baseURL, apiKey string, hc *http.Client) *Anthropic {
	return &Anthropic{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, hc: hc}
}

func (a *Anthropic) Name() string { return "anthropic" }

// Complete sends the request to /v1/messages. Tool definitions and tool
// blocks are passed through.
func (a *Anthropic) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	reqBody := backend.AnthropicRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Messages:    toAnthropicMessages(req.Messages),
	}
	for _, t := range req.Tools {
		reqBody.Tools = append(reqBody.Tools, backend.AnthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": backend.AnthropicVersion,
	}

	var apiResp backend.AnthropicResponse
	if err := postJSON(ctx, a.hc, a.baseURL+"/v1/messages", headers, reqBody, &apiResp, decodeAnthropicError); err != nil {
		return nil, err
	}

	out := &Response{
		StopReason: apiResp.StopReason,
		Model:      apiResp.Model,
		Usage: Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
		},
	}
	var texts []string
	for _, content := range apiResp.Content {
		switch content.Type {
		case "text":
			texts = append(texts, content.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:    content.ID,
				Name:  content.Name,
				Input: content.Input,
			})
		}
	}
	out.Text = strings.Join(texts, "\n")
	return out, nil
}

func toAnthropicMessages(msgs []Message) []backend.AnthropicMessage {
	out := make([]backend.AnthropicMessage, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case len(m.ToolCalls) > 0:
			var blocks []backend.AnthropicContent
			if m.Content != "" {
				blocks = append(blocks, backend.AnthropicContent{Type: "text", Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, backend.AnthropicContent{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: call.Input,
				})
			}
			out = append(out, backend.AnthropicMessage{Role: m.Role, Content: blocks})
		case len(m.ToolResults) > 0:
			blocks := make([]backend.AnthropicContent, 0, len(m.ToolResults))
			for _, res := range m.ToolResults {
				blocks = append(blocks, backend.AnthropicContent{
					Type:      "tool_result",
					ToolUseID: res.CallID,
					Content:   res.Content,
					IsError:   res.IsError,
				})
			}
			out = append(out, backend.AnthropicMessage{Role: m.Role, Content: blocks})
		default:
			out = append(out, backend.AnthropicMessage{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

func decodeAnthropicError(body []byte) (string, string) {
	var e backend.AnthropicError
	if err := json.Unmarshal(body, &e); err != nil {
		return "", ""
	}
	return e.Error.Type, e.Error.Message
}
