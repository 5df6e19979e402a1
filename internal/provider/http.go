package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorDetail = 512

// errorDecoder extracts the provider error type and message from a
// non-2xx body.
type errorDecoder func(body []byte) (typ, msg string)

// postJSON sends in as JSON and decodes a 200 response into out. Any other
// status becomes a *StatusError.
func postJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, in, out any, decodeErr errorDecoder) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return doJSON(hc, req, out, decodeErr)
}

// getJSON issues a GET and decodes a 200 response into out.
func getJSON(ctx context.Context, hc *http.Client, url string, out any, decodeErr errorDecoder) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return doJSON(hc, req, out, decodeErr)
}

func doJSON(hc *http.Client, req *http.Request, out any, decodeErr errorDecoder) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Status: resp.StatusCode}
		if decodeErr != nil {
			se.Type, se.Message = decodeErr(body)
		}
		if se.Message == "" {
			se.Message = truncate(strings.TrimSpace(string(body)), maxErrorDetail)
		}
		return se
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
