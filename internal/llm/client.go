// Package llm talks to an OpenAI-compatible chat completions API to parse
// meal descriptions and write coaching tips.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("OPENAI_API_KEY not set")
	// ErrUnrecognized is returned when the model could not make sense of the
	// input (for example a meal description that is not food).
	ErrUnrecognized = errors.New("unrecognized")
)

type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func New(baseURL, apiKey, model string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

/* ─── OpenAI wire types ──────────────────────────────────────────────── */

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends a chat completions request in JSON mode and returns the
// content of the first choice.
func (c *Client) complete(ctx context.Context, temperature float64, messages ...message) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// completeJSON runs complete and decodes the content into v. A content of
// {"error": "unrecognized"} maps to ErrUnrecognized.
func (c *Client) completeJSON(ctx context.Context, temperature float64, v any, messages ...message) error {
	content, err := c.complete(ctx, temperature, messages...)
	if err != nil {
		return err
	}
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &errResp); err != nil {
		return fmt.Errorf("parse model output: %w", err)
	}
	if errResp.Error == "unrecognized" {
		return ErrUnrecognized
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("parse model output: %w", err)
	}
	return nil
}
