/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package narrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultURL is the responses endpoint used when Config.URL is empty.
const DefaultURL = "https://api.openai.com/v1/responses"

// Config configures a Client against a responses-style text endpoint.
type Config struct {
	URL        string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Client narrates by asking a hosted text model.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	return &Client{cfg: cfg}
}

func (c *Client) Narrate(ctx context.Context, e Event) (string, error) {
	apiKey := strings.TrimSpace(c.cfg.APIKey)
	model := strings.TrimSpace(c.cfg.Model)
	if apiKey == "" {
		return "", fmt.Errorf("narrator api key is required")
	}
	if model == "" {
		return "", fmt.Errorf("narrator model is required")
	}

	body, err := json.Marshal(map[string]any{
		"model": model,
		"input": Prompt(e),
	})
	if err != nil {
		return "", fmt.Errorf("marshal narration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build narration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("narration request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return "", fmt.Errorf("read narration error body: %w", err)
		}
		return "", fmt.Errorf("narration request status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode narration response: %w", err)
	}

	text := strings.TrimSpace(payload.OutputText)
	for _, item := range payload.Output {
		if text != "" {
			break
		}
		for _, content := range item.Content {
			if t := strings.TrimSpace(content.Text); t != "" {
				text = t
				break
			}
		}
	}
	if text == "" {
		return "", fmt.Errorf("narration response missing output text")
	}

	return text, nil
}
