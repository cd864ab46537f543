package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

// Message is one chat turn sent to the completion endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to an OpenAI-compatible chat completions endpoint. When the
// primary model fails transiently (network, 5xx, 429) and a fallback model
// is configured, the request is retried once against the fallback.
type Client struct {
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	MaxTokens     int
	HTTP          *http.Client
}

func NewClientFromEnv() *Client {
	base := os.Getenv("OPENAI_BASE_URL")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	maxTokens := 1024
	if v := os.Getenv("LLM_MAX_TOKENS"); v != "" {
		var parsed int
		fmt.Sscanf(v, "%d", &parsed)
		if parsed > 0 {
			maxTokens = parsed
		}
	}
	return &Client{
		BaseURL:       strings.TrimRight(base, "/"),
		APIKey:        os.Getenv("OPENAI_API_KEY"),
		Model:         os.Getenv("OPENAI_MODEL"),
		FallbackModel: os.Getenv("OPENAI_FALLBACK_MODEL"),
		MaxTokens:     maxTokens,
		HTTP:          &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateChatCompletion sends the messages and returns the first choice's
// content. Errors wrap ErrTransient or ErrPermanent so callers can decide
// whether a retry could ever help.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []Message) (string, error) {
	content, err := c.complete(ctx, c.Model, messages)
	if err == nil {
		return content, nil
	}
	if errors.Is(err, ErrTransient) && c.FallbackModel != "" && c.FallbackModel != c.Model {
		time.Sleep(250 * time.Millisecond)
		return c.complete(ctx, c.FallbackModel, messages)
	}
	return "", err
}

func (c *Client) complete(ctx context.Context, model string, messages []Message) (string, error) {
	payload := map[string]interface{}{
		"messages":   messages,
		"max_tokens": c.MaxTokens,
	}
	if model != "" {
		payload["model"] = model
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode error: %v", ErrTransient, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: response had no choices", ErrPermanent)
	}
	return out.Choices[0].Message.Content, nil
}
