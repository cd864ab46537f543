package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TTSClient synthesizes speech via an OpenAI-compatible /audio/speech
// endpoint, always requesting a WAV container so playback can re-encode it.
type TTSClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
	HTTP    *http.Client
}

func NewTTSClient(baseURL, apiKey, model, voice string) *TTSClient {
	return &TTSClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Voice:   voice,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *TTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"model":           c.Model,
		"voice":           c.Voice,
		"input":           text,
		"response_format": "wav",
	})
	if err != nil {
		return nil, err
	}

	url := c.BaseURL + "/audio/speech"
	resp, err := postWithRetries(ctx, c.HTTP, url, "application/json", c.APIKey, payload, 2)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("speech endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return io.ReadAll(resp.Body)
}
