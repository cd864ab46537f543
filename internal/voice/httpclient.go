package voice

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/discord-voice-agent/internal/logging"
)

// postWithRetries posts a payload with retry/backoff for transport errors
// and 5xx responses. Caller must close resp.Body on success.
func postWithRetries(ctx context.Context, client *http.Client, url, contentType, authToken string, body []byte, attempts int) (*http.Response, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		if authToken != "" {
			req.Header.Set("Authorization", "Bearer "+authToken)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			logging.Debugw("postWithRetries: attempt failed", "url", url, "attempt", i+1, "err", err)
		} else if resp.StatusCode >= 500 {
			lastErr = &statusError{code: resp.StatusCode}
			resp.Body.Close()
			logging.Warnw("postWithRetries: server error", "url", url, "attempt", i+1, "status", resp.StatusCode)
		} else {
			return resp, nil
		}

		if i < attempts-1 {
			select {
			case <-time.After(time.Duration(200*(1<<i)) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.code)
}
