package runware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollAttempts = 60
)

// Client talks to the Runware task API. Every request is a JSON array of
// task objects; responses carry parallel data and errors arrays. Sync
// inference blocks until the provider renders, so it gets a much longer
// client timeout than task submission and polling.
type Client struct {
	BaseURL  string
	APIKey   string
	HTTP     *http.Client
	SyncHTTP *http.Client

	PollInterval time.Duration
	PollAttempts int
}

// NewClient creates a provider adapter for the given endpoint and key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		HTTP:         &http.Client{Timeout: 60 * time.Second},
		SyncHTTP:     &http.Client{Timeout: 300 * time.Second},
		PollInterval: defaultPollInterval,
		PollAttempts: defaultPollAttempts,
	}
}

type apiError struct {
	Message string `json:"message"`
}

type apiResponse struct {
	Data   []map[string]any `json:"data"`
	Errors []apiError       `json:"errors"`
}

// Generate submits a synchronous task and returns the result URL from the
// configured response field (falling back to imageURL, then videoURL).
// Models can carry their own endpoint; an empty one falls back to BaseURL.
func (c *Client) Generate(ctx context.Context, endpoint string, payload map[string]any, responseField string) (string, error) {
	if endpoint == "" {
		endpoint = c.BaseURL
	}
	resp, err := c.post(ctx, c.SyncHTTP, endpoint, payload)
	if err != nil {
		return "", err
	}
	if len(resp.Errors) > 0 {
		return "", fmt.Errorf("generation failed: %s", resp.Errors[0].Message)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("empty provider response")
	}

	entry := resp.Data[0]
	for _, field := range []string{responseField, "imageURL", "videoURL"} {
		if field == "" {
			continue
		}
		if url, ok := entry[field].(string); ok && url != "" {
			return url, nil
		}
	}
	return "", fmt.Errorf("no result URL in provider response")
}

// StartTask submits an asynchronous task. The result is fetched later via
// PollResult with the task UUID embedded in the payload.
func (c *Client) StartTask(ctx context.Context, payload map[string]any) error {
	resp, err := c.post(ctx, c.HTTP, c.BaseURL, payload)
	if err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("submission failed: %s", resp.Errors[0].Message)
	}
	return nil
}

// PollResult polls getResponse until the task reports success, an error, or
// the attempt budget runs out. Transport errors are retried within the same
// budget; only a task error from the provider aborts immediately.
func (c *Client) PollResult(ctx context.Context, taskUUID string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.PollAttempts; attempt++ {
		resp, err := c.post(ctx, c.HTTP, c.BaseURL, map[string]any{
			"taskType": "getResponse",
			"taskUUID": taskUUID,
		})
		if err != nil {
			lastErr = err
			if err := c.sleep(ctx); err != nil {
				return "", err
			}
			continue
		}
		lastErr = nil

		if len(resp.Errors) > 0 {
			return "", fmt.Errorf("task failed: %s", resp.Errors[0].Message)
		}

		if len(resp.Data) > 0 {
			entry := resp.Data[0]
			status, _ := entry["status"].(string)
			url, _ := entry["videoURL"].(string)
			if status == "success" && url != "" {
				return url, nil
			}
		}

		if err := c.sleep(ctx); err != nil {
			return "", err
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("poll task status: %w", lastErr)
	}
	return "", fmt.Errorf("task timeout: no result after %d attempts", c.PollAttempts)
}

func (c *Client) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.PollInterval):
		return nil
	}
}

func (c *Client) post(ctx context.Context, client *http.Client, endpoint string, payload map[string]any) (*apiResponse, error) {
	body, err := json.Marshal([]map[string]any{payload})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	return &decoded, nil
}
