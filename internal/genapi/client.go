// Package genapi wraps the image generation API: submit a prompt, poll for
// the result, return the image URL.
package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stixly/stickerbot/core/logger"
)

const (
	submitTimeout = 30 * time.Second
	resultTimeout = 10 * time.Second
)

var (
	// ErrGenerationFailed means the service reported a failed task.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrPollBudgetExceeded means the task did not finish in time.
	ErrPollBudgetExceeded = errors.New("generation poll budget exceeded")
	// ErrNotConfigured means the client has no endpoint or key.
	ErrNotConfigured = errors.New("genapi not configured")
)

// Options configure a Client.
type Options struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	PollBudget   time.Duration
	Client       *http.Client
}

// Client submits generation tasks and polls their results.
type Client struct {
	opts Options
	log  *slog.Logger
}

// NewClient constructs a generation client.
func NewClient(opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.PollBudget <= 0 {
		opts.PollBudget = 2 * time.Minute
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: submitTimeout}
	}
	return &Client{opts: opts, log: logger.Component("genapi")}
}

// Configured reports whether the client can reach the service.
func (c *Client) Configured() bool {
	return c.opts.BaseURL != "" && c.opts.APIKey != ""
}

type submitResponse struct {
	Data struct {
		RequestID string `json:"id"`
	} `json:"data"`
}

type resultResponse struct {
	Data struct {
		Status  string   `json:"status"`
		Outputs []string `json:"outputs"`
		Error   string   `json:"error"`
	} `json:"data"`
}

// Generate submits prompt and blocks until the task completes, fails, or the
// poll budget runs out. The returned URL points at the rendered image.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	start := time.Now()
	requestID, err := c.submit(ctx, prompt)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.PollBudget)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrPollBudgetExceeded
			}
			return "", ctx.Err()
		case <-ticker.C:
			url, done, err := c.pollOnce(ctx, requestID)
			if err != nil {
				return "", err
			}
			if done {
				c.log.Info("generation finished",
					slog.String("event", "genapi.done"),
					slog.String("request_id", requestID),
					slog.Duration("took", logger.Took(start)),
				)
				return url, nil
			}
		}
	}
}

func (c *Client) submit(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"prompt":               prompt,
		"output_format":        "png",
		"enable_base64_output": false,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.opts.BaseURL+"/wavespeed-ai/flux-schnell", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.opts.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("genapi submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("genapi submit status: %s", resp.Status)
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("genapi submit decode: %w", err)
	}
	if result.Data.RequestID == "" {
		return "", fmt.Errorf("genapi submit: empty request id")
	}
	return result.Data.RequestID, nil
}

// pollOnce fetches the task state. done=true only on a completed task with
// output; a reported failure surfaces as ErrGenerationFailed.
func (c *Client) pollOnce(ctx context.Context, requestID string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, resultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.opts.BaseURL+"/predictions/"+requestID+"/result", nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.opts.Client.Do(req)
	if err != nil {
		// Transient poll failure; the next tick retries.
		c.log.Warn("poll failed",
			slog.String("event", "genapi.poll"),
			slog.String("request_id", requestID),
			slog.String("err", err.Error()),
		)
		return "", false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", false, nil
	}

	var result resultResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false, nil
	}

	switch result.Data.Status {
	case "completed":
		if len(result.Data.Outputs) == 0 {
			return "", false, fmt.Errorf("genapi: completed without outputs")
		}
		return result.Data.Outputs[0], true, nil
	case "failed":
		if result.Data.Error != "" {
			return "", false, fmt.Errorf("%w: %s", ErrGenerationFailed, result.Data.Error)
		}
		return "", false, ErrGenerationFailed
	default:
		return "", false, nil
	}
}
