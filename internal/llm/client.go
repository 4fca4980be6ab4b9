package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kadaliao/logseq-reflect-sub001/internal/config"
	"github.com/kadaliao/logseq-reflect-sub001/internal/logging"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
// The zero value is not usable; construct with New.
type Client struct {
	endpoint   string
	apiKey     string
	maxRetries int
	httpClient *http.Client
}

// New creates a client from the endpoint section of the configuration.
func New(cfg *config.Config) *Client {
	return &Client{
		endpoint:   cfg.Endpoint(),
		apiKey:     cfg.LLM.APIKey,
		maxRetries: cfg.LLM.MaxRetries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// Endpoint returns the chat completions URL the client targets.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Complete sends a non-streaming request and returns the full completion.
func (c *Client) Complete(ctx context.Context, reqBody ChatRequest) (string, error) {
	// Apply the client timeout if the caller didn't set a deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	reqBody.Stream = false
	logging.APIDebug("Complete: model=%s messages=%d", reqBody.Model, len(reqBody.Messages))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, body, err := c.post(ctx, reqBody)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}

		var chatResp ChatResponse
		if err := json.Unmarshal(body, &chatResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if chatResp.Error != nil {
			return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
		}
		if len(chatResp.Choices) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
		logging.API("Complete: finished in %v response_len=%d", time.Since(startTime), len(content))
		return content, nil
	}

	logging.APIError("Complete: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Stream sends a streaming request and returns channels of content
// fragments and errors. Both channels are closed when the stream ends,
// whether it completed, failed, or the context was cancelled. Fragments
// already delivered stay valid after a failure.
func (c *Client) Stream(ctx context.Context, reqBody ChatRequest) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		startTime := time.Now()
		reqBody.Stream = true
		logging.APIDebug("Stream: model=%s messages=%d", reqBody.Model, len(reqBody.Messages))

		// Retry only before streaming begins; once fragments flow, a
		// failure surfaces on the error channel instead.
		var lastErr error
		for attempt := 0; attempt <= c.maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(time.Duration(1<<uint(attempt-1)) * time.Second):
				case <-ctx.Done():
					errorChan <- ctx.Err()
					return
				}
			}

			jsonData, err := json.Marshal(reqBody)
			if err != nil {
				errorChan <- fmt.Errorf("failed to marshal request: %w", err)
				return
			}

			req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
			if err != nil {
				errorChan <- fmt.Errorf("failed to create request: %w", err)
				return
			}
			c.setHeaders(req)
			req.Header.Set("Accept", "text/event-stream")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				lastErr = fmt.Errorf("request failed: %w", err)
				continue
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				lastErr = &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
				continue
			}
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				errorChan <- &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
				return
			}

			defer resp.Body.Close()

			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

			scanDone := make(chan struct{})
			scanErrChan := make(chan error, 1)

			go func() {
				defer close(scanDone)
				fragments := 0
				for scanner.Scan() {
					line := scanner.Text()
					if !strings.HasPrefix(line, "data:") {
						continue
					}
					data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
					if data == "" {
						continue
					}
					if data == "[DONE]" {
						logging.APIDebug("Stream: done sentinel after %d fragments", fragments)
						return
					}

					var chunk ChatResponse
					if err := json.Unmarshal([]byte(data), &chunk); err != nil {
						// Malformed events are dropped, the stream goes on.
						logging.APIWarn("Stream: skipping malformed event: %.80s", data)
						continue
					}
					if chunk.Error != nil {
						scanErrChan <- fmt.Errorf("API error: %s", chunk.Error.Message)
						return
					}
					if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
						delta := chunk.Choices[0].Delta.Content
						if delta != "" {
							select {
							case contentChan <- delta:
								fragments++
							case <-ctx.Done():
								return
							}
						}
					}
				}
				if err := scanner.Err(); err != nil {
					scanErrChan <- err
				}
			}()

			select {
			case <-scanDone:
				select {
				case err := <-scanErrChan:
					logging.APIError("Stream: stream error after %v: %v", time.Since(startTime), err)
					errorChan <- fmt.Errorf("stream error: %w", err)
				default:
					logging.API("Stream: completed in %v", time.Since(startTime))
				}
			case <-ctx.Done():
				resp.Body.Close()
				<-scanDone
				logging.APIWarn("Stream: cancelled after %v", time.Since(startTime))
				errorChan <- ctx.Err()
			}
			return
		}

		logging.APIError("Stream: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
		errorChan <- fmt.Errorf("max retries exceeded: %w", lastErr)
	}()

	return contentChan, errorChan
}

func (c *Client) post(ctx context.Context, reqBody ChatRequest) (*http.Response, []byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
