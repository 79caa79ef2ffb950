package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/youyo/slack-assistant/internal/secrets"
)

const defaultAPIBaseURL = "https://slack.com/api"

// PostClient posts messages to the Slack Web API.
type PostClient interface {
	// PostMessage posts text to a channel, threading under threadTS when it
	// is non-empty, and returns the delivery timestamp of the new message.
	PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error)
	Close()
}

// PostClientFactory creates PostClient instances (allows mocking in tests).
type PostClientFactory func(baseURL string, src secrets.Source) PostClient

// DefaultPostClientFactory creates the real Web API client.
var DefaultPostClientFactory PostClientFactory = func(baseURL string, src secrets.Source) PostClient {
	return newDefaultPostClient(baseURL, src)
}

// APIError is a structured Slack Web API failure with the provider's
// machine-readable code ("channel_not_found", "ratelimited", ...).
type APIError struct {
	Code string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack api error: %s", e.Code)
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("slack api status %d: %s", e.Code, e.Body)
}

type defaultPostClient struct {
	baseURL    string
	secrets    secrets.Source
	httpClient *http.Client
}

func newDefaultPostClient(baseURL string, src secrets.Source) *defaultPostClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	return &defaultPostClient{
		baseURL: baseURL,
		secrets: src,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *defaultPostClient) Close() {}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

func (c *defaultPostClient) PostMessage(ctx context.Context, channelID, text, threadTS string) (string, error) {
	token, err := c.secrets.Get(secrets.SlackBotToken)
	if err != nil {
		return "", fmt.Errorf("resolve bot token: %w", err)
	}

	payload, err := json.Marshal(postMessageRequest{
		Channel:  channelID,
		Text:     text,
		ThreadTS: threadTS,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat.postMessage payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat.postMessage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat.postMessage: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var result postMessageResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode chat.postMessage response: %w", err)
	}
	if !result.OK {
		code := result.Error
		if code == "" {
			code = "unknown_error"
		}
		return "", &APIError{Code: code}
	}

	return result.TS, nil
}
