// Package openai is the relay's upstream chat-completion client.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const chatCompletionsPath = "chat/completions"

// UpstreamStatusError is returned when the provider answers with a non-2xx status.
// The response body is deliberately not carried.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Config holds the settings needed to build a Client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// Timeout bounds a single completion call. Zero means no bound beyond the caller's context.
	Timeout time.Duration
	// HTTPClient overrides the SDK's default transport, mainly for tests.
	HTTPClient *http.Client
}

// Client issues one chat completion per call with SDK retries disabled.
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(withTrailingSlash(cfg.BaseURL)),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Model returns the model id sent with every request.
func (c *Client) Model() string {
	return c.model
}

// CreateChatCompletion sends the system and user messages and returns the raw
// response body of a 2xx answer. Non-2xx answers yield *UpstreamStatusError;
// anything else that fails is a transport error.
func (c *Client) CreateChatCompletion(ctx context.Context, system, user string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}

	var (
		raw  []byte
		resp *http.Response
	)
	err := c.client.Post(ctx, chatCompletionsPath, params, &raw, option.WithResponseInto(&resp))
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &UpstreamStatusError{StatusCode: apiErr.StatusCode}
		}
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}

	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, &UpstreamStatusError{StatusCode: resp.StatusCode}
	}

	return raw, nil
}

func withTrailingSlash(base string) string {
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}
