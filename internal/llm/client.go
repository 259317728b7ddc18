package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is the OpenAI API root used when no base URL is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client streams chat completions from an OpenAI-compatible API.
type Client struct {
	BaseURL string
	Model   string
	client  *openai.Client
}

// NewClient creates a new completion client.
// baseURL includes the API version segment (e.g. "https://api.openai.com/v1").
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		BaseURL: baseURL,
		Model:   model,
		client:  openai.NewClientWithConfig(newConfig(baseURL, apiKey)),
	}
}

func newConfig(baseURL, apiKey string) openai.ClientConfig {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	// Deadlines come from the caller's context; a client timeout would cut
	// long streams short.
	cfg.HTTPClient = &http.Client{}
	return cfg
}

// StreamChat opens a streaming chat completion for the given messages.
// Errors raised while opening the stream (transport, auth, quota, bad status)
// are returned before any fragment is produced.
func (c *Client) StreamChat(ctx context.Context, messages []Message) (Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.Model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}

	return &completionStream{stream: stream}, nil
}

// Ping verifies that the API is reachable and the configured model exists.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.GetModel(ctx, c.Model); err != nil {
		return fmt.Errorf("failed to get model %s: %w", c.Model, err)
	}
	return nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}

// completionStream adapts go-openai's stream to Stream.
type completionStream struct {
	stream   *openai.ChatCompletionStream
	finished bool
}

// ErrTruncatedStream is returned when the upstream ends the stream before
// reporting a finish reason.
var ErrTruncatedStream = fmt.Errorf("completion stream ended without finish reason: %w", io.ErrUnexpectedEOF)

func (s *completionStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			if !s.finished {
				return "", ErrTruncatedStream
			}
			// io.EOF is passed through unwrapped so callers can compare it.
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			s.finished = true
		}
		if choice.Delta.Content != "" {
			return choice.Delta.Content, nil
		}
	}
}

func (s *completionStream) Close() error {
	return s.stream.Close()
}
