package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// OpenAIConfig configures the OpenAI client. APIKey is required; BaseURL
// defaults to the official endpoint and Model to gpt-4o-mini.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewOpenAIClient creates a client from cfg.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error) {
	options := ApplyGenerateOptions(opts)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(messages),
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) GenerateStream(ctx context.Context, messages []Message, onDelta func(string) error, opts ...GenerateOption) error {
	options := ApplyGenerateOptions(opts)

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(messages),
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("opening completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}
}

// Close is a no-op; the underlying SDK holds no persistent connections.
func (c *OpenAIClient) Close() error { return nil }

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
