// Package llm abstracts the cloud model used for prompt rewriting and scoring.
package llm

import "context"

// Message is a single chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client defines the model operations the pipeline needs.
// Implemented by OpenAIClient; tests substitute fakes.
type Client interface {
	// Generate sends the messages and returns the assistant's full response.
	Generate(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	// GenerateStream sends the messages and invokes onDelta for each content
	// fragment as it arrives. Returns after the stream is drained or onDelta
	// returns an error.
	GenerateStream(ctx context.Context, messages []Message, onDelta func(string) error, opts ...GenerateOption) error

	// Close releases client resources.
	Close() error
}

// GenerateOptions holds per-call generation parameters.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// GenerateOption configures a single generation call.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature (0.0–2.0).
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens caps the response length in tokens.
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// ApplyGenerateOptions folds opts over the defaults (temperature 0.7, 1000 tokens).
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.7,
		MaxTokens:   1000,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
