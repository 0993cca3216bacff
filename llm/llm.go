package llm

import "context"

// Options are per-call generation settings. An empty Model uses the
// provider default.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Provider is the text generation contract.
type Provider interface {
	Generate(ctx context.Context, prompt string, opt Options) (string, error)
	// GenerateStream calls onDelta for every text delta in arrival order and
	// returns once the provider signals end of stream. An error from onDelta
	// aborts the stream and is returned.
	GenerateStream(ctx context.Context, prompt string, opt Options, onDelta func(delta string) error) error
}
