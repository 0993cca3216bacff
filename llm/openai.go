package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/config"
)

const defaultTimeout = 60 * time.Second

// OpenAI generates through an OpenAI-compatible chat completions API.
type OpenAI struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAI(cfg config.LLMConfig, extra ...option.RequestOption) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAI{client: openai.NewClient(opts...), model: cfg.Model, timeout: timeout}, nil
}

func (p *OpenAI) params(prompt string, opt Options) openai.ChatCompletionNewParams {
	model := opt.Model
	if model == "" {
		model = p.model
	}
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    openai.ChatModel(model),
	}
	if opt.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opt.MaxTokens))
	}
	params.Temperature = openai.Float(opt.Temperature)
	return params
}

func (p *OpenAI) Generate(ctx context.Context, prompt string, opt Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := p.client.Chat.Completions.New(ctx, p.params(prompt, opt))
	if err != nil {
		return "", fmt.Errorf("chat completion failed, err: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	logger.Debugf("llm generate done, model=%s tokens=%d", resp.Model, resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAI) GenerateStream(ctx context.Context, prompt string, opt Options, onDelta func(delta string) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(prompt, opt))
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if d := chunk.Choices[0].Delta.Content; d != "" {
			if err := onDelta(d); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("chat completion stream failed, err: %w", err)
	}
	return nil
}
