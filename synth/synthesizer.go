// Package synth turns merged sources into a cited, cleaned answer.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/higress-group/newsrag/analysis"
	"github.com/higress-group/newsrag/common/apperr"
	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/llm"
	"github.com/higress-group/newsrag/search"
	"github.com/higress-group/newsrag/trace"
)

// FallbackAnswer is returned to users when no answer could be produced.
const FallbackAnswer = "죄송합니다. 답변 생성 중 오류가 발생했습니다."

var errEmptyAnswer = errors.New("empty answer from model")

// Input is one synthesis request.
type Input struct {
	Query           string
	Category        analysis.Category
	Sources         []search.SourceRecord
	ExternalContent string
	History         []Turn
	Summary         string
	Now             time.Time
	// Trace receives the model tier selection when set.
	Trace *trace.Trace
}

// Output is a finished answer.
type Output struct {
	Answer     string         `json:"answer"`
	Citations  []int          `json:"citations"`
	Quality    float64        `json:"quality"`
	Model      string         `json:"model"`
	Complexity llm.Complexity `json:"complexity"`
}

type Synthesizer struct {
	provider  llm.Provider
	tiers     llm.Tiers
	exemplars []Exemplar
	cfg       config.SynthConfig
}

// New builds a Synthesizer. A nil exemplar list uses DefaultExemplars.
func New(p llm.Provider, tiers llm.Tiers, exemplars []Exemplar, cfg config.SynthConfig) *Synthesizer {
	if exemplars == nil {
		exemplars = DefaultExemplars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 3000
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxExemplars <= 0 {
		cfg.MaxExemplars = 2
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 3
	}
	return &Synthesizer{provider: p, tiers: tiers, exemplars: exemplars, cfg: cfg}
}

// NewFromConfig loads exemplars from cfg.Synth.ExemplarsFile when set.
func NewFromConfig(p llm.Provider, cfg *config.Config) (*Synthesizer, error) {
	var exemplars []Exemplar
	if cfg.Synth.ExemplarsFile != "" {
		var err error
		if exemplars, err = LoadExemplars(cfg.Synth.ExemplarsFile); err != nil {
			return nil, err
		}
	}
	return New(p, llm.NewTiers(cfg.LLM.Tiers, cfg.LLM.Model), exemplars, cfg.Synth), nil
}

// Synthesize generates and post-processes an answer.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (*Output, error) {
	prompt, opt, complexity := s.prepare(in)
	raw, err := s.provider.Generate(ctx, prompt, opt)
	if err != nil {
		return nil, apperr.Synthesis("synth.generate", err)
	}
	return s.finish(in, raw, opt.Model, complexity)
}

// SynthesizeStream forwards every raw delta to onDelta as it arrives, then
// post-processes the accumulated text into the final Output.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, in Input, onDelta func(string) error) (*Output, error) {
	prompt, opt, complexity := s.prepare(in)
	var full strings.Builder
	err := s.provider.GenerateStream(ctx, prompt, opt, func(delta string) error {
		full.WriteString(delta)
		if onDelta == nil {
			return nil
		}
		return onDelta(delta)
	})
	if err != nil {
		return nil, apperr.Synthesis("synth.stream", err)
	}
	return s.finish(in, full.String(), opt.Model, complexity)
}

func (s *Synthesizer) prepare(in Input) (string, llm.Options, llm.Complexity) {
	complexity := llm.Assess(in.Query, len(in.Sources))
	model := s.tiers.Model(complexity)
	if in.Trace != nil {
		in.Trace.Add("model_selection", "complexity "+string(complexity), model, 0)
	}

	history := in.History
	if len(history) > s.cfg.HistoryTurns {
		history = history[len(history)-s.cfg.HistoryTurns:]
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	prompt := BuildPrompt(PromptInput{
		Query:           in.Query,
		Category:        in.Category,
		Sources:         in.Sources,
		ExternalContent: in.ExternalContent,
		Exemplars:       SelectExemplars(s.exemplars, in.Category, in.Query, s.cfg.MaxExemplars),
		History:         history,
		Summary:         in.Summary,
		Now:             now,
	})
	opt := llm.Options{Model: model, MaxTokens: s.cfg.MaxTokens, Temperature: s.cfg.Temperature}
	logger.Debugf("synth: model=%s complexity=%s sources=%d prompt_len=%d", model, complexity, len(in.Sources), len(prompt))
	return prompt, opt, complexity
}

func (s *Synthesizer) finish(in Input, raw, model string, complexity llm.Complexity) (*Output, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperr.Synthesis("synth.postprocess", errEmptyAnswer)
	}
	answer := PostProcess(raw, len(in.Sources))
	if answer == "" {
		return nil, apperr.Synthesis("synth.postprocess", fmt.Errorf("answer empty after cleanup, raw length %d", len(raw)))
	}
	return &Output{
		Answer:     answer,
		Citations:  Citations(answer),
		Quality:    Quality(answer),
		Model:      model,
		Complexity: complexity,
	}, nil
}
