// Package workflow runs declarative route plans step by step, gating steps on
// named threshold checks and retrying critical ones.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/metrics"
	"github.com/higress-group/newsrag/rewrite"
	"github.com/higress-group/newsrag/search"
	"github.com/higress-group/newsrag/synth"
	"github.com/higress-group/newsrag/trace"
)

// Handler executes one step against the state.
type Handler func(ctx context.Context, st *State, step Step) error

var errNoHandler = errors.New("no handler registered")

// Deps are the collaborators used by the built-in step handlers.
type Deps struct {
	Search   *search.Orchestrator
	Synth    *synth.Synthesizer
	Rewriter *rewrite.Rewriter
	Stats    *metrics.ExecutionStats
	Observer Observer
}

type Engine struct {
	cfg      config.EngineConfig
	deps     Deps
	handlers map[StepType]Handler
	observer Observer
	stats    *metrics.ExecutionStats
}

func NewEngine(cfg config.EngineConfig, deps Deps) *Engine {
	def := config.Default().Engine
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = def.QualityThreshold
	}
	if cfg.CoverageThreshold <= 0 {
		cfg.CoverageThreshold = def.CoverageThreshold
	}
	if cfg.FreshnessThreshold <= 0 {
		cfg.FreshnessThreshold = def.FreshnessThreshold
	}
	if cfg.ClarityThreshold <= 0 {
		cfg.ClarityThreshold = def.ClarityThreshold
	}
	if cfg.QualityFloor <= 0 {
		cfg.QualityFloor = def.QualityFloor
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelayMs <= 0 {
		cfg.BaseDelayMs = def.BaseDelayMs
	}
	stats := deps.Stats
	if stats == nil {
		stats = metrics.NewExecutionStats()
	}
	e := &Engine{cfg: cfg, deps: deps, observer: deps.Observer, stats: stats}
	e.handlers = map[StepType]Handler{
		StepQueryRewrite:      e.queryRewrite,
		StepInternalSearch:    e.internalSearch,
		StepExternalSearch:    e.externalSearch,
		StepKeywordEnrichment: e.keywordEnrichment,
		StepAnswerSynthesis:   e.answerSynthesis,
		StepRegenerate:        e.regenerate,
	}
	return e
}

// Handle replaces the handler for a step type.
func (e *Engine) Handle(t StepType, h Handler) { e.handlers[t] = h }

func (e *Engine) Stats() *metrics.ExecutionStats { return e.stats }

// ExternalAvailable reports whether external search steps can run.
func (e *Engine) ExternalAvailable() bool {
	return e.deps.Search != nil && e.deps.Search.ExternalAvailable()
}

// Config returns the effective thresholds.
func (e *Engine) Config() config.EngineConfig { return e.cfg }

// Run executes plan against st. A critical step that still fails after
// MaxRetries attempts aborts the run with "<step type> failed: <cause>".
// Non-critical failures are logged and skipped.
func (e *Engine) Run(ctx context.Context, plan Plan, st *State) (err error) {
	if st.Trace == nil {
		st.Trace = trace.New()
	}
	start := time.Now()
	defer func() {
		d := time.Since(start)
		e.stats.Record(err == nil, st.UsedExternal(), d)
		metrics.ObserveWorkflow(plan.Name, err == nil, d)
	}()

	for _, step := range plan.Steps {
		if !e.Check(step.Condition, st) {
			e.skip(st, step)
			continue
		}
		if err := e.execute(ctx, st, step); err != nil {
			if step.Critical {
				return fmt.Errorf("%s failed: %w", step.Type, err)
			}
			logger.Warnf("workflow: optional step %s failed, continuing, err: %v", step.Type, err)
		}
	}

	if st.Answer == nil {
		if err := e.execute(ctx, st, Step{Type: StepAnswerSynthesis, Critical: true}); err != nil {
			return fmt.Errorf("%s failed: %w", StepAnswerSynthesis, err)
		}
	}
	st.Quality = Quality(st.Answer, len(st.Result.Sources))

	if st.Quality < e.cfg.QualityThreshold && !st.Streaming() && !st.Escalated {
		e.escalate(ctx, st)
	}
	metrics.ObserveQuality(st.Quality)
	return nil
}

// execute runs one step. Critical steps are attempted up to MaxRetries times
// with exponential backoff from BaseDelayMs.
func (e *Engine) execute(ctx context.Context, st *State, step Step) error {
	h, ok := e.handlers[step.Type]
	if !ok {
		return fmt.Errorf("%w for %s", errNoHandler, step.Type)
	}
	attempts := uint(1)
	if step.Critical {
		attempts = uint(e.cfg.MaxRetries)
	}

	done := st.Trace.Begin(string(step.Type), describe(step))
	start := time.Now()
	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			e.notify(st, Event{Step: step.Type, Phase: PhaseStart, Attempt: attempt})
			sctx, cancel := e.stepContext(ctx)
			defer cancel()
			return h(sctx, st, step)
		},
		retry.Attempts(attempts),
		retry.Delay(time.Duration(e.cfg.BaseDelayMs)*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warnf("workflow: step %s attempt %d/%d failed, err: %v", step.Type, n+1, attempts, err)
		}),
	)
	d := time.Since(start)
	if err != nil {
		done("failed: " + err.Error())
		metrics.ObserveStep(string(step.Type), "failure", d)
	} else {
		done(stepResult(st, step.Type))
		metrics.ObserveStep(string(step.Type), "success", d)
	}
	e.notify(st, Event{Step: step.Type, Phase: PhaseFinish, Attempt: attempt, Duration: d, Err: err})
	return err
}

func (e *Engine) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StepTimeoutMs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(e.cfg.StepTimeoutMs)*time.Millisecond)
}

func (e *Engine) skip(st *State, step Step) {
	st.Trace.Add(string(step.Type), describe(step), "skipped", 0)
	metrics.ObserveStep(string(step.Type), "skipped", 0)
	e.notify(st, Event{Step: step.Type, Phase: PhaseSkip})
}

func (e *Engine) notify(st *State, ev Event) {
	if e.observer != nil {
		e.observer.OnStep(ev)
	}
	if st.Observer != nil {
		st.Observer.OnStep(ev)
	}
}

// Check evaluates a named condition. Unknown conditions evaluate false so
// the step is skipped.
func (e *Engine) Check(c Condition, st *State) bool {
	switch c {
	case "":
		return true
	case IfInternalInsufficient:
		return st.Result.InternalCoverage < e.cfg.CoverageThreshold
	case IfQualityLow:
		return st.Quality < e.cfg.QualityThreshold
	case IfClarityLow:
		return st.Analysis.ClarityScore < e.cfg.ClarityThreshold
	case IfFreshnessRequired:
		return st.Intent.FreshnessPriority > e.cfg.FreshnessThreshold
	default:
		logger.Warnf("workflow: unknown condition %q, skipping step", c)
		return false
	}
}

// escalate forces external search, merges and regenerates once. The retry is
// kept only when its quality exceeds QualityFloor.
func (e *Engine) escalate(ctx context.Context, st *State) {
	st.Escalated = true
	e.stats.RecordEscalation()
	prevResult, prevAnswer, prevQuality := st.Result, st.Answer, st.Quality
	done := st.Trace.Begin("escalated_retry", fmt.Sprintf("quality %.2f below %.2f, forcing external search", prevQuality, e.cfg.QualityThreshold))

	restore := func(outcome, result string) {
		st.Result, st.Answer, st.Quality = prevResult, prevAnswer, prevQuality
		metrics.IncEscalation(outcome)
		done(result)
	}

	if e.deps.Search == nil || !e.deps.Search.ExternalAvailable() {
		restore("failed", "external search unavailable, keeping original answer")
		return
	}
	req := st.Request
	req.ForceExternal = true
	if err := e.deps.Search.SearchExternal(ctx, req, st.SearchQuery(), &st.Result); err != nil {
		restore("failed", "external search failed: "+err.Error())
		return
	}
	e.deps.Search.Finalize(&st.Result, req)
	out, err := e.synthesize(ctx, st)
	if err != nil {
		restore("failed", "regeneration failed: "+err.Error())
		return
	}
	q := Quality(out, len(st.Result.Sources))
	if q <= e.cfg.QualityFloor {
		restore("rejected", fmt.Sprintf("retry quality %.2f not above floor %.2f, keeping original answer", q, e.cfg.QualityFloor))
		return
	}
	st.Answer, st.Quality = out, q
	metrics.IncEscalation("accepted")
	done(fmt.Sprintf("accepted, quality %.2f", q))
}

// Quality is the engine-level score: 0.5 base, +0.2 for more than 50 runes,
// +0.15 for a citation marker, +0.1 for any source, +0.05 for three or more.
func Quality(out *synth.Output, sources int) float64 {
	if out == nil {
		return 0
	}
	score := 0.5
	if len([]rune(out.Answer)) > 50 {
		score += 0.2
	}
	if len(synth.Citations(out.Answer)) > 0 {
		score += 0.15
	}
	if sources >= 1 {
		score += 0.1
	}
	if sources >= 3 {
		score += 0.05
	}
	if score > 1 {
		score = 1
	}
	return score
}

var stepDescriptions = map[StepType]string{
	StepQueryRewrite:      "rewrite the query into concrete search queries",
	StepInternalSearch:    "search the internal news knowledge base",
	StepExternalSearch:    "search the web for recent coverage",
	StepKeywordEnrichment: "extract keywords from external sources",
	StepAnswerSynthesis:   "synthesize a cited answer",
	StepRegenerate:        "regenerate the answer",
}

func describe(step Step) string {
	d := stepDescriptions[step.Type]
	if d == "" {
		d = string(step.Type)
	}
	if step.Condition != "" {
		d += " (" + string(step.Condition) + ")"
	}
	return d
}

func stepResult(st *State, t StepType) string {
	switch t {
	case StepQueryRewrite:
		if st.Rewrite == nil {
			return "no rewrite"
		}
		return fmt.Sprintf("%d rewrites, confidence %.2f", len(st.Rewrite.Rewrites), st.Rewrite.Confidence)
	case StepInternalSearch:
		return fmt.Sprintf("%d sources, coverage %.2f", len(st.Result.Internal), st.Result.InternalCoverage)
	case StepExternalSearch:
		if !st.Result.ExternalRan {
			return "not run: " + st.Result.Decision.Reason
		}
		return fmt.Sprintf("%d sources, confidence %.2f (%s)", len(st.Result.External), st.Result.ExternalCoverage, st.Result.Decision.Reason)
	case StepKeywordEnrichment:
		return strings.Join(st.Keywords, ", ")
	case StepAnswerSynthesis, StepRegenerate:
		if st.Answer == nil {
			return ""
		}
		return fmt.Sprintf("%d citations, synth quality %.2f", len(st.Answer.Citations), st.Answer.Quality)
	default:
		return "done"
	}
}
