package workflow

import (
	"time"

	"github.com/higress-group/newsrag/analysis"
	"github.com/higress-group/newsrag/rewrite"
	"github.com/higress-group/newsrag/search"
	"github.com/higress-group/newsrag/synth"
	"github.com/higress-group/newsrag/temporal"
	"github.com/higress-group/newsrag/trace"
)

// StepType names an executable step.
type StepType string

const (
	StepQueryRewrite      StepType = "query_rewrite"
	StepInternalSearch    StepType = "internal_search"
	StepExternalSearch    StepType = "external_search"
	StepKeywordEnrichment StepType = "keyword_enrichment"
	StepAnswerSynthesis   StepType = "answer_synthesis"
	StepRegenerate        StepType = "regenerate"
)

// Condition is a named threshold check. The empty condition always runs.
type Condition string

const (
	IfInternalInsufficient Condition = "if_internal_insufficient"
	IfQualityLow           Condition = "if_quality_low"
	IfClarityLow           Condition = "if_clarity_low"
	IfFreshnessRequired    Condition = "if_freshness_required"
)

// Step params.
const (
	// ParamForce set to "true" runs external search regardless of the decision.
	ParamForce = "force"
	// ParamQuerySuffix is appended to the external search query.
	ParamQuerySuffix = "query_suffix"
	// ParamFeedback is passed to the rewriter as user feedback.
	ParamFeedback = "feedback"
)

type Step struct {
	Type      StepType          `json:"type" yaml:"type"`
	Critical  bool              `json:"critical" yaml:"critical"`
	Condition Condition         `json:"condition,omitempty" yaml:"condition"`
	Params    map[string]string `json:"params,omitempty" yaml:"params"`
}

// Plan is an ordered list of steps.
type Plan struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// StepNames lists step types in order.
func (p Plan) StepNames() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = string(s.Type)
	}
	return out
}

// State is the mutable context of one plan execution. It is owned by a
// single request.
type State struct {
	Query    string
	Analysis analysis.QueryAnalysis
	Intent   temporal.Intent
	// Request is the route context shared by search steps.
	Request search.Request
	History []synth.Turn
	Summary string
	Now     time.Time
	Trace   *trace.Trace
	// OnDelta is set in streaming mode and receives raw answer deltas.
	OnDelta func(string) error
	// Observer receives the step events of this run in addition to the
	// engine-wide observer.
	Observer Observer

	Rewrite   *rewrite.Result
	Keywords  []string
	Result    search.CombinedResult
	Answer    *synth.Output
	Quality   float64
	Escalated bool
}

// Streaming reports whether answer deltas are being forwarded.
func (s *State) Streaming() bool { return s.OnDelta != nil }

// SearchQuery is the best confident rewrite, or the query itself.
func (s *State) SearchQuery() string {
	if s.Rewrite != nil && !s.Rewrite.NeedsUserInput && len(s.Rewrite.Rewrites) > 0 {
		return s.Rewrite.Best()
	}
	return s.Query
}

// UsedExternal reports whether any external search produced sources.
func (s *State) UsedExternal() bool { return s.Result.ExternalRan }
