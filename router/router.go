// Package router selects one of four routes for a query and executes it,
// falling back to the direct internal search route when a route fails.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/higress-group/newsrag/analysis"
	"github.com/higress-group/newsrag/common/apperr"
	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/metrics"
	"github.com/higress-group/newsrag/search"
	"github.com/higress-group/newsrag/synth"
	"github.com/higress-group/newsrag/temporal"
	"github.com/higress-group/newsrag/trace"
	"github.com/higress-group/newsrag/workflow"
)

type Route string

const (
	RouteDateMeta     Route = "dateMetaResponse"
	RouteDateFiltered Route = "dateFilteredSearch"
	RouteClarity      Route = "clarityEnhancementFlow"
	RouteDirect       Route = "directInternalSearch"
)

type Priority string

const (
	PriorityHighest Priority = "highest"
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
)

// Decision reasons.
const (
	ReasonDateMeta       = "date meta question, answered from the clock"
	ReasonDateExpression = "date expression detected"
	ReasonLowClarity     = "clarity below threshold"
	ReasonNoExternal     = "fallback, no external available"
	ReasonDefault        = "default latest-first internal search"
	ReasonRouteFailed    = "fallback after route failure"
)

// RoutingDecision is the outcome of route selection. DateRange is set only
// for dateFilteredSearch.
type RoutingDecision struct {
	Route       Route                  `json:"route"`
	Reason      string                 `json:"reason"`
	Priority    Priority               `json:"priority"`
	LatestFirst bool                   `json:"latest_first"`
	DateRange   *temporal.DateRange    `json:"date_range,omitempty"`
	Fallback    bool                   `json:"fallback"`
	Intent      temporal.Intent        `json:"temporal_intent"`
	Analysis    analysis.QueryAnalysis `json:"analysis"`
}

// Request is one query to route and execute.
type Request struct {
	Query   string
	History []synth.Turn
	// Summary is the running conversation summary. It also feeds category
	// classification of context-free follow-ups.
	Summary string
	// Now overrides the clock; the zero value uses the router clock.
	Now time.Time
	// OnDelta enables streaming synthesis.
	OnDelta func(string) error
	// OnDecision is called once the route is chosen, before execution.
	OnDecision func(RoutingDecision)
	Observer   workflow.Observer
}

// Result is the single response shape of every route.
type Result struct {
	Decision       RoutingDecision       `json:"routing_decision"`
	Answer         string                `json:"answer"`
	Sources        []search.SourceRecord `json:"sources"`
	Trace          *trace.Trace          `json:"-"`
	Success        bool                  `json:"success"`
	Error          string                `json:"error,omitempty"`
	// Retryable marks failures caused by a collaborator rather than the query.
	Retryable      bool                  `json:"retryable,omitempty"`
	Clarifications []string              `json:"clarification_questions,omitempty"`
	Quality        float64               `json:"quality"`
	Model          string                `json:"model,omitempty"`
	ExternalUsed   bool                  `json:"external_used"`
	Escalated      bool                  `json:"escalated"`
}

type Router struct {
	meta     *temporal.MetaDetector
	dates    *temporal.Analyzer
	analyzer *analysis.Analyzer
	engine   *workflow.Engine
	loc      *time.Location
	now      func() time.Time
}

func New(engine *workflow.Engine, cfg *config.Config) *Router {
	loc := cfg.Location()
	return &Router{
		meta:     temporal.NewMetaDetector(),
		dates:    temporal.NewAnalyzer(loc),
		analyzer: analysis.NewAnalyzer(cfg.Analysis.ClarityThreshold),
		engine:   engine,
		loc:      loc,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

func (r *Router) Location() *time.Location { return r.loc }

// Decide selects the route for query. It performs no I/O.
func (r *Router) Decide(query string, now time.Time) RoutingDecision {
	return r.decide(query, "", now.In(r.loc))
}

func (r *Router) decide(query, prior string, now time.Time) RoutingDecision {
	intent := r.dates.Analyze(query, now)
	qa := r.analyzer.Analyze(query, prior, &intent)
	d := RoutingDecision{Intent: intent, Analysis: qa}

	switch {
	case r.meta.IsDateMeta(query):
		d.Route, d.Priority, d.Reason = RouteDateMeta, PriorityHighest, ReasonDateMeta
	case intent.HasExpression:
		d.Route, d.Priority = RouteDateFiltered, PriorityHigh
		d.Reason = ReasonDateExpression + ": " + intent.Summary()
		rng := intent.Range
		d.DateRange = &rng
	case qa.ClarityScore < r.analyzer.Threshold():
		if r.externalAvailable() {
			d.Route, d.Priority = RouteClarity, PriorityMedium
			d.Reason = fmt.Sprintf("%s (%.2f < %.2f)", ReasonLowClarity, qa.ClarityScore, r.analyzer.Threshold())
		} else {
			d.Route, d.Priority, d.Reason = RouteDirect, PriorityLow, ReasonNoExternal
			d.Fallback = true
			d.LatestFirst = true
		}
	default:
		d.Route, d.Priority, d.Reason = RouteDirect, PriorityLow, ReasonDefault
		d.LatestFirst = !intent.HasExpression
	}
	return d
}

func (r *Router) externalAvailable() bool {
	return r.engine != nil && r.engine.ExternalAvailable()
}

// Execute decides and runs the route for req. It never returns an error:
// failures surface as Success false with Error set, after the direct route
// has been tried as a fallback.
func (r *Router) Execute(ctx context.Context, req Request) *Result {
	now := req.Now
	if now.IsZero() {
		now = r.now()
	}
	now = now.In(r.loc)
	tr := trace.New()

	done := tr.Begin("route_decision", "select the route for the query")
	d := r.decide(req.Query, req.Summary, now)
	done(fmt.Sprintf("%s (%s): %s", d.Route, d.Priority, d.Reason))
	metrics.IncRoute(string(d.Route))
	logger.Debugf("router: query=%q route=%s reason=%s", req.Query, d.Route, d.Reason)
	if req.OnDecision != nil {
		req.OnDecision(d)
	}

	if d.Route == RouteDateMeta {
		return r.answerMeta(req, d, now, tr)
	}

	plan, _ := PlanFor(d.Route)
	st := newState(req, d, now, tr)
	err := r.engine.Run(ctx, plan, st)
	if err != nil && d.Route != RouteDirect {
		rerr := apperr.Route(string(d.Route), err)
		logger.Warnf("router: route %s failed, falling back to %s, err: %v", d.Route, RouteDirect, rerr)
		tr.Add("fallback", "retry via "+string(RouteDirect), rerr.Error(), 0)

		d = fallbackDecision(d)
		st = newState(req, d, now, tr)
		err = r.engine.Run(ctx, DirectPlan(), st)
	}
	if err != nil {
		rerr := apperr.Route(string(RouteDirect), err)
		logger.Errorf("router: query %q failed, err: %v", req.Query, rerr)
		return &Result{
			Decision:  d,
			Answer:    synth.FallbackAnswer,
			Sources:   []search.SourceRecord{},
			Trace:     tr,
			Error:     rerr.Error(),
			Retryable: apperr.Retryable(err),
		}
	}
	return result(d, st)
}

func (r *Router) answerMeta(req Request, d RoutingDecision, now time.Time, tr *trace.Trace) *Result {
	done := tr.Begin(string(RouteDateMeta), "answer from the system clock")
	answer := temporal.MetaAnswer(req.Query, now)
	done(answer)
	if req.OnDelta != nil {
		if err := req.OnDelta(answer); err != nil {
			logger.Warnf("router: forward date answer failed, err: %v", err)
		}
	}
	return &Result{
		Decision: d,
		Answer:   answer,
		Sources:  []search.SourceRecord{},
		Trace:    tr,
		Success:  true,
		Quality:  1,
	}
}

func fallbackDecision(prev RoutingDecision) RoutingDecision {
	d := prev
	d.Route = RouteDirect
	d.Priority = PriorityLow
	d.Reason = ReasonRouteFailed + " (" + string(prev.Route) + ")"
	d.DateRange = nil
	d.Fallback = true
	d.LatestFirst = !prev.Intent.HasExpression
	return d
}

func newState(req Request, d RoutingDecision, now time.Time, tr *trace.Trace) *workflow.State {
	q := strings.TrimSpace(req.Query)
	return &workflow.State{
		Query:    q,
		Analysis: d.Analysis,
		Intent:   d.Intent,
		Request: search.Request{
			Query:             q,
			Filter:            d.DateRange,
			LatestFirst:       d.LatestFirst,
			HasDateExpression: d.Intent.HasExpression,
			Freshness:         d.Intent.FreshnessPriority,
			RequireExternal:   d.Route == RouteClarity,
			Category:          string(d.Analysis.Category),
		},
		History:  req.History,
		Summary:  req.Summary,
		Now:      now,
		Trace:    tr,
		OnDelta:  req.OnDelta,
		Observer: req.Observer,
	}
}

func result(d RoutingDecision, st *workflow.State) *Result {
	res := &Result{
		Decision:     d,
		Sources:      st.Result.Sources,
		Trace:        st.Trace,
		Success:      true,
		Quality:      st.Quality,
		ExternalUsed: st.UsedExternal(),
		Escalated:    st.Escalated,
	}
	if res.Sources == nil {
		res.Sources = []search.SourceRecord{}
	}
	if st.Answer != nil {
		res.Answer = st.Answer.Answer
		res.Model = st.Answer.Model
	}
	if st.Rewrite != nil && st.Rewrite.NeedsUserInput {
		res.Clarifications = st.Rewrite.Clarifications
	}
	return res
}
