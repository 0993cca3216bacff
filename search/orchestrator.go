package search

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/higress-group/newsrag/common/apperr"
	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/retriever"
	"github.com/higress-group/newsrag/temporal"
	"github.com/higress-group/newsrag/websearch"
)

var (
	errNoRetriever = errors.New("no retriever configured")
	// ErrExternalUnavailable is returned when external search is required but disabled.
	ErrExternalUnavailable = errors.New("external search unavailable")
)

// Multipliers applied during re-ranking.
const (
	externalLatestBoost = 1.2
	internalDateBoost   = 1.1
	trustedDomainBoost  = 1.15
)

// Orchestrator runs internal retrieval and, when warranted, external search.
type Orchestrator struct {
	retriever retriever.Retriever
	external  websearch.Searcher
	cfg       config.SearchConfig
}

// NewOrchestrator builds an orchestrator. external may be nil, which
// disables external search.
func NewOrchestrator(r retriever.Retriever, external websearch.Searcher, cfg config.SearchConfig) *Orchestrator {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 10
	}
	if cfg.InternalTopK <= 0 {
		cfg.InternalTopK = 10
	}
	if !cfg.ExternalEnabled {
		external = nil
	}
	return &Orchestrator{retriever: r, external: external, cfg: cfg}
}

// ExternalAvailable reports whether an external searcher is configured.
func (o *Orchestrator) ExternalAvailable() bool { return o.external != nil }

// Run executes the full internal -> decision -> external -> merge flow.
// Only an internal retrieval failure is returned; external failures degrade
// to an internal-only result.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*CombinedResult, error) {
	internal, err := o.SearchInternal(ctx, req.internalQuery(), req.Filter)
	if err != nil {
		return nil, err
	}
	res := &CombinedResult{Internal: internal}
	res.InternalCoverage = o.Coverage(internal, req.Freshness)
	res.Decision = o.Decide(res.InternalCoverage, req)
	if res.Decision.Run {
		o.RunExternal(ctx, req, req.Query, res)
	}
	o.Finalize(res, req)
	logger.Infof("search done, internal=%d external=%d coverage=%.2f decision=%s",
		len(res.Internal), len(res.External), res.CombinedCoverage, res.Decision.Reason)
	return res, nil
}

// SearchInternal queries the knowledge base. Without server-side filtering,
// out-of-range and undated documents are discarded here.
func (o *Orchestrator) SearchInternal(ctx context.Context, query string, filter *temporal.DateRange) ([]SourceRecord, error) {
	if o.retriever == nil {
		return nil, apperr.Provider("retriever", errNoRetriever)
	}
	docs, err := o.retriever.Retrieve(ctx, query, filter, o.cfg.InternalTopK)
	if err != nil {
		return nil, apperr.Provider("retriever."+o.retriever.Type(), err)
	}
	if filter != nil && !o.retriever.SupportsDateFilter() {
		docs = retriever.FilterByRange(docs, filter, true)
	}
	terms := retriever.Terms(query)
	out := make([]SourceRecord, 0, len(docs))
	for i, d := range docs {
		rel := clamp01(d.Score)
		if rel == 0 {
			rel = retriever.KeywordScore(terms, d.Title+" "+d.Content)
		}
		out = append(out, SourceRecord{
			Index:       i + 1,
			Origin:      OriginInternal,
			Title:       d.Title,
			URL:         d.URL,
			PublishedAt: d.PublishedAt,
			Relevance:   rel,
			Snippet:     snippet(d.Content),
			Domain:      websearch.Domain(d.URL),
		})
	}
	return out, nil
}

// InternalCoverage: 0 without sources, otherwise 0.3 base, +0.2 for five or
// more sources (+0.1 for three or more), plus average relevance times 0.3,
// multiplied by penalty when freshness exceeds penaltyThreshold.
func InternalCoverage(sources []SourceRecord, freshness, penaltyThreshold, penalty float64) float64 {
	if len(sources) == 0 {
		return 0
	}
	cov := 0.3
	switch {
	case len(sources) >= 5:
		cov += 0.2
	case len(sources) >= 3:
		cov += 0.1
	}
	var sum float64
	for _, s := range sources {
		sum += s.Relevance
	}
	cov += sum / float64(len(sources)) * 0.3
	if freshness > penaltyThreshold {
		cov *= penalty
	}
	return clamp01(cov)
}

// Decide reports whether external search should run. Any one trigger suffices.
func (o *Orchestrator) Decide(internalCoverage float64, req Request) Decision {
	switch {
	case o.external == nil:
		return Decision{Run: false, Reason: ReasonDisabled}
	case req.ForceExternal || req.RequireExternal:
		return Decision{Run: true, Reason: ReasonRouteRequired}
	case internalCoverage < o.cfg.ExternalTriggerThreshold:
		return Decision{Run: true, Reason: ReasonLowCoverage}
	case req.Freshness > o.cfg.FreshnessRequirement:
		return Decision{Run: true, Reason: ReasonFreshness}
	case !req.HasDateExpression:
		return Decision{Run: true, Reason: ReasonNoDate}
	default:
		return Decision{Run: false, Reason: ReasonSufficient}
	}
}

// RunExternal performs the external call for query and records its outcome
// on res. Failures are logged and leave ExternalRan false.
func (o *Orchestrator) RunExternal(ctx context.Context, req Request, query string, res *CombinedResult) {
	if err := o.SearchExternal(ctx, req, query, res); err != nil {
		logger.Warnf("external search failed, falling back to internal only, err: %v", err)
	}
}

// SearchExternal is RunExternal for callers that must see the failure.
func (o *Orchestrator) SearchExternal(ctx context.Context, req Request, query string, res *CombinedResult) error {
	if o.external == nil {
		res.Decision = Decision{Run: false, Reason: ReasonDisabled}
		return apperr.Provider("websearch", ErrExternalUnavailable)
	}
	hints := websearch.Hints{InternalCoverage: res.InternalCoverage, Category: req.Category, Freshness: req.Freshness}
	// Only route-required or escalated searches bypass the provider cache and skip.
	er, err := o.external.Search(ctx, query, hints, req.ForceExternal || req.RequireExternal)
	if err != nil {
		res.Decision = Decision{Run: false, Reason: ReasonExternalFailed}
		return err
	}
	if er.Skipped {
		res.Decision = Decision{Run: false, Reason: ReasonExternalSkipped}
		return nil
	}
	res.ExternalRan = true
	res.ExternalCoverage = clamp01(er.Confidence)
	res.ExternalContent = er.Content
	res.External = ExternalSources(er, len(res.Internal), o.cfg.ExternalRelevance)
	return nil
}

// Coverage applies InternalCoverage with the configured freshness penalty.
func (o *Orchestrator) Coverage(sources []SourceRecord, freshness float64) float64 {
	return InternalCoverage(sources, freshness, o.cfg.FreshnessPenaltyThreshold, o.cfg.FreshnessPenalty)
}

// Finalize merges the current internal and external sources into res and
// recomputes the combined coverage.
func (o *Orchestrator) Finalize(res *CombinedResult, req Request) {
	res.Sources = o.Merge(res.Internal, res.External, req)
	res.CombinedCoverage = Combine(res.InternalCoverage, res.ExternalCoverage, res.ExternalRan)
}

// ExternalSources converts provider sources, numbering them after offset.
func ExternalSources(er *websearch.Result, offset int, relevance float64) []SourceRecord {
	if er == nil {
		return nil
	}
	if relevance <= 0 {
		relevance = 0.8
	}
	out := make([]SourceRecord, 0, len(er.Sources))
	for i, s := range er.Sources {
		out = append(out, SourceRecord{
			Index:       offset + i + 1,
			Origin:      OriginExternal,
			Title:       s.Title,
			URL:         s.URL,
			PublishedAt: s.PublishedAt,
			Relevance:   relevance,
			Snippet:     s.Snippet,
			Domain:      s.Domain,
		})
	}
	return out
}

// Merge dedupes by URL, re-ranks, caps at MaxSources and reindexes 1..N.
func (o *Orchestrator) Merge(internal, external []SourceRecord, req Request) []SourceRecord {
	type scored struct {
		SourceRecord
		score float64
	}
	seen := map[string]bool{}
	var all []scored
	for _, s := range append(append([]SourceRecord{}, internal...), external...) {
		if s.URL != "" {
			key := strings.TrimRight(strings.ToLower(s.URL), "/")
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		score := s.Relevance
		switch {
		case req.LatestFirst && s.Origin == OriginExternal:
			score *= externalLatestBoost
		case req.Filter != nil && s.Origin == OriginInternal:
			score *= internalDateBoost
		}
		if s.Domain != "" && websearch.IsTrusted(s.Domain, o.cfg.TrustedDomains) {
			score *= trustedDomainBoost
		}
		all = append(all, scored{SourceRecord: s, score: score})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > o.cfg.MaxSources {
		all = all[:o.cfg.MaxSources]
	}
	out := make([]SourceRecord, len(all))
	for i, s := range all {
		out[i] = s.SourceRecord
		out[i].Index = i + 1
	}
	return out
}

// Combine blends coverage: 0.6 internal + 0.4 external when external ran,
// otherwise the internal score alone.
func Combine(internal, external float64, externalRan bool) float64 {
	if !externalRan {
		return internal
	}
	return 0.6*internal + 0.4*external
}

const snippetRunes = 300

func snippet(content string) string {
	r := []rune(strings.TrimSpace(content))
	if len(r) <= snippetRunes {
		return string(r)
	}
	return string(r[:snippetRunes]) + "..."
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
