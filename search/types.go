package search

import (
	"time"

	"github.com/higress-group/newsrag/temporal"
)

type Origin string

const (
	OriginInternal Origin = "internal"
	OriginExternal Origin = "external"
)

// SourceRecord is one citable source. Index is 1-based and contiguous within
// a response once Merge has run.
type SourceRecord struct {
	Index       int        `json:"index"`
	Origin      Origin     `json:"origin"`
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Relevance   float64    `json:"relevance"`
	Snippet     string     `json:"snippet"`
	Domain      string     `json:"domain,omitempty"`
}

// Published renders the publish date, or "unknown".
func (s SourceRecord) Published() string {
	if s.PublishedAt == nil {
		return "unknown"
	}
	return s.PublishedAt.Format("2006-01-02")
}

// Decision records whether external search ran and why.
type Decision struct {
	Run    bool   `json:"run"`
	Reason string `json:"reason"`
}

// Decision reasons.
const (
	ReasonLowCoverage     = "internal_coverage_below_threshold"
	ReasonRouteRequired   = "route_requires_external"
	ReasonFreshness       = "high_freshness_requirement"
	ReasonNoDate          = "no_date_expression_latest_first"
	ReasonSufficient      = "internal_sufficient"
	ReasonDisabled        = "external_search_unavailable"
	ReasonExternalFailed  = "external_search_failed"
	ReasonExternalSkipped = "external_provider_skipped"
)

// CombinedResult aggregates internal and external search for one request.
type CombinedResult struct {
	Internal         []SourceRecord `json:"internal"`
	External         []SourceRecord `json:"external"`
	Sources          []SourceRecord `json:"sources"`
	InternalCoverage float64        `json:"internal_coverage"`
	ExternalCoverage float64        `json:"external_coverage"`
	CombinedCoverage float64        `json:"combined_coverage"`
	ExternalRan      bool           `json:"external_ran"`
	ExternalContent  string         `json:"external_content,omitempty"`
	Decision         Decision       `json:"decision"`
}

// Request is the route context for one orchestrated search.
type Request struct {
	Query string
	// InternalQuery overrides Query for retrieval, e.g. after keyword enrichment.
	InternalQuery string
	// Filter is a hard publish-date filter.
	Filter            *temporal.DateRange
	LatestFirst       bool
	HasDateExpression bool
	Freshness         float64
	RequireExternal   bool
	ForceExternal     bool
	Category          string
}

func (r Request) internalQuery() string {
	if r.InternalQuery != "" {
		return r.InternalQuery
	}
	return r.Query
}
