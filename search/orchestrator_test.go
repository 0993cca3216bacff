package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/higress-group/newsrag/cache"
	"github.com/higress-group/newsrag/common/apperr"
	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/retriever"
	"github.com/higress-group/newsrag/temporal"
	"github.com/higress-group/newsrag/websearch"
)

type MockRetriever struct {
	docs       []retriever.Document
	err        error
	filters    bool
	lastQuery  string
	lastFilter *temporal.DateRange
}

func (m *MockRetriever) Type() string             { return "mock" }
func (m *MockRetriever) SupportsDateFilter() bool { return m.filters }

func (m *MockRetriever) Retrieve(_ context.Context, q string, f *temporal.DateRange, _ int) ([]retriever.Document, error) {
	m.lastQuery, m.lastFilter = q, f
	return m.docs, m.err
}

type MockSearcher struct {
	res       *websearch.Result
	err       error
	calls     int
	lastQuery string
	lastForce bool
}

func (m *MockSearcher) Search(_ context.Context, q string, _ websearch.Hints, force bool) (*websearch.Result, error) {
	m.calls++
	m.lastQuery, m.lastForce = q, force
	return m.res, m.err
}

func docs(n int, score float64) []retriever.Document {
	out := make([]retriever.Document, n)
	for i := range out {
		t := time.Date(2025, 6, i+1, 0, 0, 0, 0, time.UTC)
		out[i] = retriever.Document{
			ID:          fmt.Sprint(i),
			Title:       fmt.Sprintf("경제 기사 %d", i),
			URL:         fmt.Sprintf("https://news.example.com/%d", i),
			Content:     "경제 동향",
			Score:       score,
			PublishedAt: &t,
		}
	}
	return out
}

func externalResult(confidence float64, urls ...string) *websearch.Result {
	res := &websearch.Result{Content: "외부 요약", Confidence: confidence}
	for _, u := range urls {
		res.Sources = append(res.Sources, websearch.Source{Title: u, URL: u, Domain: websearch.Domain(u)})
	}
	return res
}

func searchConfig() config.SearchConfig {
	return config.Default().Search
}

func TestInternalCoverage(t *testing.T) {
	rel := func(n int, r float64) []SourceRecord {
		out := make([]SourceRecord, n)
		for i := range out {
			out[i].Relevance = r
		}
		return out
	}
	tests := []struct {
		name      string
		sources   []SourceRecord
		freshness float64
		want      float64
	}{
		{"no sources", nil, 0, 0},
		{"one source", rel(1, 1), 0, 0.6},
		{"three sources", rel(3, 0.5), 0, 0.55},
		{"five sources", rel(5, 1), 0, 0.8},
		{"fresh penalty", rel(5, 1), 0.9, 0.56},
		{"threshold is exclusive", rel(5, 1), 0.7, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, InternalCoverage(tt.sources, tt.freshness, 0.7, 0.7), 1e-9)
		})
	}
}

func TestDecide(t *testing.T) {
	o := NewOrchestrator(&MockRetriever{}, &MockSearcher{}, searchConfig())
	tests := []struct {
		name     string
		coverage float64
		req      Request
		want     Decision
	}{
		{"required", 0.9, Request{RequireExternal: true, HasDateExpression: true}, Decision{true, ReasonRouteRequired}},
		{"low coverage", 0.49, Request{HasDateExpression: true}, Decision{true, ReasonLowCoverage}},
		{"fresh", 0.9, Request{HasDateExpression: true, Freshness: 0.81}, Decision{true, ReasonFreshness}},
		{"no date", 0.9, Request{Freshness: 0.8}, Decision{true, ReasonNoDate}},
		{"sufficient", 0.5, Request{HasDateExpression: true, Freshness: 0.8}, Decision{false, ReasonSufficient}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, o.Decide(tt.coverage, tt.req))
		})
	}

	disabled := NewOrchestrator(&MockRetriever{}, &MockSearcher{}, config.SearchConfig{ExternalEnabled: false})
	assert.False(t, disabled.ExternalAvailable())
	assert.Equal(t, Decision{false, ReasonDisabled}, disabled.Decide(0, Request{RequireExternal: true}))
}

func TestMerge(t *testing.T) {
	cfg := searchConfig()
	cfg.MaxSources = 3
	o := NewOrchestrator(nil, nil, cfg)

	internal := []SourceRecord{
		{Index: 1, Origin: OriginInternal, URL: "https://a.com/1", Relevance: 0.7, Domain: "a.com"},
		{Index: 2, Origin: OriginInternal, URL: "https://www.sedaily.com/2", Relevance: 0.6, Domain: "sedaily.com"},
	}
	external := []SourceRecord{
		{Index: 3, Origin: OriginExternal, URL: "https://a.com/1/", Relevance: 0.8, Domain: "a.com"},
		{Index: 4, Origin: OriginExternal, URL: "https://e.com/4", Relevance: 0.8, Domain: "e.com"},
		{Index: 5, Origin: OriginExternal, URL: "https://e.com/5", Relevance: 0.5, Domain: "e.com"},
	}

	// latest-first: external 0.96, 0.6; internal 0.7, 0.69 (trusted)
	got := o.Merge(internal, external, Request{LatestFirst: true})
	require.Len(t, got, 3)
	assert.Equal(t, []string{"https://e.com/4", "https://a.com/1", "https://www.sedaily.com/2"}, urls(got))
	assert.Equal(t, []int{1, 2, 3}, indices(got))
	assert.InDelta(t, 0.8, got[0].Relevance, 1e-9)

	// date filtered: internal 0.77, 0.759; external 0.8, 0.5
	got = o.Merge(internal, external, Request{Filter: &temporal.DateRange{}})
	assert.Equal(t, []string{"https://e.com/4", "https://a.com/1", "https://www.sedaily.com/2"}, urls(got))
}

func urls(s []SourceRecord) []string {
	var out []string
	for _, r := range s {
		out = append(out, r.URL)
	}
	return out
}

func indices(s []SourceRecord) []int {
	var out []int
	for _, r := range s {
		out = append(out, r.Index)
	}
	return out
}

func TestRunFreshQueryTriggersExternal(t *testing.T) {
	now := time.Date(2025, 7, 2, 14, 0, 0, 0, time.UTC)
	intent := temporal.NewAnalyzer(time.UTC).Analyze("최신 경제 동향", now)
	require.False(t, intent.HasExpression)
	require.GreaterOrEqual(t, intent.FreshnessPriority, 0.7)

	ms := &MockSearcher{res: externalResult(0.9, "https://ext.com/1", "https://ext.com/2")}
	o := NewOrchestrator(&MockRetriever{docs: docs(6, 1)}, ms, searchConfig())
	res, err := o.Run(context.Background(), Request{
		Query:       "최신 경제 동향",
		LatestFirst: true,
		Freshness:   intent.FreshnessPriority,
	})
	require.NoError(t, err)

	// (0.3 + 0.2 + 1.0*0.3) * 0.7
	assert.InDelta(t, 0.56, res.InternalCoverage, 1e-9)
	assert.Equal(t, Decision{true, ReasonFreshness}, res.Decision)
	assert.True(t, res.ExternalRan)
	assert.Equal(t, 1, ms.calls)
	assert.InDelta(t, 0.6*0.56+0.4*0.9, res.CombinedCoverage, 1e-9)
	assert.Len(t, res.Sources, 8)
	assert.Equal(t, []int{7, 8}, indices(res.External))
	assert.Equal(t, "외부 요약", res.ExternalContent)
}

type countingProvider struct {
	calls int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Query(_ context.Context, q string) (*websearch.Result, error) {
	p.calls++
	return externalResult(0.8, "https://ext.com/"+fmt.Sprint(p.calls)), nil
}

func TestRunForwardsForce(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want bool
	}{
		{name: "latest first", req: Request{Query: "삼성전자 주가", LatestFirst: true}, want: false},
		{name: "route required", req: Request{Query: "반도체", RequireExternal: true}, want: true},
		{name: "escalated", req: Request{Query: "반도체", ForceExternal: true}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &MockSearcher{res: externalResult(0.8, "https://ext.com/1")}
			o := NewOrchestrator(&MockRetriever{docs: docs(2, 0.5)}, ms, searchConfig())
			_, err := o.Run(context.Background(), tt.req)
			require.NoError(t, err)
			require.Equal(t, 1, ms.calls)
			assert.Equal(t, tt.want, ms.lastForce)
		})
	}
}

func TestRunServesRepeatedQueryFromCache(t *testing.T) {
	p := &countingProvider{}
	svc := websearch.NewService(p, websearch.Options{L1: cache.NewLRU[*websearch.Result](16, time.Hour)})
	o := NewOrchestrator(&MockRetriever{docs: docs(2, 0.5)}, svc, searchConfig())
	req := Request{Query: "삼성전자 주가", LatestFirst: true}

	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls)
	assert.True(t, first.ExternalRan)
	assert.True(t, second.ExternalRan)
	assert.Equal(t, urls(first.External), urls(second.External))

	_, err = o.Run(context.Background(), Request{Query: "삼성전자 주가", RequireExternal: true})
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestRunProviderSkipsWellCoveredQuery(t *testing.T) {
	p := &countingProvider{}
	svc := websearch.NewService(p, websearch.Options{SkipCoverage: 0.75})
	o := NewOrchestrator(&MockRetriever{docs: docs(6, 1)}, svc, searchConfig())

	// coverage 0.8 clears every trigger except latest-first, then the provider skips
	res, err := o.Run(context.Background(), Request{Query: "경제 동향", LatestFirst: true})
	require.NoError(t, err)
	assert.Equal(t, 0, p.calls)
	assert.False(t, res.ExternalRan)
	assert.Equal(t, ReasonExternalSkipped, res.Decision.Reason)
}

func TestRunClientSideFilter(t *testing.T) {
	in := docs(3, 0.9)
	in = append(in, retriever.Document{ID: "undated", Title: "경제", URL: "https://u.com", Score: 0.9})
	mr := &MockRetriever{docs: in}
	ms := &MockSearcher{}
	cfg := searchConfig()
	o := NewOrchestrator(mr, ms, cfg)

	filter := &temporal.DateRange{Start: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)}
	res, err := o.Run(context.Background(), Request{Query: "경제", InternalQuery: "경제 동향", Filter: filter, HasDateExpression: true})
	require.NoError(t, err)
	assert.Equal(t, "경제 동향", mr.lastQuery)
	require.Len(t, res.Internal, 2)
	for _, s := range res.Internal {
		require.NotNil(t, s.PublishedAt)
		assert.True(t, filter.Contains(*s.PublishedAt))
	}
	// (0.3 + 0.9*0.3) = 0.57 with a date expression and low freshness
	assert.Equal(t, Decision{false, ReasonSufficient}, res.Decision)
	assert.Zero(t, ms.calls)
	assert.Equal(t, res.InternalCoverage, res.CombinedCoverage)
}

func TestRunKeywordRelevanceFallback(t *testing.T) {
	in := []retriever.Document{{Title: "금리 인상", Content: "한국은행 금리", URL: "https://a.com"}}
	o := NewOrchestrator(&MockRetriever{docs: in}, nil, searchConfig())
	res, err := o.Run(context.Background(), Request{Query: "금리 물가"})
	require.NoError(t, err)
	require.Len(t, res.Internal, 1)
	assert.InDelta(t, 0.5, res.Internal[0].Relevance, 1e-9)
	assert.Equal(t, ReasonDisabled, res.Decision.Reason)
}

func TestRunErrors(t *testing.T) {
	o := NewOrchestrator(&MockRetriever{err: errors.New("kb down")}, nil, searchConfig())
	_, err := o.Run(context.Background(), Request{Query: "q"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindProvider))

	ms := &MockSearcher{err: errors.New("provider down")}
	o = NewOrchestrator(&MockRetriever{docs: docs(1, 0.5)}, ms, searchConfig())
	res, err := o.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.False(t, res.ExternalRan)
	assert.Equal(t, ReasonExternalFailed, res.Decision.Reason)
	assert.Equal(t, res.InternalCoverage, res.CombinedCoverage)

	ms = &MockSearcher{res: &websearch.Result{Skipped: true}}
	o = NewOrchestrator(&MockRetriever{}, ms, searchConfig())
	res, err = o.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, ReasonExternalSkipped, res.Decision.Reason)
}

func TestPropertyCoverageBlending(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "internal")
		score := rapid.Float64Range(0, 1).Draw(t, "score")
		confidence := rapid.Float64Range(0, 1).Draw(t, "confidence")
		freshness := rapid.Float64Range(0, 1).Draw(t, "freshness")
		hasDate := rapid.Bool().Draw(t, "hasDate")
		enabled := rapid.Bool().Draw(t, "enabled")

		cfg := searchConfig()
		cfg.ExternalEnabled = enabled
		ms := &MockSearcher{res: externalResult(confidence, "https://ext.com/a")}
		o := NewOrchestrator(&MockRetriever{docs: docs(n, score)}, ms, cfg)
		res, err := o.Run(context.Background(), Request{Query: "경제", Freshness: freshness, HasDateExpression: hasDate})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := res.InternalCoverage
		if res.ExternalRan {
			want = 0.6*res.InternalCoverage + 0.4*res.ExternalCoverage
		}
		if diff := res.CombinedCoverage - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("combined %v, want %v", res.CombinedCoverage, want)
		}
		for i, s := range res.Sources {
			if s.Index != i+1 {
				t.Fatalf("source %d has index %d", i, s.Index)
			}
		}
		if len(res.Sources) > cfg.MaxSources {
			t.Fatalf("too many sources: %d", len(res.Sources))
		}
	})
}
