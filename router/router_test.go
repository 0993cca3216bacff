package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/llm"
	"github.com/higress-group/newsrag/retriever"
	"github.com/higress-group/newsrag/rewrite"
	"github.com/higress-group/newsrag/search"
	"github.com/higress-group/newsrag/synth"
	"github.com/higress-group/newsrag/temporal"
	"github.com/higress-group/newsrag/websearch"
	"github.com/higress-group/newsrag/workflow"
)

type MockRetriever struct {
	docs []retriever.Document
	// failFiltered fails only date-filtered calls.
	failFiltered bool
	err          error
	calls        int
	filters      []*temporal.DateRange
}

func (m *MockRetriever) Type() string             { return "mock" }
func (m *MockRetriever) SupportsDateFilter() bool { return true }

func (m *MockRetriever) Retrieve(_ context.Context, _ string, filter *temporal.DateRange, _ int) ([]retriever.Document, error) {
	m.calls++
	m.filters = append(m.filters, filter)
	if m.err != nil && (!m.failFiltered || filter != nil) {
		return nil, m.err
	}
	return m.docs, nil
}

type MockSearcher struct {
	res   *websearch.Result
	calls int
}

func (m *MockSearcher) Search(context.Context, string, websearch.Hints, bool) (*websearch.Result, error) {
	m.calls++
	return m.res, nil
}

type MockLLM struct {
	answer string
	calls  int
}

func (m *MockLLM) Generate(context.Context, string, llm.Options) (string, error) {
	m.calls++
	return m.answer, nil
}

func (m *MockLLM) GenerateStream(_ context.Context, _ string, _ llm.Options, onDelta func(string) error) error {
	m.calls++
	for _, w := range strings.SplitAfter(m.answer, " ") {
		if err := onDelta(w); err != nil {
			return err
		}
	}
	return nil
}

const answer = "2025년 6월 30일 발표된 자료에 따르면 반도체 수출이 크게 증가했습니다 [1]. 전문가들은 하반기 전망을 긍정적으로 보고 있습니다 [2]."

func newsDocs(n int) []retriever.Document {
	out := make([]retriever.Document, n)
	for i := range out {
		t := time.Date(2024, 7, i+1, 0, 0, 0, 0, time.UTC)
		out[i] = retriever.Document{
			ID:          fmt.Sprint(i),
			Title:       fmt.Sprintf("삼성전자 기사 %d", i),
			URL:         fmt.Sprintf("https://news.example.com/%d", i),
			Content:     "삼성전자 실적 발표",
			Score:       0.9,
			PublishedAt: &t,
		}
	}
	return out
}

func webResult() *websearch.Result {
	return &websearch.Result{
		Content:    "반도체 업황 요약",
		Confidence: 0.9,
		Sources: []websearch.Source{{
			Title:   "반도체 수출 호조",
			URL:     "https://www.sedaily.com/a",
			Snippet: "반도체 수출 증가세 이어져 AI 메모리 수요 확대",
			Domain:  "sedaily.com",
		}},
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Engine.BaseDelayMs = 1
	return cfg
}

func newRouter(r retriever.Retriever, s websearch.Searcher, m llm.Provider) *Router {
	cfg := testConfig()
	orch := search.NewOrchestrator(r, s, cfg.Search)
	syn := synth.New(m, llm.NewTiers(nil, "test-model"), nil, cfg.Synth)
	e := workflow.NewEngine(cfg.Engine, workflow.Deps{
		Search:   orch,
		Synth:    syn,
		Rewriter: rewrite.NewRewriter(rewrite.Options{}),
	})
	rt := New(e, &cfg)
	return rt.WithClock(func() time.Time { return fixedNow(rt) })
}

// fixedNow is Wednesday 2025-07-02 14:05 in the router zone.
func fixedNow(r *Router) time.Time {
	return time.Date(2025, 7, 2, 14, 5, 0, 0, r.Location())
}

func TestDecide(t *testing.T) {
	rt := newRouter(&MockRetriever{}, &MockSearcher{}, &MockLLM{})
	now := fixedNow(rt)
	tests := []struct {
		name        string
		query       string
		route       Route
		priority    Priority
		latestFirst bool
		hasRange    bool
	}{
		{"date meta", "오늘 날짜가 뭐야", RouteDateMeta, PriorityHighest, false, false},
		{"date expression", "1년 전 삼성전자 실적", RouteDateFiltered, PriorityHigh, false, true},
		{"unclear single word", "반도체", RouteClarity, PriorityMedium, false, false},
		{"clear without date", "최신 경제 동향 알려줘", RouteDirect, PriorityLow, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := rt.Decide(tt.query, now)
			assert.Equal(t, tt.route, d.Route)
			assert.Equal(t, tt.priority, d.Priority)
			assert.Equal(t, tt.latestFirst, d.LatestFirst)
			assert.Equal(t, tt.hasRange, d.DateRange != nil)
			assert.False(t, d.Fallback)
		})
	}
}

func TestDecideWithoutExternalFallsBackToDirect(t *testing.T) {
	rt := newRouter(&MockRetriever{}, nil, &MockLLM{})
	d := rt.Decide("반도체", fixedNow(rt))
	assert.Equal(t, RouteDirect, d.Route)
	assert.Equal(t, ReasonNoExternal, d.Reason)
	assert.True(t, d.Fallback)
	assert.True(t, d.LatestFirst)
}

func TestExecuteDateMetaIssuesNoCalls(t *testing.T) {
	r := &MockRetriever{docs: newsDocs(5)}
	s := &MockSearcher{res: webResult()}
	m := &MockLLM{answer: answer}
	rt := newRouter(r, s, m)

	var deltas []string
	res := rt.Execute(context.Background(), Request{
		Query:   "오늘 날짜가 뭐야",
		OnDelta: func(d string) error { deltas = append(deltas, d); return nil },
	})
	require.True(t, res.Success)
	assert.Equal(t, RouteDateMeta, res.Decision.Route)
	assert.Contains(t, res.Answer, "2025년 07월 02일")
	assert.Equal(t, []string{res.Answer}, deltas)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.Sources)
	assert.Zero(t, r.calls)
	assert.Zero(t, s.calls)
	assert.Zero(t, m.calls)
	assert.Equal(t, []string{"route_decision", "dateMetaResponse"}, res.Trace.Names())
}

func TestExecuteDateFilteredUsesRange(t *testing.T) {
	r := &MockRetriever{docs: newsDocs(5)}
	rt := newRouter(r, &MockSearcher{res: webResult()}, &MockLLM{answer: answer})
	now := fixedNow(rt)

	res := rt.Execute(context.Background(), Request{Query: "1년 전 삼성전자 실적"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, RouteDateFiltered, res.Decision.Route)
	require.NotNil(t, res.Decision.DateRange)
	assert.True(t, now.AddDate(-1, 0, -30).Equal(res.Decision.DateRange.Start))
	assert.True(t, now.AddDate(-1, 0, 30).Equal(res.Decision.DateRange.End))
	require.Len(t, r.filters, 1)
	assert.Equal(t, res.Decision.DateRange, r.filters[0])
	assert.Len(t, res.Sources, 5)
	assert.Equal(t, "test-model", res.Model)
	assert.Equal(t, "route_decision", res.Trace.Names()[0])
}

func TestExecuteClarityFlowReturnsClarifications(t *testing.T) {
	r := &MockRetriever{docs: newsDocs(3)}
	s := &MockSearcher{res: webResult()}
	rt := newRouter(r, s, &MockLLM{answer: answer})

	res := rt.Execute(context.Background(), Request{Query: "반도체"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, RouteClarity, res.Decision.Route)
	assert.Less(t, res.Decision.Analysis.ClarityScore, 0.6)
	assert.NotEmpty(t, res.Clarifications)
	assert.Equal(t, 1, s.calls)
	assert.True(t, res.ExternalUsed)
	assert.Len(t, res.Sources, 4)
	assert.Equal(t, []string{
		"route_decision", "query_rewrite", "external_search", "keyword_enrichment",
		"internal_search", "model_selection", "answer_synthesis",
	}, res.Trace.Names())
}

func TestExecuteFallsBackToDirect(t *testing.T) {
	r := &MockRetriever{docs: newsDocs(5), err: errors.New("filter unsupported"), failFiltered: true}
	rt := newRouter(r, &MockSearcher{res: webResult()}, &MockLLM{answer: answer})

	res := rt.Execute(context.Background(), Request{Query: "1년 전 삼성전자 실적"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, RouteDirect, res.Decision.Route)
	assert.True(t, res.Decision.Fallback)
	assert.Contains(t, res.Decision.Reason, string(RouteDateFiltered))
	assert.Nil(t, res.Decision.DateRange)
	// three filtered attempts, then one unfiltered
	assert.Equal(t, 4, r.calls)
	assert.Nil(t, r.filters[3])
	assert.Contains(t, res.Trace.Names(), "fallback")
	assert.NotEmpty(t, res.Answer)
}

func TestExecuteFailureAfterFallback(t *testing.T) {
	r := &MockRetriever{err: errors.New("knowledge base timeout")}
	rt := newRouter(r, &MockSearcher{res: webResult()}, &MockLLM{answer: answer})

	res := rt.Execute(context.Background(), Request{Query: "1년 전 삼성전자 실적"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "internal_search failed")
	assert.Contains(t, res.Error, "knowledge base timeout")
	assert.Equal(t, synth.FallbackAnswer, res.Answer)
	assert.Empty(t, res.Sources)
	assert.Equal(t, 6, r.calls)
}

func TestExecuteDirectFailureHasNoSecondFallback(t *testing.T) {
	r := &MockRetriever{err: errors.New("knowledge base timeout")}
	rt := newRouter(r, &MockSearcher{res: webResult()}, &MockLLM{answer: answer})

	res := rt.Execute(context.Background(), Request{Query: "최신 경제 동향 알려줘"})
	assert.False(t, res.Success)
	assert.Equal(t, RouteDirect, res.Decision.Route)
	assert.Equal(t, 3, r.calls)
	assert.NotContains(t, res.Trace.Names(), "fallback")
}

func TestExecuteNotifiesDecisionAndSteps(t *testing.T) {
	rt := newRouter(&MockRetriever{docs: newsDocs(5)}, &MockSearcher{res: webResult()}, &MockLLM{answer: answer})

	var decided []Route
	var steps []workflow.StepType
	res := rt.Execute(context.Background(), Request{
		Query:      "1년 전 삼성전자 실적",
		OnDecision: func(d RoutingDecision) { decided = append(decided, d.Route) },
		Observer: workflow.ObserverFunc(func(ev workflow.Event) {
			if ev.Phase == workflow.PhaseStart {
				steps = append(steps, ev.Step)
			}
		}),
	})
	require.True(t, res.Success)
	assert.Equal(t, []Route{RouteDateFiltered}, decided)
	assert.Equal(t, []workflow.StepType{
		workflow.StepInternalSearch, workflow.StepExternalSearch, workflow.StepAnswerSynthesis,
	}, steps)
}

func TestPlanFor(t *testing.T) {
	p, ok := PlanFor(RouteClarity)
	require.True(t, ok)
	assert.Equal(t, []string{"query_rewrite", "external_search", "keyword_enrichment", "internal_search", "answer_synthesis"}, p.StepNames())
	assert.Equal(t, "true", p.Steps[1].Params[workflow.ParamForce])

	p, ok = PlanFor(RouteDirect)
	require.True(t, ok)
	assert.Equal(t, []string{"internal_search", "external_search", "answer_synthesis"}, p.StepNames())

	_, ok = PlanFor(RouteDateMeta)
	assert.False(t, ok)
}

func TestPropertyRoutePriority(t *testing.T) {
	rt := newRouter(&MockRetriever{}, &MockSearcher{}, &MockLLM{})
	now := fixedNow(rt)
	meta := temporal.NewMetaDetector()
	dates := temporal.NewAnalyzer(rt.Location())
	fragments := []string{
		"오늘", "날짜", "뭐야", "1년 전", "지난주", "삼성전자", "실적", "반도체", "어때?",
		"최신", "뉴스", "what is the date", "3분기", "알려줘", "", "주가",
	}
	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(fragments), 1, 5).Draw(t, "parts")
		q := strings.Join(parts, " ")
		d := rt.Decide(q, now)

		intent := dates.Analyze(q, now)
		var want Route
		switch {
		case meta.IsDateMeta(q):
			want = RouteDateMeta
		case intent.HasExpression:
			want = RouteDateFiltered
		case d.Analysis.ClarityScore < 0.6:
			want = RouteClarity
		default:
			want = RouteDirect
		}
		if d.Route != want {
			t.Fatalf("query %q routed to %s, want %s", q, d.Route, want)
		}
		if (d.Route == RouteDateFiltered) != (d.DateRange != nil) {
			t.Fatalf("query %q: date range presence inconsistent with route %s", q, d.Route)
		}
		if d.Route == RouteDirect && d.LatestFirst == intent.HasExpression {
			t.Fatalf("query %q: latestFirst must be the negation of hasExpression", q)
		}
	})
}
