package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higress-group/newsrag/analysis"
	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/llm"
	"github.com/higress-group/newsrag/retriever"
	"github.com/higress-group/newsrag/rewrite"
	"github.com/higress-group/newsrag/search"
	"github.com/higress-group/newsrag/synth"
	"github.com/higress-group/newsrag/temporal"
	"github.com/higress-group/newsrag/trace"
	"github.com/higress-group/newsrag/websearch"
)

type MockRetriever struct {
	docs      []retriever.Document
	err       error
	lastQuery string
}

func (m *MockRetriever) Type() string             { return "mock" }
func (m *MockRetriever) SupportsDateFilter() bool { return true }

func (m *MockRetriever) Retrieve(_ context.Context, q string, _ *temporal.DateRange, _ int) ([]retriever.Document, error) {
	m.lastQuery = q
	return m.docs, m.err
}

type MockSearcher struct {
	res       *websearch.Result
	err       error
	calls     int
	lastQuery string
}

func (m *MockSearcher) Search(_ context.Context, q string, _ websearch.Hints, _ bool) (*websearch.Result, error) {
	m.calls++
	m.lastQuery = q
	return m.res, m.err
}

// MockLLM replays answers in order; the last one repeats.
type MockLLM struct {
	answers []string
	errs    []error
	calls   int
}

func (m *MockLLM) next() (string, error) {
	i := m.calls
	m.calls++
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if i >= len(m.answers) {
		i = len(m.answers) - 1
	}
	return m.answers[i], err
}

func (m *MockLLM) Generate(context.Context, string, llm.Options) (string, error) {
	return m.next()
}

func (m *MockLLM) GenerateStream(_ context.Context, _ string, _ llm.Options, onDelta func(string) error) error {
	answer, err := m.next()
	if err != nil {
		return err
	}
	for _, w := range strings.SplitAfter(answer, " ") {
		if err := onDelta(w); err != nil {
			return err
		}
	}
	return nil
}

const longAnswer = "2025년 6월 30일 발표된 자료에 따르면 국내 경제는 완만한 회복세를 보이고 있으며 수출이 증가했습니다 [1]. 전문가들은 하반기 전망을 긍정적으로 보고 있습니다 [2]."

func newsDocs(n int, score float64) []retriever.Document {
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

func external(urls ...string) *websearch.Result {
	res := &websearch.Result{Content: "외부 요약", Confidence: 0.9}
	for _, u := range urls {
		res.Sources = append(res.Sources, websearch.Source{
			Title:   "외부 " + u,
			URL:     u,
			Snippet: "반도체 수출 증가세 이어져 AI 메모리 수요 확대",
			Domain:  websearch.Domain(u),
		})
	}
	return res
}

func engineConfig() config.EngineConfig {
	cfg := config.Default().Engine
	cfg.BaseDelayMs = 1
	return cfg
}

func newEngine(r retriever.Retriever, s websearch.Searcher, m llm.Provider, obs Observer) *Engine {
	orch := search.NewOrchestrator(r, s, config.Default().Search)
	syn := synth.New(m, llm.NewTiers(nil, "test-model"), nil, config.SynthConfig{})
	return NewEngine(engineConfig(), Deps{
		Search:   orch,
		Synth:    syn,
		Rewriter: rewrite.NewRewriter(rewrite.Options{}),
		Observer: obs,
	})
}

func newState(query string) *State {
	return &State{
		Query:   query,
		Request: search.Request{Query: query, HasDateExpression: true},
		Now:     time.Date(2025, 7, 2, 14, 0, 0, 0, time.UTC),
		Trace:   trace.New(),
	}
}

var datePlan = Plan{Name: "dateFilteredSearch", Steps: []Step{
	{Type: StepInternalSearch, Critical: true},
	{Type: StepExternalSearch},
	{Type: StepAnswerSynthesis, Critical: true},
}}

func TestCheck(t *testing.T) {
	e := NewEngine(config.EngineConfig{}, Deps{})
	st := &State{
		Analysis: analysis.QueryAnalysis{ClarityScore: 0.59},
		Intent:   temporal.Intent{FreshnessPriority: 0.6},
		Result:   search.CombinedResult{InternalCoverage: 0.7},
		Quality:  0.84,
	}
	tests := []struct {
		cond Condition
		want bool
	}{
		{"", true},
		{IfInternalInsufficient, false},
		{IfQualityLow, true},
		{IfClarityLow, true},
		{IfFreshnessRequired, false},
		{"if_unknown", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.cond), func(t *testing.T) {
			assert.Equal(t, tt.want, e.Check(tt.cond, st))
		})
	}
}

func TestCriticalStepFailsAfterMaxRetries(t *testing.T) {
	var events []Event
	e := newEngine(&MockRetriever{}, nil, &MockLLM{answers: []string{longAnswer}}, ObserverFunc(func(ev Event) {
		events = append(events, ev)
	}))
	calls := 0
	e.Handle(StepInternalSearch, func(context.Context, *State, Step) error {
		calls++
		return errors.New("knowledge base timeout")
	})

	st := newState("삼성전자 실적")
	err := e.Run(context.Background(), datePlan, st)
	require.Error(t, err)
	assert.Equal(t, "internal_search failed: knowledge base timeout", err.Error())
	assert.Equal(t, 3, calls)
	assert.Nil(t, st.Answer)

	var starts int
	for _, ev := range events {
		if ev.Phase == PhaseStart {
			starts++
		}
	}
	assert.Equal(t, 3, starts)
	last := events[len(events)-1]
	assert.Equal(t, PhaseFinish, last.Phase)
	assert.Equal(t, 3, last.Attempt)
	assert.Error(t, last.Err)

	snap := e.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, []string{"internal_search"}, st.Trace.Names())
}

func TestCriticalStepRecoversOnRetry(t *testing.T) {
	r := &MockRetriever{docs: newsDocs(5, 0.9)}
	e := newEngine(r, nil, &MockLLM{answers: []string{longAnswer}}, nil)
	calls := 0
	builtin := e.handlers[StepInternalSearch]
	e.Handle(StepInternalSearch, func(ctx context.Context, st *State, step Step) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return builtin(ctx, st, step)
	})

	st := newState("경제")
	require.NoError(t, e.Run(context.Background(), datePlan, st))
	assert.Equal(t, 2, calls)
	assert.Len(t, st.Result.Internal, 5)
}

func TestOptionalStepFailureContinues(t *testing.T) {
	e := newEngine(&MockRetriever{docs: newsDocs(5, 0.9)}, nil, &MockLLM{answers: []string{longAnswer}}, nil)
	e.Handle(StepExternalSearch, func(context.Context, *State, Step) error { return errors.New("quota") })

	st := newState("경제")
	require.NoError(t, e.Run(context.Background(), datePlan, st))
	require.NotNil(t, st.Answer)
	assert.Contains(t, st.Trace.Steps()[1].Result, "failed: quota")
}

func TestUnknownConditionSkipsStep(t *testing.T) {
	e := newEngine(&MockRetriever{docs: newsDocs(5, 0.9)}, nil, &MockLLM{answers: []string{longAnswer}}, nil)
	plan := Plan{Steps: []Step{
		{Type: StepInternalSearch, Critical: true, Condition: "if_moon_is_full"},
		{Type: StepAnswerSynthesis, Critical: true},
	}}
	st := newState("경제")
	require.NoError(t, e.Run(context.Background(), plan, st))
	assert.Empty(t, st.Result.Internal)
	assert.Equal(t, "skipped", st.Trace.Steps()[0].Result)
}

func TestDateFilteredPlan(t *testing.T) {
	s := &MockSearcher{res: external("https://www.sedaily.com/x")}
	e := newEngine(&MockRetriever{docs: newsDocs(5, 0.9)}, s, &MockLLM{answers: []string{longAnswer}}, nil)

	st := newState("경제")
	require.NoError(t, e.Run(context.Background(), datePlan, st))

	// coverage 0.3 + 0.2 + 0.27 with a date expression and no freshness
	assert.InDelta(t, 0.77, st.Result.InternalCoverage, 1e-9)
	assert.Equal(t, search.ReasonSufficient, st.Result.Decision.Reason)
	assert.Equal(t, 0, s.calls)
	assert.Len(t, st.Result.Sources, 5)
	assert.InDelta(t, 1.0, st.Quality, 1e-9)
	assert.False(t, st.Escalated)
	assert.Equal(t, []string{"internal_search", "external_search", "model_selection", "answer_synthesis"}, st.Trace.Names())
	assert.Equal(t, int64(1), e.Stats().Snapshot().Success)
}

func TestEscalatedRetryAccepted(t *testing.T) {
	s := &MockSearcher{res: external("https://www.sedaily.com/x", "https://y.example.com/y")}
	m := &MockLLM{answers: []string{"짧음", longAnswer}}
	e := newEngine(&MockRetriever{docs: newsDocs(5, 0.9)}, s, m, nil)

	st := newState("경제")
	require.NoError(t, e.Run(context.Background(), datePlan, st))
	assert.True(t, st.Escalated)
	assert.Equal(t, 1, s.calls)
	assert.True(t, st.Result.ExternalRan)
	assert.Len(t, st.Result.Sources, 7)
	assert.InDelta(t, 1.0, st.Quality, 1e-9)
	assert.Equal(t, 2, m.calls)
	assert.Contains(t, st.Trace.Names(), "escalated_retry")
	assert.Equal(t, int64(1), e.Stats().Snapshot().Escalated)
}

func TestEscalatedRetryRejectedKeepsOriginal(t *testing.T) {
	s := &MockSearcher{res: external("https://y.example.com/y")}
	m := &MockLLM{answers: []string{"짧음", ""}, errs: []error{nil, errors.New("model overloaded")}}
	e := newEngine(&MockRetriever{docs: newsDocs(5, 0.9)}, s, m, nil)

	st := newState("경제")
	require.NoError(t, e.Run(context.Background(), datePlan, st))
	assert.True(t, st.Escalated)
	assert.Equal(t, "짧음 [1]", st.Answer.Answer)
	// 0.5 + 0.15 citation + 0.1 + 0.05 sources
	assert.InDelta(t, 0.8, st.Quality, 1e-9)
	assert.False(t, st.Result.ExternalRan)
	assert.Len(t, st.Result.Sources, 5)
}

func TestStreamingSkipsEscalation(t *testing.T) {
	s := &MockSearcher{res: external("https://y.example.com/y")}
	m := &MockLLM{answers: []string{"짧은 답변 입니다"}}
	e := newEngine(&MockRetriever{docs: newsDocs(5, 0.9)}, s, m, nil)

	st := newState("경제")
	var deltas []string
	st.OnDelta = func(d string) error {
		deltas = append(deltas, d)
		return nil
	}
	require.NoError(t, e.Run(context.Background(), datePlan, st))
	assert.False(t, st.Escalated)
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, []string{"짧은 ", "답변 ", "입니다"}, deltas)
	assert.Equal(t, "짧은 답변 입니다 [1]", st.Answer.Answer)
}

func TestClarityPlanEnrichesInternalQuery(t *testing.T) {
	r := &MockRetriever{docs: newsDocs(2, 0.8)}
	s := &MockSearcher{res: external("https://a.example.com/1")}
	e := newEngine(r, s, &MockLLM{answers: []string{longAnswer}}, nil)

	plan := Plan{Name: "clarityEnhancementFlow", Steps: []Step{
		{Type: StepQueryRewrite, Condition: IfClarityLow},
		{Type: StepExternalSearch, Critical: true, Params: map[string]string{ParamForce: "true", ParamQuerySuffix: " 최신 뉴스 정보"}},
		{Type: StepKeywordEnrichment},
		{Type: StepInternalSearch, Critical: true},
		{Type: StepAnswerSynthesis, Critical: true},
	}}
	st := newState("반도체")
	st.Analysis = analysis.NewAnalyzer(0).Analyze("반도체", "", nil)
	st.Request.LatestFirst = true
	st.Request.HasDateExpression = false

	require.NoError(t, e.Run(context.Background(), plan, st))
	require.NotNil(t, st.Rewrite)
	assert.True(t, st.Rewrite.NeedsUserInput)
	assert.NotEmpty(t, st.Rewrite.Clarifications)
	assert.Equal(t, "반도체 최신 뉴스 정보", s.lastQuery)
	assert.Equal(t, []string{"반도체", "증가세", "이어져", "메모리"}, st.Keywords)
	assert.Equal(t, "반도체 반도체 증가세 이어져 메모리", r.lastQuery)
	assert.Len(t, st.Result.Sources, 3)
	assert.Equal(t, search.ReasonRouteRequired, st.Result.Decision.Reason)
}

func TestForcedExternalWithoutProviderFails(t *testing.T) {
	e := newEngine(&MockRetriever{}, nil, &MockLLM{answers: []string{longAnswer}}, nil)
	plan := Plan{Steps: []Step{{Type: StepExternalSearch, Critical: true, Params: map[string]string{ParamForce: "true"}}}}
	err := e.Run(context.Background(), plan, newState("반도체"))
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrExternalUnavailable)
	assert.True(t, strings.HasPrefix(err.Error(), "external_search failed: "))
}

func TestEnrichmentKeywords(t *testing.T) {
	sources := []search.SourceRecord{
		{Snippet: "반도체 수출 증가세 이어져 AI 메모리 수요 확대"},
		{Title: "HBM 메모리 공급 부족"},
		{Snippet: "세번째 소스는 무시됩니다"},
	}
	assert.Equal(t, []string{"반도체", "증가세", "이어져", "메모리", "HBM"}, EnrichmentKeywords(sources))

	var words []string
	for i := 0; i < 25; i++ {
		words = append(words, fmt.Sprintf("단어%02d", i))
	}
	got := EnrichmentKeywords([]search.SourceRecord{{Snippet: strings.Join(words, " ")}})
	assert.Equal(t, words[:10], got)
	assert.Empty(t, EnrichmentKeywords(nil))
}

func TestQuality(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		sources int
		want    float64
	}{
		{"bare", "짧음", 0, 0.5},
		{"citation and one source", "짧음 [1]", 1, 0.75},
		{"long with three sources", longAnswer, 3, 1},
		{"long without citation", strings.Repeat("가", 51), 2, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Quality(&synth.Output{Answer: tt.answer}, tt.sources), 1e-9)
		})
	}
	assert.Zero(t, Quality(nil, 3))
}
