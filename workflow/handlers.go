package workflow

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/higress-group/newsrag/metrics"
	"github.com/higress-group/newsrag/search"
	"github.com/higress-group/newsrag/synth"
)

var (
	errNoSearch   = errors.New("search orchestrator not configured")
	errNoSynth    = errors.New("synthesizer not configured")
	errNoRewriter = errors.New("rewriter not configured")
)

// Keyword enrichment limits.
const (
	enrichSources     = 2
	enrichWords       = 20
	enrichMinRunes    = 3
	enrichMaxKeywords = 10
	enrichQueryTerms  = 5
)

func (e *Engine) queryRewrite(_ context.Context, st *State, step Step) error {
	if e.deps.Rewriter == nil {
		return errNoRewriter
	}
	res := e.deps.Rewriter.Rewrite(st.Query, st.Analysis, step.Params[ParamFeedback], st.Now)
	st.Rewrite = &res
	return nil
}

func (e *Engine) internalSearch(ctx context.Context, st *State, _ Step) error {
	if e.deps.Search == nil {
		return errNoSearch
	}
	query := st.Request.InternalQuery
	if query == "" {
		query = st.SearchQuery()
	}
	internal, err := e.deps.Search.SearchInternal(ctx, query, st.Request.Filter)
	if err != nil {
		return err
	}
	st.Result.Internal = internal
	st.Result.InternalCoverage = e.deps.Search.Coverage(internal, st.Request.Freshness)
	e.deps.Search.Finalize(&st.Result, st.Request)
	return nil
}

// externalSearch consults the orchestrator decision unless the step is
// forced. A search that is not warranted is not a failure.
func (e *Engine) externalSearch(ctx context.Context, st *State, step Step) error {
	if e.deps.Search == nil {
		return errNoSearch
	}
	req := st.Request
	if step.Params[ParamForce] == "true" {
		req.ForceExternal = true
	}
	decision := e.deps.Search.Decide(st.Result.InternalCoverage, req)
	metrics.IncExternalDecision(decision.Reason)
	st.Result.Decision = decision
	if !decision.Run {
		if req.ForceExternal {
			return search.ErrExternalUnavailable
		}
		return nil
	}
	query := strings.TrimSpace(st.SearchQuery() + step.Params[ParamQuerySuffix])
	var err error
	if step.Critical {
		err = e.deps.Search.SearchExternal(ctx, req, query, &st.Result)
	} else {
		e.deps.Search.RunExternal(ctx, req, query, &st.Result)
	}
	if err != nil {
		return err
	}
	e.deps.Search.Finalize(&st.Result, st.Request)
	return nil
}

// keywordEnrichment extends the internal query with terms taken from the
// leading external sources.
func (e *Engine) keywordEnrichment(_ context.Context, st *State, _ Step) error {
	st.Keywords = EnrichmentKeywords(st.Result.External)
	n := len(st.Keywords)
	if n > enrichQueryTerms {
		n = enrichQueryTerms
	}
	if n > 0 {
		st.Request.InternalQuery = st.SearchQuery() + " " + strings.Join(st.Keywords[:n], " ")
	}
	return nil
}

// EnrichmentKeywords takes the first 20 words of the top two sources, keeps
// words longer than two runes, dedupes in order and caps at ten.
func EnrichmentKeywords(sources []search.SourceRecord) []string {
	if len(sources) > enrichSources {
		sources = sources[:enrichSources]
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range sources {
		text := s.Snippet
		if text == "" {
			text = s.Title
		}
		words := strings.Fields(text)
		if len(words) > enrichWords {
			words = words[:enrichWords]
		}
		for _, w := range words {
			if utf8.RuneCountInString(w) < enrichMinRunes || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
			if len(out) == enrichMaxKeywords {
				return out
			}
		}
	}
	return out
}

func (e *Engine) answerSynthesis(ctx context.Context, st *State, _ Step) error {
	out, err := e.synthesize(ctx, st)
	if err != nil {
		return err
	}
	st.Answer = out
	st.Quality = Quality(out, len(st.Result.Sources))
	return nil
}

// regenerate keeps the better of the current and the regenerated answer.
// Streamed answers are never regenerated.
func (e *Engine) regenerate(ctx context.Context, st *State, _ Step) error {
	if st.Streaming() && st.Answer != nil {
		return nil
	}
	out, err := e.synthesize(ctx, st)
	if err != nil {
		return err
	}
	if q := Quality(out, len(st.Result.Sources)); st.Answer == nil || q > st.Quality {
		st.Answer, st.Quality = out, q
	}
	return nil
}

func (e *Engine) synthesize(ctx context.Context, st *State) (*synth.Output, error) {
	if e.deps.Synth == nil {
		return nil, errNoSynth
	}
	in := synth.Input{
		Query:           st.Query,
		Category:        st.Analysis.Category,
		Sources:         st.Result.Sources,
		ExternalContent: st.Result.ExternalContent,
		History:         st.History,
		Summary:         st.Summary,
		Now:             st.Now,
		Trace:           st.Trace,
	}
	if st.Streaming() && st.Answer == nil {
		return e.deps.Synth.SynthesizeStream(ctx, in, st.OnDelta)
	}
	return e.deps.Synth.Synthesize(ctx, in)
}
