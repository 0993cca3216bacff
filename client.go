// Package newsrag wires the news routing engine into a client and exposes it
// over HTTP, WebSocket and MCP.
package newsrag

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/higress-group/newsrag/common/apperr"
	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/llm"
	"github.com/higress-group/newsrag/memory"
	"github.com/higress-group/newsrag/retriever"
	"github.com/higress-group/newsrag/rewrite"
	"github.com/higress-group/newsrag/router"
	"github.com/higress-group/newsrag/search"
	"github.com/higress-group/newsrag/stream"
	"github.com/higress-group/newsrag/synth"
	"github.com/higress-group/newsrag/trace"
	"github.com/higress-group/newsrag/websearch"
	"github.com/higress-group/newsrag/workflow"
)

const Version = "1.0.0"

// ConversationContext identifies the conversation a query belongs to.
type ConversationContext struct {
	// ConversationID is generated when empty.
	ConversationID string
	// History overrides the stored history when non-nil.
	History []synth.Turn
	Summary string
}

// Response is returned for every handled query.
type Response struct {
	ConversationID string                 `json:"conversation_id"`
	Answer         string                 `json:"answer"`
	Sources        []search.SourceRecord  `json:"sources"`
	Trace          []trace.Step           `json:"trace"`
	Success        bool                   `json:"success"`
	Error          string                 `json:"error,omitempty"`
	Retryable      bool                   `json:"retryable,omitempty"`
	Route          router.Route           `json:"route"`
	Decision       router.RoutingDecision `json:"-"`
	Clarifications []string               `json:"clarification_questions,omitempty"`
	Quality        float64                `json:"quality"`
	ExternalUsed   bool                   `json:"external_used"`
}

// Deps are the collaborators of a Client. Nil fields are built from config
// by NewClient; NewClientWith uses them as given.
type Deps struct {
	Retriever retriever.Retriever
	Searcher  websearch.Searcher
	LLM       llm.Provider
	Store     memory.Store
	Counter   memory.Counter
	Redis     *redis.Client
}

// Client is the process-wide entry point. It is safe for concurrent use;
// each call owns its own request state.
type Client struct {
	cfg     *config.Config
	engine  *workflow.Engine
	router  *router.Router
	store   memory.Store
	factory *memory.Factory
	closers []io.Closer
	now     func() time.Time
}

// NewClient builds every collaborator from cfg.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	var deps Deps
	if cfg.Redis.Address != "" {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	cleanup := func() {
		if deps.Redis != nil {
			_ = deps.Redis.Close()
		}
	}

	r, err := retriever.New(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create retriever failed, err: %w", err)
	}
	deps.Retriever = r
	deps.Searcher = websearch.New(cfg, deps.Redis)

	p, err := llm.NewOpenAI(cfg.LLM)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create llm provider failed, err: %w", err)
	}
	deps.LLM = p

	store, err := memory.New(ctx, cfg, deps.Redis)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create conversation store failed, err: %w", err)
	}
	deps.Store = store
	deps.Counter = memory.NewTokenCounter(cfg.Memory.Encoding)
	return NewClientWith(cfg, deps)
}

// NewClientWith assembles a client from explicit collaborators. Store
// defaults to an in-memory store.
func NewClientWith(cfg *config.Config, deps Deps) (*Client, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	syn, err := synth.NewFromConfig(deps.LLM, cfg)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer failed, err: %w", err)
	}
	engine := workflow.NewEngine(cfg.Engine, workflow.Deps{
		Search: search.NewOrchestrator(deps.Retriever, deps.Searcher, cfg.Search),
		Synth:  syn,
		Rewriter: rewrite.NewRewriter(rewrite.Options{
			ConfidenceThreshold: cfg.Rewrite.ConfidenceThreshold,
			MaxRewrites:         cfg.Rewrite.MaxRewrites,
			MaxClarifications:   cfg.Rewrite.MaxClarifications,
		}),
	})

	store := deps.Store
	if store == nil {
		store = memory.NewInMemory(cfg.Memory.MaxMessages)
	}
	c := &Client{
		cfg:     cfg,
		engine:  engine,
		router:  router.New(engine, cfg),
		store:   store,
		factory: memory.NewFactory(deps.Counter, memory.TTL(cfg.Memory)),
		now:     time.Now,
	}
	if rc, ok := deps.Retriever.(io.Closer); ok {
		c.closers = append(c.closers, rc)
	}
	c.closers = append(c.closers, store)
	if deps.Redis != nil {
		c.closers = append(c.closers, deps.Redis)
	}
	return c, nil
}

// WithClock replaces the time source, for tests.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	c.router.WithClock(now)
	return c
}

func (c *Client) Config() *config.Config { return c.cfg }

func (c *Client) Engine() *workflow.Engine { return c.engine }

// Decide returns the routing decision for query without executing it.
func (c *Client) Decide(query string) router.RoutingDecision {
	return c.router.Decide(query, c.now())
}

// Handle answers query. Only caller errors are returned; execution failures
// are reported through Response.Success and Response.Error.
func (c *Client) Handle(ctx context.Context, query string, cc ConversationContext) (*Response, error) {
	req, id, err := c.prepare(ctx, query, cc)
	if err != nil {
		return nil, err
	}
	if d := c.requestTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	res := c.router.Execute(ctx, req)
	if res.Success {
		c.persist(ctx, id, req.Query, res.Answer)
	}
	return response(id, res), nil
}

// HandleStream answers query and emits progress, stream_chunk and a terminal
// stream_complete or error event to sink. A failing sink cancels execution.
func (c *Client) HandleStream(ctx context.Context, query string, cc ConversationContext, sink stream.Sink) (*Response, error) {
	req, id, err := c.prepare(ctx, query, cc)
	if err != nil {
		_ = sink.Send(stream.Failure(cc.ConversationID, err.Error()))
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := logger.WithContext(map[string]interface{}{"conversation_id": id, "transport": "stream"})
	var sinkErr error
	send := func(e stream.Event) error {
		if sinkErr != nil {
			return sinkErr
		}
		if err := sink.Send(e); err != nil {
			sinkErr = err
			log.Warnf("newsrag: stream send failed, cancelling execution, err: %v", err)
			cancel()
			return err
		}
		return nil
	}

	req.OnDecision = func(d router.RoutingDecision) {
		_ = send(stream.Progress("route_decision", fmt.Sprintf("%s: %s", d.Route, d.Reason)))
	}
	// streamed is true once chunks of the current generation reached the sink.
	// A later synthesis start, from a retry or a route fallback, resets them.
	streamed := false
	req.Observer = workflow.ObserverFunc(func(ev workflow.Event) {
		switch ev.Phase {
		case workflow.PhaseStart:
			if ev.Step == workflow.StepAnswerSynthesis && streamed {
				streamed = false
				_ = send(stream.Reset(string(ev.Step), fmt.Sprintf("generation restarted, attempt %d", ev.Attempt)))
			}
			if ev.Attempt == 1 {
				_ = send(stream.Progress(string(ev.Step), "started"))
			} else {
				_ = send(stream.Progress(string(ev.Step), fmt.Sprintf("retry %d", ev.Attempt)))
			}
		case workflow.PhaseSkip:
			_ = send(stream.Progress(string(ev.Step), "skipped"))
		}
	})
	req.OnDelta = func(delta string) error {
		streamed = true
		return send(stream.Chunk(delta))
	}

	res := c.router.Execute(ctx, req)
	if sinkErr != nil {
		return response(id, res), nil
	}
	if res.Success {
		c.persist(ctx, id, req.Query, res.Answer)
		_ = send(stream.Complete(id, string(res.Decision.Route), res.Answer, res.Sources, res.Trace.Steps()))
	} else {
		_ = send(stream.Failure(id, res.Error))
	}
	return response(id, res), nil
}

// History returns the most recent limit messages of a conversation.
func (c *Client) History(ctx context.Context, conversationID string, limit int) ([]memory.ConversationMessage, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, apperr.Validation("conversation id must not be empty")
	}
	return c.store.History(ctx, conversationID, limit)
}

// Close releases every owned handle and reports all failures.
func (c *Client) Close() error {
	var result *multierror.Error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *Client) prepare(ctx context.Context, query string, cc ConversationContext) (router.Request, string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return router.Request{}, "", apperr.Validation("query must not be empty")
	}
	id := cc.ConversationID
	if id == "" {
		id = uuid.NewString()
	}
	history := cc.History
	if history == nil {
		history = c.loadHistory(ctx, id)
	}
	return router.Request{
		Query:   q,
		History: history,
		Summary: cc.Summary,
		Now:     c.now(),
	}, id, nil
}

// requestTimeout bounds Handle so a failed execution is still answered before
// the server write timeout closes the connection: 5s of headroom, or 10% when
// the write timeout is short. Zero means unbounded.
func (c *Client) requestTimeout() time.Duration {
	wt := time.Duration(c.cfg.Server.WriteTimeoutMs) * time.Millisecond
	if wt <= 0 {
		return 0
	}
	if wt > 50*time.Second {
		return wt - 5*time.Second
	}
	return wt * 9 / 10
}

func (c *Client) loadHistory(ctx context.Context, id string) []synth.Turn {
	turns := c.cfg.Synth.HistoryTurns
	if turns <= 0 {
		turns = 3
	}
	msgs, err := c.store.History(ctx, id, 2*turns)
	if err != nil {
		logger.Warnf("newsrag: load history for %s failed, err: %v", id, err)
		return nil
	}
	out := make([]synth.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, synth.Turn{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// persist stores the user and assistant turns. Failures are logged only.
func (c *Client) persist(ctx context.Context, id, query, answer string) {
	now := c.now()
	user := c.factory.New(id, memory.RoleUser, query, now)
	assistant := c.factory.New(id, memory.RoleAssistant, answer, now.Add(time.Millisecond))
	if err := c.store.Append(ctx, user, assistant); err != nil {
		logger.WithContext(map[string]interface{}{"conversation_id": id}).Warnf("newsrag: persist conversation failed, err: %v", err)
	}
}

func response(id string, res *router.Result) *Response {
	return &Response{
		ConversationID: id,
		Answer:         res.Answer,
		Sources:        res.Sources,
		Trace:          res.Trace.Steps(),
		Success:        res.Success,
		Error:          res.Error,
		Retryable:      res.Retryable,
		Route:          res.Decision.Route,
		Decision:       res.Decision,
		Clarifications: res.Clarifications,
		Quality:        res.Quality,
		ExternalUsed:   res.ExternalUsed,
	}
}
