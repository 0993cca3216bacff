package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/higress-group/newsrag/common/httpx"
	"github.com/higress-group/newsrag/config"
)

const systemPrompt = "당신은 한국 뉴스 검색 도우미입니다. 질문과 관련된 최신 뉴스를 찾아 핵심 사실을 출처와 함께 간결하게 정리하세요."

// Perplexity calls a Perplexity-compatible chat completions endpoint.
type Perplexity struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxSources  int
	timeout     time.Duration
	client      *httpx.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

func NewPerplexity(cfg config.WebSearchConfig, client *httpx.Client) *Perplexity {
	if client == nil {
		client = httpx.NewFromConfig(&cfg.HTTP)
	}
	p := &Perplexity{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxSources:  cfg.MaxSources,
		timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		client:      client,
	}
	if p.model == "" {
		p.model = "sonar-pro"
	}
	if p.maxSources <= 0 {
		p.maxSources = 5
	}
	if p.timeout <= 0 {
		p.timeout = 30 * time.Second
	}
	return p
}

func (p *Perplexity) Name() string { return "perplexity" }

func (p *Perplexity) Query(ctx context.Context, query string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: p.temperature,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("perplexity http status %d: %s", resp.StatusCode, gjson.GetBytes(raw, "error.message").String())
	}
	return p.parse(query, raw)
}

func (p *Perplexity) parse(query string, raw []byte) (*Result, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("perplexity returned invalid json")
	}
	doc := gjson.ParseBytes(raw)
	res := &Result{
		Query:   query,
		Content: strings.TrimSpace(doc.Get("choices.0.message.content").String()),
		Tokens:  int(doc.Get("usage.total_tokens").Int()),
	}
	seen := map[string]bool{}
	add := func(s Source) {
		if s.URL == "" || seen[s.URL] || len(res.Sources) >= p.maxSources {
			return
		}
		seen[s.URL] = true
		s.Domain = Domain(s.URL)
		if s.Title == "" {
			s.Title = s.Domain
		}
		res.Sources = append(res.Sources, s)
	}
	doc.Get("search_results").ForEach(func(_, v gjson.Result) bool {
		s := Source{
			Title:   v.Get("title").String(),
			URL:     v.Get("url").String(),
			Snippet: v.Get("snippet").String(),
		}
		if d := v.Get("date").String(); d != "" {
			if t, err := time.Parse("2006-01-02", d); err == nil {
				s.PublishedAt = &t
			}
		}
		add(s)
		return true
	})
	doc.Get("citations").ForEach(func(_, v gjson.Result) bool {
		add(Source{URL: v.String()})
		return true
	})
	return res, nil
}
