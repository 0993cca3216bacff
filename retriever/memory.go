package retriever

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/higress-group/newsrag/temporal"
)

// Memory is an in-process corpus scored by keyword overlap. It does not
// filter by date, so callers apply FilterByRange themselves.
type Memory struct {
	docs []Document
}

func NewMemory(docs []Document) *Memory {
	return &Memory{docs: docs}
}

func (m *Memory) Type() string { return "memory" }

func (m *Memory) SupportsDateFilter() bool { return false }

func (m *Memory) Retrieve(ctx context.Context, query string, _ *temporal.DateRange, topK int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := Terms(query)
	var out []Document
	for _, d := range m.docs {
		score := KeywordScore(terms, d.Title+" "+d.Content)
		if score == 0 {
			continue
		}
		d.Score = score
		out = append(out, d)
	}
	return rank(out, topK), nil
}

type corpusEntry struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	URL         string `yaml:"url"`
	Content     string `yaml:"content"`
	Source      string `yaml:"source"`
	PublishedAt string `yaml:"published_at"`
}

var publishedLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"}

// LoadCorpus reads a YAML list of articles.
func LoadCorpus(path string) ([]Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s failed, err: %w", path, err)
	}
	return ParseCorpus(b)
}

func ParseCorpus(b []byte) ([]Document, error) {
	var entries []corpusEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse corpus failed, err: %w", err)
	}
	docs := make([]Document, 0, len(entries))
	for i, e := range entries {
		d := Document{ID: e.ID, Title: e.Title, URL: e.URL, Content: e.Content, Source: e.Source}
		if d.ID == "" {
			d.ID = fmt.Sprintf("doc-%d", i+1)
		}
		if p := strings.TrimSpace(e.PublishedAt); p != "" {
			t, err := parsePublished(p)
			if err != nil {
				return nil, fmt.Errorf("corpus entry %d: %w", i+1, err)
			}
			d.PublishedAt = &t
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func parsePublished(s string) (time.Time, error) {
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid published_at %q", s)
}
