package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/temporal"
)

// Document is one knowledge base hit.
type Document struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	URL         string     `json:"url,omitempty" yaml:"url"`
	Content     string     `json:"content" yaml:"content"`
	Source      string     `json:"source,omitempty" yaml:"source"`
	PublishedAt *time.Time `json:"published_at,omitempty" yaml:"-"`
	Score       float64    `json:"score" yaml:"-"`
}

// Retriever defines the internal knowledge base search contract.
type Retriever interface {
	Type() string
	// Retrieve returns up to topK documents. A non-nil filter restricts
	// results to the range when SupportsDateFilter reports true.
	Retrieve(ctx context.Context, query string, filter *temporal.DateRange, topK int) ([]Document, error)
	SupportsDateFilter() bool
}

// New builds the retriever selected by cfg.Retriever.Provider.
func New(ctx context.Context, cfg *config.Config) (Retriever, error) {
	switch cfg.Retriever.Provider {
	case "", "memory":
		m := NewMemory(nil)
		if cfg.Retriever.CorpusFile != "" {
			docs, err := LoadCorpus(cfg.Retriever.CorpusFile)
			if err != nil {
				return nil, err
			}
			m = NewMemory(docs)
		}
		return m, nil
	case "archive":
		a, err := OpenArchive(cfg.Retriever.Archive.Path)
		if err != nil {
			return nil, err
		}
		if cfg.Retriever.CorpusFile != "" {
			docs, err := LoadCorpus(cfg.Retriever.CorpusFile)
			if err != nil {
				_ = a.Close()
				return nil, err
			}
			if err := a.Add(ctx, docs...); err != nil {
				_ = a.Close()
				return nil, err
			}
		}
		return a, nil
	case "milvus":
		embed, err := NewOpenAIEmbedder(cfg.Embedding)
		if err != nil {
			return nil, err
		}
		return NewMilvus(ctx, cfg.Retriever.Milvus, embed)
	default:
		return nil, fmt.Errorf("unknown retriever provider: %s", cfg.Retriever.Provider)
	}
}

// FilterByRange drops documents outside r. Documents without a publish date
// are kept unless dropUnknown is set.
func FilterByRange(docs []Document, r *temporal.DateRange, dropUnknown bool) []Document {
	if r == nil {
		return docs
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.PublishedAt == nil {
			if !dropUnknown {
				out = append(out, d)
			}
			continue
		}
		if r.Contains(*d.PublishedAt) {
			out = append(out, d)
		}
	}
	return out
}

// Terms splits a query into lowercase match terms of at least two runes.
func Terms(query string) []string {
	var out []string
	seen := map[string]bool{}
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, "?？!.,")
		if utf8.RuneCountInString(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// KeywordScore is the fraction of query terms found in text.
func KeywordScore(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	text = strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// rank orders by score, newest first on ties, and truncates to topK.
func rank(docs []Document, topK int) []Document {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return newer(docs[i], docs[j])
	})
	if topK > 0 && len(docs) > topK {
		docs = docs[:topK]
	}
	return docs
}

func newer(a, b Document) bool {
	switch {
	case a.PublishedAt == nil:
		return false
	case b.PublishedAt == nil:
		return true
	default:
		return a.PublishedAt.After(*b.PublishedAt)
	}
}
