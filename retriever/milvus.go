package retriever

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/temporal"
)

// Output fields read back from the collection.
const (
	fieldDocID   = "doc_id"
	fieldTitle   = "title"
	fieldURL     = "url"
	fieldContent = "content"
	fieldSource  = "source"
)

// vectorSearcher is the subset of client.Client used for retrieval.
type vectorSearcher interface {
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam,
		opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Close() error
}

// Milvus searches a news collection by embedding similarity with a
// server-side publish date expression.
type Milvus struct {
	cli   vectorSearcher
	embed Embedder
	cfg   config.MilvusConfig
}

func NewMilvus(ctx context.Context, cfg config.MilvusConfig, embed Embedder) (*Milvus, error) {
	cli, err := client.NewClient(ctx, client.Config{
		Address:  fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s:%d failed, err: %w", cfg.Host, cfg.Port, err)
	}
	logger.Infof("milvus retriever connected, collection=%s", cfg.Collection)
	return newMilvus(cli, embed, cfg), nil
}

func newMilvus(cli vectorSearcher, embed Embedder, cfg config.MilvusConfig) *Milvus {
	if cfg.VectorField == "" {
		cfg.VectorField = "vector"
	}
	if cfg.PublishedField == "" {
		cfg.PublishedField = "published_at"
	}
	if cfg.SearchEf <= 0 {
		cfg.SearchEf = 64
	}
	return &Milvus{cli: cli, embed: embed, cfg: cfg}
}

func (m *Milvus) Type() string { return "milvus" }

func (m *Milvus) SupportsDateFilter() bool { return true }

// DateExpr renders the boolean filter for a publish-date field holding unix seconds.
func DateExpr(field string, r *temporal.DateRange) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s >= %d && %s <= %d", field, r.Start.Unix(), field, r.End.Unix())
}

func (m *Milvus) Retrieve(ctx context.Context, query string, filter *temporal.DateRange, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = 10
	}
	vec, err := m.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	sp, err := entity.NewIndexHNSWSearchParam(m.cfg.SearchEf)
	if err != nil {
		return nil, err
	}
	outFields := []string{fieldDocID, fieldTitle, fieldURL, fieldContent, fieldSource, m.cfg.PublishedField}
	results, err := m.cli.Search(ctx, m.cfg.Collection, nil, DateExpr(m.cfg.PublishedField, filter), outFields,
		[]entity.Vector{entity.FloatVector(vec)}, m.cfg.VectorField, entity.IP, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed, err: %w", err)
	}
	var docs []Document
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		for i := 0; i < r.ResultCount; i++ {
			d := Document{
				ID:      stringAt(r.Fields, fieldDocID, i),
				Title:   stringAt(r.Fields, fieldTitle, i),
				URL:     stringAt(r.Fields, fieldURL, i),
				Content: stringAt(r.Fields, fieldContent, i),
				Source:  stringAt(r.Fields, fieldSource, i),
			}
			if i < len(r.Scores) {
				d.Score = float64(r.Scores[i])
			}
			if col := r.Fields.GetColumn(m.cfg.PublishedField); col != nil {
				if sec, err := col.GetAsInt64(i); err == nil && sec > 0 {
					t := time.Unix(sec, 0)
					d.PublishedAt = &t
				}
			}
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func stringAt(rs client.ResultSet, field string, i int) string {
	col := rs.GetColumn(field)
	if col == nil {
		return ""
	}
	s, err := col.GetAsString(i)
	if err != nil {
		return ""
	}
	return s
}

func (m *Milvus) Close() error {
	return m.cli.Close()
}
