package retriever

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/temporal"
)

var kst = time.FixedZone("KST", 9*60*60)

func at(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 9, 0, 0, 0, kst)
	return &t
}

func sampleDocs() []Document {
	return []Document{
		{ID: "a", Title: "삼성전자 2분기 실적 발표", Content: "반도체 부문 영업이익 증가", URL: "https://www.sedaily.com/a", PublishedAt: at(2024, 7, 5)},
		{ID: "b", Title: "SK하이닉스 HBM 공급 확대", Content: "반도체 수요 회복", URL: "https://b.example.com", PublishedAt: at(2025, 6, 20)},
		{ID: "c", Title: "부동산 시장 동향", Content: "수도권 거래량 증가", URL: "https://c.example.com"},
	}
}

const corpusYAML = `
- id: a
  title: 삼성전자 2분기 실적 발표
  content: 반도체 부문 영업이익 증가
  url: https://www.sedaily.com/a
  published_at: 2024-07-05
- title: 부동산 시장 동향
  content: 수도권 거래량 증가
  published_at: "2025-06-20T09:00:00+09:00"
- title: 날짜 없는 기사
  content: 내용
`

func TestParseCorpus(t *testing.T) {
	docs, err := ParseCorpus([]byte(corpusYAML))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "doc-2", docs[1].ID)
	require.NotNil(t, docs[0].PublishedAt)
	assert.Equal(t, 2024, docs[0].PublishedAt.Year())
	assert.Equal(t, time.June, docs[1].PublishedAt.Month())
	assert.Nil(t, docs[2].PublishedAt)

	_, err = ParseCorpus([]byte("- title: x\n  published_at: yesterday\n"))
	assert.Error(t, err)
}

func TestMemoryRetrieve(t *testing.T) {
	m := NewMemory(sampleDocs())
	assert.False(t, m.SupportsDateFilter())

	docs, err := m.Retrieve(context.Background(), "반도체 실적", nil, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	// both terms match a, only 반도체 matches b
	assert.Equal(t, "a", docs[0].ID)
	assert.InDelta(t, 1.0, docs[0].Score, 1e-9)
	assert.InDelta(t, 0.5, docs[1].Score, 1e-9)

	docs, err = m.Retrieve(context.Background(), "반도체", nil, 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	// equal scores resolve to the newer article
	assert.Equal(t, "b", docs[0].ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Retrieve(ctx, "반도체", nil, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilterByRange(t *testing.T) {
	r := &temporal.DateRange{Start: time.Date(2024, 6, 1, 0, 0, 0, 0, kst), End: time.Date(2024, 8, 1, 0, 0, 0, 0, kst)}
	tests := []struct {
		name        string
		filter      *temporal.DateRange
		dropUnknown bool
		want        []string
	}{
		{"no filter", nil, true, []string{"a", "b", "c"}},
		{"keep unknown", r, false, []string{"a", "c"}},
		{"drop unknown", r, true, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, d := range FilterByRange(sampleDocs(), tt.filter, tt.dropUnknown) {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestTermsAndKeywordScore(t *testing.T) {
	assert.Equal(t, []string{"삼성전자", "실적은"}, Terms("삼성전자 실적은? 이 삼성전자"))
	assert.Zero(t, KeywordScore(nil, "anything"))
	assert.InDelta(t, 0.5, KeywordScore([]string{"ai", "chip"}, "New AI model"), 1e-9)
}

func TestArchiveRetrieve(t *testing.T) {
	a, err := OpenArchive(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.Add(ctx, sampleDocs()...))
	// re-adding the same URL updates in place
	updated := sampleDocs()[0]
	updated.Title = "삼성전자 2분기 실적 발표 (수정)"
	require.NoError(t, a.Add(ctx, updated))

	docs, err := a.Retrieve(ctx, "반도체", nil, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	r := &temporal.DateRange{Start: time.Date(2024, 7, 1, 0, 0, 0, 0, kst), End: time.Date(2024, 7, 31, 23, 59, 59, 0, kst)}
	docs, err = a.Retrieve(ctx, "반도체", r, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "삼성전자 2분기 실적 발표 (수정)", docs[0].Title)
	assert.True(t, a.SupportsDateFilter())

	docs, err = a.Retrieve(ctx, "?", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

type MockEmbedder struct {
	err error
}

func (m *MockEmbedder) Embed(context.Context, string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type MockVectorSearcher struct {
	lastExpr string
	lastTopK int
	results  []client.SearchResult
	err      error
	closed   bool
}

func (m *MockVectorSearcher) Search(_ context.Context, _ string, _ []string, expr string, _ []string,
	_ []entity.Vector, _ string, _ entity.MetricType, topK int, _ entity.SearchParam,
	_ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	m.lastExpr, m.lastTopK = expr, topK
	return m.results, m.err
}

func (m *MockVectorSearcher) Close() error {
	m.closed = true
	return nil
}

func TestMilvusRetrieve(t *testing.T) {
	published := time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC).Unix()
	ms := &MockVectorSearcher{results: []client.SearchResult{{
		ResultCount: 2,
		Scores:      []float32{0.9, 0.4},
		Fields: client.ResultSet{
			entity.NewColumnVarChar(fieldDocID, []string{"a", "b"}),
			entity.NewColumnVarChar(fieldTitle, []string{"삼성전자 실적", "반도체 전망"}),
			entity.NewColumnVarChar(fieldURL, []string{"https://a", "https://b"}),
			entity.NewColumnVarChar(fieldContent, []string{"내용 a", "내용 b"}),
			entity.NewColumnInt64("published_at", []int64{published, 0}),
		},
	}}}
	m := newMilvus(ms, &MockEmbedder{}, config.MilvusConfig{Collection: "news"})

	r := &temporal.DateRange{Start: time.Unix(100, 0), End: time.Unix(200, 0)}
	docs, err := m.Retrieve(context.Background(), "삼성전자", r, 0)
	require.NoError(t, err)
	assert.Equal(t, "published_at >= 100 && published_at <= 200", ms.lastExpr)
	assert.Equal(t, 10, ms.lastTopK)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.InDelta(t, 0.9, docs[0].Score, 1e-6)
	require.NotNil(t, docs[0].PublishedAt)
	assert.Equal(t, published, docs[0].PublishedAt.Unix())
	assert.Nil(t, docs[1].PublishedAt)
	assert.Empty(t, docs[1].Source)

	_, err = m.Retrieve(context.Background(), "x", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, ms.lastExpr)

	m = newMilvus(ms, &MockEmbedder{err: errors.New("embed down")}, config.MilvusConfig{})
	_, err = m.Retrieve(context.Background(), "x", nil, 5)
	assert.EqualError(t, err, "embed down")

	require.NoError(t, m.Close())
	assert.True(t, ms.closed)
}

func TestNewUnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Retriever.Provider = "elastic"
	_, err := New(context.Background(), &cfg)
	assert.Error(t, err)

	cfg.Retriever.Provider = "memory"
	r, err := New(context.Background(), &cfg)
	require.NoError(t, err)
	assert.Equal(t, "memory", r.Type())
}
