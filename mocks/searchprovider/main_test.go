package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higress-group/newsrag/config"
	"github.com/higress-group/newsrag/websearch"
)

func TestMockServesPerplexityShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(handleCompletions))
	defer srv.Close()

	p := websearch.NewPerplexity(config.WebSearchConfig{Endpoint: srv.URL, TimeoutSeconds: 5}, nil)
	res, err := p.Query(context.Background(), "삼성전자 실적")
	require.NoError(t, err)
	assert.Contains(t, res.Content, "삼성전자 실적")
	assert.Len(t, res.Sources, 2)
	assert.Equal(t, "news.example.com", res.Sources[0].Domain)
	assert.NotNil(t, res.Sources[0].PublishedAt)
	assert.Equal(t, 120, res.Tokens)
}

func TestMockRejectsBadRequests(t *testing.T) {
	for _, body := range []string{"{", `{"messages":[{"role":"system","content":"x"}]}`} {
		rec := httptest.NewRecorder()
		handleCompletions(rec, httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `"message"`)
	}
}
