// Command searchprovider is a local stand-in for the Perplexity chat
// completions API, for running newsrag without an external search key.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/higress-group/newsrag/common/logger"
)

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
}

func handleCompletions(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || !gjson.ValidBytes(raw) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req := gjson.ParseBytes(raw)
	var query string
	req.Get("messages").ForEach(func(_, m gjson.Result) bool {
		if m.Get("role").String() == "user" {
			query = m.Get("content").String()
		}
		return true
	})
	query = strings.TrimSpace(query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "no user message")
		return
	}

	today := time.Now().Format("2006-01-02")
	results := []searchResult{
		{Title: query + " 관련 최신 보도", URL: "https://news.example.com/latest/1", Snippet: query + "에 대한 최근 동향입니다.", Date: today},
		{Title: query + " 시장 반응", URL: "https://market.example.com/analysis/2", Snippet: "시장 참가자들의 반응을 정리했습니다.", Date: today},
	}
	resp := map[string]interface{}{
		"model": req.Get("model").String(),
		"choices": []map[string]interface{}{{
			"message": map[string]string{
				"role":    "assistant",
				"content": fmt.Sprintf("%s에 대한 최신 정보 요약입니다 [1]. 시장 반응도 함께 보도되었습니다 [2].", query),
			},
		}},
		"search_results": results,
		"citations":      []string{results[0].URL, results[1].URL},
		"usage":          map[string]int{"total_tokens": 120},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{"error": {"message": msg}})
}

func main() {
	_ = logger.Init("info", "console")
	defer logger.Sync()

	addr := ":8083"
	if v := os.Getenv("SEARCH_MOCK_ADDR"); v != "" {
		addr = v
	}
	http.HandleFunc("/chat/completions", handleCompletions)
	logger.Infof("search provider mock listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Errorf("search provider mock stopped, err: %v", err)
		os.Exit(1)
	}
}
