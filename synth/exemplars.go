package synth

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/higress-group/newsrag/analysis"
)

// Exemplar is a few-shot example answer.
type Exemplar struct {
	Category analysis.Category `yaml:"category"`
	Query    string            `yaml:"query"`
	Sources  string            `yaml:"sources"`
	Answer   string            `yaml:"answer"`
}

// DefaultExemplars are used when no exemplar file is configured.
var DefaultExemplars = []Exemplar{
	{
		Category: analysis.CategoryEconomy,
		Query:    "삼성전자 주가 동향은?",
		Sources:  "삼성전자 3분기 실적 발표 기사 [1], 메모리 반도체 업황 회복 기사 [2]",
		Answer: "삼성전자 주가는 2024년 10월 31일 3분기 실적 발표 이후 상승 흐름을 보이고 있습니다. 메모리 반도체 사업이 시장 예상을 웃도는 이익을 내면서 투자자 관심이 커졌습니다 [1].\n\n" +
			"AI 서버용 고대역폭메모리(HBM) 수요가 늘면서 업황 회복 신호도 이어지고 있습니다 [2]. 다만 글로벌 경기 불확실성은 여전히 변수로 꼽힙니다.",
	},
	{
		Category: analysis.CategoryEconomy,
		Query:    "최근 경제 동향은?",
		Sources:  "한국은행 기준금리 동결 기사 [1], 소비자물가 발표 기사 [2], 수출 동향 기사 [3]",
		Answer: "한국은행은 2024년 11월 28일 기준금리를 동결하며 통화정책 기조를 유지했습니다 [1]. 같은 달 소비자물가 상승률은 1%대로 안정세를 보였습니다 [2].\n\n" +
			"수출은 반도체와 자동차를 중심으로 개선 흐름이 이어지고 있다고 보도됐습니다 [3]. 대외 여건의 불확실성은 계속 지켜볼 필요가 있다는 분석입니다.",
	},
	{
		Category: analysis.CategoryBusiness,
		Query:    "네이버 최근 소식은?",
		Sources:  "네이버 AI 검색 출시 기사 [1], 웹툰 해외 사업 기사 [2]",
		Answer: "네이버는 2024년 11월 생성형 AI를 접목한 검색 서비스를 발표했습니다 [1]. 개인화 검색 기능이 특히 주목받고 있습니다.\n\n" +
			"글로벌 웹툰 시장에서는 해외 스튜디오 투자와 오리지널 콘텐츠 제작을 늘리고 있습니다 [2]. 아시아 전역으로 사업을 넓히려는 전략으로 분석됩니다.",
	},
	{
		Category: analysis.CategoryGeneral,
		Query:    "오늘 주요 뉴스는?",
		Sources:  "정부 경제 정책 발표 기사 [1], 전국 한파 기사 [2], 국제 대회 성과 기사 [3]",
		Answer: "오늘의 주요 뉴스를 정리했습니다.\n\n" +
			"정부는 민생 경제 지원 방안을 담은 경제 활성화 정책을 발표했습니다 [1]. 전국에 한파가 이어지면서 건강 관리에 주의가 당부되고 있습니다 [2].\n\n" +
			"스포츠에서는 한국 선수들이 국제 대회에서 좋은 성과를 거뒀다는 소식이 전해졌습니다 [3].",
	},
}

// LoadExemplars reads a YAML list of exemplars.
func LoadExemplars(path string) ([]Exemplar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exemplars %s failed, err: %w", path, err)
	}
	var out []Exemplar
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse exemplars failed, err: %w", err)
	}
	for i, e := range out {
		if e.Query == "" || e.Answer == "" {
			return nil, fmt.Errorf("exemplar %d: query and answer are required", i+1)
		}
		if e.Category == "" {
			out[i].Category = analysis.CategoryGeneral
		}
	}
	return out, nil
}

// SelectExemplars returns up to n exemplars of the category ranked by Jaccard
// similarity of lowercase word sets. Categories without exemplars use general.
func SelectExemplars(all []Exemplar, category analysis.Category, query string, n int) []Exemplar {
	pool := byCategory(all, category)
	if len(pool) == 0 {
		pool = byCategory(all, analysis.CategoryGeneral)
	}
	type scored struct {
		e   Exemplar
		sim float64
	}
	words := wordSet(query)
	ranked := make([]scored, 0, len(pool))
	for _, e := range pool {
		ranked = append(ranked, scored{e: e, sim: jaccard(words, wordSet(e.Query))})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]Exemplar, len(ranked))
	for i, r := range ranked {
		out[i] = r.e
	}
	return out
}

func byCategory(all []Exemplar, c analysis.Category) []Exemplar {
	var out []Exemplar
	for _, e := range all {
		if e.Category == c {
			out = append(out, e)
		}
	}
	return out
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
