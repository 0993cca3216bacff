package analysis

import (
	"sort"
	"strings"
)

// Category is a topical news label.
type Category string

const (
	CategoryBusiness      Category = "business"
	CategoryEconomy       Category = "economy"
	CategoryGeneral       Category = "general"
	CategoryInternational Category = "international"
	CategoryPolitics      Category = "politics"
	CategorySociety       Category = "society"
	CategoryTechnology    Category = "technology"
)

var categoryLabels = map[Category]string{
	CategoryBusiness:      "기업",
	CategoryEconomy:       "경제",
	CategoryGeneral:       "일반",
	CategoryInternational: "국제",
	CategoryPolitics:      "정치",
	CategorySociety:       "사회",
	CategoryTechnology:    "기술",
}

// Label is the Korean display name used in prompts and rewrites.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return categoryLabels[CategoryGeneral]
}

var categoryKeywords = map[Category][]string{
	CategoryEconomy:       {"경제", "금융", "증시", "주가", "실적", "매출", "수익", "투자", "펀드", "은행", "금리", "환율", "물가"},
	CategoryBusiness:      {"기업", "회사", "CEO", "대표", "사업", "경영", "인수", "합병", "상장", "IPO"},
	CategoryPolitics:      {"정부", "정책", "법안", "정치", "국회", "대통령", "장관", "선거", "여당", "야당"},
	CategoryTechnology:    {"기술", "IT", "혁신", "개발", "디지털", "AI", "인공지능", "소프트웨어", "하드웨어", "반도체"},
	CategorySociety:       {"사회", "교육", "의료", "복지", "문화", "스포츠", "연예", "사건", "사고"},
	CategoryInternational: {"해외", "미국", "중국", "일본", "유럽", "무역", "외교", "국제", "글로벌"},
}

// sortedCategories fixes the scan order so ties resolve to the
// lexicographically smallest label.
var sortedCategories = func() []Category {
	out := make([]Category, 0, len(categoryKeywords))
	for c := range categoryKeywords {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}()

// Classify counts keyword hits per dictionary. Zero hits yields CategoryGeneral.
func Classify(text string) Category {
	best, bestScore := CategoryGeneral, 0
	for _, c := range sortedCategories {
		score := 0
		for _, kw := range categoryKeywords[c] {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}
