package llm

import (
	"strings"
	"unicode/utf8"
)

// Complexity selects a model tier.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

var (
	analyticalTerms = []string{"분석", "비교", "전망", "예측", "평가", "상세히"}
	depthTerms      = []string{"종합적으로", "심층적으로", "구체적으로", "자세히"}
	expertTerms     = []string{"EBITDA", "ESG", "DX", "AI", "반도체", "메타버스", "NFT", "암호화폐", "블록체인"}
	numericTerms    = []string{"%", "억원", "조원", "달러", "증가", "감소", "상승", "하락"}
)

// Assess scores query length, analytical phrasing, source count, expert
// vocabulary and numeric focus.
func Assess(query string, sourceCount int) Complexity {
	score := 0
	if utf8.RuneCountInString(query) > 100 {
		score++
	}
	if containsAny(query, analyticalTerms) {
		score += 2
	}
	if containsAny(query, depthTerms) {
		score++
	}
	switch {
	case sourceCount > 5:
		score += 2
	case sourceCount > 3:
		score++
	}
	if containsAny(query, expertTerms) {
		score++
	}
	if containsAny(query, numericTerms) {
		score++
	}
	switch {
	case score >= 4:
		return ComplexityComplex
	case score >= 2:
		return ComplexityMedium
	default:
		return ComplexitySimple
	}
}

// Tiers maps complexity to a model name.
type Tiers struct {
	models   map[string]string
	fallback string
}

func NewTiers(models map[string]string, fallback string) Tiers {
	return Tiers{models: models, fallback: fallback}
}

// Model returns the configured model for c, or the fallback.
func (t Tiers) Model(c Complexity) string {
	if m, ok := t.models[string(c)]; ok && m != "" {
		return m
	}
	return t.fallback
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
