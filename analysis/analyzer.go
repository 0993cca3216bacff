package analysis

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/higress-group/newsrag/temporal"
)

// DefaultClarityThreshold is the canonical cut-off below which a query needs clarification.
const DefaultClarityThreshold = 0.6

// Strategy labels the recommended search approach.
type Strategy string

const (
	StrategyClarificationFirst Strategy = "clarification_first"
	StrategyDateFiltered       Strategy = "date_filtered_search"
	StrategyFreshContent       Strategy = "fresh_content_priority"
	StrategyMultiSource        Strategy = "multi_source_search"
	StrategyLatestFirst        Strategy = "latest_first_search"
)

// Entities are the surface entities extracted from a query.
type Entities struct {
	Organizations []string  `json:"organizations"`
	Keywords      []string  `json:"keywords"`
	Numbers       []float64 `json:"numbers"`
}

// QueryAnalysis is immutable once built by the Analyzer.
type QueryAnalysis struct {
	Query              string   `json:"query"`
	ClarityScore       float64  `json:"clarity_score"`
	Category           Category `json:"category"`
	Entities           Entities `json:"entities"`
	NeedsClarification bool     `json:"needs_clarification"`
	Confidence         float64  `json:"confidence"`
	HasTimeExpression  bool     `json:"has_time_expression"`
	Strategy           Strategy `json:"search_strategy"`
}

func newQueryAnalysis(q string, score, threshold float64, category Category, e Entities, hasExpr bool, freshness float64) QueryAnalysis {
	return QueryAnalysis{
		Query:              q,
		ClarityScore:       score,
		Category:           category,
		Entities:           e,
		NeedsClarification: score < threshold,
		Confidence:         confidence(score, e, hasExpr, freshness),
		HasTimeExpression:  hasExpr,
	}
}

// OrganizationNames are canonical names recognized by the entity patterns.
var OrganizationNames = []string{
	"삼성전자", "삼성SDI", "삼성바이오로직스", "LG전자", "LG화학", "LG에너지솔루션",
	"현대자동차", "현대중공업", "SK하이닉스", "SK텔레콤", "포스코", "POSCO",
	"네이버", "NAVER", "카카오", "Kakao", "쿠팡", "배달의민족", "마켓컬리",
}

var organizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`삼성(?:전자|SDI|바이오로직스|화재|물산)?`),
	regexp.MustCompile(`\bLG(?:전자|화학|에너지솔루션|디스플레이)?`),
	regexp.MustCompile(`현대(?:자동차|모터스|모터|중공업|건설)?`),
	regexp.MustCompile(`\bSK(?:하이닉스|텔레콤|이노베이션|바이오팜)?`),
	regexp.MustCompile(`포스코|\bPOSCO\b`),
	regexp.MustCompile(`네이버|(?i:\bnaver\b)`),
	regexp.MustCompile(`카카오|(?i:\bkakao\b)`),
	regexp.MustCompile(`배달의민족|쿠팡|마켓컬리`),
	regexp.MustCompile(`(?i:\bsamsung\b|\bhyundai\b)`),
}

// DomainKeywords mark a query as asking for a specific kind of information.
var DomainKeywords = []string{"주가", "실적", "매출", "이익", "전망", "계획", "발표", "출시"}

var (
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)
	bareKorean    = regexp.MustCompile(`^[가-힣]{1,3}\?*$`)
	bareLatin     = regexp.MustCompile(`^[a-zA-Z]{1,5}\?*$`)
)

// freshKeywordThreshold is the keyword-only freshness above which the
// strategy favors fresh content.
const freshKeywordThreshold = 0.4

// Analyzer scores clarity, classifies category and extracts entities.
type Analyzer struct {
	threshold float64
}

func NewAnalyzer(clarityThreshold float64) *Analyzer {
	if clarityThreshold <= 0 {
		clarityThreshold = DefaultClarityThreshold
	}
	return &Analyzer{threshold: clarityThreshold}
}

func (a *Analyzer) Threshold() float64 { return a.threshold }

// Analyze builds the QueryAnalysis. prior is the previous turn summary, used
// only when the query alone has no topical signal. intent may be nil.
func (a *Analyzer) Analyze(query, prior string, intent *temporal.Intent) QueryAnalysis {
	q := strings.TrimSpace(query)
	entities := ExtractEntities(q)
	clarity := ClarityScore(q, entities)

	category := Classify(q)
	if category == CategoryGeneral && prior != "" {
		category = Classify(prior)
	}

	hasExpr, freshness := false, 0.0
	if intent != nil {
		hasExpr, freshness = intent.HasExpression, intent.FreshnessPriority
	}

	res := newQueryAnalysis(q, clarity, a.threshold, category, entities, hasExpr, freshness)
	res.Strategy = RecommendStrategy(res)
	return res
}

// RecommendStrategy derives the search strategy label from a finished analysis.
func RecommendStrategy(res QueryAnalysis) Strategy {
	switch {
	case res.NeedsClarification:
		return StrategyClarificationFirst
	case res.HasTimeExpression:
		return StrategyDateFiltered
	case temporal.FreshnessScore(res.Query) >= freshKeywordThreshold:
		return StrategyFreshContent
	case res.Category == CategoryEconomy || res.Category == CategoryPolitics:
		return StrategyMultiSource
	default:
		return StrategyLatestFirst
	}
}

// ExtractEntities runs the organization patterns, the domain keyword list and
// numeric token extraction over q.
func ExtractEntities(q string) Entities {
	var e Entities
	seen := map[string]bool{}
	for _, re := range organizationPatterns {
		for _, m := range re.FindAllString(q, -1) {
			if !seen[m] {
				seen[m] = true
				e.Organizations = append(e.Organizations, m)
			}
		}
	}
	for _, kw := range DomainKeywords {
		if strings.Contains(q, kw) {
			e.Keywords = append(e.Keywords, kw)
		}
	}
	for _, m := range numberPattern.FindAllString(q, -1) {
		if n, err := strconv.ParseFloat(m, 64); err == nil {
			e.Numbers = append(e.Numbers, n)
		}
	}
	return e
}

// ClarityScore starts at 0.5, adds bonuses for length, word count, a question
// mark, entities and domain keywords, subtracts penalties for very short,
// letterless or bare single-token queries, and clamps to [0, 1].
func ClarityScore(q string, e Entities) float64 {
	length := utf8.RuneCountInString(q)
	score := 0.5
	if length > 10 {
		score += 0.1
	}
	if len(strings.Fields(q)) >= 3 {
		score += 0.1
	}
	if strings.ContainsAny(q, "?？") {
		score += 0.15
	}
	if len(e.Organizations) > 0 {
		score += 0.15
	}
	if len(e.Keywords) > 0 {
		score += 0.1
	}
	if length < 5 {
		score -= 0.3
	}
	if !hasLetters(q) {
		score -= 0.2
	}
	if bareKorean.MatchString(q) || bareLatin.MatchString(q) {
		score -= 0.4
	}
	return clamp01(score)
}

func confidence(clarity float64, e Entities, hasExpr bool, freshness float64) float64 {
	c := clarity * 0.4
	if len(e.Organizations) > 0 {
		c += 0.2
	}
	if len(e.Keywords) > 0 {
		c += 0.1
	}
	if hasExpr {
		c += 0.15
	} else {
		c += 0.1
	}
	c += freshness * 0.15
	if c > 1 {
		c = 1
	}
	return c
}

func hasLetters(q string) bool {
	for _, r := range q {
		if unicode.Is(unicode.Hangul, r) || (r < unicode.MaxASCII && unicode.IsLetter(r)) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
