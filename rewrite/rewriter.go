package rewrite

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/higress-group/newsrag/analysis"
	"github.com/higress-group/newsrag/common/logger"
)

// Pattern is the surface shape of an ambiguous query.
type Pattern string

const (
	PatternCompanyOnly        Pattern = "company_only"
	PatternSingleWord         Pattern = "single_word"
	PatternWhatWithoutSubject Pattern = "what_without_subject"
	PatternHowWithoutContext  Pattern = "how_without_context"
	PatternVagueInquiry       Pattern = "vague_inquiry"
	PatternTooShort           Pattern = "too_short"
	PatternIncomplete         Pattern = "incomplete"
	PatternNeedsClarification Pattern = "needs_clarification"
)

const (
	StrategyExpand          = "expand_with_context"
	StrategyAddSubject      = "add_specific_subject"
	StrategySpecifyInfoType = "specify_information_type"
	StrategyElaborate       = "request_elaboration"
	StrategyComplete        = "complete_question"
	StrategyGeneral         = "general_improvement"
	StrategyFeedback        = "user_feedback_based"
)

// Rewrite is one reformulation, ordered by Priority (1 is best).
type Rewrite struct {
	Query      string `json:"query"`
	Original   string `json:"original_query"`
	Priority   int    `json:"priority"`
	Reason     string `json:"reason"`
	SearchType string `json:"search_type"`
}

type Result struct {
	Original       string    `json:"original_query"`
	Pattern        Pattern   `json:"pattern"`
	Strategy       string    `json:"strategy"`
	Rewrites       []Rewrite `json:"rewritten_queries"`
	Quality        float64   `json:"quality"`
	Confidence     float64   `json:"confidence"`
	Clarifications []string  `json:"clarification_questions,omitempty"`
	NeedsUserInput bool      `json:"needs_user_input"`
}

// Best returns the highest priority rewrite, or the original query.
func (r Result) Best() string {
	if len(r.Rewrites) == 0 {
		return r.Original
	}
	return r.Rewrites[0].Query
}

type Options struct {
	ConfidenceThreshold float64
	MaxRewrites         int
	MaxClarifications   int
}

var (
	companySuffix = regexp.MustCompile(`^[가-힣a-zA-Z]+(?:전자|그룹|회사|코퍼레이션)\??$`)
	singleWord    = regexp.MustCompile(`^[가-힣a-zA-Z]+\??$`)
	whatPrefix    = regexp.MustCompile(`^(?:무엇|뭐|어떤)`)
	howPrefix     = regexp.MustCompile(`^어떻게`)
	vagueSuffix   = regexp.MustCompile(`(?:어떤가요|어때요|어때)\??$`)
	vagueTrim     = regexp.MustCompile(`(?:어떤가요|어때요|어때)\??`)
	questionTail  = regexp.MustCompile(`(?:은|는)?\s*[?？]+$`)
	industryTerms = []string{"반도체", "자동차", "바이오", "금융", "배터리", "조선", "철강", "게임"}
	koreanGroups  = []string{"삼성", "LG", "현대", "SK", "네이버", "카카오", "포스코"}
	newsWords     = []string{"뉴스", "소식", "기사"}
)

// Rewriter reformulates low-clarity queries into concrete search queries.
type Rewriter struct {
	opt Options
}

func NewRewriter(opt Options) *Rewriter {
	if opt.ConfidenceThreshold <= 0 {
		opt.ConfidenceThreshold = 0.75
	}
	if opt.MaxRewrites <= 0 {
		opt.MaxRewrites = 3
	}
	if opt.MaxClarifications <= 0 {
		opt.MaxClarifications = 3
	}
	return &Rewriter{opt: opt}
}

// Rewrite produces up to MaxRewrites reformulations. feedback, when set, is
// the user's answer to a previous clarification and yields one focused
// rewrite. now anchors year templates.
func (r *Rewriter) Rewrite(query string, qa analysis.QueryAnalysis, feedback string, now time.Time) Result {
	q := strings.TrimSpace(query)
	pattern := Classify(q, qa)
	strategy := strategyFor(pattern)

	var rewrites []Rewrite
	if strings.TrimSpace(feedback) != "" {
		strategy = StrategyFeedback
		rewrites = []Rewrite{feedbackRewrite(q, feedback)}
	} else {
		switch strategy {
		case StrategyExpand:
			rewrites = expand(q, qa, now)
		case StrategyAddSubject:
			rewrites = addSubject(q, qa)
		case StrategySpecifyInfoType:
			rewrites = specifyInfoType(q)
		case StrategyComplete:
			rewrites = complete(q, qa)
		default:
			rewrites = general(q, qa)
		}
	}
	rewrites = r.optimize(rewrites, qa)

	res := Result{
		Original: q,
		Pattern:  pattern,
		Strategy: strategy,
		Rewrites: rewrites,
		Quality:  Quality(q, rewrites),
	}
	// A batch that reads well still leaves the ambiguity of a very unclear
	// question partly unresolved, so confidence scales with the original clarity.
	res.Confidence = res.Quality * (0.5 + 0.5*qa.ClarityScore)
	if res.Confidence < r.opt.ConfidenceThreshold {
		res.Clarifications = clarifications(q, pattern, qa)
		if len(res.Clarifications) > r.opt.MaxClarifications {
			res.Clarifications = res.Clarifications[:r.opt.MaxClarifications]
		}
		res.NeedsUserInput = len(res.Clarifications) > 0
	}
	logger.Debugf("rewrite: pattern=%s strategy=%s rewrites=%d confidence=%.2f", pattern, strategy, len(rewrites), res.Confidence)
	return res
}

// Classify identifies the surface pattern of q.
func Classify(q string, qa analysis.QueryAnalysis) Pattern {
	base := strings.TrimRight(q, "?？ ")
	switch {
	case companySuffix.MatchString(q) || (len(qa.Entities.Organizations) == 1 && qa.Entities.Organizations[0] == base):
		return PatternCompanyOnly
	case singleWord.MatchString(q):
		return PatternSingleWord
	case whatPrefix.MatchString(q):
		return PatternWhatWithoutSubject
	case howPrefix.MatchString(q):
		return PatternHowWithoutContext
	case vagueSuffix.MatchString(q):
		return PatternVagueInquiry
	}
	words := len(strings.Fields(q))
	switch {
	case utf8.RuneCountInString(q) < 5:
		return PatternTooShort
	case words == 1:
		return PatternSingleWord
	case !strings.Contains(q, "?") && words < 3:
		return PatternIncomplete
	default:
		return PatternNeedsClarification
	}
}

func strategyFor(p Pattern) string {
	switch p {
	case PatternSingleWord, PatternCompanyOnly:
		return StrategyExpand
	case PatternWhatWithoutSubject, PatternHowWithoutContext:
		return StrategyAddSubject
	case PatternVagueInquiry:
		return StrategySpecifyInfoType
	case PatternTooShort:
		return StrategyElaborate
	case PatternIncomplete:
		return StrategyComplete
	default:
		return StrategyGeneral
	}
}

func rewrite(query string, priority int, reason, searchType string) Rewrite {
	return Rewrite{Query: query, Priority: priority, Reason: reason, SearchType: searchType}
}

func expand(q string, qa analysis.QueryAnalysis, now time.Time) []Rewrite {
	base := strings.TrimRight(q, "?？ ")
	if len(qa.Entities.Organizations) > 0 || containsAny(base, "전자", "그룹", "회사", "코퍼레이션") {
		return []Rewrite{
			rewrite(base+" 최근 주가 동향은?", 1, "주가 정보 요청으로 구체화", "latest_first"),
			rewrite(fmt.Sprintf("%s %d년 실적은?", base, now.Year()), 2, "실적 정보 요청으로 구체화", "date_filtered"),
			rewrite(base+" 최신 뉴스는?", 3, "일반 뉴스 요청으로 구체화", "latest_first"),
		}
	}
	if containsAny(base, industryTerms...) {
		return []Rewrite{
			rewrite(base+" 시장 최근 동향은?", 1, "시장 동향으로 구체화", "latest_first"),
			rewrite(base+" 주요 기업 현황은?", 2, "기업 현황으로 구체화", "latest_first"),
			rewrite(base+" 산업 전망은?", 3, "산업 전망으로 구체화", "multi_source"),
		}
	}
	return []Rewrite{
		rewrite(base+"에 대한 최신 정보는?", 1, "일반적 정보 요청으로 구체화", "latest_first"),
		rewrite(base+" 관련 뉴스는?", 2, "뉴스 요청으로 구체화", "latest_first"),
	}
}

func addSubject(q string, qa analysis.QueryAnalysis) []Rewrite {
	if qa.Category == analysis.CategoryGeneral {
		return []Rewrite{
			rewrite("최근 주요 뉴스 이슈는 무엇인가요?", 1, "주요 이슈로 구체화", "latest_first"),
			rewrite("오늘의 주요 뉴스는?", 2, "오늘의 뉴스로 구체화", "latest_first"),
		}
	}
	label := qa.Category.Label()
	return []Rewrite{
		rewrite(fmt.Sprintf("최근 주요 %s 이슈는 무엇인가요?", label), 1, label+" 이슈로 구체화", "latest_first"),
		rewrite(fmt.Sprintf("현재 %s 동향에서 주목할 점은?", label), 2, label+" 동향으로 구체화", "latest_first"),
	}
}

func specifyInfoType(q string) []Rewrite {
	base := strings.TrimSpace(vagueTrim.ReplaceAllString(q, ""))
	if base == "" {
		return []Rewrite{rewrite("최근 주요 뉴스는?", 1, "정보 유형 불명확, 주요 뉴스로 대체", "latest_first")}
	}
	return []Rewrite{
		rewrite(base+" 최신 동향은?", 1, "동향 정보로 구체화", "latest_first"),
		rewrite(base+" 현재 상황은?", 2, "현황 정보로 구체화", "latest_first"),
		rewrite(base+" 관련 분석은?", 3, "분석 정보로 구체화", "multi_source"),
	}
}

func complete(q string, qa analysis.QueryAnalysis) []Rewrite {
	var out []Rewrite
	for i, org := range qa.Entities.Organizations {
		if i == 2 {
			break
		}
		subject := q
		if !strings.Contains(q, org) {
			subject = org + " " + q
		}
		out = append(out, rewrite(subject+" 관련 최신 정보는?", i+1, org+" 관련 정보로 완성", "latest_first"))
	}
	if len(out) == 0 {
		out = append(out, rewrite(q+"에 대한 상세한 정보를 알려주세요", 1, "일반적 완성", "latest_first"))
	}
	return out
}

var (
	categoryEnhancers = map[analysis.Category]string{
		analysis.CategoryEconomy:  "경제동향",
		analysis.CategoryBusiness: "기업소식",
	}
	keywordEnhancers = map[string]string{"주가": "증시", "실적": "영업실적", "전망": "전망분석"}
)

func general(q string, qa analysis.QueryAnalysis) []Rewrite {
	improved := q
	if kw, ok := categoryEnhancers[qa.Category]; ok {
		improved += " " + kw
	} else if len(qa.Entities.Keywords) > 0 {
		if kw, ok := keywordEnhancers[qa.Entities.Keywords[0]]; ok {
			improved += " " + kw
		}
	}
	return []Rewrite{
		rewrite(improved, 1, "검색 키워드 추가로 개선", "latest_first"),
		rewrite(q+" 자세히", 2, "상세 정보 요청으로 개선", "multi_source"),
	}
}

func feedbackRewrite(q, feedback string) Rewrite {
	fb := strings.ToLower(feedback)
	focus := "일반"
	switch {
	case containsAny(fb, "주가", "가격", "stock", "price"):
		focus = "주가"
	case containsAny(fb, "실적", "매출", "performance", "earnings"):
		focus = "실적"
	case containsAny(fb, "뉴스", "소식", "news"):
		focus = "뉴스"
	}
	return rewrite(fmt.Sprintf("%s %s 정보", strings.TrimRight(q, "?？ "), focus), 1,
		fmt.Sprintf("사용자 피드백 '%s' 반영", feedback), "latest_first")
}

// optimize turns rewrites into search form, removes duplicates and caps the list.
func (r *Rewriter) optimize(in []Rewrite, qa analysis.QueryAnalysis) []Rewrite {
	korean := false
	if qa.Category == analysis.CategoryEconomy || qa.Category == analysis.CategoryBusiness {
		for _, org := range qa.Entities.Organizations {
			if containsAny(org, koreanGroups...) {
				korean = true
			}
		}
	}
	seen := map[string]bool{}
	out := make([]Rewrite, 0, len(in))
	for _, rw := range in {
		q := rw.Query
		if !containsAny(q, newsWords...) {
			q = strings.TrimSpace(questionTail.ReplaceAllString(q, "")) + " 뉴스"
		}
		if korean && !strings.Contains(q, "한국") {
			q = "한국 " + q
		}
		if seen[q] {
			continue
		}
		seen[q] = true
		rw.Original, rw.Query = rw.Query, q
		out = append(out, rw)
		if len(out) == r.opt.MaxRewrites {
			break
		}
	}
	return out
}

// Quality scores a rewrite batch: 0.5 base, +0.2 when the average length
// exceeds 1.5x the original, +0.2 when the average word count exceeds 1.3x,
// +0.1 for two or more alternatives.
func Quality(original string, rewrites []Rewrite) float64 {
	if len(rewrites) == 0 {
		return 0
	}
	var runes, words float64
	for _, rw := range rewrites {
		runes += float64(utf8.RuneCountInString(rw.Query))
		words += float64(len(strings.Fields(rw.Query)))
	}
	n := float64(len(rewrites))
	score := 0.5
	if runes/n > float64(utf8.RuneCountInString(original))*1.5 {
		score += 0.2
	}
	if words/n > float64(len(strings.Fields(original)))*1.3 {
		score += 0.2
	}
	if len(rewrites) >= 2 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

func clarifications(q string, p Pattern, qa analysis.QueryAnalysis) []string {
	switch p {
	case PatternSingleWord, PatternTooShort:
		return []string{
			fmt.Sprintf("'%s'에 대해 구체적으로 어떤 정보가 필요하신가요?", strings.TrimRight(q, "?？ ")),
			"최신 동향, 실적, 또는 뉴스 중 어떤 것을 원하시나요?",
			"특정 시점이나 기간의 정보를 원하시나요?",
		}
	case PatternCompanyOnly:
		return []string{
			"해당 기업의 어떤 측면이 궁금하신가요? (주가, 실적, 뉴스 등)",
			"최근 정보를 원하시나요, 아니면 특정 시점의 정보를 원하시나요?",
			"구체적으로 어떤 정보가 필요하신지 말씀해 주세요",
		}
	case PatternVagueInquiry:
		return []string{
			"더 구체적으로 어떤 정보를 원하시는지 설명해 주세요",
			"관심 있는 특정 측면이나 분야가 있나요?",
			"어떤 시점의 정보가 필요하신가요?",
		}
	}
	out := []string{"질문을 좀 더 구체적으로 말씀해 주실 수 있나요?"}
	if qa.Category != analysis.CategoryGeneral {
		out = append(out, fmt.Sprintf("%s 분야에서 어떤 종류의 정보를 찾고 계신가요?", qa.Category.Label()))
	} else {
		out = append(out, "어떤 종류의 정보를 찾고 계신가요?")
	}
	return append(out, "관련된 구체적인 키워드나 회사명이 있나요?")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
