package temporal

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/higress-group/newsrag/common/logger"
)

type unit int

const (
	unitHour unit = iota
	unitDay
	unitWeek
	unitMonth
	unitYear
)

type relativeRule struct {
	re     *regexp.Regexp
	offset int
	unit   unit
}

type specificRule struct {
	// submatches are count, unit and direction
	re     *regexp.Regexp
	unitOf func(s string) (unit, bool)
	dirOf  func(s string) int
	// hangulBounded rejects a match that runs into a following Hangul word,
	// so "10년 전망" is not read as ten years ago.
	hangulBounded bool
}

type absoluteRule struct {
	re    *regexp.Regexp
	build func(m []string, now time.Time) (DateRange, bool)
}

type seasonalRule struct {
	re    *regexp.Regexp
	build func(m []string, now time.Time) DateRange
}

var relativeRules = []relativeRule{
	{regexp.MustCompile(`오늘|(?i:\btoday\b)`), 0, unitDay},
	{regexp.MustCompile(`어제|(?i:\byesterday\b)`), -1, unitDay},
	{regexp.MustCompile(`그저께|그제`), -2, unitDay},
	{regexp.MustCompile(`모레`), 2, unitDay},
	{regexp.MustCompile(`내일|(?i:\btomorrow\b)`), 1, unitDay},
	{regexp.MustCompile(`이번\s*주|(?i:\bthis\s+week\b)`), 0, unitWeek},
	{regexp.MustCompile(`지난\s*주|저번\s*주|(?i:\blast\s+week\b)`), -1, unitWeek},
	{regexp.MustCompile(`다음\s*주|(?i:\bnext\s+week\b)`), 1, unitWeek},
	{regexp.MustCompile(`이번\s*달|이번\s*월|(?i:\bthis\s+month\b)`), 0, unitMonth},
	{regexp.MustCompile(`지난\s*달|저번\s*달|지난\s*월|(?i:\blast\s+month\b)`), -1, unitMonth},
	{regexp.MustCompile(`다음\s*달|다음\s*월|(?i:\bnext\s+month\b)`), 1, unitMonth},
	{regexp.MustCompile(`올해|금년|(?i:\bthis\s+year\b)`), 0, unitYear},
	{regexp.MustCompile(`작년|지난해|(?i:\blast\s+year\b)`), -1, unitYear},
	{regexp.MustCompile(`내년|(?i:\bnext\s+year\b)`), 1, unitYear},
}

var specificRules = []specificRule{
	{
		re: regexp.MustCompile(`(\d+)\s*(년|개월|달|주|일|시간)\s*(전|후|뒤)`),
		unitOf: func(s string) (unit, bool) {
			switch s {
			case "년":
				return unitYear, true
			case "개월", "달":
				return unitMonth, true
			case "주":
				return unitWeek, true
			case "일":
				return unitDay, true
			case "시간":
				return unitHour, true
			}
			return 0, false
		},
		dirOf: func(s string) int {
			if s == "전" {
				return -1
			}
			return 1
		},
		hangulBounded: true,
	},
	{
		re: regexp.MustCompile(`(?i)\b(\d+)\s+(years?|months?|weeks?|days?|hours?)\s+(ago|later|from\s+now)`),
		unitOf: func(s string) (unit, bool) {
			switch strings.TrimSuffix(strings.ToLower(s), "s") {
			case "year":
				return unitYear, true
			case "month":
				return unitMonth, true
			case "week":
				return unitWeek, true
			case "day":
				return unitDay, true
			case "hour":
				return unitHour, true
			}
			return 0, false
		},
		dirOf: func(s string) int {
			if strings.EqualFold(s, "ago") {
				return -1
			}
			return 1
		},
	},
}

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// bareYear also matches amounts like "2000원", which countedNumber rejects.
var bareYear = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

// absoluteRules are ordered most specific first; a later rule whose match
// overlaps an accepted one is dropped.
var absoluteRules = []absoluteRule{
	{regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`), func(m []string, now time.Time) (DateRange, bool) {
		return exactDay(m[1], m[2], m[3], now, "absolute_date")
	}},
	{regexp.MustCompile(`(\d{4})[-./](\d{1,2})[-./](\d{1,2})`), func(m []string, now time.Time) (DateRange, bool) {
		return exactDay(m[1], m[2], m[3], now, "absolute_date")
	}},
	{regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월`), func(m []string, now time.Time) (DateRange, bool) {
		y, ok1 := atoiBounded(m[1], 9999)
		mo, ok2 := atoiBounded(m[2], 12)
		if !ok1 || !ok2 || mo < 1 {
			return DateRange{}, false
		}
		return monthRange(y, time.Month(mo), now.Location(), "absolute_month"), true
	}},
	{regexp.MustCompile(`(\d{1,2})\s*월\s*(\d{1,2})\s*일`), func(m []string, now time.Time) (DateRange, bool) {
		return exactDay(strconv.Itoa(now.Year()), m[1], m[2], now, "absolute_month_day")
	}},
	{regexp.MustCompile(`(\d{4})\s*년`), func(m []string, now time.Time) (DateRange, bool) {
		y, ok := atoiBounded(m[1], 9999)
		if !ok {
			return DateRange{}, false
		}
		return yearRange(y, now.Location(), "absolute_year"), true
	}},
	{regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?\s+(\d{1,2})\b`), func(m []string, now time.Time) (DateRange, bool) {
		mo := monthNames[strings.ToLower(m[1])]
		return exactDay(strconv.Itoa(now.Year()), strconv.Itoa(int(mo)), m[2], now, "absolute_month_day")
	}},
	{bareYear, func(m []string, now time.Time) (DateRange, bool) {
		y, _ := strconv.Atoi(m[1])
		return yearRange(y, now.Location(), "absolute_year"), true
	}},
}

func quarter(q int) func(m []string, now time.Time) DateRange {
	return func(m []string, now time.Time) DateRange {
		return monthSpan(now.Year(), time.Month(3*(q-1)+1), 3, now.Location(), "seasonal_quarter")
	}
}

func span(from time.Month, months int, reason string) func(m []string, now time.Time) DateRange {
	return func(m []string, now time.Time) DateRange {
		return monthSpan(now.Year(), from, months, now.Location(), reason)
	}
}

// winter runs December through February. Before December the most recent
// winter is meant, so it starts in December of the previous year.
func winter(m []string, now time.Time) DateRange {
	year := now.Year()
	if now.Month() != time.December {
		year--
	}
	return monthSpan(year, time.December, 3, now.Location(), "seasonal_winter")
}

var seasonalRules = []seasonalRule{
	{regexp.MustCompile(`상반기|(?i:\bfirst\s+half\b|\bH1\b)`), span(time.January, 6, "seasonal_first_half")},
	{regexp.MustCompile(`하반기|(?i:\bsecond\s+half\b|\bH2\b)`), span(time.July, 6, "seasonal_second_half")},
	{regexp.MustCompile(`1\s*분기|(?i:\bQ1\b)`), quarter(1)},
	{regexp.MustCompile(`2\s*분기|(?i:\bQ2\b)`), quarter(2)},
	{regexp.MustCompile(`3\s*분기|(?i:\bQ3\b)`), quarter(3)},
	{regexp.MustCompile(`4\s*분기|(?i:\bQ4\b)`), quarter(4)},
	{regexp.MustCompile(`봄|(?i:\bspring\b)`), span(time.March, 3, "seasonal_spring")},
	{regexp.MustCompile(`여름|(?i:\bsummer\b)`), span(time.June, 3, "seasonal_summer")},
	{regexp.MustCompile(`가을|(?i:\bautumn\b)`), span(time.September, 3, "seasonal_autumn")},
	{regexp.MustCompile(`겨울|(?i:\bwinter\b)`), winter},
}

var (
	freshnessPatterns = compileAll(
		`최근`, `최신`, `요즘`, `현재`, `지금`, `실시간`, `라이브`, `속보`,
		`(?i)\blatest\b`, `(?i)\brecent(ly)?\b`, `(?i)\bbreaking\b`, `(?i)\blive\b`,
		`(?i)\bright\s+now\b`, `(?i)\bcurrently\b`,
	)
	urgentPattern = regexp.MustCompile(`(?i)실시간|속보|긴급|\bbreaking\b|\burgent\b`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// maxCount bounds "N units ago" captures; larger values are treated as unparseable.
const maxCount = 9999

// Analyzer extracts temporal intent from queries in a fixed timezone.
type Analyzer struct {
	loc *time.Location
}

func NewAnalyzer(loc *time.Location) *Analyzer {
	if loc == nil {
		loc = time.UTC
	}
	return &Analyzer{loc: loc}
}

func (a *Analyzer) Location() *time.Location { return a.loc }

// Analyze parses query relative to now. It never fails: unparseable captures
// are logged and skipped.
func (a *Analyzer) Analyze(query string, now time.Time) Intent {
	now = now.In(a.loc)
	var taken [][2]int
	overlaps := func(s, e int) bool {
		for _, t := range taken {
			if s < t[1] && t[0] < e {
				return true
			}
		}
		return false
	}
	accept := func(family []Expression, e Expression) []Expression {
		if overlaps(e.Start, e.End) {
			return family
		}
		taken = append(taken, [2]int{e.Start, e.End})
		return append(family, e)
	}

	var relative, specific, absolute, seasonal []Expression

	for _, r := range relativeRules {
		for _, loc := range r.re.FindAllStringIndex(query, -1) {
			text := query[loc[0]:loc[1]]
			relative = accept(relative, Expression{
				Text: text, Start: loc[0], End: loc[1], Type: ExpressionRelative,
				Range: relativeRange(now, r.offset, r.unit, "relative:"+text),
			})
		}
	}

	for _, r := range specificRules {
		for _, idx := range r.re.FindAllStringSubmatchIndex(query, -1) {
			text := query[idx[0]:idx[1]]
			if r.hangulBounded && runsIntoWord(query[idx[1]:]) {
				continue
			}
			countText := query[idx[2]:idx[3]]
			u, ok := r.unitOf(query[idx[4]:idx[5]])
			if !ok {
				continue
			}
			n, err := strconv.Atoi(countText)
			if err != nil || n > maxCount {
				logger.Warnf("temporal: skip unparseable period %q: count out of range", text)
				continue
			}
			if u == unitYear && n >= 1000 {
				// "2024년 전망" reads as a calendar year, not 2024 years ago.
				continue
			}
			dir := r.dirOf(query[idx[6]:idx[7]])
			specific = accept(specific, Expression{
				Text: text, Start: idx[0], End: idx[1], Type: ExpressionSpecific,
				Range: specificRange(now, dir*n, u, "specific:"+text),
			})
		}
	}

	for _, r := range absoluteRules {
		for _, idx := range r.re.FindAllStringSubmatchIndex(query, -1) {
			if overlaps(idx[0], idx[1]) || followsDigit(query, idx[0]) {
				continue
			}
			if r.re == bareYear && countedNumber(query[idx[1]:]) {
				continue
			}
			m := submatches(query, idx)
			rng, ok := r.build(m, now)
			if !ok {
				logger.Warnf("temporal: skip invalid absolute date %q", m[0])
				continue
			}
			rng.Reason = rng.Reason + ":" + m[0]
			absolute = accept(absolute, Expression{
				Text: m[0], Start: idx[0], End: idx[1], Type: ExpressionAbsolute, Range: rng,
			})
		}
	}

	for _, r := range seasonalRules {
		for _, idx := range r.re.FindAllStringSubmatchIndex(query, -1) {
			m := submatches(query, idx)
			rng := r.build(m, now)
			rng.Reason = rng.Reason + ":" + m[0]
			seasonal = accept(seasonal, Expression{
				Text: m[0], Start: idx[0], End: idx[1], Type: ExpressionSeasonal, Range: rng,
			})
		}
	}

	var exprs []Expression
	for _, family := range [][]Expression{relative, specific, absolute, seasonal} {
		sort.SliceStable(family, func(i, j int) bool { return family[i].Start < family[j].Start })
		exprs = append(exprs, family...)
	}
	return newIntent(now, exprs, FreshnessScore(query))
}

// FreshnessScore is the keyword bonus: 0.2 per freshness keyword plus 0.4 for
// urgency markers, capped at 1.
func FreshnessScore(query string) float64 {
	score := 0.0
	for _, re := range freshnessPatterns {
		if re.MatchString(query) {
			score += 0.2
		}
	}
	if urgentPattern.MatchString(query) {
		score += 0.4
	}
	if score > 1 {
		score = 1
	}
	return score
}

func relativeRange(now time.Time, offset int, u unit, reason string) DateRange {
	switch u {
	case unitDay:
		return dayRange(now.AddDate(0, 0, offset), reason)
	case unitWeek:
		return weekRange(now.AddDate(0, 0, 7*offset), reason)
	case unitMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, offset, 0)
		return monthRange(first.Year(), first.Month(), now.Location(), reason)
	default:
		return yearRange(now.Year()+offset, now.Location(), reason)
	}
}

// specificRange anchors "N units ago/later". Month and year offsets are
// imprecise in speech, so they widen to 30 days either side of the target.
func specificRange(now time.Time, signed int, u unit, reason string) DateRange {
	switch u {
	case unitHour:
		s := now.Add(time.Duration(signed) * time.Hour).Truncate(time.Hour)
		return DateRange{Start: s, End: before(s.Add(time.Hour)), Reason: reason}
	case unitDay:
		return dayRange(now.AddDate(0, 0, signed), reason)
	case unitWeek:
		return weekRange(now.AddDate(0, 0, 7*signed), reason)
	case unitMonth:
		target := now.AddDate(0, signed, 0)
		return DateRange{Start: target.AddDate(0, 0, -30), End: target.AddDate(0, 0, 30), Reason: reason}
	default:
		target := now.AddDate(signed, 0, 0)
		return DateRange{Start: target.AddDate(0, 0, -30), End: target.AddDate(0, 0, 30), Reason: reason}
	}
}

func exactDay(ys, ms, ds string, now time.Time, reason string) (DateRange, bool) {
	y, ok1 := atoiBounded(ys, 9999)
	mo, ok2 := atoiBounded(ms, 12)
	d, ok3 := atoiBounded(ds, 31)
	if !ok1 || !ok2 || !ok3 || mo < 1 || d < 1 {
		return DateRange{}, false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, now.Location())
	if t.Day() != d {
		// normalized past month end, e.g. February 30
		return DateRange{}, false
	}
	return dayRange(t, reason), true
}

// followsDigit reports whether the match at i is the tail of a longer number.
func followsDigit(s string, i int) bool {
	return i > 0 && s[i-1] >= '0' && s[i-1] <= '9'
}

// particles may follow 전/후/뒤 without forming a new word: 전에, 후부터, 전인.
const particles = "에의부까쯤께엔만인이은으로도와과"

func runsIntoWord(rest string) bool {
	r, _ := utf8.DecodeRuneInString(rest)
	return unicode.Is(unicode.Hangul, r) && !strings.ContainsRune(particles, r)
}

var counters = []string{
	"원", "명", "개", "건", "대", "억", "만", "천", "달러", "주", "회", "위", "배", "톤", "평", "가구", "곳", "%", "퍼센트",
	"won", "people", "units", "dollars",
}

// countedNumber reports whether rest starts, after spaces, with a counter.
func countedNumber(rest string) bool {
	rest = strings.TrimLeft(rest, " ")
	for _, c := range counters {
		if strings.HasPrefix(rest, c) {
			return true
		}
	}
	return false
}

func atoiBounded(s string, max int) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > max {
		return 0, false
	}
	return n, true
}

func submatches(s string, idx []int) []string {
	out := make([]string, len(idx)/2)
	for i := range out {
		if idx[2*i] >= 0 {
			out[i] = s[idx[2*i]:idx[2*i+1]]
		}
	}
	return out
}
