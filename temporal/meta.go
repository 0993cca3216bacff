package temporal

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Patterns run against the lowercased query with all whitespace removed.
var metaPatterns = compileAll(
	`오늘.*날짜`, `현재.*날짜`, `지금.*날짜`,
	`날짜.*(뭐|무엇|몇)`, `몇월.*몇일`, `몇월.*며칠`,
	`현재.*시간`, `지금.*몇시`, `몇시야`,
	`오늘.*무슨요일`, `무슨요일이야`,
	`지금.*년도`, `현재.*년도`, `올해.*몇년`,
	`오늘.*며칠`, `오늘.*몇일`,
	`what('s|is)(the)?(today'?s)?date`, `whattimeisit`, `whatdayisit(today)?`,
	`whatdayoftheweek`, `whatyearisit`, `today'?sdate`,
)

// MetaDetector recognizes questions that ask for the current date or time
// itself and can be answered from the clock.
type MetaDetector struct{}

func NewMetaDetector() *MetaDetector { return &MetaDetector{} }

func (MetaDetector) IsDateMeta(query string) bool {
	normalized := normalizeMeta(query)
	if normalized == "" {
		return false
	}
	for _, re := range metaPatterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

func normalizeMeta(q string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, q)
}

var koreanWeekdays = [...]string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}

// MetaAnswer builds the reply for a date meta question from now, which should
// already be in the deployment timezone.
func MetaAnswer(query string, now time.Time) string {
	q := strings.ToLower(query)
	if isASCII(query) {
		switch {
		case strings.Contains(q, "time"):
			return fmt.Sprintf("The current time is %s (%s).", now.Format("15:04"), now.Format("MST"))
		case strings.Contains(q, "day"):
			return fmt.Sprintf("Today is %s, %s.", now.Weekday(), now.Format("January 2, 2006"))
		case strings.Contains(q, "year"):
			return fmt.Sprintf("It is %d.", now.Year())
		default:
			return fmt.Sprintf("Today's date is %s, %s.", now.Weekday(), now.Format("January 2, 2006"))
		}
	}
	date := fmt.Sprintf("%d년 %02d월 %02d일", now.Year(), int(now.Month()), now.Day())
	weekday := koreanWeekdays[now.Weekday()]
	switch {
	case strings.Contains(q, "시간") || strings.Contains(q, "몇시") || strings.Contains(q, "몇 시"):
		return fmt.Sprintf("현재 시간은 %s %02d시 %02d분입니다.", date, now.Hour(), now.Minute())
	case strings.Contains(q, "요일"):
		return fmt.Sprintf("오늘은 %s %s입니다.", date, weekday)
	case strings.Contains(q, "년도") || strings.Contains(q, "몇년"):
		return fmt.Sprintf("올해는 %d년입니다. 오늘은 %s %s입니다.", now.Year(), date, weekday)
	default:
		return fmt.Sprintf("오늘 날짜는 %s %s입니다.", date, weekday)
	}
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// Context renders the current-date block embedded in generation prompts so
// the model reasons from the real clock.
func Context(now time.Time) string {
	var b strings.Builder
	b.WriteString("[현재 날짜 정보]\n")
	fmt.Fprintf(&b, "- 오늘: %d년 %02d월 %02d일 %s (%s)\n", now.Year(), int(now.Month()), now.Day(),
		koreanWeekdays[now.Weekday()], now.Format("2006-01-02 MST"))
	fmt.Fprintf(&b, "- 올해: %d년\n", now.Year())
	fmt.Fprintf(&b, "- 작년: %d년\n", now.Year()-1)
	fmt.Fprintf(&b, "- 1년 전: %s\n", now.AddDate(-1, 0, 0).Format("2006-01-02"))
	fmt.Fprintf(&b, "- 2년 전: %s\n", now.AddDate(-2, 0, 0).Format("2006-01-02"))
	b.WriteString("날짜를 추측하지 말고 위 정보를 기준으로 시점을 판단하세요.\n")
	return b.String()
}
