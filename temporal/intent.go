package temporal

import (
	"strings"
	"time"
)

// ExpressionType names the pattern family a date expression came from.
type ExpressionType string

const (
	ExpressionNone     ExpressionType = "none"
	ExpressionRelative ExpressionType = "relative"
	ExpressionSpecific ExpressionType = "specific"
	ExpressionAbsolute ExpressionType = "absolute"
	ExpressionSeasonal ExpressionType = "seasonal"
)

// ReasonDefaultRecent is the range reason used when no expression matched.
const ReasonDefaultRecent = "no_date_expression_default_to_recent"

// DefaultWindowDays is the look-back window applied when a query has no date expression.
const DefaultWindowDays = 30

// DateRange is a closed interval of instants.
type DateRange struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

// Contains reports whether t falls within the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Expression is one matched date phrase with its byte span in the query.
type Expression struct {
	Text  string         `json:"text"`
	Start int            `json:"start"`
	End   int            `json:"end"`
	Type  ExpressionType `json:"type"`
	Range DateRange      `json:"range"`
}

// Intent is the temporal reading of a single query. Range is always set.
type Intent struct {
	HasExpression     bool           `json:"has_expression"`
	ExpressionType    ExpressionType `json:"expression_type"`
	Expressions       []Expression   `json:"detected_expressions"`
	Range             DateRange      `json:"date_range"`
	FreshnessPriority float64        `json:"freshness_priority"`
}

// DefaultFreshness is the freshness base for queries without a date expression.
const DefaultFreshness = 0.9

// newIntent builds an Intent from prioritized expressions and the keyword
// freshness bonus. With no expressions the range defaults to the trailing
// DefaultWindowDays window ending at now and freshness starts at DefaultFreshness.
func newIntent(now time.Time, exprs []Expression, bonus float64) Intent {
	if len(exprs) == 0 {
		freshness := DefaultFreshness + bonus
		if freshness > 1 {
			freshness = 1
		}
		return Intent{
			ExpressionType: ExpressionNone,
			Range: DateRange{
				Start:  now.AddDate(0, 0, -DefaultWindowDays),
				End:    now,
				Reason: ReasonDefaultRecent,
			},
			FreshnessPriority: freshness,
		}
	}
	primary := exprs[0]
	return Intent{
		HasExpression:     true,
		ExpressionType:    primary.Type,
		Expressions:       exprs,
		Range:             primary.Range,
		FreshnessPriority: bonus,
	}
}

// Summary renders the intent for traces.
func (i Intent) Summary() string {
	if !i.HasExpression {
		return "no date expression, recent " + i.Range.Start.Format("2006-01-02") + " ~ " + i.Range.End.Format("2006-01-02")
	}
	texts := make([]string, 0, len(i.Expressions))
	for _, e := range i.Expressions {
		texts = append(texts, e.Text)
	}
	return string(i.ExpressionType) + " [" + strings.Join(texts, ", ") + "] " +
		i.Range.Start.Format("2006-01-02") + " ~ " + i.Range.End.Format("2006-01-02")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// before returns the last representable instant ahead of t.
func before(t time.Time) time.Time {
	return t.Add(-time.Nanosecond)
}

func dayRange(t time.Time, reason string) DateRange {
	s := startOfDay(t)
	return DateRange{Start: s, End: before(s.AddDate(0, 0, 1)), Reason: reason}
}

// weekRange spans Monday 00:00 through Sunday 23:59:59 of the week containing t.
func weekRange(t time.Time, reason string) DateRange {
	s := startOfDay(t)
	offset := (int(s.Weekday()) + 6) % 7
	monday := s.AddDate(0, 0, -offset)
	return DateRange{Start: monday, End: before(monday.AddDate(0, 0, 7)), Reason: reason}
}

func monthRange(year int, month time.Month, loc *time.Location, reason string) DateRange {
	s := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return DateRange{Start: s, End: before(s.AddDate(0, 1, 0)), Reason: reason}
}

// monthSpan covers the first day of from through the last day of (from + months - 1).
func monthSpan(year int, from time.Month, months int, loc *time.Location, reason string) DateRange {
	s := time.Date(year, from, 1, 0, 0, 0, 0, loc)
	return DateRange{Start: s, End: before(s.AddDate(0, months, 0)), Reason: reason}
}

func yearRange(year int, loc *time.Location, reason string) DateRange {
	return monthSpan(year, time.January, 12, loc, reason)
}
