package synth

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	fillerPrefix = regexp.MustCompile(`^\s*(?i:답변|answer|응답)\s*[:：]\s*`)
	boldStars    = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnder    = regexp.MustCompile(`__([^_]+)__`)
	heading      = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*`)
	emoji        = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{FE0F}\x{200D}]`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
	citation     = regexp.MustCompile(`\[(\d+)\]`)
	citeThenWord = regexp.MustCompile(`(\[\d+\])([가-힣a-zA-Z])`)
)

// PostProcess cleans raw model output and validates citations against
// sourceCount. Every remaining [n] satisfies 1 <= n <= sourceCount.
func PostProcess(raw string, sourceCount int) string {
	out := fillerPrefix.ReplaceAllString(raw, "")
	out = boldStars.ReplaceAllString(out, "$1")
	out = boldUnder.ReplaceAllString(out, "$1")
	out = heading.ReplaceAllString(out, "")
	out = emoji.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = blankLines.ReplaceAllString(out, "\n\n")
	out = ValidateCitations(out, sourceCount)
	out = formatParagraphs(out)
	if sourceCount > 0 && len(Citations(out)) == 0 {
		out = strings.TrimSpace(out + " [1]")
	}
	return out
}

// ValidateCitations deletes markers outside 1..sourceCount. Deletion repeats
// until stable, since removing a marker can join its neighbours into a new one.
func ValidateCitations(text string, sourceCount int) string {
	for {
		next := citation.ReplaceAllStringFunc(text, func(m string) string {
			n, err := strconv.Atoi(m[1 : len(m)-1])
			if err != nil || n < 1 || n > sourceCount {
				return ""
			}
			return m
		})
		if next == text {
			return next
		}
		text = next
	}
}

// Citations lists citation numbers in order of appearance.
func Citations(text string) []int {
	var out []int
	for _, m := range citation.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func formatParagraphs(text string) string {
	text = citeThenWord.ReplaceAllString(text, "$1 $2")
	parts := strings.Split(text, "\n\n")
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
