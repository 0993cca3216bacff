package synth

import "strings"

var analyticalMarkers = []string{"분석", "전망", "발표", "보도"}

// Quality scores a post-processed answer in [0, 1].
func Quality(answer string) float64 {
	score := 0.5
	if words := len(strings.Fields(answer)); words >= 50 && words <= 800 {
		score += 0.2
	}
	if n := len(Citations(answer)); n >= 1 && n <= 10 {
		score += 0.2
	}
	for _, m := range analyticalMarkers {
		if strings.Contains(answer, m) {
			score += 0.1
			break
		}
	}
	if len(strings.Split(answer, "\n\n")) >= 2 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}
