package trace

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestTraceOrderAndTiming(t *testing.T) {
	base := time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC)
	clock := base
	tr := New().WithClock(func() time.Time { return clock })

	finish := tr.Begin("route_decision", "라우팅 결정")
	clock = clock.Add(1500 * time.Millisecond)
	finish("dateFilteredSearch")
	finish("ignored")

	tr.Add("answer_synthesis", "답변 생성", "ok", 2*time.Second)

	want := []Step{
		{Name: "route_decision", Description: "라우팅 결정", Result: "dateFilteredSearch", DurationSeconds: 1.5},
		{Name: "answer_synthesis", Description: "답변 생성", Result: "ok", DurationSeconds: 2},
	}
	if diff := cmp.Diff(want, tr.Steps()); diff != "" {
		t.Fatalf("steps mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"route_decision", "answer_synthesis"}, tr.Names())
	assert.Equal(t, 3500*time.Millisecond, tr.Total())
	assert.Contains(t, tr.String(), "1. route_decision (1.50s): 라우팅 결정 -> dateFilteredSearch")
}

func TestStepsReturnsCopy(t *testing.T) {
	tr := New()
	tr.Add("a", "", "", 0)
	steps := tr.Steps()
	steps[0].Name = "changed"
	assert.Equal(t, "a", tr.Steps()[0].Name)

	var nilTrace *Trace
	assert.Zero(t, nilTrace.Len())
	assert.Nil(t, nilTrace.Steps())
}
