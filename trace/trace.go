package trace

import (
	"fmt"
	"strings"
	"time"
)

// Step is one entry of an execution trace.
type Step struct {
	Name            string  `json:"step_name"`
	Description     string  `json:"description"`
	Result          string  `json:"result"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Trace is an append-only ordered list of steps for a single request.
// It is not safe for concurrent use.
type Trace struct {
	steps []Step
	now   func() time.Time
}

func New() *Trace {
	return &Trace{now: time.Now}
}

// WithClock replaces the time source, for tests.
func (t *Trace) WithClock(now func() time.Time) *Trace {
	t.now = now
	return t
}

// Add appends a finished step.
func (t *Trace) Add(name, description, result string, d time.Duration) {
	t.steps = append(t.steps, Step{
		Name:            name,
		Description:     description,
		Result:          result,
		DurationSeconds: d.Seconds(),
	})
}

// Begin starts timing a step. The returned func appends it with the given
// result; calling it more than once has no further effect.
func (t *Trace) Begin(name, description string) func(result string) {
	start := t.now()
	done := false
	return func(result string) {
		if done {
			return
		}
		done = true
		t.Add(name, description, result, t.now().Sub(start))
	}
}

// Steps returns a copy of the recorded steps.
func (t *Trace) Steps() []Step {
	if t == nil {
		return nil
	}
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.steps)
}

// Names lists step names in order.
func (t *Trace) Names() []string {
	out := make([]string, 0, t.Len())
	for _, s := range t.Steps() {
		out = append(out, s.Name)
	}
	return out
}

// Total is the summed duration of all steps.
func (t *Trace) Total() time.Duration {
	var sec float64
	for _, s := range t.Steps() {
		sec += s.DurationSeconds
	}
	return time.Duration(sec * float64(time.Second))
}

// String renders the trace as numbered lines for logs and the CLI.
func (t *Trace) String() string {
	var b strings.Builder
	for i, s := range t.Steps() {
		fmt.Fprintf(&b, "%d. %s (%.2fs): %s", i+1, s.Name, s.DurationSeconds, s.Description)
		if s.Result != "" {
			fmt.Fprintf(&b, " -> %s", s.Result)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
