package workflow

import "time"

type Phase string

const (
	PhaseStart  Phase = "start"
	PhaseFinish Phase = "finish"
	PhaseSkip   Phase = "skip"
)

// Event reports step progress. Err is set on a failed finish.
type Event struct {
	Step     StepType
	Phase    Phase
	Attempt  int
	Duration time.Duration
	Err      error
}

// Observer receives step events synchronously from the executing goroutine.
type Observer interface {
	OnStep(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnStep(ev Event) { f(ev) }
