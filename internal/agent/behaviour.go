package agent

import "github.com/l1jgo/lockstep/internal/command"

// Behaviour is a per-agent gameplay hook. Setup runs once when the instance is
// first constructed; the rest run every time the pooled agent is reactivated,
// ticked or retired.
type Behaviour interface {
	Setup(a *Agent)
	Initialize()
	Simulate()
	LateSimulate()
	Execute(cmd *command.Command)
	Deactivate()
}

// BehaviourFactory builds a fresh behaviour for a newly constructed agent.
type BehaviourFactory func() Behaviour

// Helper is a match-wide behaviour. It receives commands for the input codes
// it listens on, including commands sent by the global controller.
type Helper interface {
	ListenInput() []command.InputCode
	Initialize()
	GameStart()
	Simulate()
	LateSimulate()
	Execute(cmd *command.Command)
	Deactivate()
}

// BaseBehaviour has no-op implementations so behaviours only override what
// they use.
type BaseBehaviour struct {
	Agent *Agent
}

func (b *BaseBehaviour) Setup(a *Agent)               { b.Agent = a }
func (b *BaseBehaviour) Initialize()                  {}
func (b *BaseBehaviour) Simulate()                    {}
func (b *BaseBehaviour) LateSimulate()                {}
func (b *BaseBehaviour) Execute(cmd *command.Command) {}
func (b *BaseBehaviour) Deactivate()                  {}

// BaseHelper is the Helper counterpart of BaseBehaviour.
type BaseHelper struct{}

func (BaseHelper) ListenInput() []command.InputCode { return nil }
func (BaseHelper) Initialize()                      {}
func (BaseHelper) GameStart()                       {}
func (BaseHelper) Simulate()                        {}
func (BaseHelper) LateSimulate()                    {}
func (BaseHelper) Execute(cmd *command.Command)     {}
func (BaseHelper) Deactivate()                      {}

// Find returns the first behaviour of type T on the agent.
func Find[T Behaviour](a *Agent) (T, bool) {
	for _, b := range a.behaviours {
		if t, ok := b.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}
