package system

// Phase defines execution ordering within a single simulation frame.
type Phase int

const (
	PhaseInput        Phase = iota // 0: merge the influence frame, execute commands
	PhaseEvents                    // 1: deliver last frame's messages
	PhaseSimulate                  // 2: agent and helper logic
	PhasePhysics                   // 3: partition, pairs, contact resolution
	PhaseLateSimulate              // 4: group decisions, post-physics logic
	PhasePersist                   // 5: hash record + journal flush
	PhaseCleanup                   // 6: destroy queued entities

	phaseCount = int(PhaseCleanup) + 1
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "Input"
	case PhaseEvents:
		return "Events"
	case PhaseSimulate:
		return "Simulate"
	case PhasePhysics:
		return "Physics"
	case PhaseLateSimulate:
		return "LateSimulate"
	case PhasePersist:
		return "Persist"
	case PhaseCleanup:
		return "Cleanup"
	default:
		return "Unknown"
	}
}

// System is the interface every simulation system implements. frame is the
// simulation frame being advanced.
type System interface {
	Phase() Phase
	Update(frame int)
}

// Func adapts a plain function into a System.
type Func struct {
	P  Phase
	Fn func(frame int)
}

func (f Func) Phase() Phase     { return f.P }
func (f Func) Update(frame int) { f.Fn(frame) }
