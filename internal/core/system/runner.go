package system

// Runner holds systems bucketed by phase. Systems sharing a phase run in
// registration order.
type Runner struct {
	phases [phaseCount][]System
	n      int
}

func NewRunner() *Runner {
	return &Runner{}
}

// Register adds s to its phase. A phase outside PhaseInput..PhaseCleanup
// panics.
func (r *Runner) Register(s System) {
	p := s.Phase()
	r.phases[p] = append(r.phases[p], s)
	r.n++
}

// Tick runs every phase in order.
func (r *Runner) Tick(frame int) {
	for p := range r.phases {
		r.run(Phase(p), frame)
	}
}

// TickPhase runs only the systems of one phase. The scheduler calls it per
// sub-phase so it can stop between phases.
func (r *Runner) TickPhase(phase Phase, frame int) {
	if phase < 0 || int(phase) >= phaseCount {
		return
	}
	r.run(phase, frame)
}

func (r *Runner) run(phase Phase, frame int) {
	for _, s := range r.phases[phase] {
		s.Update(frame)
	}
}

// Len is the number of registered systems.
func (r *Runner) Len() int { return r.n }

// PhaseLen is the number of systems registered for phase.
func (r *Runner) PhaseLen(phase Phase) int {
	if phase < 0 || int(phase) >= phaseCount {
		return 0
	}
	return len(r.phases[phase])
}
