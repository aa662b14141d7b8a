package determinism

import (
	"go.uber.org/zap"
)

// Desync reports a frame where a peer's hash differs from ours.
type Desync struct {
	Frame  int
	Peer   uint8
	Local  int32
	Remote int32
}

// Monitor keeps the last few local hashes and compares remote reports against
// them. It never tries to recover; a mismatch is handed to the desync handler.
type Monitor struct {
	log      *zap.Logger
	frames   []int
	hashes   []int32
	onDesync func(Desync)
	desyncs  int
}

// NewMonitor keeps history frames of local hashes.
func NewMonitor(history int, log *zap.Logger) *Monitor {
	if history < 1 {
		history = 1
	}
	m := &Monitor{
		log:    log,
		frames: make([]int, history),
		hashes: make([]int32, history),
	}
	for i := range m.frames {
		m.frames[i] = -1
	}
	return m
}

// OnDesync installs the mismatch handler.
func (m *Monitor) OnDesync(fn func(Desync)) { m.onDesync = fn }

// Record stores the local hash of a frame, evicting the oldest entry.
func (m *Monitor) Record(frame int, hash int32) {
	i := frame % len(m.frames)
	m.frames[i] = frame
	m.hashes[i] = hash
}

// Local returns the recorded hash for frame while it is still in history.
func (m *Monitor) Local(frame int) (int32, bool) {
	if frame < 0 {
		return 0, false
	}
	i := frame % len(m.frames)
	if m.frames[i] != frame {
		return 0, false
	}
	return m.hashes[i], true
}

// Compare checks a peer's hash for frame. known is false when the frame has
// not been simulated yet or already left history; nothing is compared then.
func (m *Monitor) Compare(frame int, peer uint8, remote int32) (match, known bool) {
	local, ok := m.Local(frame)
	if !ok {
		return false, false
	}
	if local == remote {
		return true, true
	}
	m.desyncs++
	d := Desync{Frame: frame, Peer: peer, Local: local, Remote: remote}
	m.log.Error("狀態雜湊不一致",
		zap.Int("frame", frame),
		zap.Uint8("peer", peer),
		zap.Int32("local", local),
		zap.Int32("remote", remote),
	)
	if m.onDesync != nil {
		m.onDesync(d)
	}
	return false, true
}

// Desyncs counts mismatches seen so far.
func (m *Monitor) Desyncs() int { return m.desyncs }
